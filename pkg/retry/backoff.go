package retry

import (
	"context"
	"math/rand"
	"time"
)

// Backoff decides how long Do pauses before the next attempt
type Backoff interface {
	// Delay returns the pause before retry n, counting from 1
	Delay(n int) time.Duration
}

// Doubling starts at Initial and doubles the pause after every failed
// attempt, never exceeding Limit. A zero Limit keeps every pause at Initial.
// Each pause is varied by up to Spread (0 to 1) of itself in either
// direction.
type Doubling struct {
	Initial time.Duration
	Limit   time.Duration
	Spread  float64
}

// ConnectBackoff suits a DevTools endpoint that is still starting: a quarter
// second, then half a second, then one second, capped at five
func ConnectBackoff() *Doubling {
	return &Doubling{
		Initial: 250 * time.Millisecond,
		Limit:   5 * time.Second,
		Spread:  0.1,
	}
}

// Delay implements Backoff
func (d *Doubling) Delay(n int) time.Duration {
	if n <= 0 || d.Initial <= 0 {
		return 0
	}

	limit := max(d.Limit, d.Initial)
	pause := d.Initial
	for i := 1; i < n && pause < limit; i++ {
		pause *= 2
	}
	pause = min(pause, limit)

	if d.Spread > 0 {
		offset := time.Duration((rand.Float64()*2 - 1) * d.Spread * float64(pause))
		pause += offset
	}
	return max(pause, 0)
}

// sleep pauses for d unless ctx ends first
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
