// Package ratelimit paces batch captures so a job file with many requests
// against the same site does not open pages faster than the site tolerates.
//
// Limiters implement the Limiter interface:
//   - Allow() bool reports whether a capture may start now
//   - Wait(ctx) blocks until one may start or ctx is done
//   - Reset() clears the limiter state
//
// Usage:
//
//	// At most 30 captures per minute
//	limiter := ratelimit.NewSlidingWindow(30, time.Minute)
//	if err := limiter.Wait(ctx); err != nil {
//		return err
//	}
package ratelimit
