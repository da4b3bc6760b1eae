package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
	barWidth      = 20
)

// TileProgress renders the progress of a capture run on one line
type TileProgress struct {
	mu        sync.Mutex
	done      int
	total     int
	stage     string
	startTime time.Time
	printed   bool
}

// NewTileProgress creates a tracker that starts timing immediately
func NewTileProgress() *TileProgress {
	return &TileProgress{startTime: time.Now()}
}

// SetStage records the current pipeline stage
func (p *TileProgress) SetStage(stage string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stage = stage
}

// Update records that done of total tiles are captured and redraws the line
func (p *TileProgress) Update(done, total int) {
	p.mu.Lock()
	p.done, p.total = done, total
	line := p.line()
	p.printed = true
	p.mu.Unlock()

	printf(false, "\r%s", line)
}

// Bar returns the progress bar for the tiles captured so far
func (p *TileProgress) Bar() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bar()
}

func (p *TileProgress) bar() string {
	filled := 0
	if p.total > 0 {
		filled = p.done * barWidth / p.total
	}
	if filled > barWidth {
		filled = barWidth
	}
	return fmt.Sprintf("[%s] %d/%d",
		strings.Repeat(ProgressBar, filled)+strings.Repeat(ProgressEmpty, barWidth-filled),
		p.done, p.total)
}

func (p *TileProgress) line() string {
	return fmt.Sprintf("%s %s tiles %s", Green("[CAPTURING]"), p.bar(), Dim(p.stage))
}

// Elapsed returns the time since the tracker was created
func (p *TileProgress) Elapsed() time.Duration {
	return time.Since(p.startTime)
}

// Rate returns captured tiles per second
func (p *TileProgress) Rate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := time.Since(p.startTime).Seconds()
	if elapsed == 0 {
		return 0
	}
	return float64(p.done) / elapsed
}

// Finish ends the progress line
func (p *TileProgress) Finish() {
	p.mu.Lock()
	printed := p.printed
	p.mu.Unlock()
	if printed {
		printf(false, "\n")
	}
}
