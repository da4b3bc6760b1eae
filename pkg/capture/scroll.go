package capture

import (
	"context"
	"fmt"
	"image"
	"time"

	"docshot/pkg/logger"
	"docshot/pkg/viewport"
)

// DefaultSettleDelay is the pause after each scroll before the next capture
const DefaultSettleDelay = 100 * time.Millisecond

// Position is a 0-based cell of the capture grid
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Position) String() string {
	return fmt.Sprintf("%d-%d", p.X, p.Y)
}

// Grid is the tiling of a document into viewport-sized cells
type Grid struct {
	Columns        int
	Rows           int
	ScreenWidth    int
	ScreenHeight   int
	DocumentWidth  int
	DocumentHeight int
}

// NewGrid sizes the grid so that the cells cover the whole document
func NewGrid(info viewport.PageInfo) Grid {
	return Grid{
		Columns:        cells(info.DocumentWidth, info.ScreenWidth),
		Rows:           cells(info.DocumentHeight, info.ScreenHeight),
		ScreenWidth:    info.ScreenWidth,
		ScreenHeight:   info.ScreenHeight,
		DocumentWidth:  info.DocumentWidth,
		DocumentHeight: info.DocumentHeight,
	}
}

func cells(length, step int) int {
	if step <= 0 || length <= step {
		return 1
	}
	return (length + step - 1) / step
}

// Size returns the number of cells
func (g Grid) Size() int {
	return g.Columns * g.Rows
}

// Offset returns the scroll offset that brings p into view
func (g Grid) Offset(p Position) (int, int) {
	return p.X * g.ScreenWidth, p.Y * g.ScreenHeight
}

// Next advances down the column, wrapping to the top of the next column
// after the last row
func (g Grid) Next(p Position) Position {
	p.Y++
	if p.Y >= g.Rows {
		p.Y = 0
		p.X++
	}
	return p
}

// Done reports whether p lies past the right edge of the document
func (g Grid) Done(p Position) bool {
	return p.X*g.ScreenWidth >= g.DocumentWidth
}

// RawSize returns the size of the stitched composite before cropping. Tiles
// clamped at the document edge make the composite smaller.
func (g Grid) RawSize() (int, int) {
	return g.Columns * g.ScreenWidth, g.Rows * g.ScreenHeight
}

// ScrollCoordinator moves the viewport between grid cells
type ScrollCoordinator struct {
	ctrl   viewport.Controller
	grid   Grid
	delay  time.Duration
	logger logger.Logger
}

// NewScrollCoordinator creates a coordinator for grid. A zero delay selects
// DefaultSettleDelay.
func NewScrollCoordinator(ctrl viewport.Controller, grid Grid, delay time.Duration, log logger.Logger) *ScrollCoordinator {
	if delay == 0 {
		delay = DefaultSettleDelay
	}
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &ScrollCoordinator{ctrl: ctrl, grid: grid, delay: delay, logger: log}
}

// ScrollTo brings p into view and waits for the page to settle. It returns
// where the cell's top-left corner sits inside the viewport, which is the
// origin unless the controller clamped the scroll at the document edge.
func (s *ScrollCoordinator) ScrollTo(ctx context.Context, p Position) (image.Point, error) {
	x, y := s.grid.Offset(p)
	reached, err := s.ctrl.ScrollTo(ctx, x, y)
	if err != nil {
		return image.Point{}, asRemote("scroll", err)
	}
	inset := image.Pt(x, y).Sub(reached)
	if inset.X < 0 || inset.Y < 0 || inset.X >= s.grid.ScreenWidth || inset.Y >= s.grid.ScreenHeight {
		return image.Point{}, asRemote("scroll", fmt.Errorf("scrolled to %d,%d instead of %d,%d", reached.X, reached.Y, x, y))
	}

	fields := map[string]interface{}{
		"position": p.String(),
		"offset_x": x,
		"offset_y": y,
	}
	if inset != (image.Point{}) {
		fields["reached_x"] = reached.X
		fields["reached_y"] = reached.Y
	}
	s.logger.DebugWithFields("Scrolled", fields)

	if err := s.ctrl.Settle(ctx, s.delay); err != nil {
		return image.Point{}, asRemote("settle", err)
	}
	return inset, nil
}

// Restore scrolls the page back to the origin
func (s *ScrollCoordinator) Restore(ctx context.Context) error {
	_, err := s.ctrl.ScrollTo(ctx, 0, 0)
	return asRemote("scroll", err)
}
