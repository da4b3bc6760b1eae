package viewport

import (
	"context"
	"fmt"
	"image"
	"strings"
	"time"
)

// PageInfo is a snapshot of the viewport and document geometry, in layout
// pixels, taken once per capture run
type PageInfo struct {
	ScreenWidth      int     `json:"screen_width"`
	ScreenHeight     int     `json:"screen_height"`
	DocumentWidth    int     `json:"document_width"`
	DocumentHeight   int     `json:"document_height"`
	DevicePixelRatio float64 `json:"device_pixel_ratio"`
}

func (p PageInfo) String() string {
	return fmt.Sprintf("viewport %dx%d, document %dx%d @%.2fx",
		p.ScreenWidth, p.ScreenHeight, p.DocumentWidth, p.DocumentHeight, p.DevicePixelRatio)
}

// Controller drives the remote viewport that renders the document
type Controller interface {
	// QueryMetrics returns the current page geometry. With normalize set the
	// page is first prepared for tiling: scrollbars hidden, body height pinned
	// to the full scroll height and scroll reset to the origin.
	QueryMetrics(ctx context.Context, normalize bool) (PageInfo, error)

	// ScrollTo moves the visible region so that (x, y) is at its top-left and
	// returns the offset actually reached. Methods that clamp at the document
	// edge may stop short of (x, y).
	ScrollTo(ctx context.Context, x, y int) (image.Point, error)

	// CaptureViewport returns the visible region as encoded image bytes, in
	// device pixels
	CaptureViewport(ctx context.Context) ([]byte, error)

	// Settle waits d for the page to repaint after a scroll
	Settle(ctx context.Context, d time.Duration) error
}

// ScrollMethod selects how the visible region is moved
type ScrollMethod string

const (
	// ScrollTransform translates the body with a CSS transform. It never
	// clamps at the document edge.
	ScrollTransform ScrollMethod = "transform"
	// ScrollWindow uses window.scrollTo, which stops where the last viewport
	// meets the document edge
	ScrollWindow ScrollMethod = "window"
)

// ParseScrollMethod converts a config value into a ScrollMethod
func ParseScrollMethod(s string) (ScrollMethod, error) {
	switch ScrollMethod(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScrollTransform:
		return ScrollTransform, nil
	case ScrollWindow:
		return ScrollWindow, nil
	default:
		return "", fmt.Errorf("unknown scroll method %q (want %q or %q)", s, ScrollTransform, ScrollWindow)
	}
}

// Wait blocks for d or until ctx is done. It backs Controller.Settle
// implementations.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
