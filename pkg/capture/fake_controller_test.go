package capture

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sync"
	"time"

	"docshot/pkg/viewport"
)

// fakeController renders a document image through a viewport. Captures are
// taken at the device pixel ratio. Unless clamp is set, scrolling never stops
// at the document edge and pixels past the document stay transparent; with
// clamp it behaves like window.scrollTo.
type fakeController struct {
	mu sync.Mutex

	doc              *image.RGBA
	screenW, screenH int
	dpr              float64

	scrollX, scrollY int
	calls            []string
	normalizeArgs    []bool
	captures         int
	scrolls          int
	settles          int

	clamp      bool
	reported   *image.Point
	metricsErr error
	failOnShot int
}

func newFakeController(doc *image.RGBA, screenW, screenH int, dpr float64) *fakeController {
	return &fakeController{doc: doc, screenW: screenW, screenH: screenH, dpr: dpr}
}

func (f *fakeController) QueryMetrics(ctx context.Context, normalize bool) (viewport.PageInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fmt.Sprintf("metrics(%t)", normalize))
	f.normalizeArgs = append(f.normalizeArgs, normalize)
	if f.metricsErr != nil {
		return viewport.PageInfo{}, f.metricsErr
	}
	return viewport.PageInfo{
		ScreenWidth:      f.screenW,
		ScreenHeight:     f.screenH,
		DocumentWidth:    f.doc.Bounds().Dx(),
		DocumentHeight:   f.doc.Bounds().Dy(),
		DevicePixelRatio: f.dpr,
	}, nil
}

func (f *fakeController) ScrollTo(ctx context.Context, x, y int) (image.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, fmt.Sprintf("scroll(%d,%d)", x, y))
	f.scrolls++
	if f.clamp {
		x = clampScroll(x, f.doc.Bounds().Dx()-f.screenW)
		y = clampScroll(y, f.doc.Bounds().Dy()-f.screenH)
	}
	f.scrollX, f.scrollY = x, y
	if f.reported != nil {
		return *f.reported, nil
	}
	return image.Pt(x, y), nil
}

func clampScroll(v, max int) int {
	if max < 0 {
		max = 0
	}
	if v > max {
		return max
	}
	return v
}

func (f *fakeController) CaptureViewport(ctx context.Context) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, "capture")
	f.captures++
	if f.failOnShot > 0 && f.captures == f.failOnShot {
		return nil, fmt.Errorf("target closed")
	}

	scale := f.dpr
	if scale <= 0 {
		scale = 1
	}
	w := int(float64(f.screenW) * scale)
	h := int(float64(f.screenH) * scale)
	shot := image.NewRGBA(image.Rect(0, 0, w, h))
	docBounds := f.doc.Bounds()
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			lx := f.scrollX + int(float64(px)/scale)
			ly := f.scrollY + int(float64(py)/scale)
			if image.Pt(lx, ly).In(docBounds) {
				shot.SetRGBA(px, py, f.doc.RGBAAt(lx, ly))
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, shot); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (f *fakeController) Settle(ctx context.Context, d time.Duration) error {
	f.mu.Lock()
	f.calls = append(f.calls, "settle")
	f.settles++
	f.mu.Unlock()
	return viewport.Wait(ctx, time.Millisecond)
}

func (f *fakeController) callLog() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// patternDocument gives every pixel a color derived from its coordinates, so
// a tile stitched into the wrong place changes the output
func patternDocument(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(x),
				G: uint8(y),
				B: uint8(x/256*16 + y/256),
				A: 255,
			})
		}
	}
	return img
}

// blockDocument paints solid 64x64 blocks, whose centers survive resampling
func blockDocument(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			bx, by := x/64, y/64
			img.SetRGBA(x, y, color.RGBA{
				R: uint8(bx * 40),
				G: uint8(by * 40),
				B: uint8((bx + by) % 2 * 255),
				A: 255,
			})
		}
	}
	return img
}
