package capture

import (
	"bytes"
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"docshot/pkg/errors"
	"docshot/pkg/imaging"
	"docshot/pkg/logger"
	"docshot/pkg/metadata"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testOptions returns options that keep scratch files under base and log
// into a TestLogger
func testOptions(base string) (Options, *logger.TestLogger) {
	log := logger.NewTestLogger()
	return Options{
		SettleDelay:   time.Millisecond,
		WorkspaceBase: base,
		Logger:        log,
	}, log
}

func assertWorkspaceRemoved(t *testing.T, base string) {
	t.Helper()
	entries, err := os.ReadDir(base)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace directory left behind")
}

func assertSameImage(t *testing.T, want, got *image.RGBA) {
	t.Helper()
	require.Equal(t, want.Bounds(), got.Bounds())
	assert.True(t, bytes.Equal(want.Pix, got.Pix), "image content differs")
}

func TestCapture_TallDocument(t *testing.T) {
	base := t.TempDir()
	output := filepath.Join(t.TempDir(), "page.png")
	doc := patternDocument(1024, 3206)
	ctrl := newFakeController(doc, 1024, 768, 1)
	opts, _ := testOptions(base)

	res, err := Capture(context.Background(), ctrl, output, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Columns)
	assert.Equal(t, 5, res.Rows)
	assert.Equal(t, []Position{{0, 0}, {0, 1}, {0, 2}, {0, 3}, {0, 4}}, res.Tiles)

	rawW, rawH := NewGrid(res.PageInfo).RawSize()
	assert.Equal(t, 1024, rawW)
	assert.Equal(t, 3840, rawH)

	assert.Equal(t, 1024, res.Width)
	assert.Equal(t, 3206, res.Height)

	out, err := imaging.Read(output)
	require.NoError(t, err)
	assertSameImage(t, doc, out)

	assert.Equal(t, 5, ctrl.captures)
	assert.Equal(t, 5, ctrl.scrolls, "four tile scrolls plus the restore")
	assert.Equal(t, 4, ctrl.settles)
	assert.Equal(t, []bool{true}, ctrl.normalizeArgs)

	assertWorkspaceRemoved(t, base)
}

func TestCapture_ExactMultipleOfViewport(t *testing.T) {
	for _, k := range []int{2, 3, 4} {
		base := t.TempDir()
		output := filepath.Join(t.TempDir(), "page.png")
		ctrl := newFakeController(patternDocument(120, 90*k), 120, 90, 1)
		opts, _ := testOptions(base)

		res, err := Capture(context.Background(), ctrl, output, opts)
		require.NoError(t, err)
		assert.Len(t, res.Tiles, k)
		for y, p := range res.Tiles {
			assert.Equal(t, Position{X: 0, Y: y}, p)
		}
		assert.Equal(t, 90*k, res.Height)
	}
}

func TestCapture_ViewportSizedDocument(t *testing.T) {
	for _, scroll := range []bool{true, false} {
		base := t.TempDir()
		output := filepath.Join(t.TempDir(), "page.png")
		doc := patternDocument(500, 500)
		ctrl := newFakeController(doc, 500, 500, 1)
		opts, _ := testOptions(base)
		opts.ScrollEnabled = Bool(scroll)

		res, err := Capture(context.Background(), ctrl, output, opts)
		require.NoError(t, err)
		assert.Equal(t, []Position{{0, 0}}, res.Tiles)
		assert.Equal(t, 1, ctrl.captures)
		assert.Equal(t, 0, ctrl.settles)

		out, err := imaging.Read(output)
		require.NoError(t, err)
		assertSameImage(t, doc, out)
		assertWorkspaceRemoved(t, base)
	}
}

func TestCapture_MultipleColumns(t *testing.T) {
	for _, mode := range []StitchMode{StitchMemory, StitchFile} {
		t.Run(string(mode), func(t *testing.T) {
			base := t.TempDir()
			output := filepath.Join(t.TempDir(), "page.png")
			doc := patternDocument(500, 300)
			ctrl := newFakeController(doc, 200, 150, 1)
			opts, _ := testOptions(base)
			opts.StitchMode = mode

			res, err := Capture(context.Background(), ctrl, output, opts)
			require.NoError(t, err)

			assert.Equal(t, 3, res.Columns)
			assert.Equal(t, 2, res.Rows)
			assert.Equal(t, []Position{{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 0}, {2, 1}}, res.Tiles)

			out, err := imaging.Read(output)
			require.NoError(t, err)
			assertSameImage(t, doc, out)
			assertWorkspaceRemoved(t, base)
		})
	}
}

func TestCapture_ClampedScroll(t *testing.T) {
	for _, mode := range []StitchMode{StitchMemory, StitchFile} {
		t.Run(string(mode), func(t *testing.T) {
			base := t.TempDir()
			output := filepath.Join(t.TempDir(), "page.png")
			doc := patternDocument(250, 330)
			ctrl := newFakeController(doc, 100, 100, 1)
			ctrl.clamp = true
			opts, _ := testOptions(base)
			opts.StitchMode = mode

			res, err := Capture(context.Background(), ctrl, output, opts)
			require.NoError(t, err)
			assert.Equal(t, 3, res.Columns)
			assert.Equal(t, 4, res.Rows)
			assert.Equal(t, 250, res.Width)
			assert.Equal(t, 330, res.Height)

			out, err := imaging.Read(output)
			require.NoError(t, err)
			assertSameImage(t, doc, out)
			assertWorkspaceRemoved(t, base)
		})
	}

	// The last row of a tall page stops at 2438 instead of 3072
	doc := patternDocument(1024, 3206)
	ctrl := newFakeController(doc, 1024, 768, 1)
	ctrl.clamp = true
	opts, _ := testOptions(t.TempDir())
	output := filepath.Join(t.TempDir(), "tall.png")

	_, err := Capture(context.Background(), ctrl, output, opts)
	require.NoError(t, err)
	assert.Contains(t, ctrl.callLog(), "scroll(0,3072)")

	out, err := imaging.Read(output)
	require.NoError(t, err)
	assertSameImage(t, doc, out)
}

func TestCapture_CallOrder(t *testing.T) {
	ctrl := newFakeController(patternDocument(200, 250), 100, 100, 1)
	opts, _ := testOptions(t.TempDir())

	_, err := Capture(context.Background(), ctrl, filepath.Join(t.TempDir(), "out.png"), opts)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"metrics(true)",
		"capture",
		"scroll(0,100)", "settle", "capture",
		"scroll(0,200)", "settle", "capture",
		"scroll(100,0)", "settle", "capture",
		"scroll(100,100)", "settle", "capture",
		"scroll(100,200)", "settle", "capture",
		"scroll(0,0)",
	}, ctrl.callLog())
}

func TestCapture_DevicePixelRatio(t *testing.T) {
	for _, dpr := range []float64{1, 2, 3} {
		base := t.TempDir()
		output := filepath.Join(t.TempDir(), "page.png")
		doc := blockDocument(320, 400)
		ctrl := newFakeController(doc, 256, 192, dpr)
		opts, _ := testOptions(base)

		res, err := Capture(context.Background(), ctrl, output, opts)
		require.NoError(t, err, "dpr %v", dpr)
		assert.Equal(t, 320, res.Width, "dpr %v", dpr)
		assert.Equal(t, 400, res.Height, "dpr %v", dpr)

		out, err := imaging.Read(output)
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 320, 400), out.Bounds())

		// Block centers keep their color through the resize
		for _, pt := range []image.Point{{32, 32}, {288, 224}, {160, 352}} {
			want := doc.RGBAAt(pt.X, pt.Y)
			got := out.RGBAAt(pt.X, pt.Y)
			assert.InDelta(t, want.R, got.R, 2, "dpr %v at %v", dpr, pt)
			assert.InDelta(t, want.G, got.G, 2, "dpr %v at %v", dpr, pt)
			assert.InDelta(t, want.B, got.B, 2, "dpr %v at %v", dpr, pt)
		}
		assertWorkspaceRemoved(t, base)
	}
}

func TestNormalizeTile(t *testing.T) {
	info := pageInfo(100, 80, 100, 80, 2)
	ctrl := newFakeController(blockDocument(100, 80), 100, 80, 2)
	data, err := ctrl.CaptureViewport(context.Background())
	require.NoError(t, err)

	raw, err := imaging.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 200, 160), raw.Bounds())

	tile, err := NormalizeTile(data, info, image.Point{})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 80), tile.Bounds())

	// Ratio 1 leaves the capture untouched apart from the crop
	info.DevicePixelRatio = 1
	tile, err = NormalizeTile(data, info, image.Point{})
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 100, 80), tile.Bounds())
	assert.Equal(t, raw.RGBAAt(99, 79), tile.RGBAAt(99, 79))

	// An inset keeps only the region below and right of it
	tile, err = NormalizeTile(data, info, image.Pt(30, 50))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 170, 110), tile.Bounds())
	assert.Equal(t, raw.RGBAAt(30, 50), tile.RGBAAt(0, 0))

	_, err = NormalizeTile([]byte("garbage"), info, image.Point{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeImageTool))
}

func TestCapture_NoScroll(t *testing.T) {
	base := t.TempDir()
	output := filepath.Join(t.TempDir(), "page.png")
	ctrl := newFakeController(patternDocument(1024, 3000), 1024, 768, 1)
	opts, _ := testOptions(base)
	opts.ScrollEnabled = Bool(false)

	var stages []Stage
	opts.OnStage = func(s Stage) { stages = append(stages, s) }

	res, err := Capture(context.Background(), ctrl, output, opts)
	require.NoError(t, err)

	assert.Equal(t, 1, ctrl.captures)
	assert.Equal(t, 0, ctrl.scrolls)
	assert.Equal(t, 0, ctrl.settles)
	assert.Equal(t, []bool{false}, ctrl.normalizeArgs)
	assert.Len(t, res.Tiles, 1)

	// The crop is clamped to the single viewport capture
	assert.Equal(t, 1024, res.Width)
	assert.Equal(t, 768, res.Height)

	assert.NotContains(t, stages, StageScrollRestored)
	assert.Equal(t, StageDone, stages[len(stages)-1])
	assertWorkspaceRemoved(t, base)
}

func TestCapture_Stages(t *testing.T) {
	ctrl := newFakeController(patternDocument(100, 150), 100, 100, 1)
	opts, _ := testOptions(t.TempDir())

	var seen []Stage
	opts.OnStage = func(s Stage) { seen = append(seen, s) }

	res, err := Capture(context.Background(), ctrl, filepath.Join(t.TempDir(), "out.png"), opts)
	require.NoError(t, err)

	want := []Stage{
		StageInit,
		StageWorkspaceReady,
		StageMetricsCaptured,
		StageTiling,
		StageStitched,
		StageCropped,
		StageCleaned,
		StageScrollRestored,
		StageDone,
	}
	assert.Equal(t, want, seen)
	assert.Equal(t, want, res.Stages)
	assert.True(t, res.Duration > 0)
	assert.NotEmpty(t, res.RunID)
}

func TestCapture_FailureCleansWorkspace(t *testing.T) {
	base := t.TempDir()
	output := filepath.Join(t.TempDir(), "page.png")
	ctrl := newFakeController(patternDocument(100, 400), 100, 100, 1)
	ctrl.failOnShot = 3
	opts, log := testOptions(base)

	var stages []Stage
	opts.OnStage = func(s Stage) { stages = append(stages, s) }

	res, err := Capture(context.Background(), ctrl, output, opts)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRemote), "got %v", err)

	assert.Equal(t, StageTiling, stages[len(stages)-2])
	assert.Equal(t, StageFailed, stages[len(stages)-1])
	assert.Equal(t, 3, ctrl.captures, "no retries after a failed capture")

	assertWorkspaceRemoved(t, base)
	_, statErr := os.Stat(output)
	assert.True(t, os.IsNotExist(statErr))
	assert.True(t, log.HasMessage("Capture failed"))
}

func TestCapture_MetricsFailure(t *testing.T) {
	base := t.TempDir()
	ctrl := newFakeController(patternDocument(10, 10), 10, 10, 1)
	ctrl.metricsErr = context.DeadlineExceeded
	opts, _ := testOptions(base)

	_, err := Capture(context.Background(), ctrl, filepath.Join(t.TempDir(), "x.png"), opts)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRemote))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, ctrl.captures)
	assertWorkspaceRemoved(t, base)
}

func TestCapture_CancelledDuringSettle(t *testing.T) {
	base := t.TempDir()
	ctrl := newFakeController(patternDocument(100, 300), 100, 100, 1)
	opts, _ := testOptions(base)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	opts.OnTile = func(done, total int) {
		if done == 1 {
			cancel()
		}
	}

	_, err := Capture(ctx, ctrl, filepath.Join(t.TempDir(), "x.png"), opts)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeRemote))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, ctrl.captures)
	assertWorkspaceRemoved(t, base)
}

func TestCapture_TileProgress(t *testing.T) {
	ctrl := newFakeController(patternDocument(100, 250), 100, 100, 1)
	opts, _ := testOptions(t.TempDir())

	var done []int
	opts.OnTile = func(n, total int) {
		assert.Equal(t, 3, total)
		done = append(done, n)
	}

	_, err := Capture(context.Background(), ctrl, filepath.Join(t.TempDir(), "x.png"), opts)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, done)
}

func TestCapture_CreatesOutputDirectory(t *testing.T) {
	output := filepath.Join(t.TempDir(), "nested", "deeper", "page.png")
	ctrl := newFakeController(patternDocument(50, 50), 50, 50, 1)
	opts, _ := testOptions(t.TempDir())

	_, err := Capture(context.Background(), ctrl, output, opts)
	require.NoError(t, err)
	_, err = os.Stat(output)
	assert.NoError(t, err)
}

func TestCapture_Manifest(t *testing.T) {
	output := filepath.Join(t.TempDir(), "page.png")
	ctrl := newFakeController(patternDocument(100, 150), 100, 100, 1)
	opts, _ := testOptions(t.TempDir())
	opts.WriteManifest = true

	res, err := Capture(context.Background(), ctrl, output, opts)
	require.NoError(t, err)
	assert.Equal(t, metadata.Path(output), res.ManifestPath)

	m, err := metadata.Load(output)
	require.NoError(t, err)
	assert.Equal(t, res.RunID, m.RunID)
	assert.Equal(t, []metadata.TilePosition{{X: 0, Y: 0}, {X: 0, Y: 1}}, m.Tiles)
	assert.Equal(t, 100, m.Width)
	assert.Equal(t, 150, m.Height)
	assert.Equal(t, "memory", m.StitchMode)
	assert.True(t, m.ScrollEnabled)
}

func TestCapture_WorkspaceNamedAfterRun(t *testing.T) {
	base := t.TempDir()
	ctrl := newFakeController(patternDocument(100, 150), 100, 100, 1)
	opts, _ := testOptions(base)

	var scratch []string
	opts.OnStage = func(s Stage) {
		if s != StageWorkspaceReady {
			return
		}
		entries, err := os.ReadDir(base)
		require.NoError(t, err)
		for _, e := range entries {
			scratch = append(scratch, e.Name())
		}
	}

	res, err := Capture(context.Background(), ctrl, filepath.Join(t.TempDir(), "out.png"), opts)
	require.NoError(t, err)
	assert.Equal(t, []string{".tmp-" + res.RunID}, scratch)
	assertWorkspaceRemoved(t, base)
}

func TestCapture_ValidationBeforeRemoteCalls(t *testing.T) {
	tests := []struct {
		name   string
		output string
		opts   Options
	}{
		{"empty output", "", Options{}},
		{"negative delay", "out.png", Options{SettleDelay: -time.Second}},
		{"unknown stitch mode", "out.png", Options{StitchMode: "collage"}},
		{"unsupported output format", "out.webp", Options{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := newFakeController(patternDocument(10, 10), 10, 10, 1)
			_, err := Capture(context.Background(), ctrl, tt.output, tt.opts)
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeParameter))
			assert.Empty(t, ctrl.callLog())
		})
	}

	_, err := Capture(context.Background(), nil, "out.png", Options{})
	assert.True(t, errors.IsType(err, errors.ErrorTypeParameter))
}

func TestRequestCapture(t *testing.T) {
	output := filepath.Join(t.TempDir(), "page.png")
	req, err := RequestFromParams(map[string]any{
		"outputPath":    output,
		"settleDelayMs": 1,
		"scrollEnabled": false,
	})
	require.NoError(t, err)

	ctrl := newFakeController(patternDocument(80, 200), 80, 100, 1)
	req.Options.WorkspaceBase = t.TempDir()
	req.Options.Logger = logger.NewNopLogger()

	res, err := req.Capture(context.Background(), ctrl)
	require.NoError(t, err)
	assert.Equal(t, 1, ctrl.captures)
	assert.Equal(t, 100, res.Height)
}
