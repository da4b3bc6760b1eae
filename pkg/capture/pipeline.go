package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"docshot/pkg/errors"
	"docshot/pkg/imaging"
	"docshot/pkg/logger"
	"docshot/pkg/metadata"
	"docshot/pkg/viewport"
	"docshot/pkg/workspace"
)

// Stage is a step of the capture pipeline
type Stage int

const (
	StageInit Stage = iota
	StageWorkspaceReady
	StageMetricsCaptured
	StageTiling
	StageStitched
	StageCropped
	StageCleaned
	StageScrollRestored
	StageDone
	StageFailed
)

var stageNames = [...]string{
	StageInit:            "INIT",
	StageWorkspaceReady:  "WORKSPACE_READY",
	StageMetricsCaptured: "METRICS_CAPTURED",
	StageTiling:          "TILING",
	StageStitched:        "STITCHED",
	StageCropped:         "CROPPED",
	StageCleaned:         "CLEANED",
	StageScrollRestored:  "SCROLL_RESTORED",
	StageDone:            "DONE",
	StageFailed:          "FAILED",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return fmt.Sprintf("Stage(%d)", int(s))
	}
	return stageNames[s]
}

// Result describes a finished capture
type Result struct {
	RunID        string
	OutputPath   string
	ManifestPath string
	Width        int
	Height       int
	PageInfo     viewport.PageInfo
	Tiles        []Position
	Columns      int
	Rows         int
	Stages       []Stage
	Duration     time.Duration
}

// Capture renders the whole document shown by ctrl into outputPath. Options
// are validated before the controller is contacted. The run's workspace is
// removed on every exit path.
func Capture(ctx context.Context, ctrl viewport.Controller, outputPath string, opts Options) (*Result, error) {
	if err := opts.Validate(outputPath); err != nil {
		return nil, err
	}
	if ctrl == nil {
		return nil, errors.New(errors.ErrorTypeParameter, "validate", "viewport controller is required")
	}

	r := &run{
		id:     uuid.NewString(),
		ctrl:   ctrl,
		output: outputPath,
		opts:   opts.withDefaults(),
		start:  time.Now(),
	}
	r.logger = r.opts.Logger.WithField("run_id", r.id)
	return r.execute(ctx)
}

// Capture runs the request against ctrl
func (req *Request) Capture(ctx context.Context, ctrl viewport.Controller) (*Result, error) {
	return Capture(ctx, ctrl, req.OutputPath, req.Options)
}

// run carries the state of one pipeline execution between stages
type run struct {
	id     string
	ctrl   viewport.Controller
	output string
	opts   Options
	logger logger.Logger
	start  time.Time

	ws       *workspace.Workspace
	info     viewport.PageInfo
	grid     Grid
	scroller *ScrollCoordinator
	tiles    *TileMap
	stages   []Stage

	width, height int
}

func (r *run) enter(s Stage) {
	r.stages = append(r.stages, s)
	logger.LogStage(r.logger, r.id, s.String())
	if r.opts.OnStage != nil {
		r.opts.OnStage(s)
	}
}

func (r *run) execute(ctx context.Context) (res *Result, err error) {
	scroll := r.opts.scrollEnabled()
	r.enter(StageInit)
	r.logger.InfoWithFields("Capture started", map[string]interface{}{
		"output":      r.output,
		"scroll":      scroll,
		"stitch_mode": string(r.opts.StitchMode),
	})

	defer func() {
		if err != nil {
			r.enter(StageFailed)
			r.logger.WithError(err).ErrorWithFields("Capture failed", map[string]interface{}{
				"output": r.output,
				"stage":  r.stages[len(r.stages)-2].String(),
			})
		}
		if r.ws != nil {
			r.ws.Close()
		}
	}()

	r.ws, err = workspace.New(r.opts.WorkspaceBase, r.id, r.logger)
	if err != nil {
		return nil, err
	}
	r.enter(StageWorkspaceReady)

	r.info, err = MeasurePage(ctx, r.ctrl, scroll)
	if err != nil {
		return nil, err
	}
	r.grid = NewGrid(r.info)
	r.scroller = NewScrollCoordinator(r.ctrl, r.grid, r.opts.SettleDelay, r.logger)
	r.logger.InfoWithFields("Page measured", map[string]interface{}{
		"page":    r.info.String(),
		"columns": r.grid.Columns,
		"rows":    r.grid.Rows,
	})
	r.enter(StageMetricsCaptured)

	r.enter(StageTiling)
	loop := &TileLoop{
		ctrl:     r.ctrl,
		ws:       r.ws,
		scroller: r.scroller,
		info:     r.info,
		grid:     r.grid,
		logger:   r.logger,
		progress: r.opts.OnTile,
	}
	if r.tiles, err = loop.Run(ctx, scroll); err != nil {
		return nil, err
	}

	if err := ensureOutputDir(r.output); err != nil {
		return nil, err
	}

	if err := r.stitchAndCrop(); err != nil {
		return nil, err
	}

	r.ws.Close()
	r.enter(StageCleaned)

	if scroll {
		if err := r.scroller.Restore(ctx); err != nil {
			return nil, err
		}
		r.enter(StageScrollRestored)
	}

	res = r.result()
	if r.opts.WriteManifest {
		res.ManifestPath = r.writeManifest(res)
	}

	r.enter(StageDone)
	res.Stages = append([]Stage(nil), r.stages...)
	res.Duration = time.Since(r.start)
	logger.LogCaptureSummary(r.logger, r.output, r.width, r.height, r.tiles.Len(), res.Duration)
	return res, nil
}

func (r *run) stitchAndCrop() error {
	stitcher := NewStitcher(r.ws, r.logger)

	if r.opts.StitchMode == StitchFile {
		if err := stitcher.StitchToFile(r.tiles, r.output); err != nil {
			return err
		}
		r.enter(StageStitched)

		w, h, err := CropFile(r.output, r.info)
		if err != nil {
			return err
		}
		r.width, r.height = w, h
		r.enter(StageCropped)
		return nil
	}

	composite, err := stitcher.Stitch(r.tiles)
	if err != nil {
		return err
	}
	r.enter(StageStitched)

	cropped, err := CropToDocument(composite, r.info)
	if err != nil {
		return err
	}
	if err := imaging.Write(cropped, r.output); err != nil {
		return err
	}
	r.width, r.height = cropped.Bounds().Dx(), cropped.Bounds().Dy()
	r.enter(StageCropped)
	return nil
}

func (r *run) result() *Result {
	return &Result{
		RunID:      r.id,
		OutputPath: r.output,
		Width:      r.width,
		Height:     r.height,
		PageInfo:   r.info,
		Tiles:      r.tiles.Positions(),
		Columns:    r.grid.Columns,
		Rows:       r.grid.Rows,
	}
}

// writeManifest stores the sidecar. A failure only costs the sidecar, so it
// is logged rather than returned.
func (r *run) writeManifest(res *Result) string {
	m := &metadata.Manifest{
		RunID:         r.id,
		OutputPath:    r.output,
		Width:         res.Width,
		Height:        res.Height,
		Page:          r.info,
		Columns:       res.Columns,
		Rows:          res.Rows,
		ScrollEnabled: r.opts.scrollEnabled(),
		StitchMode:    string(r.opts.StitchMode),
		SettleDelay:   r.opts.SettleDelay,
		StartedAt:     r.start,
		CompletedAt:   time.Now(),
	}
	for _, p := range res.Tiles {
		m.Tiles = append(m.Tiles, metadata.TilePosition{X: p.X, Y: p.Y})
	}

	if err := m.Save(); err != nil {
		r.logger.WithError(err).Warn("Failed to write capture manifest")
		return ""
	}
	return metadata.Path(r.output)
}

// ensureOutputDir creates the parent directory of the output image
func ensureOutputDir(outputPath string) error {
	dir := filepath.Dir(outputPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrorTypeWorkspace, "output", fmt.Errorf("failed to create output directory: %w", err))
	}
	return nil
}
