package capture

import (
	"fmt"
	"image"
	"runtime"
	"strings"

	"golang.org/x/sync/errgroup"

	"docshot/pkg/imaging"
	"docshot/pkg/logger"
	"docshot/pkg/workspace"
)

// StitchMode selects how columns are merged into the composite
type StitchMode string

const (
	// StitchMemory builds the composite in memory; the output is written
	// once, after cropping
	StitchMemory StitchMode = "memory"
	// StitchFile writes the first column to the output path and appends
	// every later column to it in place
	StitchFile StitchMode = "file"
)

// ParseStitchMode converts a config value into a StitchMode
func ParseStitchMode(s string) (StitchMode, error) {
	switch StitchMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", StitchMemory:
		return StitchMemory, nil
	case StitchFile:
		return StitchFile, nil
	default:
		return "", fmt.Errorf("unknown stitch mode %q (want %q or %q)", s, StitchMemory, StitchFile)
	}
}

// Stitcher joins tiles into one composite. Each column is the vertical
// append of its tiles; columns are appended left to right.
type Stitcher struct {
	ws     *workspace.Workspace
	logger logger.Logger
}

// NewStitcher creates a stitcher that materializes columns into ws
func NewStitcher(ws *workspace.Workspace, log logger.Logger) *Stitcher {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Stitcher{ws: ws, logger: log}
}

// Stitch returns the composite of all tiles
func (s *Stitcher) Stitch(tiles *TileMap) (*image.RGBA, error) {
	columns, err := tiles.Columns()
	if err != nil {
		return nil, err
	}

	var composite *image.RGBA
	for n, col := range columns {
		column, err := s.column(col)
		if err != nil {
			return nil, err
		}
		if composite == nil {
			composite = column
			continue
		}

		if _, err := s.ws.SaveColumn(column, n); err != nil {
			return nil, err
		}
		if composite, err = imaging.AppendHorizontal(composite, column, true); err != nil {
			return nil, err
		}
	}

	s.logComposite(len(columns), composite)
	return composite, nil
}

// StitchToFile writes the composite to outputPath, merging each later column
// into the file already on disk
func (s *Stitcher) StitchToFile(tiles *TileMap, outputPath string) error {
	columns, err := tiles.Columns()
	if err != nil {
		return err
	}

	var composite *image.RGBA
	for n, col := range columns {
		column, err := s.column(col)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := imaging.Write(column, outputPath); err != nil {
				return err
			}
			composite = column
			continue
		}

		colPath, err := s.ws.SaveColumn(column, n)
		if err != nil {
			return err
		}
		if composite, err = s.mergeInPlace(outputPath, colPath); err != nil {
			return err
		}
	}

	s.logComposite(len(columns), composite)
	return nil
}

func (s *Stitcher) mergeInPlace(outputPath, colPath string) (*image.RGBA, error) {
	base, err := imaging.Read(outputPath)
	if err != nil {
		return nil, err
	}
	column, err := imaging.Read(colPath)
	if err != nil {
		return nil, err
	}
	merged, err := imaging.AppendHorizontal(base, column, true)
	if err != nil {
		return nil, err
	}
	if err := imaging.Write(merged, outputPath); err != nil {
		return nil, err
	}
	return merged, nil
}

// column decodes the tiles of one column in parallel and appends them top
// to bottom. Only local files are read here; every capture already finished
// sequentially in TileLoop.
func (s *Stitcher) column(tiles []Tile) (*image.RGBA, error) {
	imgs := make([]image.Image, len(tiles))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, t := range tiles {
		i, t := i, t
		g.Go(func() error {
			img, err := imaging.Read(t.Path)
			if err != nil {
				return err
			}
			imgs[i] = img
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(imgs) == 1 {
		return imgs[0].(*image.RGBA), nil
	}
	return imaging.AppendVertical(imgs...)
}

func (s *Stitcher) logComposite(columns int, composite *image.RGBA) {
	if composite == nil {
		return
	}
	s.logger.DebugWithFields("Tiles stitched", map[string]interface{}{
		"columns": columns,
		"width":   composite.Bounds().Dx(),
		"height":  composite.Bounds().Dy(),
	})
}
