package capture

import (
	"context"
	"image"
	"sort"

	"docshot/pkg/errors"
	"docshot/pkg/imaging"
	"docshot/pkg/logger"
	"docshot/pkg/viewport"
	"docshot/pkg/workspace"
)

// Tile is a persisted, normalized viewport capture
type Tile struct {
	Position
	Path string
}

// TileMap records tiles in capture order. The stitcher consumes it once.
type TileMap struct {
	tiles    []Tile
	consumed bool
}

// Add records a tile
func (m *TileMap) Add(p Position, path string) {
	m.tiles = append(m.tiles, Tile{Position: p, Path: path})
}

// Len returns the number of recorded tiles
func (m *TileMap) Len() int {
	return len(m.tiles)
}

// Positions returns the grid cells in capture order
func (m *TileMap) Positions() []Position {
	out := make([]Position, len(m.tiles))
	for i, t := range m.tiles {
		out[i] = t.Position
	}
	return out
}

// Columns groups the tiles by X, columns ascending and tiles within a
// column ascending by Y. It may only be called once.
func (m *TileMap) Columns() ([][]Tile, error) {
	if m.consumed {
		return nil, errors.New(errors.ErrorTypeImageTool, "stitch", "tile map already consumed")
	}
	m.consumed = true
	if len(m.tiles) == 0 {
		return nil, errors.New(errors.ErrorTypeImageTool, "stitch", "no tiles captured")
	}

	byX := make(map[int][]Tile)
	var xs []int
	for _, t := range m.tiles {
		if _, ok := byX[t.X]; !ok {
			xs = append(xs, t.X)
		}
		byX[t.X] = append(byX[t.X], t)
	}
	sort.Ints(xs)

	columns := make([][]Tile, 0, len(xs))
	for _, x := range xs {
		col := byX[x]
		sort.SliceStable(col, func(i, j int) bool { return col[i].Y < col[j].Y })
		columns = append(columns, col)
	}
	return columns, nil
}

// TileLoop captures the grid cell by cell
type TileLoop struct {
	ctrl     viewport.Controller
	ws       *workspace.Workspace
	scroller *ScrollCoordinator
	info     viewport.PageInfo
	grid     Grid
	logger   logger.Logger
	progress func(done, total int)
}

// Run captures tiles until the grid is exhausted. With scroll disabled it
// takes exactly one capture and never touches the scroll position.
func (l *TileLoop) Run(ctx context.Context, scroll bool) (*TileMap, error) {
	tiles := &TileMap{}
	total := l.grid.Size()
	if !scroll {
		total = 1
	}

	pos := Position{}
	var inset image.Point
	for {
		path, err := l.captureTile(ctx, pos, inset)
		if err != nil {
			return nil, err
		}
		tiles.Add(pos, path)
		if l.progress != nil {
			l.progress(tiles.Len(), total)
		}

		if !scroll {
			break
		}
		pos = l.grid.Next(pos)
		if l.grid.Done(pos) {
			break
		}
		if inset, err = l.scroller.ScrollTo(ctx, pos); err != nil {
			return nil, err
		}
	}
	return tiles, nil
}

func (l *TileLoop) captureTile(ctx context.Context, pos Position, inset image.Point) (string, error) {
	data, err := l.ctrl.CaptureViewport(ctx)
	if err != nil {
		return "", asRemote("screenshot", err)
	}

	tile, err := NormalizeTile(data, l.info, inset)
	if err != nil {
		return "", err
	}

	path, err := l.ws.SaveTile(tile, pos.X, pos.Y)
	if err != nil {
		return "", err
	}
	logger.LogTile(l.logger, pos.X, pos.Y, path)
	return path, nil
}

// NormalizeTile converts a raw capture into a tile in layout pixels. Captures
// taken at a device pixel ratio above 1 are scaled down by 100/ratio percent,
// then the viewport region starting at inset is kept. A non-zero inset drops
// the part of a clamped capture that an earlier tile already covers.
func NormalizeTile(data []byte, info viewport.PageInfo, inset image.Point) (*image.RGBA, error) {
	img, err := imaging.Decode(data)
	if err != nil {
		return nil, err
	}

	if info.DevicePixelRatio > 1 {
		pct := 100 / info.DevicePixelRatio
		img, err = imaging.Resize(img, pct, pct)
		if err != nil {
			return nil, err
		}
	}

	return imaging.Crop(img, info.ScreenWidth, info.ScreenHeight, inset.X, inset.Y)
}
