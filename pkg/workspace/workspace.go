// Package workspace owns the scratch directory of a single capture run.
//
// Every run gets its own directory named after its run ID (a fresh UUID when
// none is given), so overlapping runs never share intermediate files. Tile and column images live there
// until Close removes the directory.
package workspace

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"docshot/pkg/errors"
	"docshot/pkg/imaging"
	"docshot/pkg/logger"
)

// Workspace handles the temporary files of one capture run
type Workspace struct {
	dir    string
	logger logger.Logger

	mu     sync.Mutex
	files  []string
	closed bool
}

// New creates the directory .tmp-<runID> below baseDir. An empty runID is
// replaced by a fresh UUID.
func New(baseDir, runID string, log logger.Logger) (*Workspace, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	if runID == "" {
		runID = uuid.NewString()
	}
	dir := filepath.Join(baseDir, ".tmp-"+runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(errors.ErrorTypeWorkspace, "create", fmt.Errorf("failed to create workspace directory: %w", err))
	}

	log.DebugWithFields("Workspace created", map[string]interface{}{
		"workspace": dir,
	})

	return &Workspace{
		dir:    dir,
		logger: log,
	}, nil
}

// Dir returns the workspace directory path
func (w *Workspace) Dir() string {
	return w.dir
}

// TilePath returns the file path for the tile at grid position (x, y)
func (w *Workspace) TilePath(x, y int) string {
	return filepath.Join(w.dir, fmt.Sprintf("%d-%d.png", x, y))
}

// ColumnPath returns the file path for the n-th materialized column
func (w *Workspace) ColumnPath(n int) string {
	return filepath.Join(w.dir, fmt.Sprintf("col-%d.png", n))
}

// SaveTile persists a tile image and returns its path
func (w *Workspace) SaveTile(img image.Image, x, y int) (string, error) {
	return w.save(img, w.TilePath(x, y))
}

// SaveColumn persists a stitched column and returns its path
func (w *Workspace) SaveColumn(img image.Image, n int) (string, error) {
	return w.save(img, w.ColumnPath(n))
}

func (w *Workspace) save(img image.Image, path string) (string, error) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	if closed {
		return "", errors.Newf(errors.ErrorTypeWorkspace, "save", "workspace %s already removed", w.dir)
	}

	if err := imaging.Write(img, path); err != nil {
		return "", err
	}

	w.mu.Lock()
	w.files = append(w.files, path)
	w.mu.Unlock()
	return path, nil
}

// FileCount returns the number of files written through the workspace
func (w *Workspace) FileCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.files)
}

// Close removes the workspace directory recursively. Removal is best effort:
// failures are logged and swallowed. Calling Close more than once is safe.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	w.mu.Unlock()

	if err := removeAll(w.dir); err != nil {
		w.logger.WithError(err).WarnWithFields("Failed to remove workspace", map[string]interface{}{
			"workspace": w.dir,
		})
		return
	}
	w.logger.DebugWithFields("Workspace removed", map[string]interface{}{
		"workspace": w.dir,
		"files":     w.FileCount(),
	})
}

// removeAll is swapped in tests to simulate removal failures
var removeAll = os.RemoveAll
