package metadata

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docshot/pkg/imaging"
	"docshot/pkg/viewport"
)

// Manifest describes one finished capture run
type Manifest struct {
	// Run identity
	RunID      string `json:"run_id"`
	OutputPath string `json:"output_path"`

	// Output image
	Width  int `json:"width"`
	Height int `json:"height"`

	// Geometry
	Page    viewport.PageInfo `json:"page"`
	Columns int               `json:"columns"`
	Rows    int               `json:"rows"`
	Tiles   []TilePosition    `json:"tiles"`

	// Settings
	ScrollEnabled bool          `json:"scroll_enabled"`
	StitchMode    string        `json:"stitch_mode"`
	SettleDelay   time.Duration `json:"settle_delay_ns"`

	// Timestamps
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// TilePosition is a grid cell in capture order
type TilePosition struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Path returns the sidecar path for an output image
func Path(outputPath string) string {
	return outputPath + ".json"
}

// Duration returns how long the run took
func (m *Manifest) Duration() time.Duration {
	if m.CompletedAt.IsZero() {
		return 0
	}
	return m.CompletedAt.Sub(m.StartedAt)
}

// Overscan returns the pixels the tile grid covers beyond the document
func (m *Manifest) Overscan() (int, int) {
	return m.Columns*m.Page.ScreenWidth - m.Page.DocumentWidth,
		m.Rows*m.Page.ScreenHeight - m.Page.DocumentHeight
}

// Save writes the manifest next to its output image
func (m *Manifest) Save() error {
	if m.OutputPath == "" {
		return fmt.Errorf("manifest has no output path")
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}

	path := Path(m.OutputPath)
	tempFile := path + ".tmp"
	if err := os.WriteFile(tempFile, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest file: %w", err)
	}
	if err := os.Rename(tempFile, path); err != nil {
		os.Remove(tempFile)
		return fmt.Errorf("failed to save manifest file: %w", err)
	}

	return nil
}

// Load reads the manifest stored next to an output image
func Load(outputPath string) (*Manifest, error) {
	data, err := os.ReadFile(Path(outputPath))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}

	return &m, nil
}

// Exists checks if a manifest exists for an output image
func Exists(outputPath string) bool {
	_, err := os.Stat(Path(outputPath))
	return err == nil
}

// CleanOrphaned removes manifests under directory whose output image no
// longer exists and returns their paths. Only files named after an image
// (page.png.json) that decode as a manifest are considered. With dryRun set
// nothing is removed.
func CleanOrphaned(directory string, dryRun bool) ([]string, error) {
	var removed []string
	err := filepath.WalkDir(directory, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}

		outputPath := strings.TrimSuffix(path, ".json")
		if _, err := imaging.FormatForPath(outputPath); err != nil {
			return nil
		}
		if _, err := os.Stat(outputPath); !os.IsNotExist(err) {
			return nil
		}
		if !isManifest(path) {
			return nil
		}

		if !dryRun {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("failed to remove orphaned manifest %s: %w", path, err)
			}
		}
		removed = append(removed, path)
		return nil
	})
	return removed, err
}

// isManifest reports whether path holds a manifest written by Save
func isManifest(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return false
	}
	return m.RunID != "" && m.OutputPath != "" && filepath.Base(Path(m.OutputPath)) == filepath.Base(path)
}
