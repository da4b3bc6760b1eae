package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docshot/pkg/viewport"
)

func sampleManifest(output string) *Manifest {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return &Manifest{
		RunID:      "run-1",
		OutputPath: output,
		Width:      1024,
		Height:     3206,
		Page: viewport.PageInfo{
			ScreenWidth:      1024,
			ScreenHeight:     768,
			DocumentWidth:    1024,
			DocumentHeight:   3206,
			DevicePixelRatio: 1,
		},
		Columns:       1,
		Rows:          5,
		Tiles:         []TilePosition{{0, 0}, {0, 1}, {0, 2}, {0, 3}, {0, 4}},
		ScrollEnabled: true,
		StitchMode:    "memory",
		SettleDelay:   100 * time.Millisecond,
		StartedAt:     start,
		CompletedAt:   start.Add(1500 * time.Millisecond),
	}
}

func TestSaveAndLoad(t *testing.T) {
	output := filepath.Join(t.TempDir(), "page.png")
	m := sampleManifest(output)

	assert.False(t, Exists(output))
	require.NoError(t, m.Save())
	assert.True(t, Exists(output))

	_, err := os.Stat(Path(output) + ".tmp")
	assert.True(t, os.IsNotExist(err))

	loaded, err := Load(output)
	require.NoError(t, err)
	assert.Equal(t, m.RunID, loaded.RunID)
	assert.Equal(t, m.Page, loaded.Page)
	assert.Equal(t, m.Tiles, loaded.Tiles)
	assert.Equal(t, m.SettleDelay, loaded.SettleDelay)
	assert.True(t, m.StartedAt.Equal(loaded.StartedAt))
}

func TestSaveWithoutOutput(t *testing.T) {
	m := sampleManifest("")
	assert.Error(t, m.Save())
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)
}

func TestDurationAndOverscan(t *testing.T) {
	m := sampleManifest("page.png")
	assert.Equal(t, 1500*time.Millisecond, m.Duration())

	w, h := m.Overscan()
	assert.Equal(t, 0, w)
	assert.Equal(t, 634, h)

	m.CompletedAt = time.Time{}
	assert.Equal(t, time.Duration(0), m.Duration())
}

func TestCleanOrphaned(t *testing.T) {
	dir := t.TempDir()

	kept := filepath.Join(dir, "kept.png")
	require.NoError(t, os.WriteFile(kept, []byte("png"), 0644))
	require.NoError(t, sampleManifest(kept).Save())

	orphan := filepath.Join(dir, "shots", "gone.png")
	require.NoError(t, os.MkdirAll(filepath.Dir(orphan), 0755))
	require.NoError(t, sampleManifest(orphan).Save())

	// JSON files that only look like sidecars are never touched
	untouched := map[string]string{
		"settings.json":     `{}`,
		"tsconfig.app.json": `{"compilerOptions": {}}`,
		"data.csv.json":     `{"run_id": "x", "output_path": "data.csv"}`,
		"photo.jpg.json":    `{"caption": "not a manifest"}`,
		"other.png.json":    `{"run_id": "x", "output_path": "renamed.png"}`,
	}
	for name, content := range untouched {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}

	removed, err := CleanOrphaned(dir, true)
	require.NoError(t, err)
	assert.Equal(t, []string{Path(orphan)}, removed)
	assert.True(t, Exists(orphan), "dry run keeps the file")

	removed, err = CleanOrphaned(dir, false)
	require.NoError(t, err)
	assert.Equal(t, []string{Path(orphan)}, removed)

	assert.True(t, Exists(kept))
	assert.False(t, Exists(orphan))
	for name := range untouched {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestCleanOrphanedMissingDirectory(t *testing.T) {
	_, err := CleanOrphaned(filepath.Join(t.TempDir(), "absent"), false)
	assert.Error(t, err)
}
