package workspace

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"

	docerrors "docshot/pkg/errors"
	"docshot/pkg/logger"
)

func TestWorkspace(t *testing.T) {
	base := t.TempDir()
	log := logger.NewTestLogger()

	ws, err := New(base, "", log)
	if err != nil {
		t.Fatalf("Failed to create workspace: %v", err)
	}

	if !strings.HasPrefix(filepath.Base(ws.Dir()), ".tmp-") {
		t.Errorf("Unexpected workspace name %s", ws.Dir())
	}
	if filepath.Dir(ws.Dir()) != base {
		t.Errorf("Workspace %s not created below %s", ws.Dir(), base)
	}
	if info, err := os.Stat(ws.Dir()); err != nil || !info.IsDir() {
		t.Fatalf("Expected workspace directory to exist: %v", err)
	}

	tile := image.NewRGBA(image.Rect(0, 0, 4, 4))
	path, err := ws.SaveTile(tile, 1, 2)
	if err != nil {
		t.Fatalf("Failed to save tile: %v", err)
	}
	if path != filepath.Join(ws.Dir(), "1-2.png") {
		t.Errorf("Unexpected tile path %s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("Expected tile file to exist: %v", err)
	}

	colPath, err := ws.SaveColumn(tile, 1)
	if err != nil {
		t.Fatalf("Failed to save column: %v", err)
	}
	if filepath.Base(colPath) != "col-1.png" {
		t.Errorf("Unexpected column path %s", colPath)
	}

	if ws.FileCount() != 2 {
		t.Errorf("Expected 2 files, got %d", ws.FileCount())
	}

	ws.Close()
	if _, err := os.Stat(ws.Dir()); !os.IsNotExist(err) {
		t.Errorf("Expected workspace to be removed, stat err = %v", err)
	}

	// Second close is a no-op
	ws.Close()

	if _, err := ws.SaveTile(tile, 0, 0); !docerrors.IsType(err, docerrors.ErrorTypeWorkspace) {
		t.Errorf("Expected workspace error after close, got %v", err)
	}
}

func TestWorkspacesAreUnique(t *testing.T) {
	base := t.TempDir()

	a, err := New(base, "", logger.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	b, err := New(base, "", logger.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close()

	if a.Dir() == b.Dir() {
		t.Errorf("Expected distinct workspaces, got %s and %s", a.Dir(), b.Dir())
	}
}

func TestWorkspaceNamedAfterRun(t *testing.T) {
	base := t.TempDir()
	ws, err := New(base, "run-42", logger.NewNopLogger())
	if err != nil {
		t.Fatal(err)
	}
	defer ws.Close()

	if want := filepath.Join(base, ".tmp-run-42"); ws.Dir() != want {
		t.Errorf("Expected %s, got %s", want, ws.Dir())
	}
}

func TestNewFailsOnUnwritableBase(t *testing.T) {
	// A regular file cannot host a directory
	base := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(base, []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := New(base, "", logger.NewNopLogger())
	if !docerrors.IsType(err, docerrors.ErrorTypeWorkspace) {
		t.Fatalf("Expected workspace error, got %v", err)
	}
}

func TestCloseSwallowsRemovalErrors(t *testing.T) {
	log := logger.NewTestLogger()
	ws, err := New(t.TempDir(), "", log)
	if err != nil {
		t.Fatal(err)
	}

	orig := removeAll
	removeAll = func(string) error { return errors.New("device busy") }
	defer func() { removeAll = orig }()

	ws.Close()

	warns := log.GetMessagesByLevel("WARN")
	if len(warns) != 1 || warns[0].Message != "Failed to remove workspace" {
		t.Fatalf("Expected one removal warning, got %+v", warns)
	}
	if warns[0].Error == nil {
		t.Error("Expected the removal error to be attached")
	}
}
