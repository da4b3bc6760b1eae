package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docshot/pkg/logger"
)

// Checkpoint represents the state of a batch run
type Checkpoint struct {
	JobFile        string                      `json:"job_file"`
	Completed      map[string]CompletedRequest `json:"completed"`
	TotalCompleted int                         `json:"total_completed"`
	CreatedAt      time.Time                   `json:"created_at"`
	UpdatedAt      time.Time                   `json:"updated_at"`
	Version        int                         `json:"version"`
}

// CompletedRequest describes one finished capture
type CompletedRequest struct {
	URL         string    `json:"url"`
	OutputPath  string    `json:"output_path"`
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	CompletedAt time.Time `json:"completed_at"`
}

// Key identifies a request within a job file
func Key(url, outputPath string) string {
	return url + " -> " + outputPath
}

// IsCompleted checks if a request has already been captured
func (cp *Checkpoint) IsCompleted(url, outputPath string) bool {
	_, exists := cp.Completed[Key(url, outputPath)]
	return exists
}

// Manager handles checkpoint operations for one job file. It is safe for
// concurrent use.
type Manager struct {
	checkpointPath string
	jobFile        string
	logger         logger.Logger

	mu sync.Mutex
	cp *Checkpoint
}

// NewManager creates a checkpoint manager for jobFile
func NewManager(jobFile string) (*Manager, error) {
	dataDir, err := getDataDirectory()
	if err != nil {
		return nil, fmt.Errorf("failed to get data directory: %w", err)
	}

	checkpointsDir := filepath.Join(dataDir, "checkpoints")
	if err := os.MkdirAll(checkpointsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoints directory: %w", err)
	}

	abs, err := filepath.Abs(jobFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve job file: %w", err)
	}
	name := strings.TrimSuffix(filepath.Base(abs), filepath.Ext(abs))
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+abs)).String()[:8]

	return &Manager{
		checkpointPath: filepath.Join(checkpointsDir, fmt.Sprintf("%s-%s.checkpoint.json", name, id)),
		jobFile:        abs,
		logger:         logger.GetLogger(),
	}, nil
}

// Path returns the checkpoint file location
func (m *Manager) Path() string {
	return m.checkpointPath
}

// Open loads the existing checkpoint when resume is set, or starts a new one
func (m *Manager) Open(resume bool) (*Checkpoint, error) {
	if resume {
		cp, err := m.Load()
		if err != nil {
			return nil, err
		}
		if cp != nil {
			m.mu.Lock()
			m.cp = cp
			m.mu.Unlock()
			return cp, nil
		}
	}
	return m.Create()
}

// Create creates a new checkpoint, replacing any previous one
func (m *Manager) Create() (*Checkpoint, error) {
	now := time.Now()
	cp := &Checkpoint{
		JobFile:   m.jobFile,
		Completed: make(map[string]CompletedRequest),
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.save(cp); err != nil {
		return nil, fmt.Errorf("failed to save initial checkpoint: %w", err)
	}
	m.cp = cp

	m.logger.DebugWithFields("Checkpoint created", map[string]interface{}{
		"job_file": m.jobFile,
		"path":     m.checkpointPath,
	})
	return cp, nil
}

// Load loads an existing checkpoint. It returns nil when none exists.
func (m *Manager) Load() (*Checkpoint, error) {
	file, err := os.Open(m.checkpointPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open checkpoint file: %w", err)
	}
	defer file.Close()

	var cp Checkpoint
	if err := json.NewDecoder(file).Decode(&cp); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %w", err)
	}
	if cp.Completed == nil {
		cp.Completed = make(map[string]CompletedRequest)
	}

	m.logger.InfoWithFields("Checkpoint loaded", map[string]interface{}{
		"job_file":        cp.JobFile,
		"total_completed": cp.TotalCompleted,
		"updated_at":      cp.UpdatedAt,
	})
	return &cp, nil
}

// IsCompleted checks the open checkpoint for a finished request
func (m *Manager) IsCompleted(url, outputPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cp != nil && m.cp.IsCompleted(url, outputPath)
}

// RecordCapture records a finished request and saves the checkpoint
func (m *Manager) RecordCapture(url, outputPath string, width, height int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cp == nil {
		return fmt.Errorf("checkpoint is not open")
	}

	key := Key(url, outputPath)
	if _, exists := m.cp.Completed[key]; !exists {
		m.cp.TotalCompleted++
	}
	m.cp.Completed[key] = CompletedRequest{
		URL:         url,
		OutputPath:  outputPath,
		Width:       width,
		Height:      height,
		CompletedAt: time.Now(),
	}
	return m.save(m.cp)
}

// save writes the checkpoint atomically. The caller holds m.mu.
func (m *Manager) save(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()

	tempPath := m.checkpointPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temporary checkpoint file: %w", err)
	}

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(cp); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to encode checkpoint: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to sync checkpoint file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close checkpoint file: %w", err)
	}

	if err := os.Rename(tempPath, m.checkpointPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to replace checkpoint file: %w", err)
	}

	m.logger.DebugWithFields("Checkpoint saved", map[string]interface{}{
		"job_file":        cp.JobFile,
		"total_completed": cp.TotalCompleted,
	})
	return nil
}

// Delete removes the checkpoint file
func (m *Manager) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := os.Remove(m.checkpointPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	m.cp = nil

	m.logger.Debug("Checkpoint deleted")
	return nil
}

// Exists checks if a checkpoint file exists
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.checkpointPath)
	return err == nil
}

// getDataDirectory returns the appropriate data directory for the current OS
func getDataDirectory() (string, error) {
	var dataDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dataDir = filepath.Join(home, "Library", "Application Support", "docshot")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", fmt.Errorf("APPDATA environment variable not set")
		}
		dataDir = filepath.Join(appData, "docshot")
	default:
		if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
			dataDir = filepath.Join(xdgDataHome, "docshot")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			dataDir = filepath.Join(home, ".local", "share", "docshot")
		}
	}

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dataDir, nil
}
