package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for docshot
type Config struct {
	// Browser connection and viewport emulation
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Capture pipeline behaviour
	Capture CaptureConfig `yaml:"capture" json:"capture"`

	// Output settings
	Output OutputConfig `yaml:"output" json:"output"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// BrowserConfig holds settings for the remote viewport
type BrowserConfig struct {
	DebuggerURL       string        `yaml:"debugger_url" json:"debugger_url"`
	Bin               string        `yaml:"bin" json:"bin"`
	Headless          bool          `yaml:"headless" json:"headless"`
	ViewportWidth     int           `yaml:"viewport_width" json:"viewport_width"`
	ViewportHeight    int           `yaml:"viewport_height" json:"viewport_height"`
	DeviceScaleFactor float64       `yaml:"device_scale_factor" json:"device_scale_factor"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	WaitStable        time.Duration `yaml:"wait_stable" json:"wait_stable"`
	ConnectAttempts   int           `yaml:"connect_attempts" json:"connect_attempts"`
}

// CaptureConfig holds tiling and stitching configuration
type CaptureConfig struct {
	SettleDelay   time.Duration `yaml:"settle_delay" json:"settle_delay"`
	ScrollEnabled bool          `yaml:"scroll_enabled" json:"scroll_enabled"`
	ScrollMethod  string        `yaml:"scroll_method" json:"scroll_method"`
	StitchMode    string        `yaml:"stitch_mode" json:"stitch_mode"`
}

// OutputConfig holds output and scratch space configuration
type OutputConfig struct {
	WorkspaceDir  string `yaml:"workspace_dir" json:"workspace_dir"`
	WriteManifest bool   `yaml:"write_manifest" json:"write_manifest"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Browser: BrowserConfig{
			Headless:          true,
			ViewportWidth:     1024,
			ViewportHeight:    768,
			DeviceScaleFactor: 1,
			NavigationTimeout: 30 * time.Second,
			WaitStable:        500 * time.Millisecond,
			ConnectAttempts:   3,
		},
		Capture: CaptureConfig{
			SettleDelay:   100 * time.Millisecond,
			ScrollEnabled: true,
			ScrollMethod:  "transform",
			StitchMode:    "memory",
		},
		Output: OutputConfig{
			WorkspaceDir:  os.TempDir(),
			WriteManifest: false,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if url := os.Getenv("DOCSHOT_DEBUGGER_URL"); url != "" {
		c.Browser.DebuggerURL = url
	}
	if bin := os.Getenv("DOCSHOT_BROWSER_BIN"); bin != "" {
		c.Browser.Bin = bin
	}
	if headless := os.Getenv("DOCSHOT_HEADLESS"); headless != "" {
		c.Browser.Headless = strings.ToLower(headless) == "true"
	}

	if width := os.Getenv("DOCSHOT_VIEWPORT_WIDTH"); width != "" {
		val, err := strconv.Atoi(width)
		if err != nil {
			errs = append(errs, fmt.Errorf("DOCSHOT_VIEWPORT_WIDTH: %w", err))
		} else if val > 0 {
			c.Browser.ViewportWidth = val
		}
	}
	if height := os.Getenv("DOCSHOT_VIEWPORT_HEIGHT"); height != "" {
		val, err := strconv.Atoi(height)
		if err != nil {
			errs = append(errs, fmt.Errorf("DOCSHOT_VIEWPORT_HEIGHT: %w", err))
		} else if val > 0 {
			c.Browser.ViewportHeight = val
		}
	}
	if scale := os.Getenv("DOCSHOT_DEVICE_SCALE_FACTOR"); scale != "" {
		val, err := strconv.ParseFloat(scale, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("DOCSHOT_DEVICE_SCALE_FACTOR: %w", err))
		} else if val > 0 {
			c.Browser.DeviceScaleFactor = val
		}
	}

	if delay := os.Getenv("DOCSHOT_SETTLE_DELAY"); delay != "" {
		val, err := time.ParseDuration(delay)
		if err != nil {
			errs = append(errs, fmt.Errorf("DOCSHOT_SETTLE_DELAY: %w", err))
		} else {
			c.Capture.SettleDelay = val
		}
	}
	if scroll := os.Getenv("DOCSHOT_SCROLL_ENABLED"); scroll != "" {
		c.Capture.ScrollEnabled = strings.ToLower(scroll) == "true"
	}
	if method := os.Getenv("DOCSHOT_SCROLL_METHOD"); method != "" {
		c.Capture.ScrollMethod = method
	}
	if mode := os.Getenv("DOCSHOT_STITCH_MODE"); mode != "" {
		c.Capture.StitchMode = mode
	}

	if dir := os.Getenv("DOCSHOT_WORKSPACE_DIR"); dir != "" {
		c.Output.WorkspaceDir = dir
	}

	if logLevel := os.Getenv("DOCSHOT_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logFile := os.Getenv("DOCSHOT_LOG_FILE"); logFile != "" {
		c.Logging.File = logFile
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".docshot.yaml",
		".docshot.yml",
		filepath.Join(home, ".config", "docshot", "config.yaml"),
		filepath.Join(home, ".config", "docshot", "config.yml"),
		filepath.Join(home, ".docshot.yaml"),
		filepath.Join(home, ".docshot.yml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Browser.ViewportWidth <= 0 {
		errs = append(errs, errors.New("viewport width must be positive"))
	}
	if c.Browser.ViewportHeight <= 0 {
		errs = append(errs, errors.New("viewport height must be positive"))
	}
	if c.Browser.DeviceScaleFactor <= 0 {
		errs = append(errs, errors.New("device scale factor must be positive"))
	}
	if c.Browser.NavigationTimeout <= 0 {
		errs = append(errs, errors.New("navigation timeout must be positive"))
	}
	if c.Browser.WaitStable < 0 {
		errs = append(errs, errors.New("wait stable cannot be negative"))
	}
	if c.Browser.ConnectAttempts < 1 || c.Browser.ConnectAttempts > 10 {
		errs = append(errs, errors.New("connect attempts must be between 1 and 10"))
	}

	if c.Capture.SettleDelay < 0 {
		errs = append(errs, errors.New("settle delay cannot be negative"))
	}
	validScrollMethods := map[string]bool{"transform": true, "window": true}
	if !validScrollMethods[strings.ToLower(c.Capture.ScrollMethod)] {
		errs = append(errs, fmt.Errorf("invalid scroll method %q", c.Capture.ScrollMethod))
	}
	validStitchModes := map[string]bool{"memory": true, "file": true}
	if !validStitchModes[strings.ToLower(c.Capture.StitchMode)] {
		errs = append(errs, fmt.Errorf("invalid stitch mode %q", c.Capture.StitchMode))
	}

	if c.Output.WorkspaceDir == "" {
		errs = append(errs, errors.New("workspace directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "disabled": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration.
// Only keys present in the map are applied, so callers pass just the flags
// the user changed.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if url, ok := flags["debugger-url"].(string); ok && url != "" {
		c.Browser.DebuggerURL = url
	}
	if bin, ok := flags["browser-bin"].(string); ok && bin != "" {
		c.Browser.Bin = bin
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if width, ok := flags["width"].(int); ok && width > 0 {
		c.Browser.ViewportWidth = width
	}
	if height, ok := flags["height"].(int); ok && height > 0 {
		c.Browser.ViewportHeight = height
	}
	if scale, ok := flags["scale"].(float64); ok && scale > 0 {
		c.Browser.DeviceScaleFactor = scale
	}
	if delay, ok := flags["settle-delay"].(time.Duration); ok {
		c.Capture.SettleDelay = delay
	}
	if scroll, ok := flags["scroll"].(bool); ok {
		c.Capture.ScrollEnabled = scroll
	}
	if method, ok := flags["scroll-method"].(string); ok && method != "" {
		c.Capture.ScrollMethod = method
	}
	if mode, ok := flags["stitch-mode"].(string); ok && mode != "" {
		c.Capture.StitchMode = mode
	}
	if dir, ok := flags["workspace-dir"].(string); ok && dir != "" {
		c.Output.WorkspaceDir = dir
	}
	if manifest, ok := flags["manifest"].(bool); ok {
		c.Output.WriteManifest = manifest
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".docshot.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
