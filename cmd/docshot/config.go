package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"docshot/pkg/config"
	"docshot/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration files",
	Long: `Manage docshot configuration files.

Configuration can be loaded from:
  - Command line flags (highest priority)
  - Environment variables (DOCSHOT_*)
  - Configuration file
  - Default values (lowest priority)`,
}

// initCmd represents the config init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create an example configuration file",
	Long: `Create an example configuration file with all available options.

The file will be created in the current directory as '.docshot.yaml'
unless a different path is specified with the --config flag.`,
	RunE: runConfigInit,
}

// showCmd represents the config show command
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long: `Show the current configuration including values from all sources:
  - Command line flags
  - Environment variables
  - Configuration file
  - Default values

The debugger URL is masked since it grants control of the browser.`,
	RunE: runConfigShow,
}

// validateCmd represents the config validate command
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate a configuration file for syntax errors and invalid values.

This command checks:
  - YAML syntax
  - Value types and ranges
  - Browser binary and workspace accessibility`,
	RunE: runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(initCmd)
	configCmd.AddCommand(showCmd)
	configCmd.AddCommand(validateCmd)
}

const exampleConfig = `# docshot configuration file
#
# This file contains all available configuration options.
# You can also use environment variables prefixed with DOCSHOT_
# For example: DOCSHOT_SETTLE_DELAY, DOCSHOT_DEBUGGER_URL

# Browser configuration
browser:
  # DevTools websocket URL of a running Chrome (optional)
  # Leave empty to launch a local browser
  debugger_url: ""

  # Chrome binary to launch (optional)
  # Leave empty to use the system browser or download one
  bin: ""

  # Run the launched browser without a window
  headless: true

  # Viewport size in CSS pixels
  viewport_width: 1024
  viewport_height: 768

  # Device scale factor to emulate
  # Captures are normalized back to CSS pixels
  device_scale_factor: 1

  # Maximum time to wait for navigation
  navigation_timeout: 30s

  # Quiet period required before capturing starts
  wait_stable: 500ms

  # Attempts to reach the browser before giving up
  # Range: 1-10
  connect_attempts: 3

# Capture configuration
capture:
  # Pause after each scroll before capturing a tile
  # 0 selects the default of 100ms
  settle_delay: 100ms

  # Scroll through the document; false captures one viewport
  scroll_enabled: true

  # Scroll method: transform, window
  scroll_method: "transform"

  # Stitch mode: memory, file
  stitch_mode: "memory"

# Output configuration
output:
  # Parent directory for temporary tile workspaces
  workspace_dir: "/tmp"

  # Write a JSON manifest next to every output image
  write_manifest: false

# Logging configuration
logging:
  # Log level: debug, info, warn, error, disabled
  level: "info"

  # Log file path (optional)
  # Leave empty to log to stderr only
  file: ""
`

func runConfigInit(cmd *cobra.Command, args []string) error {
	configPath := configFile
	if configPath == "" {
		configPath = ".docshot.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		fmt.Println("\nTo overwrite, first remove the existing file:")
		fmt.Printf("  rm %s\n", configPath)
		return fmt.Errorf("refusing to overwrite %s", configPath)
	}

	if dir := filepath.Dir(configPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}
	if err := os.WriteFile(configPath, []byte(exampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to create configuration file: %w", err)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Edit the configuration file to match your browser setup")
	fmt.Println("2. Run 'docshot config validate' to check the configuration")
	fmt.Println("3. Capture a page with 'docshot capture <url> <output>'")
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	displayCfg := *cfg
	displayCfg.Browser.DebuggerURL = maskDebuggerURL(displayCfg.Browser.DebuggerURL)

	data, err := yaml.Marshal(&displayCfg)
	if err != nil {
		return fmt.Errorf("failed to format configuration: %w", err)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	fmt.Println("\nConfiguration sources (in order of priority):")
	fmt.Println("1. Command line flags")
	fmt.Println("2. Environment variables (DOCSHOT_*)")
	if configFile != "" {
		fmt.Printf("3. Configuration file: %s\n", configFile)
	} else {
		fmt.Println("3. Configuration file: (searched in default locations)")
	}
	fmt.Println("4. Default values")
	return nil
}

// maskDebuggerURL keeps the host of a DevTools URL and hides the session path
func maskDebuggerURL(u string) string {
	if u == "" {
		return ""
	}
	scheme := ""
	rest := u
	if i := strings.Index(u, "://"); i >= 0 {
		scheme, rest = u[:i+3], u[i+3:]
	}
	if i := strings.Index(rest, "/"); i >= 0 {
		return scheme + rest[:i] + "/***"
	}
	return scheme + rest
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configFile
	if path == "" {
		possiblePaths := []string{
			".docshot.yaml",
			".docshot.yml",
			filepath.Join(os.Getenv("HOME"), ".config", "docshot", "config.yaml"),
			filepath.Join(os.Getenv("HOME"), ".docshot.yaml"),
		}
		for _, p := range possiblePaths {
			if _, err := os.Stat(p); err == nil {
				path = p
				break
			}
		}
		if path == "" {
			return fmt.Errorf("no configuration file found, specify one with --config")
		}
	}

	ui.PrintInfo("Validating configuration", path)

	cfg, err := config.Load(path, nil)
	if err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	problems, warnings := checkEnvironment(cfg)

	if len(problems) > 0 {
		ui.PrintError("Configuration has errors")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("%d configuration error(s)", len(problems))
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	if cfg.Browser.DebuggerURL != "" {
		fmt.Printf("  Browser: attach to %s\n", maskDebuggerURL(cfg.Browser.DebuggerURL))
	} else {
		fmt.Printf("  Browser: launch (headless: %t)\n", cfg.Browser.Headless)
	}
	fmt.Printf("  Viewport: %dx%d @%gx\n", cfg.Browser.ViewportWidth, cfg.Browser.ViewportHeight, cfg.Browser.DeviceScaleFactor)
	fmt.Printf("  Settle delay: %s\n", cfg.Capture.SettleDelay)
	fmt.Printf("  Scrolling: %t (%s)\n", cfg.Capture.ScrollEnabled, cfg.Capture.ScrollMethod)
	fmt.Printf("  Stitch mode: %s\n", cfg.Capture.StitchMode)
	fmt.Printf("  Workspace: %s\n", cfg.Output.WorkspaceDir)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
	return nil
}

// checkEnvironment looks for problems Config.Validate cannot see because they
// depend on the local filesystem
func checkEnvironment(cfg *config.Config) (problems, warnings []string) {
	if cfg.Browser.Bin != "" {
		info, err := os.Stat(cfg.Browser.Bin)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("Browser binary not found: %v", err))
		case info.IsDir():
			problems = append(problems, fmt.Sprintf("Browser binary is a directory: %s", cfg.Browser.Bin))
		}
	}
	if cfg.Browser.DebuggerURL != "" && cfg.Browser.Bin != "" {
		warnings = append(warnings, "browser bin is ignored when a debugger URL is set")
	}

	if err := os.MkdirAll(cfg.Output.WorkspaceDir, 0755); err != nil {
		problems = append(problems, fmt.Sprintf("Cannot create workspace directory: %v", err))
	}

	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			problems = append(problems, fmt.Sprintf("Cannot create log directory: %v", err))
		}
	}

	if !cfg.Capture.ScrollEnabled {
		warnings = append(warnings, "scrolling is disabled, only the first viewport will be captured")
	}
	if cfg.Capture.SettleDelay > 0 && cfg.Capture.SettleDelay < 20*time.Millisecond {
		warnings = append(warnings, "settle delays under 20ms may capture half-rendered tiles")
	}
	return problems, warnings
}
