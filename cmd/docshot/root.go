package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"docshot/pkg/config"
	"docshot/pkg/logger"
	"docshot/pkg/ui"
)

var (
	// Version information
	version   = "1.0.0"
	gitCommit = "unknown"
	buildDate = "unknown"

	// Global flags
	configFile string
	logLevel   string
	noColor    bool
	notify     bool
	quiet      bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "docshot",
	Short: "Capture full-document screenshots of web pages",
	Long: `docshot renders a web page in Chrome and captures the whole document,
not just the visible viewport.

The page is scrolled viewport by viewport, every capture is normalized to
layout pixels, and the tiles are stitched and trimmed to the exact document
size.

Features:
  - Launch a local headless Chrome or attach to a running one
  - Device scale factor emulation with automatic normalization
  - Configurable settle delay between scroll and capture
  - JSON manifest describing every capture run
  - Desktop notifications when a capture finishes`,
	Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, gitCommit, buildDate),
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if noColor {
			os.Setenv("NO_COLOR", "1")
			ui.SetOutput(os.Stdout)
		}
		if quiet || logLevel == "error" {
			ui.SetQuiet(true)
		}

		// Don't show logo for certain commands
		if cmd.Name() != "help" && cmd.Parent() != configCmd && cmd.Parent() != manifestCmd {
			ui.PrintLogo()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		ui.PrintError("Error", err)
		os.Exit(1)
	}
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default is ./.docshot.yaml or ~/.config/docshot/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().BoolVar(&notify, "notify", false, "send a desktop notification when a capture finishes")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all output except errors")

	// Version template
	rootCmd.SetVersionTemplate(`docshot {{.Version}}
Go Version: ` + runtime.Version() + `
OS/Arch: ` + runtime.GOOS + `/` + runtime.GOARCH + `
`)

	// Disable default completion command
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}

// loadConfig loads configuration with the given flag overrides and sets up
// the global logger
func loadConfig(flags map[string]interface{}) (*config.Config, error) {
	if flags == nil {
		flags = make(map[string]interface{})
	}
	if logLevel != "" {
		flags["log-level"] = logLevel
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.WithField("version", version).Debug("docshot starting")
	return cfg, nil
}
