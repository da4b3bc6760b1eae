package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"docshot/pkg/capture"
	"docshot/pkg/config"
	"docshot/pkg/logger"
	"docshot/pkg/ui"
	"docshot/pkg/viewport"
)

var (
	// Capture command flags
	settleDelay  time.Duration
	noScroll     bool
	width        int
	height       int
	scale        float64
	scrollMethod string
	stitchMode   string
	manifest     bool
	debuggerURL  string
	browserBin   string
	headless     bool
	workspaceDir string
)

// captureCmd represents the capture command
var captureCmd = &cobra.Command{
	Use:   "capture <url> <output>",
	Short: "Capture the full document of a web page",
	Long: `Capture the full document of a web page into a single image.

The output format follows the file extension: .png, .jpg/.jpeg, .gif,
.tif/.tiff or .bmp. Missing parent directories are created.

Chrome is launched headless unless a debugger URL is given, in which case
docshot attaches to the running browser.`,
	Example: `  # Capture a page with default settings
  docshot capture https://example.com page.png

  # Emulate a retina display and wait longer after each scroll
  docshot capture https://example.com shots/page.png --scale 2 --settle-delay 300ms

  # Capture only the first viewport
  docshot capture https://example.com top.png --no-scroll

  # Attach to a running Chrome and write a manifest
  docshot capture https://example.com page.png --debugger-url ws://127.0.0.1:9222/devtools/browser/abc --manifest`,
	Args: cobra.ExactArgs(2),
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
	addBrowserFlags(captureCmd.Flags())

	captureCmd.Flags().DurationVar(&settleDelay, "settle-delay", capture.DefaultSettleDelay, "pause after each scroll before capturing")
	captureCmd.Flags().BoolVar(&noScroll, "no-scroll", false, "capture only the current viewport")
	captureCmd.Flags().StringVar(&scrollMethod, "scroll-method", "transform", "how to scroll the page (transform, window)")
	captureCmd.Flags().StringVar(&stitchMode, "stitch-mode", "memory", "how to stitch columns (memory, file)")
	captureCmd.Flags().BoolVar(&manifest, "manifest", false, "write a JSON manifest next to the output")
	captureCmd.Flags().StringVar(&workspaceDir, "workspace-dir", "", "directory for temporary tiles (default: system temp dir)")
}

// addBrowserFlags registers the flags shared by commands that open a page
func addBrowserFlags(fs *pflag.FlagSet) {
	fs.IntVar(&width, "width", 1024, "viewport width in CSS pixels")
	fs.IntVar(&height, "height", 768, "viewport height in CSS pixels")
	fs.Float64Var(&scale, "scale", 1, "device scale factor to emulate")
	fs.StringVar(&debuggerURL, "debugger-url", "", "attach to a running Chrome instead of launching one")
	fs.StringVar(&browserBin, "browser-bin", "", "Chrome binary to launch")
	fs.BoolVar(&headless, "headless", true, "run the launched browser headless")
}

// changedFlags collects the flags the user set explicitly, keyed as
// config.MergeCommandLineFlags expects
func changedFlags(fs *pflag.FlagSet) map[string]interface{} {
	flags := make(map[string]interface{})
	if fs.Changed("width") {
		flags["width"] = width
	}
	if fs.Changed("height") {
		flags["height"] = height
	}
	if fs.Changed("scale") {
		flags["scale"] = scale
	}
	if fs.Changed("debugger-url") {
		flags["debugger-url"] = debuggerURL
	}
	if fs.Changed("browser-bin") {
		flags["browser-bin"] = browserBin
	}
	if fs.Changed("headless") {
		flags["headless"] = headless
	}
	if fs.Changed("settle-delay") {
		flags["settle-delay"] = settleDelay
	}
	if fs.Changed("no-scroll") {
		flags["scroll"] = !noScroll
	}
	if fs.Changed("scroll-method") {
		flags["scroll-method"] = scrollMethod
	}
	if fs.Changed("stitch-mode") {
		flags["stitch-mode"] = stitchMode
	}
	if fs.Changed("manifest") {
		flags["manifest"] = manifest
	}
	if fs.Changed("workspace-dir") {
		flags["workspace-dir"] = workspaceDir
	}
	return flags
}

func runCapture(cmd *cobra.Command, args []string) error {
	url := strings.TrimSpace(args[0])
	outputPath := args[1]

	cfg, err := loadConfig(changedFlags(cmd.Flags()))
	if err != nil {
		return err
	}

	opts, err := optionsFromConfig(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	browser, err := viewport.Launch(ctx, cfg.Browser, logger.GetLogger())
	if err != nil {
		return err
	}
	defer closeBrowser(browser)

	ui.PrintInfo("Target", url)
	ui.PrintInfo("Output", outputPath)

	notifier := ui.NewNotifier(notify)
	progress := ui.NewTileProgress()
	res, err := captureURL(ctx, cfg, browser, url, outputPath, opts, progress)
	progress.Finish()
	if err != nil {
		notifier.CaptureFailed(url, err)
		return err
	}
	printResult(res)
	notifier.CaptureComplete(res.OutputPath, res.Width, res.Height)
	return nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func closeBrowser(b *viewport.Browser) {
	if err := b.Close(); err != nil {
		logger.WithError(err).Warn("Failed to close browser")
	}
}

// optionsFromConfig maps the capture section of the configuration onto
// pipeline options
func optionsFromConfig(cfg *config.Config) (capture.Options, error) {
	mode, err := capture.ParseStitchMode(cfg.Capture.StitchMode)
	if err != nil {
		return capture.Options{}, err
	}
	return capture.Options{
		SettleDelay:   cfg.Capture.SettleDelay,
		ScrollEnabled: capture.Bool(cfg.Capture.ScrollEnabled),
		StitchMode:    mode,
		WorkspaceBase: cfg.Output.WorkspaceDir,
		WriteManifest: cfg.Output.WriteManifest,
	}, nil
}

// captureURL opens url in a fresh page of browser and captures it. Stage
// and tile events go to progress when it is not nil.
func captureURL(ctx context.Context, cfg *config.Config, browser *viewport.Browser, url, outputPath string, opts capture.Options, progress *ui.TileProgress) (*capture.Result, error) {
	log := logger.GetLogger().WithFields(map[string]interface{}{
		"url":    url,
		"output": outputPath,
	})

	method, err := viewport.ParseScrollMethod(cfg.Capture.ScrollMethod)
	if err != nil {
		return nil, err
	}

	page, err := browser.Open(ctx, url)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := page.Close(); err != nil {
			log.WithError(err).Debug("Failed to close page")
		}
	}()

	opts.Logger = log
	if progress != nil {
		opts.OnStage = func(s capture.Stage) { progress.SetStage(s.String()) }
		opts.OnTile = progress.Update
	}
	return capture.Capture(ctx, viewport.NewRod(page, method, log), outputPath, opts)
}

func printResult(res *capture.Result) {
	ui.PrintInfo("Page", res.PageInfo.String())
	ui.PrintInfo("Grid", fmt.Sprintf("%d x %d (%d tiles)", res.Columns, res.Rows, len(res.Tiles)))
	ui.PrintInfo("Image", fmt.Sprintf("%dx%d", res.Width, res.Height))
	ui.PrintInfo("Duration", res.Duration.Round(time.Millisecond).String())
	if res.ManifestPath != "" {
		ui.PrintInfo("Manifest", res.ManifestPath)
	}
	ui.PrintSuccess("Saved " + res.OutputPath)
}
