package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"docshot/internal/batch"
	"docshot/pkg/capture"
	"docshot/pkg/checkpoint"
	"docshot/pkg/config"
	"docshot/pkg/logger"
	"docshot/pkg/ratelimit"
	"docshot/pkg/ui"
	"docshot/pkg/viewport"
)

var (
	// Job command flags
	continueOnError bool
	concurrency     int
	ratePerMinute   int
	resume          bool
)

// jobCmd represents the job command
var jobCmd = &cobra.Command{
	Use:   "job <file>",
	Short: "Run capture requests from a JSON or YAML job file",
	Long: `Run one or more capture requests described in a job file.

A job file holds a single request object or a list of them. Each request
needs a "url" and an "outputPath"; "settleDelayMs", "scrollEnabled" and
"stitchMode" are optional and override the configuration for that request.

Requests share one browser. With --concurrency above 1 several pages are
captured at once. Finished requests are checkpointed, and --resume skips
them when an interrupted job file is run again.`,
	Example: `  # jobs.json
  [
    {"url": "https://example.com", "outputPath": "example.png"},
    {"url": "https://example.org", "outputPath": "top.jpg", "scrollEnabled": false}
  ]

  docshot job jobs.json

  # Four pages at a time, at most 20 captures per minute
  docshot job jobs.json --concurrency 4 --rate 20

  # Pick up where an interrupted run stopped
  docshot job jobs.json --resume`,
	Args: cobra.ExactArgs(1),
	RunE: runJob,
}

func init() {
	rootCmd.AddCommand(jobCmd)
	addBrowserFlags(jobCmd.Flags())
	jobCmd.Flags().BoolVar(&continueOnError, "continue-on-error", false, "keep going after a failed request")
	jobCmd.Flags().IntVar(&concurrency, "concurrency", 1, "number of pages captured at once")
	jobCmd.Flags().IntVar(&ratePerMinute, "rate", 0, "maximum captures started per minute (0 for no limit)")
	jobCmd.Flags().BoolVar(&resume, "resume", false, "skip requests finished by a previous run")
}

// jobEntry is one capture request read from a job file
type jobEntry struct {
	URL     string
	Request *capture.Request
}

// loadJobFile reads path and validates every request in it. Files ending in
// .yaml or .yml are parsed as YAML, everything else as JSON.
func loadJobFile(path string) ([]jobEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read job file: %w", err)
	}

	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse job file: %w", err)
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse job file: %w", err)
		}
	}

	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		items = []any{v}
	default:
		return nil, fmt.Errorf("job file must hold an object or a list of objects")
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("job file holds no requests")
	}

	entries := make([]jobEntry, 0, len(items))
	for i, item := range items {
		params, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("request %d: expected an object", i+1)
		}
		url, ok := params["url"].(string)
		if !ok || strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf(`request %d: "url" must be a non-empty string`, i+1)
		}
		req, err := capture.RequestFromParams(params)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", i+1, err)
		}
		entries = append(entries, jobEntry{URL: strings.TrimSpace(url), Request: req})
	}
	return entries, nil
}

// mergeOptions fills the fields a request left unset from the configured
// defaults
func mergeOptions(req, defaults capture.Options) capture.Options {
	if req.SettleDelay == 0 {
		req.SettleDelay = defaults.SettleDelay
	}
	if req.ScrollEnabled == nil {
		req.ScrollEnabled = defaults.ScrollEnabled
	}
	if req.StitchMode == "" {
		req.StitchMode = defaults.StitchMode
	}
	req.WorkspaceBase = defaults.WorkspaceBase
	req.WriteManifest = defaults.WriteManifest
	return req
}

// pageRunner captures batch jobs in pages of a shared browser
type pageRunner struct {
	cfg      *config.Config
	browser  *viewport.Browser
	progress bool
}

func (r *pageRunner) Run(ctx context.Context, job batch.Job) (*capture.Result, error) {
	if !r.progress {
		return captureURL(ctx, r.cfg, r.browser, job.URL, job.OutputPath, job.Options, nil)
	}
	p := ui.NewTileProgress()
	defer p.Finish()
	return captureURL(ctx, r.cfg, r.browser, job.URL, job.OutputPath, job.Options, p)
}

func runJob(cmd *cobra.Command, args []string) error {
	if concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1")
	}
	if ratePerMinute < 0 {
		return fmt.Errorf("rate cannot be negative")
	}

	cfg, err := loadConfig(changedFlags(cmd.Flags()))
	if err != nil {
		return err
	}

	jobFile := args[0]
	entries, err := loadJobFile(jobFile)
	if err != nil {
		return err
	}
	defaults, err := optionsFromConfig(cfg)
	if err != nil {
		return err
	}

	checkpoints, err := checkpoint.NewManager(jobFile)
	if err != nil {
		return err
	}
	cp, err := checkpoints.Open(resume)
	if err != nil {
		return err
	}
	if resume && cp.TotalCompleted > 0 {
		ui.PrintInfo("Resuming", fmt.Sprintf("%d of %d requests already captured", cp.TotalCompleted, len(entries)))
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt)
	defer stop()

	log := logger.GetLogger()
	browser, err := viewport.Launch(ctx, cfg.Browser, log)
	if err != nil {
		return err
	}
	defer closeBrowser(browser)

	runner := &pageRunner{cfg: cfg, browser: browser, progress: concurrency == 1}
	pool := batch.NewWorkerPool(ctx, concurrency, runner, checkpoints, ratelimit.New(ratePerMinute), log)
	pool.Start()

	go func() {
		for i, entry := range entries {
			job := batch.Job{
				Index:      i,
				URL:        entry.URL,
				OutputPath: entry.Request.OutputPath,
				Options:    mergeOptions(entry.Request.Options, defaults),
			}
			if err := pool.Submit(job); err != nil {
				break
			}
		}
		pool.Stop()
	}()

	notifier := ui.NewNotifier(notify)
	var captured, skipped, failed int
	var firstErr error
	for res := range pool.Results() {
		label := fmt.Sprintf("[%d/%d] %s", res.Job.Index+1, len(entries), res.Job.URL)
		switch {
		case res.Skipped:
			skipped++
			ui.PrintInfo(label, "already captured")
		case res.Error != nil:
			failed++
			if firstErr == nil {
				firstErr = res.Error
			}
			ui.PrintError(label, res.Error)
			notifier.CaptureFailed(res.Job.URL, res.Error)
			if !continueOnError {
				pool.Cancel()
			}
		default:
			captured++
			ui.PrintInfo(label, fmt.Sprintf("%s (%dx%d, %s)", res.Capture.OutputPath,
				res.Capture.Width, res.Capture.Height, res.Duration.Round(time.Millisecond)))
			notifier.CaptureComplete(res.Capture.OutputPath, res.Capture.Width, res.Capture.Height)
		}
	}

	ui.PrintInfo("Captured", fmt.Sprintf("%d", captured))
	if skipped > 0 {
		ui.PrintInfo("Skipped", fmt.Sprintf("%d", skipped))
	}

	if failed > 0 || captured+skipped < len(entries) {
		ui.PrintWarning("Checkpoint kept, rerun with --resume to continue", checkpoints.Path())
		if firstErr != nil && !continueOnError {
			return firstErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%d of %d requests failed", failed, len(entries))
	}

	if err := checkpoints.Delete(); err != nil {
		log.WithError(err).Warn("Failed to delete checkpoint")
	}
	ui.PrintSuccess(fmt.Sprintf("Completed %d requests", len(entries)))
	return nil
}
