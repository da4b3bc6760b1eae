// Package logger provides a structured logging interface for docshot.
//
// It wraps the zerolog library with a small interface that the capture
// pipeline, workspace and CLI share:
//   - Log levels (Debug, Info, Warn, Error)
//   - Structured fields via WithField/WithFields/WithError
//   - Coloured console output on stderr, optional file output
//   - A global logger for the CLI and an in-memory TestLogger for tests
//
// Basic Usage:
//
//	logger.Initialize(&cfg.Logging)
//	logger.WithField("output", "page.png").Info("Capture started")
//
// Components accept a Logger so tests can inject logger.NewTestLogger()
// and assert on what was recorded.
package logger
