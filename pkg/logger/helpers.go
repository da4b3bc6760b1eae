package logger

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// LogStage logs a pipeline stage transition
func LogStage(l Logger, runID, stage string) {
	l.DebugWithFields("Capture stage reached", map[string]interface{}{
		"run_id": runID,
		"stage":  stage,
	})
}

// LogTile logs a persisted tile
func LogTile(l Logger, x, y int, path string) {
	l.DebugWithFields("Tile captured", map[string]interface{}{
		"x":    x,
		"y":    y,
		"path": path,
	})
}

// LogCaptureSummary logs the outcome of a finished capture
func LogCaptureSummary(l Logger, output string, width, height, tiles int, elapsed time.Duration) {
	l.InfoWithFields("Document captured", map[string]interface{}{
		"output":   output,
		"width":    width,
		"height":   height,
		"tiles":    tiles,
		"duration": elapsed,
	})
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

// nopLogger is a logger that does nothing
type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}

func (n *nopLogger) GetZerolog() *zerolog.Logger {
	nop := zerolog.Nop()
	return &nop
}
