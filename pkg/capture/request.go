package capture

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"docshot/pkg/errors"
	"docshot/pkg/imaging"
	"docshot/pkg/logger"
)

// Options tunes a capture run. The zero value captures with scrolling,
// the default settle delay and in-memory stitching.
type Options struct {
	// SettleDelay is the pause after each scroll. Zero selects
	// DefaultSettleDelay.
	SettleDelay time.Duration

	// ScrollEnabled defaults to true. When false a single viewport capture
	// is taken.
	ScrollEnabled *bool

	// StitchMode defaults to StitchMemory
	StitchMode StitchMode

	// WorkspaceBase is where the run's scratch directory is created.
	// Defaults to the system temp directory.
	WorkspaceBase string

	// WriteManifest stores a JSON sidecar next to the output
	WriteManifest bool

	// Logger defaults to the global logger
	Logger logger.Logger

	// OnStage is called on every pipeline stage transition
	OnStage func(Stage)

	// OnTile is called after each tile is persisted
	OnTile func(done, total int)
}

// Bool returns a pointer to b, for Options.ScrollEnabled
func Bool(b bool) *bool {
	return &b
}

// scrollEnabled resolves the ScrollEnabled default
func (o Options) scrollEnabled() bool {
	return o.ScrollEnabled == nil || *o.ScrollEnabled
}

func (o Options) withDefaults() Options {
	if o.SettleDelay == 0 {
		o.SettleDelay = DefaultSettleDelay
	}
	if o.ScrollEnabled == nil {
		o.ScrollEnabled = Bool(true)
	}
	if o.StitchMode == "" {
		o.StitchMode = StitchMemory
	}
	if o.Logger == nil {
		o.Logger = logger.GetLogger()
	}
	return o
}

// Validate checks typed options for a capture into outputPath
func (o Options) Validate(outputPath string) error {
	if outputPath == "" {
		return errors.New(errors.ErrorTypeParameter, "validate", "output path is required")
	}
	if _, err := imaging.FormatForPath(outputPath); err != nil {
		return errors.Wrap(errors.ErrorTypeParameter, "validate", err)
	}
	if o.SettleDelay < 0 {
		return errors.Newf(errors.ErrorTypeParameter, "validate", "settle delay must not be negative, got %s", o.SettleDelay)
	}
	if _, err := ParseStitchMode(string(o.StitchMode)); err != nil {
		return errors.Wrap(errors.ErrorTypeParameter, "validate", err)
	}
	return nil
}

// Request is a validated capture request built from loosely typed input
type Request struct {
	OutputPath string
	Options    Options
}

// RequestFromParams validates parameters as they arrive from job files or
// JSON: outputPath must be a string, settleDelayMs when present a number
// and scrollEnabled when present a boolean. A nil value counts as absent.
func RequestFromParams(params map[string]any) (*Request, error) {
	raw, ok := params["outputPath"]
	if !ok {
		return nil, errors.New(errors.ErrorTypeParameter, "validate", `required "outputPath" parameter is missing`)
	}
	outputPath, ok := raw.(string)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeParameter, "validate",
			`typeof required "outputPath" parameter is %q, should be "string"`, typeName(raw))
	}

	var opts Options
	if raw, ok := params["settleDelayMs"]; ok && raw != nil {
		ms, ok := toFloat(raw)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeParameter, "validate",
				`typeof optional "settleDelayMs" option is %q, should be "number"`, typeName(raw))
		}
		if math.IsNaN(ms) || math.IsInf(ms, 0) {
			return nil, errors.Newf(errors.ErrorTypeParameter, "validate", `"settleDelayMs" must be finite, got %v`, ms)
		}
		opts.SettleDelay = time.Duration(ms * float64(time.Millisecond))
	}

	if raw, ok := params["scrollEnabled"]; ok && raw != nil {
		scroll, ok := raw.(bool)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeParameter, "validate",
				`typeof optional "scrollEnabled" option is %q, should be "boolean"`, typeName(raw))
		}
		opts.ScrollEnabled = Bool(scroll)
	}

	if raw, ok := params["stitchMode"]; ok && raw != nil {
		mode, ok := raw.(string)
		if !ok {
			return nil, errors.Newf(errors.ErrorTypeParameter, "validate",
				`typeof optional "stitchMode" option is %q, should be "string"`, typeName(raw))
		}
		opts.StitchMode = StitchMode(mode)
	}

	if err := opts.Validate(outputPath); err != nil {
		return nil, err
	}
	return &Request{OutputPath: outputPath, Options: opts}, nil
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "boolean"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	}
	if _, ok := toFloat(v); ok {
		return "number"
	}
	return fmt.Sprintf("%T", v)
}
