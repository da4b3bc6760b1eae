package viewport

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"docshot/pkg/errors"
	"docshot/pkg/logger"
)

const metricsJS = `(normalize) => {
	const body = document.body;
	body.style.overflow = 'hidden';
	if (!document.getElementById('docshot-hide-scrollbars')) {
		const style = document.createElement('style');
		style.id = 'docshot-hide-scrollbars';
		style.textContent = '::-webkit-scrollbar { width: 0px; height: 0px; }';
		(document.head || document.documentElement).appendChild(style);
	}
	if (normalize) {
		body.style.height = 'auto';
		body.style.height = document.documentElement.scrollHeight + 'px';
		window.scrollTo(0, 0);
	}
	return {
		screenWidth: Math.max(document.documentElement.clientWidth, window.innerWidth || 0),
		screenHeight: Math.max(document.documentElement.clientHeight, window.innerHeight || 0),
		documentWidth: document.documentElement.scrollWidth,
		documentHeight: document.documentElement.scrollHeight,
		devicePixelRatio: window.devicePixelRatio
	};
}`

const transformScrollJS = `(x, y) => {
	const t = 'translate(' + (-x) + 'px, ' + (-y) + 'px)';
	document.body.style.webkitTransform = t;
	document.body.style.transform = t;
	return [x, y];
}`

const windowScrollJS = `(x, y) => {
	window.scrollTo(x, y);
	return [Math.round(window.scrollX), Math.round(window.scrollY)];
}`

// pageMetrics mirrors the object returned by metricsJS
type pageMetrics struct {
	ScreenWidth      float64 `json:"screenWidth"`
	ScreenHeight     float64 `json:"screenHeight"`
	DocumentWidth    float64 `json:"documentWidth"`
	DocumentHeight   float64 `json:"documentHeight"`
	DevicePixelRatio float64 `json:"devicePixelRatio"`
}

func (m pageMetrics) pageInfo() PageInfo {
	return PageInfo{
		ScreenWidth:      int(math.Round(m.ScreenWidth)),
		ScreenHeight:     int(math.Round(m.ScreenHeight)),
		DocumentWidth:    int(math.Ceil(m.DocumentWidth)),
		DocumentHeight:   int(math.Ceil(m.DocumentHeight)),
		DevicePixelRatio: m.DevicePixelRatio,
	}
}

// Rod is a Controller backed by a Chrome page over the DevTools protocol
type Rod struct {
	page   *rod.Page
	method ScrollMethod
	logger logger.Logger
}

// NewRod wraps page. An empty method selects ScrollTransform.
func NewRod(page *rod.Page, method ScrollMethod, log logger.Logger) *Rod {
	if method == "" {
		method = ScrollTransform
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &Rod{page: page, method: method, logger: log}
}

// Page returns the underlying rod page
func (r *Rod) Page() *rod.Page {
	return r.page
}

// QueryMetrics implements Controller
func (r *Rod) QueryMetrics(ctx context.Context, normalize bool) (PageInfo, error) {
	res, err := r.page.Context(ctx).Eval(metricsJS, normalize)
	if err != nil {
		return PageInfo{}, errors.Wrap(errors.ErrorTypeRemote, "metrics", fmt.Errorf("failed to evaluate metrics script: %w", err))
	}

	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return PageInfo{}, errors.Wrap(errors.ErrorTypeRemote, "metrics", err)
	}
	var m pageMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return PageInfo{}, errors.Wrap(errors.ErrorTypeRemote, "metrics", fmt.Errorf("failed to parse metrics: %w", err))
	}

	info := m.pageInfo()
	r.logger.DebugWithFields("Page metrics queried", map[string]interface{}{
		"normalize":       normalize,
		"screen_width":    info.ScreenWidth,
		"screen_height":   info.ScreenHeight,
		"document_width":  info.DocumentWidth,
		"document_height": info.DocumentHeight,
		"dpr":             info.DevicePixelRatio,
	})
	return info, nil
}

// ScrollTo implements Controller
func (r *Rod) ScrollTo(ctx context.Context, x, y int) (image.Point, error) {
	js := transformScrollJS
	if r.method == ScrollWindow {
		js = windowScrollJS
	}
	res, err := r.page.Context(ctx).Eval(js, x, y)
	if err != nil {
		return image.Point{}, errors.Wrap(errors.ErrorTypeRemote, "scroll", fmt.Errorf("failed to scroll to %d,%d: %w", x, y, err))
	}

	var reached [2]float64
	if err := res.Value.Unmarshal(&reached); err != nil {
		return image.Point{}, errors.Wrap(errors.ErrorTypeRemote, "scroll", fmt.Errorf("failed to read scroll offset: %w", err))
	}
	return image.Pt(int(math.Round(reached[0])), int(math.Round(reached[1]))), nil
}

// CaptureViewport implements Controller
func (r *Rod) CaptureViewport(ctx context.Context) ([]byte, error) {
	data, err := r.page.Context(ctx).Screenshot(false, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeRemote, "screenshot", err)
	}
	return data, nil
}

// Settle implements Controller
func (r *Rod) Settle(ctx context.Context, d time.Duration) error {
	if err := Wait(ctx, d); err != nil {
		return errors.Wrap(errors.ErrorTypeRemote, "settle", err)
	}
	return nil
}
