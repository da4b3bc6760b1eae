package viewport

import (
	"context"
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/cdp"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"docshot/pkg/config"
	"docshot/pkg/errors"
	"docshot/pkg/logger"
	"docshot/pkg/retry"
)

// Browser is a connected Chrome instance, either launched locally or
// attached through a debugger URL. Pages are opened in a private browser
// context that is disposed on Close.
type Browser struct {
	cfg       config.BrowserConfig
	browser   *rod.Browser
	incognito *rod.Browser
	conn      *cdp.WebSocket
	launcher  *launcher.Launcher
	logger    logger.Logger
}

// Launch connects to cfg.DebuggerURL, or starts a local browser when no URL
// is configured
func Launch(ctx context.Context, cfg config.BrowserConfig, log logger.Logger) (*Browser, error) {
	if log == nil {
		log = logger.GetLogger()
	}
	b := &Browser{cfg: cfg, logger: log}

	controlURL := cfg.DebuggerURL
	if controlURL == "" {
		l := launcher.New().Headless(cfg.Headless).Set(flags.Flag("hide-scrollbars"))
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}
		url, err := l.Context(ctx).Launch()
		if err != nil {
			return nil, errors.Wrap(errors.ErrorTypeRemote, "launch", fmt.Errorf("failed to launch browser: %w", err))
		}
		controlURL = url
		b.launcher = l
		log.DebugWithFields("Browser launched", map[string]interface{}{
			"control_url": controlURL,
			"headless":    cfg.Headless,
		})
	}

	err := retry.Do(ctx, func() error {
		return b.connect(ctx, controlURL)
	}, &retry.Config{
		MaxAttempts: cfg.ConnectAttempts,
		Backoff:     retry.ConnectBackoff(),
		Logger:      log,
	})
	if err != nil {
		b.killLauncher()
		return nil, errors.Wrap(errors.ErrorTypeRemote, "connect", fmt.Errorf("failed to connect to browser: %w", err))
	}

	incognito, err := b.browser.Incognito()
	if err != nil {
		b.release()
		return nil, errors.Wrap(errors.ErrorTypeRemote, "connect", fmt.Errorf("incognito context: %w", err))
	}
	b.incognito = incognito
	return b, nil
}

// connect dials the DevTools websocket and starts a rod client on it. The
// connection is kept so that it can be dropped without closing an attached
// browser.
func (b *Browser) connect(ctx context.Context, controlURL string) error {
	ws := &cdp.WebSocket{}
	if err := ws.Connect(ctx, controlURL, nil); err != nil {
		return errors.Wrap(errors.ErrorTypeRemote, "connect", err)
	}

	browser := rod.New().Client(cdp.New().Start(ws)).Context(ctx)
	if err := browser.Connect(); err != nil {
		_ = ws.Close()
		return errors.Wrap(errors.ErrorTypeRemote, "connect", err)
	}
	b.browser = browser
	b.conn = ws
	return nil
}

// Open creates an isolated page, applies the configured viewport and
// navigates to url
func (b *Browser) Open(ctx context.Context, url string) (*rod.Page, error) {
	page, err := b.incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, errors.Wrap(errors.ErrorTypeRemote, "open", fmt.Errorf("create page: %w", err))
	}
	page = page.Context(ctx)

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             b.cfg.ViewportWidth,
		Height:            b.cfg.ViewportHeight,
		DeviceScaleFactor: b.cfg.DeviceScaleFactor,
		Mobile:            false,
	}).Call(page); err != nil {
		_ = page.Close()
		return nil, errors.Wrap(errors.ErrorTypeRemote, "viewport", err)
	}

	nav := page
	if b.cfg.NavigationTimeout > 0 {
		nav = page.Timeout(b.cfg.NavigationTimeout)
	}
	if err := nav.Navigate(url); err != nil {
		_ = page.Close()
		return nil, errors.Wrap(errors.ErrorTypeRemote, "navigate", fmt.Errorf("failed to open %s: %w", url, err))
	}
	if err := nav.WaitLoad(); err != nil {
		_ = page.Close()
		return nil, errors.Wrap(errors.ErrorTypeRemote, "navigate", err)
	}
	if b.cfg.WaitStable > 0 {
		if err := nav.WaitStable(b.cfg.WaitStable); err != nil {
			b.logger.WithError(err).Warn("Page did not become stable, capturing anyway")
		}
	}

	b.logger.InfoWithFields("Page loaded", map[string]interface{}{
		"url":    url,
		"width":  b.cfg.ViewportWidth,
		"height": b.cfg.ViewportHeight,
		"scale":  b.cfg.DeviceScaleFactor,
	})
	return page, nil
}

// Close disposes the private context and stops the browser if it was
// launched here. An attached browser keeps running; only the connection to
// it is dropped.
func (b *Browser) Close() error {
	var err error
	if b.incognito != nil {
		err = b.incognito.Close()
		b.incognito = nil
	}
	if cerr := b.release(); err == nil {
		err = cerr
	}
	return err
}

// release stops a launched browser and drops the websocket connection
func (b *Browser) release() error {
	var err error
	if b.launcher != nil && b.browser != nil {
		err = b.browser.Close()
	}
	b.killLauncher()
	if b.conn != nil {
		_ = b.conn.Close()
		b.conn = nil
	}
	b.browser = nil
	return err
}

func (b *Browser) killLauncher() {
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
		b.launcher = nil
	}
}
