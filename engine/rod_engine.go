package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/use-agent/offerscrape/config"
	"github.com/ysmood/gson"
)

// RodLauncher starts one Chromium process per session via go-rod.
type RodLauncher struct {
	cfg config.BrowserConfig
	log *slog.Logger
}

// NewRodLauncher creates a RodLauncher for the given launch configuration.
func NewRodLauncher(cfg config.BrowserConfig, log *slog.Logger) *RodLauncher {
	if log == nil {
		log = slog.Default()
	}
	return &RodLauncher{cfg: cfg, log: log}
}

// Launch starts a browser, connects to it and prepares a single page.
//
// Page preparation order matters: viewport, stealth JS, extra headers and the
// hijack router are all installed before the first navigation, since they
// only apply to navigations that happen after them.
func (l *RodLauncher) Launch(ctx context.Context) (Driver, error) {
	ln := l.newLauncher(ctx)

	controlURL, err := ln.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	l.log.Debug("browser launched", "controlURL", controlURL)

	browser := rod.New().Context(ctx).ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		ln.Kill()
		ln.Cleanup()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	// The launch context only bounds startup.
	browser = browser.Context(context.Background())

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		ln.Kill()
		ln.Cleanup()
		return nil, fmt.Errorf("create page: %w", err)
	}

	d := &rodDriver{browser: browser, page: page, launcher: ln, log: l.log}

	// ── Viewport ─────────────────────────────────────────────────────
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             l.cfg.WindowWidth,
		Height:            l.cfg.WindowHeight,
		DeviceScaleFactor: 1,
		Mobile:            false,
	}); err != nil {
		l.log.Warn("set viewport failed", "error", err)
	}

	// ── Stealth injection ────────────────────────────────────────────
	if l.cfg.Stealth {
		if _, err := page.EvalOnNewDocument(stealth.JS); err != nil {
			l.log.Warn("stealth injection failed, proceeding without stealth", "error", err)
		}
	}

	// ── Extra headers ────────────────────────────────────────────────
	if l.cfg.AcceptLanguage != "" {
		_ = proto.NetworkSetExtraHTTPHeaders{
			Headers: toHeadersMap(map[string]string{"Accept-Language": l.cfg.AcceptLanguage}),
		}.Call(page)
	}

	// ── Resource blocking ────────────────────────────────────────────
	d.router = setupHijack(page, l.cfg.BlockedResourceTypes)

	return d, nil
}

func (l *RodLauncher) newLauncher(ctx context.Context) *launcher.Launcher {
	ln := launcher.New().
		Context(ctx).
		Headless(l.cfg.Headless).
		NoSandbox(l.cfg.NoSandbox)

	if l.cfg.BrowserBin != "" {
		ln = ln.Bin(l.cfg.BrowserBin)
	}
	if l.cfg.Proxy != "" {
		ln = ln.Proxy(l.cfg.Proxy)
	}
	if l.cfg.DisableDevShm {
		ln.Set(flags.Flag("disable-dev-shm-usage"))
	}
	if l.cfg.WindowWidth > 0 && l.cfg.WindowHeight > 0 {
		ln.Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", l.cfg.WindowWidth, l.cfg.WindowHeight))
	}

	// ── Anti-detection flags ─────────────────────────────────────────
	ln.Set(flags.Flag("disable-blink-features"), "AutomationControlled")
	ln.Delete(flags.Flag("enable-automation"))
	ln.Set(flags.Flag("disable-features"), "TranslateUI")
	ln.Set(flags.Flag("disable-popup-blocking"))
	ln.Set(flags.Flag("disable-renderer-backgrounding"))
	ln.Set(flags.Flag("disable-background-timer-throttling"))
	ln.Set(flags.Flag("disable-backgrounding-occluded-windows"))
	ln.Set(flags.Flag("disable-component-update"))
	ln.Set(flags.Flag("disable-default-apps"))
	ln.Set(flags.Flag("no-first-run"))

	for _, raw := range l.cfg.ExtraFlags {
		name, value, hasValue := strings.Cut(strings.TrimLeft(raw, "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			ln.Set(flags.Flag(name), value)
		} else {
			ln.Set(flags.Flag(name))
		}
	}
	return ln
}

// rodDriver implements Driver on a single rod page.
type rodDriver struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
	router   *rod.HijackRouter
	log      *slog.Logger
}

func (d *rodDriver) Navigate(ctx context.Context, url string) error {
	return d.page.Context(ctx).Navigate(url)
}

func (d *rodDriver) Reload(ctx context.Context) error {
	return d.page.Context(ctx).Reload()
}

func (d *rodDriver) Source(ctx context.Context) (string, error) {
	return d.page.Context(ctx).HTML()
}

func (d *rodDriver) Title(ctx context.Context) string {
	return evalStringOrEmpty(d.page.Context(ctx), `() => document.title`)
}

func (d *rodDriver) URL(ctx context.Context) string {
	return evalStringOrEmpty(d.page.Context(ctx), `() => window.location.href`)
}

func (d *rodDriver) Locate(ctx context.Context, selector string, timeout time.Duration) (Element, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	el, err := d.page.Context(waitCtx).Element(selector)
	if err != nil {
		return nil, err
	}
	return &rodElement{el: el.Context(ctx)}, nil
}

// Perform drives the page mouse through the gesture. The button is always
// released, even when a move fails midway.
func (d *rodDriver) Perform(ctx context.Context, g Gesture) (err error) {
	mouse := d.page.Mouse

	if err := mouse.MoveTo(proto.Point{X: g.Start.X, Y: g.Start.Y}); err != nil {
		return fmt.Errorf("move to start: %w", err)
	}
	if err := mouse.Down(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("pointer down: %w", err)
	}
	defer func() {
		if upErr := mouse.Up(proto.InputMouseButtonLeft, 1); upErr != nil && err == nil {
			err = fmt.Errorf("pointer up: %w", upErr)
		}
	}()

	pos := g.Start
	for i, m := range g.Moves {
		pos.X += m.DX
		pos.Y += m.DY
		if err := mouse.MoveTo(proto.Point{X: pos.X, Y: pos.Y}); err != nil {
			return fmt.Errorf("move %d: %w", i, err)
		}
		if err := Sleep(ctx, m.Pause); err != nil {
			return err
		}
	}
	return nil
}

// Quit stops the hijack router, closes the browser and removes its
// temporary profile. All steps run even if an earlier one fails.
func (d *rodDriver) Quit() error {
	var errs []error
	if d.router != nil {
		if err := d.router.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop hijack router: %w", err))
		}
	}
	if err := d.browser.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close browser: %w", err))
	}
	d.launcher.Kill()
	d.launcher.Cleanup()
	return errors.Join(errs...)
}

type rodElement struct {
	el *rod.Element
}

func (e *rodElement) Box(ctx context.Context) (Box, error) {
	shape, err := e.el.Context(ctx).Shape()
	if err != nil {
		return Box{}, err
	}
	rect := shape.Box()
	if rect == nil {
		return Box{}, errors.New("element has no layout box")
	}
	return Box{X: rect.X, Y: rect.Y, Width: rect.Width, Height: rect.Height}, nil
}

// evalStringOrEmpty evaluates a JS expression and returns the string result,
// swallowing any errors (useful for optional metadata extraction).
func evalStringOrEmpty(page *rod.Page, js string) string {
	res, err := page.Eval(js)
	if err != nil {
		return ""
	}
	return res.Value.Str()
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// Sleep waits for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
