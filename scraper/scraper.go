package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/use-agent/offerscrape/captcha"
	"github.com/use-agent/offerscrape/config"
	"github.com/use-agent/offerscrape/engine"
	"github.com/use-agent/offerscrape/extractor"
	"github.com/use-agent/offerscrape/metrics"
	"github.com/use-agent/offerscrape/models"
)

// Scraper fetches product data for one offer id at a time, each request on
// its own browser session. It is safe for concurrent use.
type Scraper struct {
	sessions  *engine.SessionManager
	solver    *captcha.Solver
	extractor *extractor.Extractor
	cfg       config.ScraperConfig
	site      config.SiteConfig
	log       *slog.Logger
	metrics   *metrics.Metrics
	startTime time.Time
}

// New wires a Scraper. m may be nil.
func New(sessions *engine.SessionManager, solver *captcha.Solver, cfg config.ScraperConfig, site config.SiteConfig, log *slog.Logger, m *metrics.Metrics) *Scraper {
	if log == nil {
		log = slog.Default()
	}
	return &Scraper{
		sessions:  sessions,
		solver:    solver,
		extractor: extractor.New(log),
		cfg:       cfg,
		site:      site,
		log:       log,
		metrics:   m,
		startTime: time.Now(),
	}
}

// Stats returns a snapshot of session usage.
func (s *Scraper) Stats() models.SessionStats {
	return s.sessions.Stats()
}

// StartTime returns when the scraper was created.
func (s *Scraper) StartTime() time.Time {
	return s.startTime
}

// FetchProduct fetches the retail and wholesale pages of productID and
// returns the payload of every URL type that yielded one.
//
// Lifecycle:
//
//  1. Deadline            – RequestTimeout bounds the whole request
//  2. Acquire session     – one fresh browser per request
//  3. DEFER: release      – runs exactly once on every path
//  4. Per URL type        – navigate, captcha check, solve, extract
//  5. Aggregate           – empty result becomes NO_DATA or CAPTCHA_UNSOLVED
//
// A URL type that fails on the captcha or on extraction is omitted from the
// result. A driver fault or the deadline stops the remaining URL types and
// fails the request only when nothing was extracted before it.
func (s *Scraper) FetchProduct(ctx context.Context, productID string) (data models.ProductData, err error) {
	start := time.Now()
	log := s.log.With("product_id", productID)
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = models.AsScrapeError(err).Code
		}
		s.metrics.ProductFetched(outcome, time.Since(start))
		log.Info("product fetch finished", "outcome", outcome, "keys", len(data), "took", time.Since(start))
	}()

	// ── 1. Deadline ───────────────────────────────────────────────────
	if s.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.RequestTimeout)
		defer cancel()
	}

	// ── 2. Acquire session ────────────────────────────────────────────
	sess, err := s.sessions.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	// ── 3. DEFER: release ─────────────────────────────────────────────
	defer s.sessions.Release(sess)
	log = log.With("session", sess.ID)

	// ── 4. Per URL type, sequentially on the same session ────────────
	targets := models.TargetURLs(s.site.BaseURL, productID)
	data = make(models.ProductData, len(targets))
	captchaFailures := 0
	for _, target := range targets {
		out, err := s.fetchURL(ctx, sess, productID, target, log)
		if err != nil {
			s.metrics.URLFetched(string(target.Type), models.AsScrapeError(err).Code)
			if len(data) == 0 {
				return nil, err
			}
			// The session is unusable past this point; keep what was extracted.
			log.Warn("fetch aborted, returning partial data", "url_type", target.Type, "error", err)
			break
		}
		switch {
		case out.Payload != nil:
			data[target.Type] = out.Payload
			s.metrics.URLFetched(string(target.Type), "success")
		case errors.Is(out.Err, models.ErrCaptchaUnsolved):
			captchaFailures++
			s.metrics.URLFetched(string(target.Type), models.ErrCodeCaptchaUnsolved)
		default:
			s.metrics.URLFetched(string(target.Type), models.ErrCodeExtractionMiss)
		}
	}

	// ── 5. Aggregate ──────────────────────────────────────────────────
	if len(data) == 0 {
		if captchaFailures == len(targets) {
			return nil, models.NewScrapeError(models.ErrCodeCaptchaUnsolved, "captcha challenge failed", nil)
		}
		return nil, models.NewScrapeError(models.ErrCodeNoData, "no data from any endpoint", nil)
	}
	return data, nil
}

// fetchURL runs one URL type. A non-nil error is request-fatal; per-URL
// failures are reported in the outcome's Err.
func (s *Scraper) fetchURL(ctx context.Context, drv engine.Driver, productID string, target models.TargetURL, log *slog.Logger) (*models.URLOutcome, error) {
	log = log.With("url_type", target.Type)
	out := &models.URLOutcome{Target: target}

	log.Info("fetching", "url", target.URL)
	snap, err := Navigate(ctx, drv, target.URL, s.cfg.RenderSettle)
	if err != nil {
		return out, err
	}

	if DetectCaptcha(snap, s.site, log) {
		out.Challenge.Detected = true
		log.Info("captcha detected, solving", "title", snap.Title)

		solved, err := s.solveCycles(ctx, drv, out)
		if err != nil {
			return out, err
		}
		if !solved {
			out.Title = snap.Title
			out.Err = models.NewScrapeError(models.ErrCodeCaptchaUnsolved, "captcha challenge failed", nil)
			log.Error("captcha not solved, skipping url type", "attempts", out.Challenge.Attempts)
			s.dump(ctx, drv, productID, target.Type, log)
			return out, nil
		}
		out.Challenge.Resolved = true

		if snap, err = Snapshot(ctx, drv); err != nil {
			return out, err
		}
	}

	out.Title = snap.Title
	out.Payload = s.extractor.Extract(snap.HTML)
	if out.Payload == nil {
		out.Err = models.NewScrapeError(models.ErrCodeExtractionMiss, "no embedded product data in page", nil)
		log.Error("failed to extract data", "title", extractor.Title(snap.HTML))
		s.dump(ctx, drv, productID, target.Type, log)
	}
	return out, nil
}

// solveCycles runs one retrying solve and, if it fails, reloads the page
// and runs one more. Only a cancelled or expired context is an error.
func (s *Scraper) solveCycles(ctx context.Context, drv engine.Driver, out *models.URLOutcome) (bool, error) {
	solved, n := s.solver.Solve(ctx, drv)
	out.Challenge.Attempts += n
	if solved {
		return true, nil
	}
	if err := ctx.Err(); err != nil {
		return false, categorizeError(err, "solving captcha")
	}

	if err := drv.Reload(ctx); err != nil {
		return false, categorizeError(err, "reload after failed solve")
	}
	if err := engine.Sleep(ctx, s.cfg.ReloadSettle); err != nil {
		return false, categorizeError(err, "waiting after reload")
	}

	solved, n = s.solver.Solve(ctx, drv)
	out.Challenge.Attempts += n
	if !solved {
		if err := ctx.Err(); err != nil {
			return false, categorizeError(err, "solving captcha")
		}
	}
	return solved, nil
}

// dump writes the current page source to DebugDumpDir, when configured.
// Failures are logged only.
func (s *Scraper) dump(ctx context.Context, drv engine.Driver, productID string, urlType models.URLType, log *slog.Logger) {
	if s.cfg.DebugDumpDir == "" {
		return
	}
	html, err := drv.Source(ctx)
	if err != nil {
		log.Warn("debug dump: could not read source", "error", err)
		return
	}
	if err := os.MkdirAll(s.cfg.DebugDumpDir, 0o755); err != nil {
		log.Warn("debug dump: could not create dir", "dir", s.cfg.DebugDumpDir, "error", err)
		return
	}
	name := fmt.Sprintf("%s_%s_%d.html", productID, urlType, time.Now().UnixMilli())
	path := filepath.Join(s.cfg.DebugDumpDir, name)
	if err := os.WriteFile(path, []byte(html), 0o644); err != nil {
		log.Warn("debug dump: write failed", "path", path, "error", err)
		return
	}
	log.Info("debug dump written", "path", path)
}

// NewFromConfig wires the production stack: a rod launcher behind a
// session manager, the slider solver, and the orchestrator.
func NewFromConfig(cfg *config.Config, log *slog.Logger, m *metrics.Metrics) *Scraper {
	if log == nil {
		log = slog.Default()
	}
	sessions := engine.NewSessionManager(engine.NewRodLauncher(cfg.Browser, log), cfg.Browser.MaxSessions, log)
	sessions.OnActiveChange(m.SetSessionsActive)
	solver := captcha.NewSolver(cfg.Captcha, cfg.Site, log, captcha.WithMetrics(m))
	return New(sessions, solver, cfg.Scraper, cfg.Site, log, m)
}
