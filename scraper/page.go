package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/use-agent/offerscrape/config"
	"github.com/use-agent/offerscrape/engine"
	"github.com/use-agent/offerscrape/extractor"
	"github.com/use-agent/offerscrape/models"
)

// Navigate loads url in the session, waits settle for client-side rendering
// and returns the resulting page state. An HTTP error status from the site is
// not a failure; only driver faults are returned.
func Navigate(ctx context.Context, drv engine.Driver, url string, settle time.Duration) (*models.Snapshot, error) {
	if err := drv.Navigate(ctx, url); err != nil {
		return nil, categorizeError(err, "navigation to offer page failed")
	}
	if err := engine.Sleep(ctx, settle); err != nil {
		return nil, categorizeError(err, "waiting for page to render")
	}
	return Snapshot(ctx, drv)
}

// Snapshot re-reads the current page state without navigating.
func Snapshot(ctx context.Context, drv engine.Driver) (*models.Snapshot, error) {
	html, err := drv.Source(ctx)
	if err != nil {
		return nil, categorizeError(err, "failed to read page source")
	}
	title := drv.Title(ctx)
	if title == "" {
		title = extractor.Title(html)
	}
	return &models.Snapshot{
		HTML:  html,
		Title: title,
		URL:   drv.URL(ctx),
	}, nil
}

// DetectCaptcha reports whether the snapshot shows the slider challenge,
// judged by the page title, the visible prompt text, and the presence of
// the slider handle in the DOM. log may be nil.
func DetectCaptcha(snap *models.Snapshot, site config.SiteConfig, log *slog.Logger) bool {
	if snap == nil {
		return false
	}
	if log == nil {
		log = slog.Default()
	}
	for _, t := range site.ChallengeTitles {
		if t != "" && strings.Contains(snap.Title, t) {
			return true
		}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(snap.HTML))
	if err != nil {
		log.Debug("captcha detection: markup did not parse", "error", err)
		return false
	}

	body := doc.Find("body").Text()
	for _, t := range site.ChallengeTexts {
		if t != "" && strings.Contains(body, t) {
			return true
		}
	}

	if site.HandleSelector != "" {
		sel, err := cascadia.Compile(site.HandleSelector)
		if err != nil {
			log.Warn("captcha detection: bad handle selector", "selector", site.HandleSelector, "error", err)
			return false
		}
		if doc.FindMatcher(sel).Length() > 0 {
			return true
		}
	}
	return false
}

// categorizeError wraps raw driver errors into typed ScrapeErrors so the API
// layer can map them to HTTP status codes.
func categorizeError(err error, msg string) *models.ScrapeError {
	var se *models.ScrapeError
	if errors.As(err, &se) {
		return se
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return models.NewScrapeError(models.ErrCodeTimeout, msg, err)
	case errors.Is(err, context.Canceled):
		return models.NewScrapeError(models.ErrCodeTimeout, "request canceled", err)
	default:
		return models.NewScrapeError(models.ErrCodeBrowserFault, msg, fmt.Errorf("driver: %w", err))
	}
}
