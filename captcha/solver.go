// Package captcha solves the site's slider challenge by dragging the handle
// along the track with a human-like pointer trajectory.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/use-agent/offerscrape/config"
	"github.com/use-agent/offerscrape/engine"
	"github.com/use-agent/offerscrape/metrics"
	"github.com/use-agent/offerscrape/models"
)

// errRejected marks an attempt that completed but did not unlock the page.
var errRejected = errors.New("captcha: slide rejected")

// Solver drives slider attempts on a session. One Solver is shared by all
// requests; it holds no per-session state.
type Solver struct {
	cfg     config.CaptchaConfig
	site    config.SiteConfig
	log     *slog.Logger
	metrics *metrics.Metrics

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Solver.
type Option func(*Solver)

// WithRand makes drag planning deterministic.
func WithRand(r *rand.Rand) Option {
	return func(s *Solver) { s.rng = r }
}

// WithMetrics records every attempt.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Solver) { s.metrics = m }
}

// NewSolver creates a Solver.
func NewSolver(cfg config.CaptchaConfig, site config.SiteConfig, log *slog.Logger, opts ...Option) *Solver {
	if log == nil {
		log = slog.Default()
	}
	s := &Solver{
		cfg:  cfg,
		site: site,
		log:  log,
		rng:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// AttemptSolve performs one slide and reports whether the page unlocked.
// Every failure, including a missing handle, yields false.
func (s *Solver) AttemptSolve(ctx context.Context, drv engine.Driver) bool {
	err := s.attempt(ctx, drv)
	return err == nil
}

// SolveWithRetry runs up to MaxAttempts slides with exponential backoff
// between them. Every failed attempt is retried, including a handle that
// has not rendered yet; only a cancelled or expired ctx ends the loop early.
func (s *Solver) SolveWithRetry(ctx context.Context, drv engine.Driver) bool {
	solved, _ := s.Solve(ctx, drv)
	return solved
}

// Solve is SolveWithRetry that also reports how many attempts were made.
func (s *Solver) Solve(ctx context.Context, drv engine.Driver) (bool, int) {
	attempts := 0
	op := func() error {
		attempts++
		err := s.attempt(ctx, drv)
		switch {
		case err == nil:
			return nil
		case ctx.Err() != nil:
			return backoff.Permanent(err)
		case errors.Is(err, errRejected):
			s.log.Info("slide rejected", "attempt", attempts)
		default:
			s.log.Warn("slide attempt failed", "attempt", attempts, "error", err)
		}
		return err
	}

	err := backoff.Retry(op, s.retryPolicy(ctx))
	if err != nil {
		s.log.Info("captcha not solved", "attempts", attempts, "error", err)
		return false, attempts
	}
	s.log.Info("captcha solved", "attempts", attempts)
	return true, attempts
}

func (s *Solver) retryPolicy(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.BackoffBase
	b.MaxInterval = s.cfg.BackoffMax
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	tries := s.cfg.MaxAttempts
	if tries < 1 {
		tries = 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(tries-1)), ctx)
}

// attempt returns nil on success, errRejected when the slide completed but
// the page stayed locked, and any other error for faults.
func (s *Solver) attempt(ctx context.Context, drv engine.Driver) (err error) {
	defer func() {
		switch {
		case err == nil:
			s.metrics.CaptchaAttempt("solved")
		case errors.Is(err, errRejected):
			s.metrics.CaptchaAttempt("rejected")
		default:
			s.metrics.CaptchaAttempt("fault")
		}
	}()

	handle, err := drv.Locate(ctx, s.site.HandleSelector, s.cfg.HandleTimeout)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeElementNotFound, "slider handle not found", err)
	}
	track, err := drv.Locate(ctx, s.site.TrackSelector, s.cfg.HandleTimeout)
	if err != nil {
		return models.NewScrapeError(models.ErrCodeElementNotFound, "slider track not found", err)
	}

	hbox, err := handle.Box(ctx)
	if err != nil {
		return fmt.Errorf("handle box: %w", err)
	}
	tbox, err := track.Box(ctx)
	if err != nil {
		return fmt.Errorf("track box: %w", err)
	}
	if tbox.Width <= 0 {
		return models.NewScrapeError(models.ErrCodeElementNotFound, "slider track has no width", nil)
	}

	s.mu.Lock()
	moves := PlanDrag(tbox.Width, s.cfg.Steps, s.rng)
	s.mu.Unlock()

	g := engine.Gesture{Start: hbox.Center(), Moves: moves}
	s.log.Debug("sliding", "track_width", tbox.Width, "steps", len(moves))
	if err := drv.Perform(ctx, g); err != nil {
		return fmt.Errorf("perform slide: %w", err)
	}

	if err := engine.Sleep(ctx, s.cfg.PostSolveSettle); err != nil {
		return err
	}

	src, err := drv.Source(ctx)
	if err != nil {
		return fmt.Errorf("read source: %w", err)
	}
	if !HasMarker(src, s.site.DataMarkers) {
		return errRejected
	}
	return nil
}

// HasMarker reports whether markup contains any of the data markers.
func HasMarker(markup string, markers []string) bool {
	for _, m := range markers {
		if m != "" && strings.Contains(markup, m) {
			return true
		}
	}
	return false
}

// PlanDrag splits a drag of width pixels into steps relative moves. The
// first third of the moves run at 0.7 of the mean step, the middle third at
// 1.2 and the rest at 0.8, each with up to 2px of horizontal and 1px of
// vertical jitter and a 10-50ms pause.
func PlanDrag(width float64, steps int, rng *rand.Rand) []engine.Move {
	if steps < 1 {
		steps = 1
	}
	step := width / float64(steps)
	third := steps / 3

	moves := make([]engine.Move, steps)
	for i := range moves {
		factor := 0.8
		switch {
		case i < third:
			factor = 0.7
		case i < 2*third:
			factor = 1.2
		}
		moves[i] = engine.Move{
			DX:    step*factor + rng.Float64()*4 - 2,
			DY:    rng.Float64()*2 - 1,
			Pause: time.Duration(10+rng.IntN(41)) * time.Millisecond,
		}
	}
	return moves
}
