package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/use-agent/offerscrape/models"
)

// Session is one exclusively owned browser. It embeds the Driver so callers
// drive it directly; Release ends it.
type Session struct {
	Driver
	ID string

	once    sync.Once
	release func()
}

// Release terminates the browser. It is idempotent and never panics.
func (s *Session) Release() {
	s.once.Do(s.release)
}

// SessionManager acquires and releases independent browser sessions.
// It is safe for concurrent use; sessions share no mutable state.
type SessionManager struct {
	launcher    Launcher
	log         *slog.Logger
	slots       chan struct{}
	maxSessions int
	active      atomic.Int32
	onChange    func(active int)
}

// NewSessionManager creates a SessionManager allowing at most maxSessions
// live browsers (<= 0 means unbounded).
func NewSessionManager(l Launcher, maxSessions int, log *slog.Logger) *SessionManager {
	if log == nil {
		log = slog.Default()
	}
	m := &SessionManager{launcher: l, log: log, maxSessions: maxSessions}
	if maxSessions > 0 {
		m.slots = make(chan struct{}, maxSessions)
	}
	return m
}

// OnActiveChange registers a callback invoked with the live session count
// after every acquire and release. Used for the sessions gauge.
func (m *SessionManager) OnActiveChange(fn func(active int)) {
	m.onChange = fn
}

// Acquire starts a new browser session, waiting for a free slot first.
// Launch failures are returned as SESSION_INIT_FAILED.
func (m *SessionManager) Acquire(ctx context.Context) (*Session, error) {
	if m.slots != nil {
		select {
		case m.slots <- struct{}{}:
		case <-ctx.Done():
			return nil, models.NewScrapeError(models.ErrCodeTimeout, "timed out waiting for a browser slot", ctx.Err())
		}
	}

	drv, err := m.launcher.Launch(ctx)
	if err != nil {
		m.freeSlot()
		return nil, models.NewScrapeError(models.ErrCodeSessionInit, "browser session could not be started", err)
	}

	id := uuid.NewString()
	m.changed(m.active.Add(1))
	m.log.Info("session acquired", "session", id)

	s := &Session{Driver: drv, ID: id}
	s.release = func() { m.teardown(s) }
	return s, nil
}

// Release ends the session. Safe to call more than once and on nil.
func (m *SessionManager) Release(s *Session) {
	if s == nil {
		return
	}
	s.Release()
}

// teardown quits the driver, logging instead of propagating failures:
// by the time a session is released the outcome is already decided.
func (m *SessionManager) teardown(s *Session) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("session teardown panicked", "session", s.ID, "panic", fmt.Sprint(r))
		}
		m.changed(m.active.Add(-1))
		m.freeSlot()
	}()

	if err := s.Driver.Quit(); err != nil {
		m.log.Warn("session teardown failed", "session", s.ID, "error", err)
		return
	}
	m.log.Info("session released", "session", s.ID)
}

func (m *SessionManager) freeSlot() {
	if m.slots != nil {
		<-m.slots
	}
}

func (m *SessionManager) changed(active int32) {
	if m.onChange != nil {
		m.onChange(int(active))
	}
}

// Stats returns a snapshot of session usage.
func (m *SessionManager) Stats() models.SessionStats {
	return models.SessionStats{
		MaxSessions:    m.maxSessions,
		ActiveSessions: int(m.active.Load()),
	}
}
