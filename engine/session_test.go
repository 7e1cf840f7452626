package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/use-agent/offerscrape/engine"
	"github.com/use-agent/offerscrape/engine/enginetest"
	"github.com/use-agent/offerscrape/models"
)

func newLauncher() *enginetest.Launcher {
	return &enginetest.Launcher{New: func() *enginetest.Driver { return enginetest.New(nil) }}
}

func TestAcquire_LaunchFailureIsSessionInit(t *testing.T) {
	l := &enginetest.Launcher{Err: errors.New("chrome not found")}
	m := engine.NewSessionManager(l, 2, nil)

	s, err := m.Acquire(context.Background())
	require.Nil(t, s)
	require.ErrorIs(t, err, models.ErrSessionInit)

	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeSessionInit, se.Code)
	assert.Equal(t, 0, m.Stats().ActiveSessions)

	// The failed launch must give its slot back.
	l.Err = nil
	l.New = func() *enginetest.Driver { return enginetest.New(nil) }
	for i := 0; i < 2; i++ {
		_, err := m.Acquire(context.Background())
		require.NoError(t, err)
	}
}

func TestRelease_Idempotent(t *testing.T) {
	l := newLauncher()
	m := engine.NewSessionManager(l, 0, nil)

	s, err := m.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 1, m.Stats().ActiveSessions)

	m.Release(s)
	m.Release(s)
	s.Release()
	m.Release(nil)

	assert.Equal(t, 1, l.Launched()[0].Quits())
	assert.Equal(t, 0, m.Stats().ActiveSessions)
}

func TestRelease_SwallowsQuitFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(d *enginetest.Driver)
	}{
		{"error", func(d *enginetest.Driver) { d.QuitErr = errors.New("browser already gone") }},
		{"panic", func(d *enginetest.Driver) { d.QuitPanics = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &enginetest.Launcher{New: func() *enginetest.Driver {
				d := enginetest.New(nil)
				tt.setup(d)
				return d
			}}
			m := engine.NewSessionManager(l, 1, nil)

			s, err := m.Acquire(context.Background())
			require.NoError(t, err)
			assert.NotPanics(t, func() { m.Release(s) })
			assert.Equal(t, 0, m.Stats().ActiveSessions)

			// Slot is free again.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			_, err = m.Acquire(ctx)
			require.NoError(t, err)
		})
	}
}

func TestAcquire_WaitsForSlot(t *testing.T) {
	m := engine.NewSessionManager(newLauncher(), 1, nil)

	first, err := m.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Acquire(ctx)
	var se *models.ScrapeError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, models.ErrCodeTimeout, se.Code)

	m.Release(first)
	second, err := m.Acquire(context.Background())
	require.NoError(t, err)
	m.Release(second)
}

func TestAcquire_ConcurrentSessionsAreIndependent(t *testing.T) {
	l := newLauncher()
	m := engine.NewSessionManager(l, 0, nil)

	var gauge []int
	var mu sync.Mutex
	m.OnActiveChange(func(n int) {
		mu.Lock()
		gauge = append(gauge, n)
		mu.Unlock()
	})

	const n = 8
	sessions := make([]*engine.Session, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := m.Acquire(context.Background())
			assert.NoError(t, err)
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	ids := map[string]bool{}
	for _, s := range sessions {
		require.NotNil(t, s)
		ids[s.ID] = true
	}
	assert.Len(t, ids, n)
	assert.Equal(t, n, m.Stats().ActiveSessions)

	for _, s := range sessions {
		m.Release(s)
	}
	for _, d := range l.Launched() {
		assert.Equal(t, 1, d.Quits())
	}
	mu.Lock()
	assert.Len(t, gauge, 2*n)
	assert.Equal(t, 0, gauge[len(gauge)-1])
	mu.Unlock()
}
