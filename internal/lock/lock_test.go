package lock

import (
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquire_Exclusive(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	a, b := NewManager(), NewManager()

	tok, err := a.Acquire(dbPath)
	require.NoError(t, err)
	assert.Equal(t, a.Owner(), tok.Owner)
	assert.True(t, a.Held(dbPath))

	_, err = b.Acquire(dbPath)
	require.ErrorIs(t, err, ErrLocked)
	assert.False(t, b.Held(dbPath))

	owner, err := ReadOwner(dbPath)
	require.NoError(t, err)
	assert.Equal(t, a.Owner(), owner)

	require.NoError(t, a.Release(dbPath))
	_, err = b.Acquire(dbPath)
	require.NoError(t, err)
	require.NoError(t, b.Release(dbPath))
}

func TestAcquire_Idempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	m := NewManager()

	first, err := m.Acquire(dbPath)
	require.NoError(t, err)
	second, err := m.Acquire(dbPath)
	require.NoError(t, err)
	assert.Same(t, first, second)
	require.NoError(t, m.ReleaseAll())
}

func TestRelease_NotHeld(t *testing.T) {
	m := NewManager()
	assert.NoError(t, m.Release(filepath.Join(t.TempDir(), "missing.db")))
}

func TestAcquire_RaceOneWinner(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "index.db")
	const n = 8
	managers := make([]*Manager, n)
	for i := range managers {
		managers[i] = NewManager()
	}

	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for _, m := range managers {
		wg.Add(1)
		go func(m *Manager) {
			defer wg.Done()
			if _, err := m.Acquire(dbPath); err == nil {
				wins.Add(1)
			} else if assert.ErrorIs(t, err, ErrLocked) {
				losses.Add(1)
			}
		}(m)
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(n-1), losses.Load())
	for _, m := range managers {
		require.NoError(t, m.ReleaseAll())
	}
}

func TestDelayedAction_ResetByReschedule(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var runs atomic.Int32
	a := NewDelayedAction(clock, 10*time.Second, func() { runs.Add(1) })

	a.Schedule()
	clock.Advance(9 * time.Second)
	assert.Equal(t, int32(0), runs.Load())

	a.Schedule()
	clock.Advance(9 * time.Second)
	assert.Equal(t, int32(0), runs.Load(), "reschedule must restart the delay")
	assert.True(t, a.Pending())

	clock.Advance(time.Second)
	assert.Equal(t, int32(1), runs.Load())
	assert.False(t, a.Pending())

	clock.Advance(time.Minute)
	assert.Equal(t, int32(1), runs.Load())
}

func TestDelayedAction_Cancel(t *testing.T) {
	clock := NewFakeClock(time.Unix(0, 0))
	var runs atomic.Int32
	a := NewDelayedAction(clock, time.Second, func() { runs.Add(1) })

	assert.False(t, a.Cancel())
	a.Schedule()
	assert.True(t, a.Cancel())
	clock.Advance(time.Hour)
	assert.Equal(t, int32(0), runs.Load())
	assert.Equal(t, 0, clock.Pending())
}

func TestDelayedAction_RealClock(t *testing.T) {
	done := make(chan struct{})
	a := NewDelayedAction(nil, 10*time.Millisecond, func() { close(done) })
	a.Schedule()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("delayed action did not run")
	}
}
