package index

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/starford/thumbindex/internal/lock"
	"github.com/starford/thumbindex/internal/metrics"
	"github.com/starford/thumbindex/internal/storage"
)

// Handle is the open index database of one root. A registry keeps at most
// one Handle per root.
type Handle struct {
	loc      storage.Location
	conn     *sql.DB
	readOnly bool

	locks   *lock.Manager
	release *lock.DelayedAction
	logger  *slog.Logger

	// writeMu serialises writes, lock re-acquisition and lock release.
	writeMu sync.Mutex
	closed  bool
}

// Root returns the absolute root directory the handle indexes.
func (h *Handle) Root() string { return h.loc.Root }

// Token returns the root's opaque identifier.
func (h *Handle) Token() string { return h.loc.Token }

// Path returns the database file path.
func (h *Handle) Path() string { return h.loc.CachePath }

// ReadOnly reports whether the handle was opened without the write lock.
func (h *Handle) ReadOnly() bool { return h.readOnly }

func (h *Handle) mode() string {
	if h.readOnly {
		return "ro"
	}
	return "rw"
}

// ensureLockLocked re-acquires the write lock if a delayed release gave it
// up. Callers hold writeMu.
func (h *Handle) ensureLockLocked() error {
	if h.locks.Held(h.loc.CachePath) {
		return nil
	}
	_, err := h.locks.Acquire(h.loc.CachePath)
	switch {
	case err == nil:
		metrics.LockAcquisitions.WithLabelValues("acquired").Inc()
		h.logger.Debug("handle: lock reacquired", slog.String("root", h.loc.Root))
		return nil
	case errors.Is(err, lock.ErrLocked):
		metrics.LockAcquisitions.WithLabelValues("contended").Inc()
		return err
	default:
		metrics.LockAcquisitions.WithLabelValues("error").Inc()
		return err
	}
}

// scheduleRelease restarts the delay after which the lock is given up.
func (h *Handle) scheduleRelease() {
	h.release.Schedule()
}

// releaseDelayed runs when the release delay elapses without further writes.
func (h *Handle) releaseDelayed() {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if h.closed || h.release.Pending() {
		return
	}
	if !h.locks.Held(h.loc.CachePath) {
		return
	}
	if err := h.locks.Release(h.loc.CachePath); err != nil {
		h.logger.Warn("handle: delayed lock release failed",
			slog.String("root", h.loc.Root), slog.String("error", err.Error()))
		return
	}
	metrics.LockReleases.WithLabelValues("debounce").Inc()
	h.logger.Debug("handle: lock released after idle delay", slog.String("root", h.loc.Root))
}

// closeAndRelease closes the connection and releases the lock immediately,
// bypassing the release delay.
func (h *Handle) closeAndRelease() error {
	h.release.Cancel()

	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	metrics.OpenHandles.WithLabelValues(h.mode()).Dec()

	var errs []error
	if err := h.conn.Close(); err != nil {
		errs = append(errs, fmt.Errorf("index: close db: %w", err))
	}
	if h.locks.Held(h.loc.CachePath) {
		if err := h.locks.Release(h.loc.CachePath); err != nil {
			errs = append(errs, err)
		} else {
			metrics.LockReleases.WithLabelValues("close").Inc()
		}
	}
	return errors.Join(errs...)
}
