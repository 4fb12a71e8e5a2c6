package index

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/thumbindex/internal/lock"
	"github.com/starford/thumbindex/internal/metrics"
	"github.com/starford/thumbindex/internal/storage"
)

const (
	// DefaultReleaseDelay is how long the write lock is kept after the last write.
	DefaultReleaseDelay = 10 * time.Second
	// DefaultSearchLimit bounds SearchSubfolder results.
	DefaultSearchLimit = 5000
)

// PathResolver maps paths to their root and index location.
type PathResolver interface {
	Resolve(path string) (storage.Location, error)
	Normalize(path string) (string, error)
}

// Registry owns the open Handle of every root used by the process. All
// access to a root's database goes through its registry.
type Registry struct {
	resolver     PathResolver
	locks        *lock.Manager
	clock        lock.Clock
	releaseDelay time.Duration
	searchLimit  int
	logger       *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLockManager shares a lock manager between registries.
func WithLockManager(m *lock.Manager) RegistryOption {
	return func(r *Registry) { r.locks = m }
}

// WithClock sets the clock driving delayed lock release and default write times.
func WithClock(c lock.Clock) RegistryOption {
	return func(r *Registry) { r.clock = c }
}

// WithReleaseDelay sets the idle delay before the write lock is released.
func WithReleaseDelay(d time.Duration) RegistryOption {
	return func(r *Registry) { r.releaseDelay = d }
}

// WithSearchLimit sets the SearchSubfolder row bound.
func WithSearchLimit(n int) RegistryOption {
	return func(r *Registry) { r.searchLimit = n }
}

// WithLogger sets the registry logger.
func WithLogger(l *slog.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// NewRegistry returns an empty registry resolving paths with resolver.
func NewRegistry(resolver PathResolver, opts ...RegistryOption) *Registry {
	r := &Registry{
		resolver:     resolver,
		clock:        lock.RealClock{},
		releaseDelay: DefaultReleaseDelay,
		searchLimit:  DefaultSearchLimit,
		handles:      make(map[string]*Handle),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.locks == nil {
		r.locks = lock.NewManager()
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if r.searchLimit <= 0 {
		r.searchLimit = DefaultSearchLimit
	}
	return r
}

// Open returns the handle for the root containing path, opening it on first
// use. Failures are not cached; the next call retries from scratch.
func (r *Registry) Open(ctx context.Context, path string) (*Handle, error) {
	loc, err := r.resolver.Resolve(path)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.handles[loc.Token]; ok {
		return h, nil
	}
	h, err := r.openLocked(ctx, loc)
	if err != nil {
		return nil, err
	}
	r.handles[loc.Token] = h
	return h, nil
}

// openLocked opens a handle for loc. Callers hold r.mu.
func (r *Registry) openLocked(ctx context.Context, loc storage.Location) (*Handle, error) {
	readOnly := false
	_, err := r.locks.Acquire(loc.CachePath)
	switch {
	case err == nil:
		metrics.LockAcquisitions.WithLabelValues("acquired").Inc()
	case errors.Is(err, lock.ErrLocked):
		metrics.LockAcquisitions.WithLabelValues("contended").Inc()
		readOnly = true
		r.logger.Info("registry: lock held elsewhere, opening read-only",
			slog.String("root", loc.Root), slog.String("db", loc.CachePath))
	default:
		metrics.LockAcquisitions.WithLabelValues("error").Inc()
		readOnly = true
		r.logger.Warn("registry: lock unavailable, opening read-only",
			slog.String("root", loc.Root), slog.String("error", err.Error()))
	}

	conn, err := openDB(ctx, loc.CachePath, readOnly)
	if err != nil {
		if !readOnly {
			_ = r.locks.Release(loc.CachePath)
		}
		return nil, err
	}
	if !readOnly {
		if err := ensureSchema(ctx, conn); err != nil {
			conn.Close()
			_ = r.locks.Release(loc.CachePath)
			return nil, err
		}
	}

	h := &Handle{
		loc:      loc,
		conn:     conn,
		readOnly: readOnly,
		locks:    r.locks,
		logger:   r.logger,
	}
	h.release = lock.NewDelayedAction(r.clock, r.releaseDelay, h.releaseDelayed)
	metrics.OpenHandles.WithLabelValues(h.mode()).Inc()

	r.logger.Info("registry: opened",
		slog.String("root", loc.Root),
		slog.String("token", loc.Token),
		slog.String("mode", h.mode()))
	return h, nil
}

// Reload closes h and opens a fresh handle for the same root, attempting
// the lock again.
func (r *Registry) Reload(ctx context.Context, h *Handle) (*Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.handles[h.loc.Token]; ok && cur == h {
		delete(r.handles, h.loc.Token)
	}
	if err := h.closeAndRelease(); err != nil {
		r.logger.Warn("registry: close before reload failed",
			slog.String("root", h.loc.Root), slog.String("error", err.Error()))
	}
	metrics.HandleReloads.Inc()

	if cur, ok := r.handles[h.loc.Token]; ok {
		return cur, nil
	}
	fresh, err := r.openLocked(ctx, h.loc)
	if err != nil {
		return nil, err
	}
	r.handles[h.loc.Token] = fresh
	return fresh, nil
}

// Close closes every handle and releases its lock.
func (r *Registry) Close() error {
	r.mu.Lock()
	handles := r.handles
	r.handles = make(map[string]*Handle)
	r.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if err := h.closeAndRelease(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of open handles.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

func (r *Registry) now() time.Time {
	return r.clock.Now()
}
