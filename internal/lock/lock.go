// Package lock provides the cross-process lock guarding write access to an
// index database, and the delayed release used to avoid lock thrashing.
package lock

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLocked is returned by Acquire when another holder owns the lock.
var ErrLocked = errors.New("lock: held by another process")

// Suffix is appended to a database path to form its lock file path.
const Suffix = ".lock"

// Token describes a held lock.
type Token struct {
	Path       string
	Owner      string
	AcquiredAt time.Time

	file *os.File
}

// Manager acquires and releases lock files on behalf of one process.
// Locks are keyed by database path.
type Manager struct {
	owner string

	mu   sync.Mutex
	held map[string]*Token
}

// NewManager returns a Manager with a fresh owner identity.
func NewManager() *Manager {
	return &Manager{
		owner: uuid.NewString(),
		held:  make(map[string]*Token),
	}
}

// Owner returns the identity written into lock files held by m.
func (m *Manager) Owner() string {
	return m.owner
}

// Acquire takes the lock for dbPath without blocking. Re-acquiring a lock
// already held by m returns the existing token.
func (m *Manager) Acquire(dbPath string) (*Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.held[dbPath]; ok {
		return t, nil
	}

	lockPath := dbPath + Suffix
	f, err := tryLock(lockPath)
	if err != nil {
		return nil, err
	}

	if err := writeOwner(f, m.owner); err != nil {
		_ = unlock(f, lockPath)
		return nil, fmt.Errorf("lock: record owner: %w", err)
	}

	t := &Token{
		Path:       lockPath,
		Owner:      m.owner,
		AcquiredAt: time.Now(),
		file:       f,
	}
	m.held[dbPath] = t
	return t, nil
}

// Release gives up the lock for dbPath. Releasing a lock that is not held
// is a no-op.
func (m *Manager) Release(dbPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.held[dbPath]
	if !ok {
		return nil
	}
	delete(m.held, dbPath)
	if err := unlock(t.file, t.Path); err != nil {
		return fmt.Errorf("lock: release %s: %w", t.Path, err)
	}
	return nil
}

// Held reports whether m currently holds the lock for dbPath.
func (m *Manager) Held(dbPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held[dbPath]
	return ok
}

// ReleaseAll releases every lock held by m.
func (m *Manager) ReleaseAll() error {
	m.mu.Lock()
	paths := make([]string, 0, len(m.held))
	for p := range m.held {
		paths = append(paths, p)
	}
	m.mu.Unlock()

	var errs []error
	for _, p := range paths {
		if err := m.Release(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReadOwner returns the owner recorded in the lock file for dbPath.
func ReadOwner(dbPath string) (string, error) {
	data, err := os.ReadFile(dbPath + Suffix)
	if err != nil {
		return "", err
	}
	owner, _, _ := strings.Cut(strings.TrimSpace(string(data)), " ")
	return owner, nil
}

func writeOwner(f *os.File, owner string) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err := f.WriteAt([]byte(fmt.Sprintf("%s %d\n", owner, os.Getpid())), 0)
	return err
}
