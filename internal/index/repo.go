package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/starford/thumbindex/internal/apperr"
	"github.com/starford/thumbindex/internal/checksum"
	"github.com/starford/thumbindex/internal/lock"
	"github.com/starford/thumbindex/internal/metrics"
	"github.com/starford/thumbindex/internal/models"
)

// WriteOutcome tells a caller what WriteRow did with a row.
type WriteOutcome int

const (
	// Written means the row was inserted or replaced.
	Written WriteOutcome = iota
	// SkippedUnchanged means a row with the same name and hash already existed.
	SkippedUnchanged
	// SkippedReadOnly means the root's index is held by another process.
	SkippedReadOnly
	// SkippedLockedRetryScheduled means the lock was lost after a delayed
	// release; the handle has been reopened and the caller may retry.
	SkippedLockedRetryScheduled
)

func (o WriteOutcome) String() string {
	switch o {
	case Written:
		return "written"
	case SkippedUnchanged:
		return "unchanged"
	case SkippedReadOnly:
		return "read_only"
	case SkippedLockedRetryScheduled:
		return "locked_retry"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// WriteResult reports the outcome of a WriteRow call.
type WriteResult struct {
	Outcome      WriteOutcome
	RowsAffected int64
	Hash         string
}

// Row is one stored index row. Stat holds the raw JSON as persisted.
type Row struct {
	FullName   string
	Type       models.EntryType
	StatHash   string
	UpdateTime time.Time
	Stat       json.RawMessage
	Size       int64
	Ctime      int64
	Atime      int64
	Mtime      int64
}

// Cache is the public entry point to the per-root indexes. Every call
// resolves its path to a root and goes through that root's Handle.
type Cache struct {
	reg    *Registry
	logger *slog.Logger
}

// NewCache returns a Cache over reg.
func NewCache(reg *Registry) *Cache {
	return &Cache{reg: reg, logger: reg.logger}
}

// Registry returns the registry backing c.
func (c *Cache) Registry() *Registry { return c.reg }

var errHandleClosed = errors.New("index: handle closed")

const upsertSQL = `
INSERT INTO thumbnail (fullName, type, statHash, updateTime, stat, size, ctime, atime, mtime)
SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?
WHERE NOT EXISTS (SELECT 1 FROM thumbnail WHERE fullName = ? AND statHash = ?)
ON CONFLICT(fullName) DO UPDATE SET
	type       = excluded.type,
	statHash   = excluded.statHash,
	updateTime = excluded.updateTime,
	stat       = excluded.stat,
	size       = excluded.size,
	ctime      = excluded.ctime,
	atime      = excluded.atime,
	mtime      = excluded.mtime`

// WriteRow stores stat under fullName unless a row with the same name and
// fingerprint already exists. A zero updateTime means now.
func (c *Cache) WriteRow(ctx context.Context, fullName string, updateTime time.Time, stat *models.Stat, entryType models.EntryType) (WriteResult, error) {
	if stat == nil {
		return WriteResult{}, apperr.ErrMissingStat
	}
	if err := checkNormalized(fullName, os.PathSeparator); err != nil {
		return WriteResult{}, err
	}
	typ := entryType
	if typ == "" {
		typ = stat.Type
	}
	if typ == "" {
		return WriteResult{}, apperr.ErrMissingType
	}
	if !typ.Valid() {
		return WriteResult{}, fmt.Errorf("%w: %q", apperr.ErrInvalidEntryType, typ)
	}
	if updateTime.IsZero() {
		updateTime = c.reg.now()
	}

	name, err := c.reg.resolver.Normalize(fullName)
	if err != nil {
		return WriteResult{}, err
	}
	stored := stat.Clone()
	stored.Path = name
	stored.Type = typ
	stored.Hash = ""
	if stored.Version == 0 {
		stored.Version = models.StatVersion
	}
	blob, err := json.Marshal(stored)
	if err != nil {
		return WriteResult{}, fmt.Errorf("index: encode stat: %w", err)
	}
	hash := checksum.StatHash(name, stored.Size, stored.Mtime)

	for attempt := 0; ; attempt++ {
		h, err := c.reg.Open(ctx, fullName)
		if err != nil {
			return WriteResult{}, err
		}
		if h.ReadOnly() {
			metrics.WritesTotal.WithLabelValues(SkippedReadOnly.String()).Inc()
			return WriteResult{Outcome: SkippedReadOnly, Hash: hash}, nil
		}

		n, err := h.upsert(ctx, name, typ, hash, updateTime, blob, stored)
		switch {
		case err == nil:
			res := WriteResult{Outcome: Written, RowsAffected: n, Hash: hash}
			if n == 0 {
				res.Outcome = SkippedUnchanged
			}
			metrics.WritesTotal.WithLabelValues(res.Outcome.String()).Inc()
			return res, nil
		case errors.Is(err, errHandleClosed) && attempt == 0:
			continue
		case errors.Is(err, lock.ErrLocked) || isBusy(err):
			c.logger.Warn("index: write lock lost, reloading handle",
				slog.String("root", h.Root()),
				slog.String("path", name),
				slog.String("error", err.Error()))
			c.reload(ctx, h)
			metrics.WritesTotal.WithLabelValues(SkippedLockedRetryScheduled.String()).Inc()
			return WriteResult{Outcome: SkippedLockedRetryScheduled, Hash: hash}, nil
		default:
			return WriteResult{}, err
		}
	}
}

func (c *Cache) reload(ctx context.Context, h *Handle) {
	if _, err := c.reg.Reload(ctx, h); err != nil {
		c.logger.Error("index: reload failed",
			slog.String("root", h.Root()), slog.String("error", err.Error()))
	}
}

func (h *Handle) upsert(ctx context.Context, name string, typ models.EntryType, hash string, updateTime time.Time, blob []byte, s *models.Stat) (int64, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if h.closed {
		return 0, errHandleClosed
	}
	if err := h.ensureLockLocked(); err != nil {
		return 0, err
	}
	res, err := h.conn.ExecContext(ctx, upsertSQL,
		name, string(typ), hash, updateTime.UnixMilli(), string(blob),
		s.Size, s.Ctime, s.Atime, s.Mtime,
		name, hash)
	if err != nil {
		return 0, fmt.Errorf("index: upsert %s: %w", name, err)
	}
	h.scheduleRelease()
	return res.RowsAffected()
}

// DeleteRow removes the row for fullName. It returns 0 for read-only
// handles and for names that are not indexed.
func (c *Cache) DeleteRow(ctx context.Context, fullName string) (int64, error) {
	h, err := c.reg.Open(ctx, fullName)
	if err != nil {
		return 0, err
	}
	if h.ReadOnly() {
		return 0, nil
	}
	name, err := c.reg.resolver.Normalize(fullName)
	if err != nil {
		return 0, err
	}

	n, err := h.delete(ctx, name)
	switch {
	case err == nil:
		metrics.DeletesTotal.Add(float64(n))
		return n, nil
	case errors.Is(err, errHandleClosed):
		return 0, nil
	case errors.Is(err, lock.ErrLocked) || isBusy(err):
		c.logger.Warn("index: delete lock lost, reloading handle",
			slog.String("root", h.Root()), slog.String("path", name))
		c.reload(ctx, h)
		return 0, nil
	default:
		return 0, err
	}
}

func (h *Handle) delete(ctx context.Context, name string) (int64, error) {
	h.writeMu.Lock()
	defer h.writeMu.Unlock()
	if h.closed {
		return 0, errHandleClosed
	}
	if err := h.ensureLockLocked(); err != nil {
		return 0, err
	}
	res, err := h.conn.ExecContext(ctx, `DELETE FROM thumbnail WHERE fullName = ?`, name)
	if err != nil {
		return 0, fmt.Errorf("index: delete %s: %w", name, err)
	}
	h.scheduleRelease()
	return res.RowsAffected()
}

// ComputeHash returns the fingerprint WriteRow stores for stat.
func (c *Cache) ComputeHash(stat *models.Stat) (string, error) {
	if stat == nil {
		return "", apperr.ErrMissingStat
	}
	name, err := c.reg.resolver.Normalize(stat.Path)
	if err != nil {
		return "", err
	}
	return checksum.StatHash(name, stat.Size, stat.Mtime), nil
}

// FindHash returns the stored fingerprint for path, or "" if path is not indexed.
func (c *Cache) FindHash(ctx context.Context, path string) (string, error) {
	row, err := c.findRow(ctx, path, "")
	if err != nil || row == nil {
		return "", err
	}
	return row.StatHash, nil
}

// FindFileStat returns the file row for path, or nil.
func (c *Cache) FindFileStat(ctx context.Context, path string) (*Row, error) {
	return c.findRow(ctx, path, models.EntryFile)
}

// FindDirStat returns the directory row for path, or nil.
func (c *Cache) FindDirStat(ctx context.Context, path string) (*Row, error) {
	return c.findRow(ctx, path, models.EntryDir)
}

// FindAndParseFileStat decodes the stored stat for path. The result carries
// the stored hash and path exactly as requested. It returns nil if path is
// not indexed.
func (c *Cache) FindAndParseFileStat(ctx context.Context, path string) (*models.Stat, error) {
	row, err := c.findRow(ctx, path, "")
	if err != nil || row == nil {
		return nil, err
	}
	var s models.Stat
	if err := json.Unmarshal(row.Stat, &s); err != nil {
		return nil, fmt.Errorf("index: decode stat %s: %w", row.FullName, err)
	}
	s.Hash = row.StatHash
	s.Path = path
	if s.Type == "" {
		s.Type = row.Type
	}
	return &s, nil
}

func (c *Cache) findRow(ctx context.Context, path string, typ models.EntryType) (*Row, error) {
	start := time.Now()
	h, err := c.reg.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	name, err := c.reg.resolver.Normalize(path)
	if err != nil {
		return nil, err
	}

	q := `SELECT fullName, type, statHash, updateTime, stat, size, ctime, atime, mtime
	      FROM thumbnail WHERE fullName = ?`
	args := []any{name}
	if typ != "" {
		q += ` AND type = ?`
		args = append(args, string(typ))
	}

	var (
		r       Row
		rowType string
		updated int64
		blob    string
	)
	err = h.conn.QueryRowContext(ctx, q, args...).Scan(
		&r.FullName, &rowType, &r.StatHash, &updated, &blob,
		&r.Size, &r.Ctime, &r.Atime, &r.Mtime)
	if errors.Is(err, sql.ErrNoRows) {
		recordQuery("find", start, nil)
		return nil, nil
	}
	recordQuery("find", start, err)
	if err != nil {
		return nil, fmt.Errorf("index: find %s: %w", name, err)
	}
	r.Type = models.EntryType(rowType)
	r.UpdateTime = time.UnixMilli(updated)
	r.Stat = json.RawMessage(blob)
	return &r, nil
}

// checkNormalized rejects names still carrying a platform separator other
// than '/'.
func checkNormalized(name string, sep rune) error {
	if sep != '/' && strings.ContainsRune(name, sep) {
		return fmt.Errorf("%w: %s", apperr.ErrUnnormalizedPath, name)
	}
	return nil
}

func isBusy(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
}
