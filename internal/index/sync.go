package index

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/thumbindex/internal/metrics"
	"github.com/starford/thumbindex/internal/models"
	"github.com/starford/thumbindex/internal/storage"
)

// SyncStats counts what a Sync run did.
type SyncStats struct {
	Seen      int `json:"seen"`
	Written   int `json:"written"`
	Unchanged int `json:"unchanged"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
	Removed   int `json:"removed"`
}

// Sync walks dir and brings its part of the index up to date:
//   - new/changed entries are written
//   - entries gone from disk are deleted from the index
//
// When the index is read-only nothing is written or removed.
func Sync(ctx context.Context, cache *Cache, scanner *storage.Scanner, dir string, logger *slog.Logger) (SyncStats, error) {
	start := time.Now()
	defer func() { metrics.SyncDuration.Observe(time.Since(start).Seconds()) }()

	var stats SyncStats
	seen := make(map[string]struct{})
	readOnly := false

	entries := make(chan *models.Stat, 64)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(entries)
		return scanner.Walk(gctx, dir, func(s *models.Stat) error {
			select {
			case entries <- s:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	g.Go(func() error {
		for s := range entries {
			stats.Seen++
			seen[s.Path] = struct{}{}
			if readOnly {
				stats.Skipped++
				continue
			}
			res, err := cache.WriteRow(gctx, s.Path, time.Time{}, s, s.Type)
			if err != nil {
				stats.Failed++
				metrics.SyncEntries.WithLabelValues("failed").Inc()
				logger.Warn("sync: write failed", slog.String("path", s.Path), slog.String("error", err.Error()))
				continue
			}
			switch res.Outcome {
			case Written:
				stats.Written++
				logger.Debug("sync: indexed", slog.String("path", s.Path))
			case SkippedUnchanged:
				stats.Unchanged++
			default:
				readOnly = true
				stats.Skipped++
			}
			metrics.SyncEntries.WithLabelValues(res.Outcome.String()).Inc()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return stats, err
	}
	if readOnly {
		logger.Info("sync: index is read-only, skipped pruning", slog.String("dir", dir))
		return stats, nil
	}

	// Collect first; deleting while the cursor is open would hold a read
	// transaction across the writes.
	var stale []string
	for s, err := range cache.StreamSubfolder(ctx, dir, "", nil) {
		if err != nil {
			return stats, fmt.Errorf("index: sync list: %w", err)
		}
		if _, ok := seen[s.Path]; !ok {
			stale = append(stale, s.Path)
		}
	}
	for _, p := range stale {
		n, err := cache.DeleteRow(ctx, p)
		if err != nil {
			logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if n > 0 {
			stats.Removed++
			metrics.SyncEntries.WithLabelValues("removed").Inc()
			logger.Debug("sync: removed stale", slog.String("path", p))
		}
	}

	logger.Info("sync: done",
		slog.String("dir", dir),
		slog.Int("seen", stats.Seen),
		slog.Int("written", stats.Written),
		slog.Int("unchanged", stats.Unchanged),
		slog.Int("removed", stats.Removed))
	return stats, nil
}
