package index

import (
	"context"
	"iter"
	"time"

	"github.com/starford/thumbindex/internal/models"
)

// ThumbnailIndex defines the metadata cache operations.
// Consumers should depend on this interface rather than the concrete *Cache
// type to facilitate testing with mocks.
type ThumbnailIndex interface {
	WriteRow(ctx context.Context, fullName string, updateTime time.Time, stat *models.Stat, entryType models.EntryType) (WriteResult, error)
	DeleteRow(ctx context.Context, fullName string) (int64, error)
	ComputeHash(stat *models.Stat) (string, error)
	SearchSubfolder(ctx context.Context, dir, search string, exts []string) (*SearchResult, error)
	StreamSubfolder(ctx context.Context, dir, search string, exts []string) iter.Seq2[*models.Stat, error]
	ListExtensions(ctx context.Context, dir string) (map[string]struct{}, error)
	FindHash(ctx context.Context, path string) (string, error)
	FindFileStat(ctx context.Context, path string) (*Row, error)
	FindDirStat(ctx context.Context, path string) (*Row, error)
	FindAndParseFileStat(ctx context.Context, path string) (*models.Stat, error)
}

// Verify *Cache satisfies ThumbnailIndex at compile time.
var _ ThumbnailIndex = (*Cache)(nil)
