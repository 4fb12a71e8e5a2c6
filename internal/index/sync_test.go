package index

import (
	"context"
	"os"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/thumbindex/internal/storage"
	"github.com/starford/thumbindex/internal/testutil"
)

func TestSync_WritesSkipsAndPrunes(t *testing.T) {
	root := testutil.TestRoot(t, map[string]string{
		"album/one.jpg": "one",
		"album/two.png": "two!",
		"top.gif":       "3",
	})
	f := newFixtureAt(t, root)
	logger := testutil.Logger()
	scanner := storage.NewScanner(afero.NewOsFs(), storage.DefaultCacheDirName)
	ctx := context.Background()

	stats, err := Sync(ctx, f.cache, scanner, f.root, logger)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Seen)
	assert.Equal(t, 4, stats.Written)
	assert.Zero(t, stats.Removed)

	row, err := f.cache.FindFileStat(ctx, f.abs("album/two.png"))
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.EqualValues(t, 4, row.Size)

	stats, err = Sync(ctx, f.cache, scanner, f.root, logger)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.Unchanged)
	assert.Zero(t, stats.Written)

	require.NoError(t, os.Remove(f.abs("top.gif")))
	stats, err = Sync(ctx, f.cache, scanner, f.root, logger)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Removed)

	hash, err := f.cache.FindHash(ctx, f.abs("top.gif"))
	require.NoError(t, err)
	assert.Empty(t, hash)

	// Syncing a subfolder leaves rows outside it alone.
	require.NoError(t, os.Remove(f.abs("album/one.jpg")))
	stats, err = Sync(ctx, f.cache, scanner, f.abs("album"), logger)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Seen)
	assert.Equal(t, 1, stats.Removed)

	row, err = f.cache.FindDirStat(ctx, f.abs("album"))
	require.NoError(t, err)
	assert.NotNil(t, row)
}

func TestSync_ReadOnlyDoesNotPrune(t *testing.T) {
	root := testutil.TestRoot(t, map[string]string{"real.jpg": "x"})
	writer := newFixtureAt(t, root)
	writer.writeFile(t, "ghost.jpg", 1, 1)

	reader := newFixtureAt(t, root)
	scanner := storage.NewScanner(afero.NewOsFs(), storage.DefaultCacheDirName)

	stats, err := Sync(context.Background(), reader.cache, scanner, reader.root, testutil.Logger())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Zero(t, stats.Removed)
	assert.Equal(t, 1, writer.count(t, `SELECT count(*) FROM thumbnail`))
}
