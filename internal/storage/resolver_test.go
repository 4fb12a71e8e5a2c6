package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestResolver(t *testing.T, opts Options) *Resolver {
	t.Helper()
	r, err := NewResolver(opts)
	require.NoError(t, err)
	return r
}

func TestResolve_ConfiguredRoot(t *testing.T) {
	root := t.TempDir()
	r := newTestResolver(t, Options{Roots: []string{root}, FileName: "thumbnail-v1.db"})

	loc, err := r.Resolve(filepath.Join(root, "sub", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, root, loc.Root)
	assert.Equal(t, Token(root), loc.Token)
	assert.Equal(t, filepath.Join(root, DefaultCacheDirName, "thumbnail-v1.db"), loc.CachePath)

	info, err := os.Stat(filepath.Dir(loc.CachePath))
	require.NoError(t, err, "cache dir must exist after Resolve")
	assert.True(t, info.IsDir())
}

func TestResolve_Stable(t *testing.T) {
	root := t.TempDir()
	r := newTestResolver(t, Options{Roots: []string{root}})

	a, err := r.Resolve(filepath.Join(root, "x.jpg"))
	require.NoError(t, err)
	b, err := r.Resolve(filepath.Join(root, "deep", "y.jpg"))
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestResolve_CacheHome(t *testing.T) {
	root := t.TempDir()
	home := t.TempDir()
	r := newTestResolver(t, Options{Roots: []string{root}, CacheHome: home})

	loc, err := r.Resolve(root)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, Token(root), DefaultFileName), loc.CachePath)
}

func TestResolve_LongestRootWins(t *testing.T) {
	outer := t.TempDir()
	inner := filepath.Join(outer, "library")
	require.NoError(t, os.MkdirAll(inner, 0o755))
	r := newTestResolver(t, Options{Roots: []string{outer, inner}})

	root, err := r.Root(filepath.Join(inner, "a.png"))
	require.NoError(t, err)
	assert.Equal(t, inner, root)

	root, err = r.Root(filepath.Join(outer, "libraryX", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, outer, root, "sibling sharing a name prefix belongs to the outer root")
}

func TestResolve_NoRoot(t *testing.T) {
	r := newTestResolver(t, Options{Roots: []string{t.TempDir()}})
	_, err := r.Resolve(t.TempDir())
	require.ErrorIs(t, err, ErrNoRoot)
}

func TestResolve_MountPoints(t *testing.T) {
	mount := t.TempDir()
	r := newTestResolver(t, Options{DetectMounts: true, CacheHome: t.TempDir()})
	calls := 0
	r.listMounts = func(context.Context) ([]string, error) {
		calls++
		return []string{string(filepath.Separator), mount}, nil
	}

	root, err := r.Root(filepath.Join(mount, "photos", "a.png"))
	require.NoError(t, err)
	assert.Equal(t, mount, root)

	root, err = r.Root(filepath.Join(string(filepath.Separator), "elsewhere"))
	require.NoError(t, err)
	assert.Equal(t, string(filepath.Separator), root)
	assert.Equal(t, 1, calls, "mount list is memoised")
}

func TestNormalize(t *testing.T) {
	root := t.TempDir()
	r := newTestResolver(t, Options{Roots: []string{root}})

	got, err := r.Normalize(filepath.Join(root, "sub", "b.png"))
	require.NoError(t, err)
	assert.Equal(t, "sub/b.png", got)

	got, err = r.Normalize(root)
	require.NoError(t, err)
	assert.Equal(t, "", got)

	got, err = r.Normalize(filepath.ToSlash(filepath.Join(root, "a.png")))
	require.NoError(t, err)
	assert.Equal(t, "a.png", got)
}

func TestRelPath_Escape(t *testing.T) {
	root := t.TempDir()
	_, err := RelPath(root, filepath.Dir(root))
	assert.Error(t, err)
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "/r", Join("/r", ""))
	assert.Equal(t, filepath.Join("/r", "a", "b.png"), Join("/r", "a/b.png"))
}
