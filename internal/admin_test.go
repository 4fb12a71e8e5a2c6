package internal

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/thumbindex/internal/index"
	"github.com/starford/thumbindex/internal/lock"
	"github.com/starford/thumbindex/internal/testutil"
)

func TestAdminRouter_Health(t *testing.T) {
	var ready atomic.Bool
	srv := httptest.NewServer(NewAdminRouter(ready.Load))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ready.Store(true)
	resp, err = http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminRouter_Metrics(t *testing.T) {
	root := testutil.TestRoot(t, map[string]string{"a.jpg": "a"})
	app := newTestApp(t, root)
	_, err := index.Sync(context.Background(), app.Cache, app.Scanner, root, app.Logger)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	NewAdminRouter(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "thumbindex_row_writes_total")
	assert.Contains(t, rec.Body.String(), "thumbindex_open_handles")
}

func newTestApp(t *testing.T, root string) *App {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Cache.Roots = []string{root}
	require.NoError(t, cfg.Validate())

	app, err := NewApp(WithConfig(cfg), WithLogger(testutil.Logger()), WithClock(lock.NewFakeClock(time.Unix(0, 0))))
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	return app
}

func TestNewApp_RequiresConfig(t *testing.T) {
	_, err := NewApp()
	require.Error(t, err)
}

func TestNewApp_CacheUnderRoot(t *testing.T) {
	root := testutil.TestRoot(t, map[string]string{"x/y.png": "png"})
	app := newTestApp(t, root)

	stats, err := index.Sync(context.Background(), app.Cache, app.Scanner, root, app.Logger)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Written)

	_, err = os.Stat(filepath.Join(root, ".thumbindex", index.DBFileName()))
	require.NoError(t, err)

	res, err := app.Cache.SearchSubfolder(context.Background(), root, "", []string{"png"})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)
	assert.Equal(t, filepath.Join(root, "x", "y.png"), res.Results[0].Path)
}

func TestNewLogger_FileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "thumbindex.log")
	logger, closeFn, err := NewLogger(ApplicationConfig{Log: LogConfig{Output: path, MaxSizeMB: 1}})
	require.NoError(t, err)
	logger.Info("sync: done")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"msg":"sync: done"`))
}
