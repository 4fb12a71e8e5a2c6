package internal

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mitchellh/go-homedir"
)

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := NewDefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should pass: %v", err)
	}
	if cfg.Lock.ReleaseDelay != 10*time.Second {
		t.Errorf("release delay = %v, want 10s", cfg.Lock.ReleaseDelay)
	}
	if cfg.Query.SearchLimit != 5000 {
		t.Errorf("search limit = %d, want 5000", cfg.Query.SearchLimit)
	}
}

func TestLogConfig_EmptyOutputDefaultsStdout(t *testing.T) {
	cfg := LogConfig{}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty output should default: %v", err)
	}
	if cfg.Output != LogOutputStdout {
		t.Errorf("output = %q, want %q", cfg.Output, LogOutputStdout)
	}
}

func TestCacheConfig_RequiresRootsWithoutMounts(t *testing.T) {
	cfg := CacheConfig{DirName: ".thumbindex"}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("no roots and no mount detection should fail")
	}
	if !strings.Contains(err.Error(), "roots are required") {
		t.Errorf("unexpected error: %v", err)
	}

	cfg.DetectMounts = true
	if err := cfg.Validate(); err != nil {
		t.Fatalf("mount detection alone should pass: %v", err)
	}
}

func TestCacheConfig_ExpandsHome(t *testing.T) {
	home, err := homedir.Dir()
	if err != nil {
		t.Skipf("no home directory: %v", err)
	}
	cfg := CacheConfig{DirName: ".thumbindex", Roots: []string{"~/Pictures"}, Home: "~/.cache/thumbindex"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Roots[0] != filepath.Join(home, "Pictures") {
		t.Errorf("root = %q", cfg.Roots[0])
	}
	if cfg.Home != filepath.Join(home, ".cache", "thumbindex") {
		t.Errorf("home = %q", cfg.Home)
	}

	opts := cfg.ResolverOptions()
	if opts.FileName != "thumbnail-v1.db" {
		t.Errorf("file name = %q", opts.FileName)
	}
}

func TestLockConfig_RejectsZeroDelay(t *testing.T) {
	cfg := LockConfig{}
	if err := cfg.Validate(); err == nil {
		t.Fatal("zero release delay should fail validation")
	}
}

func TestQueryConfig_RejectsNegativeLimit(t *testing.T) {
	cfg := QueryConfig{SearchLimit: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatal("negative search limit should fail validation")
	}
}

func TestFullConfig_ValidationCalled(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.App.HTTP.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("full config validate should catch http error")
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("THUMBINDEX_TEST_ROOT", dir)
	body := `
app:
  log_level: debug
  http:
    port: 9191
cache:
  roots: ["${THUMBINDEX_TEST_ROOT}"]
  dir_name: .idx
lock:
  release_delay: 2s
query:
  search_limit: 10
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Cache.Roots[0] != dir || cfg.Cache.DirName != ".idx" {
		t.Errorf("cache = %+v", cfg.Cache)
	}
	if cfg.Lock.ReleaseDelay != 2*time.Second {
		t.Errorf("release delay = %v", cfg.Lock.ReleaseDelay)
	}
	if cfg.App.HTTP.Port != 9191 || cfg.Query.SearchLimit != 10 {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestLoadConfigFile_Missing(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("missing file should fall back to defaults: %v", err)
	}
	if cfg.App.HTTP.Port != 9090 {
		t.Errorf("port = %d", cfg.App.HTTP.Port)
	}
}
