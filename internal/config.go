package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mitchellh/go-homedir"

	"github.com/starford/thumbindex/internal/index"
	"github.com/starford/thumbindex/internal/storage"
	pkgconfig "github.com/starford/thumbindex/pkg/config"
)

// Log sinks besides a file path.
const (
	LogOutputStdout = "stdout"
	LogOutputStderr = "stderr"
)

// Config represents the application configuration.
type Config struct {
	App   ApplicationConfig `yaml:"app"`
	Cache CacheConfig       `yaml:"cache"`
	Lock  LockConfig        `yaml:"lock"`
	Query QueryConfig       `yaml:"query"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	if err := c.Lock.Validate(); err != nil {
		return err
	}
	return c.Query.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	Log      LogConfig  `yaml:"log"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if err := c.Log.Validate(); err != nil {
		return err
	}
	return c.HTTP.Validate()
}

// LogConfig selects where logs go. Output is "stdout", "stderr" or a file
// path, rotated once it reaches MaxSizeMB.
type LogConfig struct {
	Output     string `yaml:"output"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

// Validate validates the log configuration.
func (c *LogConfig) Validate() error {
	if c.Output == "" {
		c.Output = LogOutputStdout
	}
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxSizeMB, validation.Min(0)),
		validation.Field(&c.MaxBackups, validation.Min(0)),
	)
}

// HTTPConfig holds admin HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// CacheConfig controls where each root's index lives.
type CacheConfig struct {
	// Roots are library directories; each gets its own index.
	Roots        []string      `yaml:"roots"`
	DirName      string        `yaml:"dir_name"`
	Home         string        `yaml:"home"`
	DetectMounts bool          `yaml:"detect_mounts"`
	MountTTL     time.Duration `yaml:"mount_ttl"`
}

// Validate validates the cache configuration and expands "~" in paths.
func (c *CacheConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DirName, validation.Required),
		validation.Field(&c.MountTTL, validation.Min(time.Duration(0))),
	); err != nil {
		return err
	}
	if len(c.Roots) == 0 && !c.DetectMounts {
		return errors.New("cache: roots are required when detect_mounts is off")
	}

	for i, r := range c.Roots {
		expanded, err := homedir.Expand(r)
		if err != nil {
			return fmt.Errorf("cache: root %s: %w", r, err)
		}
		c.Roots[i] = expanded
	}
	if c.Home != "" {
		expanded, err := homedir.Expand(c.Home)
		if err != nil {
			return fmt.Errorf("cache: home %s: %w", c.Home, err)
		}
		c.Home = expanded
	}
	return nil
}

// ResolverOptions maps the configuration onto storage.Options.
func (c *CacheConfig) ResolverOptions() storage.Options {
	return storage.Options{
		Roots:        c.Roots,
		CacheDirName: c.DirName,
		CacheHome:    c.Home,
		FileName:     index.DBFileName(),
		DetectMounts: c.DetectMounts,
		MountTTL:     c.MountTTL,
	}
}

// LockConfig holds write-lock settings.
type LockConfig struct {
	ReleaseDelay time.Duration `yaml:"release_delay"`
}

// Validate validates the lock configuration.
func (c *LockConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ReleaseDelay, validation.Required, validation.Min(time.Millisecond)),
	)
}

// QueryConfig holds query settings.
type QueryConfig struct {
	SearchLimit int `yaml:"search_limit"`
}

// Validate validates the query configuration.
func (c *QueryConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.SearchLimit, validation.Required, validation.Min(1)),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			Log: LogConfig{
				Output:     LogOutputStdout,
				MaxSizeMB:  50,
				MaxBackups: 3,
			},
			HTTP: HTTPConfig{
				Port: 9090,
			},
		},
		Cache: CacheConfig{
			Roots:    []string{"."},
			DirName:  storage.DefaultCacheDirName,
			MountTTL: time.Minute,
		},
		Lock: LockConfig{
			ReleaseDelay: index.DefaultReleaseDelay,
		},
		Query: QueryConfig{
			SearchLimit: index.DefaultSearchLimit,
		},
	}
}

// LoadConfig reads the YAML file at path over the defaults. A missing file
// leaves the defaults in place.
func LoadConfig(path string) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.LoadOptional(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
