package internal

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/starford/thumbindex/internal/index"
	"github.com/starford/thumbindex/internal/lock"
	"github.com/starford/thumbindex/internal/storage"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	logger *slog.Logger
	clock  lock.Clock
	fs     afero.Fs
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithLogger replaces the logger built from the configuration.
func WithLogger(l *slog.Logger) Option {
	return func(a *application) {
		a.logger = l
	}
}

// WithClock sets the clock driving delayed lock release.
func WithClock(c lock.Clock) Option {
	return func(a *application) {
		a.clock = c
	}
}

// WithFs sets the filesystem scanned by sync.
func WithFs(fs afero.Fs) Option {
	return func(a *application) {
		a.fs = fs
	}
}

// App holds the wired index components of one process.
type App struct {
	Config   *Config
	Logger   *slog.Logger
	Resolver *storage.Resolver
	Registry *index.Registry
	Cache    *index.Cache
	Scanner  *storage.Scanner

	closeLog func() error
}

// NewApp wires the resolver, registry, cache and scanner from opts.
func NewApp(opts ...Option) (*App, error) {
	a := &application{}
	for _, opt := range opts {
		opt(a)
	}
	if a.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := a.config

	closeLog := func() error { return nil }
	logger := a.logger
	if logger == nil {
		var err error
		logger, closeLog, err = NewLogger(cfg.App)
		if err != nil {
			return nil, err
		}
	}

	resolver, err := storage.NewResolver(cfg.Cache.ResolverOptions())
	if err != nil {
		_ = closeLog()
		return nil, fmt.Errorf("init resolver: %w", err)
	}

	regOpts := []index.RegistryOption{
		index.WithReleaseDelay(cfg.Lock.ReleaseDelay),
		index.WithSearchLimit(cfg.Query.SearchLimit),
		index.WithLogger(logger.With(slog.String("comp", "index"))),
	}
	if a.clock != nil {
		regOpts = append(regOpts, index.WithClock(a.clock))
	}
	reg := index.NewRegistry(resolver, regOpts...)

	return &App{
		Config:   cfg,
		Logger:   logger,
		Resolver: resolver,
		Registry: reg,
		Cache:    index.NewCache(reg),
		Scanner:  storage.NewScanner(a.fs, resolver.CacheDirName()),
		closeLog: closeLog,
	}, nil
}

// Close releases every index lock and closes the log sink.
func (a *App) Close() error {
	return errors.Join(a.Registry.Close(), a.closeLog())
}
