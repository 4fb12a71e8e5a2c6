// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/thumbindex/internal/index"
)

// Run syncs the configured roots and serves the admin endpoints until ctx
// is cancelled or a shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, err := NewApp(opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			app.Logger.Error("Close error", slog.String("error", err.Error()))
		}
	}()

	cfg := app.Config
	logger := app.Logger
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.Any("roots", cfg.Cache.Roots),
		slog.String("cache_dir", cfg.Cache.DirName),
		slog.Duration("release_delay", cfg.Lock.ReleaseDelay),
		slog.String("log_level", cfg.App.LogLevel.String()))

	var ready atomic.Bool
	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           NewAdminRouter(ready.Load),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gCtx := errgroup.WithContext(ctx)

	// Initial sync of every configured root.
	g.Go(func() error {
		syncLogger := logger.With(slog.String("comp", "sync"))
		for _, root := range cfg.Cache.Roots {
			stats, err := index.Sync(gCtx, app.Cache, app.Scanner, root, syncLogger)
			if err != nil {
				if gCtx.Err() != nil {
					return nil
				}
				logger.Warn("initial sync failed", slog.String("root", root), slog.String("error", err.Error()))
				continue
			}
			logger.Info("initial sync done",
				slog.String("root", root),
				slog.Int("written", stats.Written),
				slog.Int("removed", stats.Removed))
		}
		ready.Store(true)
		return nil
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}
