package internal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger builds the JSON logger for cfg. The returned close function
// flushes and closes a file sink; it is a no-op for stdout and stderr.
func NewLogger(cfg ApplicationConfig) (*slog.Logger, func() error, error) {
	var (
		w       io.Writer
		closeFn = func() error { return nil }
	)
	switch cfg.Log.Output {
	case "", LogOutputStdout:
		w = os.Stdout
	case LogOutputStderr:
		w = os.Stderr
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Log.Output), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.Log.Output,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
		}
		w, closeFn = lj, lj.Close
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	return logger, closeFn, nil
}
