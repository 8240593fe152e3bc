package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/wdm0006/songlake/pkg/config"
)

// Setup builds a logger from cfg and installs it as the slog default. The
// returned close func releases a log file, if one was opened.
func Setup(cfg config.LogConfig) (*slog.Logger, func() error, error) {
	noop := func() error { return nil }
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, noop, fmt.Errorf("invalid log level: %w", err)
	}

	var w io.Writer
	closer := noop
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	case "file":
		if cfg.FilePath == "" {
			return nil, noop, fmt.Errorf("log file path is required when output is 'file'")
		}
		f, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open log file: %w", err)
		}
		w, closer = f, f.Close
	default:
		return nil, noop, fmt.Errorf("invalid log output: %s", cfg.Output)
	}

	log, err := New(w, cfg.Format, level, cfg.AddSource)
	if err != nil {
		_ = closer()
		return nil, noop, err
	}
	slog.SetDefault(log)
	return log, closer, nil
}

// New builds a text or json logger writing to w.
func New(w io.Writer, format string, level slog.Level, addSource bool) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: addSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.String(slog.TimeKey, a.Value.Time().UTC().Format("2006-01-02T15:04:05.000Z07:00"))
			}
			return a
		},
	}
	switch format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format: %s", format)
	}
}

func parseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}
