// Package logging wraps log/slog behind a small Logger type so every other
// package can accept an optional logger without depending on slog's
// construction details directly.
//
// Adapted from accumulate-lite-client-2/liteclient/logging/logger.go's
// slog-backed Logger + Config{Level,Format,Output,AddSource}.
package logging

import (
	"io"
	"log/slog"
	"os"

	"github.com/certen/ksi-go/pkg/ksierrors"
)

// Config controls how a Logger writes.
type Config struct {
	Level     slog.Level
	Format    string // "json" or "text"
	Output    string // "stdout", "stderr", or a file path
	AddSource bool
}

// Logger wraps *slog.Logger.
type Logger struct {
	*slog.Logger
	config Config
}

// New builds a Logger from cfg. An empty Config yields a text logger on
// stderr at Info level.
func New(cfg Config) (*Logger, error) {
	var w io.Writer
	switch cfg.Output {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, ksierrors.Wrap(ksierrors.IoError, err, "open log output %q", cfg.Output)
		}
		w = f
	}
	opts := &slog.HandlerOptions{Level: cfg.Level, AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler), config: cfg}, nil
}

var discard = &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

// Discard returns a Logger that drops everything, used as the default when
// a caller passes nil.
func Discard() *Logger { return discard }
