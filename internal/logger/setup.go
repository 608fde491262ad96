package logger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// DefaultLogFile is where Setup writes JSON records when no path is given.
const DefaultLogFile = "steve.log.json"

// Options selects the sinks built by Setup.
type Options struct {
	Level string
	// Format of the console sink: "pretty" (default), "json" or "off".
	Format string
	// File receives JSON records. Empty disables the file sink.
	File    string
	Console io.Writer
}

// Setup builds the process logger: JSON records appended to opts.File and
// console output on opts.Console (stderr by default). The returned close
// function flushes and closes the file sink.
func Setup(opts Options) (Logger, func() error, error) {
	level := ParseLevel(opts.Level)
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	var handlers []slog.Handler
	switch opts.Format {
	case "", "pretty":
		handlers = append(handlers, NewPrettyHandler(console, &slog.HandlerOptions{Level: level}))
	case "json":
		handlers = append(handlers, slog.NewJSONHandler(console, &slog.HandlerOptions{Level: level}))
	case "off":
	default:
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	closeFn := func() error { return nil }
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level}))
		closeFn = func() error {
			return errors.Join(f.Sync(), f.Close())
		}
	}

	if len(handlers) == 0 {
		return Discard(), closeFn, nil
	}
	return New(Tee(handlers...)), closeFn, nil
}

// TeeHandler fans every record out to several handlers.
type TeeHandler struct {
	handlers []slog.Handler
}

// Tee returns a handler writing to all of hs.
func Tee(hs ...slog.Handler) *TeeHandler {
	return &TeeHandler{handlers: hs}
}

func (t *TeeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t *TeeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *TeeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &TeeHandler{handlers: hs}
}

func (t *TeeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return t
	}
	hs := make([]slog.Handler, len(t.handlers))
	for i, h := range t.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &TeeHandler{handlers: hs}
}
