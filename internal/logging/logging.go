package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/bridges/otelslog"
)

type Options struct {
	// instrumentation scope name for the OpenTelemetry bridge
	Name string
	// append-only destination; empty disables the file
	File string
	// console mirror; nil disables it
	Console io.Writer
	// where failures to persist are reported, stderr when nil
	Errors io.Writer
	Level  slog.Leveler
}

// New returns a logger that writes every record to the console, the log file
// and the OpenTelemetry logs bridge. A log file that cannot be opened or
// written is reported on opts.Errors and otherwise ignored. The returned
// func closes the file.
func New(opts Options) (*slog.Logger, func() error) {
	if opts.Errors == nil {
		opts.Errors = os.Stderr
	}
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}

	var (
		handlers []slog.Handler
		closer   = func() error { return nil }
	)

	if opts.Console != nil {
		handlers = append(handlers, slog.NewTextHandler(opts.Console, handlerOpts))
	}

	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(opts.Errors, "could not open log file %s: %v\n", opts.File, err)
		} else {
			handlers = append(handlers, &reportingHandler{
				Handler: slog.NewTextHandler(f, handlerOpts),
				errs:    opts.Errors,
			})
			closer = f.Close
		}
	}

	if opts.Name != "" {
		handlers = append(handlers, otelslog.NewHandler(opts.Name))
	}

	return slog.New(&fanout{handlers: handlers}), closer
}

// fanout hands each record to every handler that accepts its level
type fanout struct {
	handlers []slog.Handler
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithAttrs(attrs)
	}
	return &fanout{handlers: hs}
}

func (f *fanout) WithGroup(name string) slog.Handler {
	hs := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		hs[i] = h.WithGroup(name)
	}
	return &fanout{handlers: hs}
}

// reportingHandler swallows write failures after reporting them, so a full
// disk never affects request handling
type reportingHandler struct {
	slog.Handler
	errs io.Writer
}

func (h *reportingHandler) Handle(ctx context.Context, r slog.Record) error {
	if err := h.Handler.Handle(ctx, r); err != nil {
		fmt.Fprintf(h.errs, "could not write to log file: %v\n", err)
	}
	return nil
}

func (h *reportingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &reportingHandler{Handler: h.Handler.WithAttrs(attrs), errs: h.errs}
}

func (h *reportingHandler) WithGroup(name string) slog.Handler {
	return &reportingHandler{Handler: h.Handler.WithGroup(name), errs: h.errs}
}
