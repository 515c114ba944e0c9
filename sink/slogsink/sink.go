// Package slogsink writes routed entries to a log/slog Handler.
package slogsink

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/trickstertwo/xroute"
)

// Sink adapts a slog.Handler. Records carry the entry's own timestamp and
// level, so the handler's "time" is the authoritative one.
type Sink struct {
	name string
	h    slog.Handler
}

// New wraps h. A nil handler falls back to slog.Default().Handler().
func New(name string, h slog.Handler) *Sink {
	if h == nil {
		h = slog.Default().Handler()
	}
	return &Sink{name: name, h: h}
}

// NewJSON builds a sink over slog.NewJSONHandler. When opts carries no Level
// every routed entry is written.
func NewJSON(name string, w io.Writer, opts *slog.HandlerOptions) *Sink {
	return New(name, slog.NewJSONHandler(writerOrStdout(w), handlerOptions(opts)))
}

// NewText builds a sink over slog.NewTextHandler.
func NewText(name string, w io.Writer, opts *slog.HandlerOptions) *Sink {
	return New(name, slog.NewTextHandler(writerOrStdout(w), handlerOptions(opts)))
}

func writerOrStdout(w io.Writer) io.Writer {
	if w == nil {
		return os.Stdout
	}
	return w
}

func handlerOptions(opts *slog.HandlerOptions) *slog.HandlerOptions {
	if opts == nil {
		opts = &slog.HandlerOptions{}
	}
	if opts.Level == nil {
		opts.Level = slog.Level(xroute.LevelTrace)
	}
	return opts
}

func (s *Sink) Name() string { return s.name }

// Log hands the entry to the handler if it accepts the level.
func (s *Sink) Log(e xroute.Entry) error {
	ctx := context.Background()
	lvl := slog.Level(e.Level)
	if !s.h.Enabled(ctx, lvl) {
		return nil
	}

	r := slog.NewRecord(e.At, lvl, e.Message, 0)
	if e.Logger != "" {
		r.AddAttrs(slog.String("logger", e.Logger))
	}
	for i := range e.Fields {
		r.AddAttrs(toAttr(e.Fields[i]))
	}
	return s.h.Handle(ctx, r)
}

func toAttr(f xroute.Field) slog.Attr {
	switch f.Kind {
	case xroute.KindString:
		return slog.String(f.K, f.Str)
	case xroute.KindInt64:
		return slog.Int64(f.K, f.Int64)
	case xroute.KindUint64:
		return slog.Uint64(f.K, f.Uint64)
	case xroute.KindFloat64:
		return slog.Float64(f.K, f.Float64)
	case xroute.KindBool:
		return slog.Bool(f.K, f.Bool)
	case xroute.KindDuration:
		return slog.Duration(f.K, f.Dur)
	case xroute.KindTime:
		return slog.Time(f.K, f.Time)
	case xroute.KindError:
		return slog.Any(f.K, f.Err)
	case xroute.KindBytes:
		return slog.Any(f.K, f.Bytes)
	case xroute.KindAny:
		return slog.Any(f.K, f.Any)
	default:
		return slog.Any(f.K, nil)
	}
}
