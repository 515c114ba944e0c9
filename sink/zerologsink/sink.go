// Package zerologsink writes routed entries through github.com/rs/zerolog.
package zerologsink

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/trickstertwo/xroute"
)

// Sink bridges xroute to rs/zerolog.
//
//   - Fast pre-check against GetLevel() so a filtered level allocates no
//     zerolog.Event.
//   - Uses Logger.WithLevel(...) so LevelFatal never calls os.Exit.
type Sink struct {
	name  string
	l     zerolog.Logger
	tsKey string
}

// New wraps an existing zerolog logger.
func New(name string, l zerolog.Logger) *Sink {
	return &Sink{name: name, l: l, tsKey: "ts"}
}

// Config is an explicit, code-first configuration for a writer-backed sink.
type Config struct {
	Writer            io.Writer // default: os.Stdout
	Console           bool      // pretty console output instead of JSON
	ConsoleTimeFormat string    // only used if Console; default time.RFC3339Nano
	NoColor           bool      // only used if Console
}

// NewWriter builds a zerolog logger over cfg.Writer and wraps it.
func NewWriter(name string, cfg Config) *Sink {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}

	if !cfg.Console {
		return New(name, zerolog.New(w).Level(zerolog.TraceLevel))
	}

	cw := zerolog.ConsoleWriter{Out: w, NoColor: cfg.NoColor, TimeFormat: cfg.ConsoleTimeFormat}
	if cw.TimeFormat == "" {
		cw.TimeFormat = time.RFC3339Nano
	}
	s := New(name, zerolog.New(cw).Level(zerolog.TraceLevel))
	// ConsoleWriter renders its leading column from the package timestamp key.
	s.tsKey = zerolog.TimestampFieldName
	return s
}

func (s *Sink) Name() string { return s.name }

// Log emits a single entry with its timestamp as an RFC3339Nano string.
func (s *Sink) Log(e xroute.Entry) error {
	zlvl := mapLevel(e.Level)
	if zlvl < s.l.GetLevel() {
		return nil
	}

	ev := s.l.WithLevel(zlvl)
	ev.Str(s.tsKey, e.At.UTC().Format(time.RFC3339Nano))
	if e.Logger != "" {
		ev.Str("logger", e.Logger)
	}
	for i := range e.Fields {
		appendEventField(ev, &e.Fields[i])
	}
	ev.Msg(e.Message)
	return nil
}

// mapLevel converts xroute.Level to zerolog.Level. Fatal maps to Error.
func mapLevel(l xroute.Level) zerolog.Level {
	switch {
	case l <= xroute.LevelTrace:
		return zerolog.TraceLevel
	case l <= xroute.LevelDebug:
		return zerolog.DebugLevel
	case l <= xroute.LevelInfo:
		return zerolog.InfoLevel
	case l <= xroute.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

func appendEventField(e *zerolog.Event, f *xroute.Field) {
	switch f.Kind {
	case xroute.KindString:
		e.Str(f.K, f.Str)
	case xroute.KindInt64:
		e.Int64(f.K, f.Int64)
	case xroute.KindUint64:
		e.Uint64(f.K, f.Uint64)
	case xroute.KindFloat64:
		e.Float64(f.K, f.Float64)
	case xroute.KindBool:
		e.Bool(f.K, f.Bool)
	case xroute.KindDuration:
		e.Dur(f.K, f.Dur)
	case xroute.KindTime:
		e.Time(f.K, f.Time)
	case xroute.KindError:
		if f.Err != nil {
			if f.K == "" || f.K == "error" {
				e.Err(f.Err)
			} else {
				e.AnErr(f.K, f.Err)
			}
		}
	case xroute.KindBytes:
		e.Bytes(f.K, f.Bytes)
	case xroute.KindAny:
		e.Interface(f.K, f.Any)
	default:
		e.Interface(f.K, nil)
	}
}
