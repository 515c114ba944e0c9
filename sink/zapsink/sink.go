// Package zapsink writes routed entries through go.uber.org/zap.
package zapsink

import (
	"errors"
	"io"
	"os"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/trickstertwo/xroute"
)

// Sink bridges xroute to a zap.Logger.
//
//   - Uses Logger.Check(level, msg) so a core that filters the level costs
//     no field conversion.
//   - Writes the entry's timestamp as an RFC3339Nano string under tsKey so
//     zap never stamps its own time.
//   - Maps LevelFatal to Error to avoid os.Exit in library code.
type Sink struct {
	name      string
	l         *zap.Logger
	tsKey     string
	loggerKey string
}

// New wraps an existing zap logger.
func New(name string, l *zap.Logger) *Sink {
	if l == nil {
		l = zap.NewNop()
	}
	return &Sink{name: name, l: l, tsKey: "ts", loggerKey: "logger"}
}

// Config is an explicit, code-first configuration for a writer-backed sink.
type Config struct {
	Writer             io.Writer             // default: os.Stdout
	Console            bool                  // zapcore.NewConsoleEncoder instead of JSON
	EncoderConfig      zapcore.EncoderConfig // if zero, a sensible default is used
	TimestampFieldName string                // default "ts"
	LoggerFieldName    string                // default "logger"
}

// NewWriter builds a zap core over cfg.Writer and wraps it.
func NewWriter(name string, cfg Config) *Sink {
	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	if cfg.TimestampFieldName == "" {
		cfg.TimestampFieldName = "ts"
	}
	if cfg.LoggerFieldName == "" {
		cfg.LoggerFieldName = "logger"
	}

	encCfg := cfg.EncoderConfig
	if encCfg.LevelKey == "" && encCfg.MessageKey == "" && encCfg.EncodeLevel == nil {
		encCfg = DefaultEncoderConfig()
	}
	// The entry timestamp is injected as a field.
	encCfg.TimeKey = ""

	var enc zapcore.Encoder
	if cfg.Console {
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	// Routing already decided; let everything the rule admitted through.
	core := zapcore.NewCore(enc, zapcore.AddSync(w), zapcore.DebugLevel)
	zl := zap.New(core, zap.AddStacktrace(zapcore.FatalLevel+1))

	s := New(name, zl)
	s.tsKey = cfg.TimestampFieldName
	s.loggerKey = cfg.LoggerFieldName
	return s
}

// DefaultEncoderConfig is the encoder layout NewWriter uses when none is given.
func DefaultEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		LevelKey:       "level",
		MessageKey:     "message",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder, // used for zap.Time fields
		EncodeDuration: zapcore.StringDurationEncoder,
	}
}

func (s *Sink) Name() string { return s.name }

// Log emits a single entry.
func (s *Sink) Log(e xroute.Entry) error {
	ce := s.l.Check(toZapLevel(e.Level), e.Message)
	if ce == nil {
		return nil
	}

	zfs := make([]zap.Field, 0, 2+len(e.Fields))
	zfs = append(zfs, zap.String(s.tsKey, e.At.UTC().Format(time.RFC3339Nano)))
	if e.Logger != "" {
		zfs = append(zfs, zap.String(s.loggerKey, e.Logger))
	}
	for i := range e.Fields {
		zfs = append(zfs, toZapField(&e.Fields[i]))
	}

	ce.Write(zfs...)
	return nil
}

// Flush syncs the underlying core. Sync errors from terminals and pipes,
// which cannot be fsynced, are ignored.
func (s *Sink) Flush() error {
	err := s.l.Sync()
	if errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY) {
		return nil
	}
	return err
}

func toZapLevel(l xroute.Level) zapcore.Level {
	switch {
	case l <= xroute.LevelDebug:
		return zapcore.DebugLevel // zap has no trace
	case l <= xroute.LevelInfo:
		return zapcore.InfoLevel
	case l <= xroute.LevelWarn:
		return zapcore.WarnLevel
	default:
		// Avoid Fatal/DPanic to prevent exits in library code.
		return zapcore.ErrorLevel
	}
}

func toZapField(f *xroute.Field) zap.Field {
	switch f.Kind {
	case xroute.KindString:
		return zap.String(f.K, f.Str)
	case xroute.KindInt64:
		return zap.Int64(f.K, f.Int64)
	case xroute.KindUint64:
		return zap.Uint64(f.K, f.Uint64)
	case xroute.KindFloat64:
		return zap.Float64(f.K, f.Float64)
	case xroute.KindBool:
		return zap.Bool(f.K, f.Bool)
	case xroute.KindDuration:
		return zap.Duration(f.K, f.Dur)
	case xroute.KindTime:
		return zap.Time(f.K, f.Time)
	case xroute.KindError:
		if f.Err == nil {
			return zap.Skip()
		}
		if f.K == "" || f.K == "error" {
			return zap.Error(f.Err)
		}
		return zap.NamedError(f.K, f.Err)
	case xroute.KindBytes:
		return zap.ByteString(f.K, f.Bytes)
	case xroute.KindAny:
		return zap.Any(f.K, f.Any)
	default:
		return zap.Skip()
	}
}
