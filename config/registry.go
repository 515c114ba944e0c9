package config

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/trickstertwo/xroute"
	"github.com/trickstertwo/xroute/sink/filesink"
	"github.com/trickstertwo/xroute/sink/slogsink"
	"github.com/trickstertwo/xroute/sink/zapsink"
	"github.com/trickstertwo/xroute/sink/zerologsink"
)

// Factory builds a sink from its declaration.
type Factory func(spec SinkSpec) (xroute.Sink, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{
		"stdout": func(s SinkSpec) (xroute.Sink, error) {
			return zerologsink.NewWriter(s.Name, zerologsink.Config{Writer: os.Stdout}), nil
		},
		"stderr": func(s SinkSpec) (xroute.Sink, error) {
			return zerologsink.NewWriter(s.Name, zerologsink.Config{Writer: os.Stderr}), nil
		},
		"zerolog-json": func(s SinkSpec) (xroute.Sink, error) {
			return zerologsink.NewWriter(s.Name, zerologsink.Config{Writer: output(s)}), nil
		},
		"zerolog-console": func(s SinkSpec) (xroute.Sink, error) {
			return zerologsink.NewWriter(s.Name, zerologsink.Config{Writer: output(s), Console: true}), nil
		},
		"zap-json": func(s SinkSpec) (xroute.Sink, error) {
			return zapsink.NewWriter(s.Name, zapsink.Config{Writer: output(s)}), nil
		},
		"zap-console": func(s SinkSpec) (xroute.Sink, error) {
			return zapsink.NewWriter(s.Name, zapsink.Config{Writer: output(s), Console: true}), nil
		},
		"slog-json": func(s SinkSpec) (xroute.Sink, error) {
			return slogsink.NewJSON(s.Name, output(s), nil), nil
		},
		"slog-text": func(s SinkSpec) (xroute.Sink, error) {
			return slogsink.NewText(s.Name, output(s), nil), nil
		},
		"file": func(s SinkSpec) (xroute.Sink, error) {
			return filesink.New(filesink.Config{
				Name:       s.Name,
				Dir:        s.Dir,
				FileName:   s.Path,
				MaxSizeMB:  s.MaxSizeMB,
				MaxBackups: s.MaxBackups,
				MaxAgeDays: s.MaxAgeDays,
				Compress:   s.Compress,
			})
		},
	}
)

func output(s SinkSpec) io.Writer {
	if s.Output == "stderr" {
		return os.Stderr
	}
	return os.Stdout
}

// RegisterSinkType adds or replaces the factory for typ.
func RegisterSinkType(typ string, f Factory) error {
	if strings.TrimSpace(typ) == "" || f == nil {
		return fmt.Errorf("%w: sink type needs a name and a factory", xroute.ErrInvalidArgument)
	}
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[typ] = f
	return nil
}

// SinkTypes returns the registered sink type names, sorted.
func SinkTypes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for typ := range registry {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}

func lookupFactory(typ string) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := registry[typ]
	return f, ok
}
