// Package filesink builds rotating file sinks under a session's log folder.
// Files are rotated by lumberjack and encoded as JSON lines by zapsink.
package filesink

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/trickstertwo/xclock"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/trickstertwo/xroute"
	"github.com/trickstertwo/xroute/sink/zapsink"
)

// Config describes one file sink. FileName may contain ${name} (the sink
// name) and ${date} (the creation date, 2006-01-02). A relative FileName is
// placed under Dir.
type Config struct {
	Name       string
	Dir        string // default: the session's LogFilesPath when built with ForSession
	FileName   string // default "${name}.log"
	MaxSizeMB  int    // default 10
	MaxBackups int    // default 3
	MaxAgeDays int    // 0 keeps files regardless of age
	Compress   bool
	Console    bool         // zap console encoding instead of JSON
	Clock      xclock.Clock // used for ${date}; default xclock.Default()
}

// Sink is a zapsink.Sink writing to a lumberjack-rotated file.
type Sink struct {
	*zapsink.Sink
	path string
	lj   *lumberjack.Logger
}

// New validates cfg, creates the target directory and returns the sink.
func New(cfg Config) (*Sink, error) {
	if strings.TrimSpace(cfg.Name) == "" {
		return nil, fmt.Errorf("%w: file sink needs a name", xroute.ErrInvalidArgument)
	}
	path, err := resolvePath(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("file sink %q: create log directory: %w", cfg.Name, err)
	}

	maxSize := cfg.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 10
	}
	maxBackups := cfg.MaxBackups
	if maxBackups <= 0 {
		maxBackups = 3
	}

	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}

	return &Sink{
		Sink: zapsink.NewWriter(cfg.Name, zapsink.Config{Writer: lj, Console: cfg.Console}),
		path: path,
		lj:   lj,
	}, nil
}

// ForSession is New with Dir defaulting to s.LogFilesPath().
func ForSession(s *xroute.Session, cfg Config) (*Sink, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: nil session", xroute.ErrInvalidArgument)
	}
	if cfg.Dir == "" {
		cfg.Dir = s.LogFilesPath()
	}
	return New(cfg)
}

// Path returns the active log file path.
func (s *Sink) Path() string { return s.path }

// Rotate closes the current file and starts a new one.
func (s *Sink) Rotate() error { return s.lj.Rotate() }

// Close closes the current file. A later write reopens it.
func (s *Sink) Close() error { return s.lj.Close() }

func resolvePath(cfg Config) (string, error) {
	name := cfg.FileName
	if name == "" {
		name = "${name}.log"
	}
	clock := cfg.Clock
	if clock == nil {
		clock = xclock.Default()
	}
	name = strings.NewReplacer(
		"${name}", cfg.Name,
		"${date}", clock.Now().Format("2006-01-02"),
	).Replace(name)

	if filepath.IsAbs(name) {
		return filepath.Clean(name), nil
	}
	if cfg.Dir == "" {
		return "", fmt.Errorf("%w: file sink %q has a relative file name and no directory", xroute.ErrInvalidArgument, cfg.Name)
	}
	return filepath.Join(cfg.Dir, name), nil
}
