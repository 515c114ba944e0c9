package xroute

import (
	"fmt"
	"math"
	"strings"
)

// Level mirrors slog numeric semantics and extends with Trace (-8) and Fatal (12).
type Level int

const (
	LevelTrace Level = -8
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
	LevelFatal Level = 12

	// LevelOff is not a severity. It sorts above every real level, so a
	// threshold of LevelOff enables nothing.
	LevelOff Level = math.MaxInt
)

// allLevels is the list of real levels, ascending.
var allLevels = [...]Level{LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelFatal}

// Levels returns the real severities in ascending order.
func Levels() []Level {
	out := make([]Level, len(allLevels))
	copy(out, allLevels[:])
	return out
}

// AtLeast reports whether level is at or above threshold.
func AtLeast(level, threshold Level) bool {
	return level >= threshold
}

// index returns the bit position of a real level, or -1.
func (l Level) index() int {
	for i, lvl := range allLevels {
		if lvl == l {
			return i
		}
	}
	return -1
}

// Valid reports whether l is one of the six real severities.
func (l Level) Valid() bool { return l.index() >= 0 }

func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	case LevelOff:
		return "OFF"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel maps a case-insensitive name to a Level. "off" is accepted.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	case "fatal":
		return LevelFatal, nil
	case "off", "none":
		return LevelOff, nil
	}
	return LevelOff, fmt.Errorf("%w: unknown level %q", ErrInvalidArgument, s)
}
