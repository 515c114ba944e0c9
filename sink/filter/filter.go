// Package filter wraps a sink so only entries matching a predicate reach it.
package filter

import (
	"fmt"
	"io"
	"strings"

	"github.com/trickstertwo/xroute"
)

// Predicate decides whether an entry is forwarded.
type Predicate func(xroute.Entry) bool

// Sink forwards entries accepted by its predicate to the wrapped sink.
type Sink struct {
	name string
	next xroute.Sink
	pred Predicate
}

// New wraps next under its own name. Both next and pred are required.
func New(name string, next xroute.Sink, pred Predicate) (*Sink, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: filter sink needs a name", xroute.ErrInvalidArgument)
	}
	if next == nil {
		return nil, fmt.Errorf("%w: filter sink %q has no target", xroute.ErrInvalidArgument, name)
	}
	if pred == nil {
		return nil, fmt.Errorf("%w: filter sink %q has no condition", xroute.ErrInvalidArgument, name)
	}
	return &Sink{name: name, next: next, pred: pred}, nil
}

func (s *Sink) Name() string { return s.name }

// Target returns the wrapped sink.
func (s *Sink) Target() xroute.Sink { return s.next }

func (s *Sink) Log(e xroute.Entry) error {
	if !s.pred(e) {
		return nil
	}
	return s.next.Log(e)
}

// Flush flushes the wrapped sink when it supports it.
func (s *Sink) Flush() error {
	if f, ok := s.next.(xroute.Flusher); ok {
		return f.Flush()
	}
	return nil
}

// Close closes the wrapped sink when it supports it.
func (s *Sink) Close() error {
	if c, ok := s.next.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// MessageContains accepts entries whose message contains sub.
func MessageContains(sub string) Predicate {
	return func(e xroute.Entry) bool { return strings.Contains(e.Message, sub) }
}

// LoggerPrefix accepts entries from loggers whose name starts with prefix.
func LoggerPrefix(prefix string) Predicate {
	return func(e xroute.Entry) bool { return strings.HasPrefix(e.Logger, prefix) }
}

// MinLevel accepts entries at or above min.
func MinLevel(min xroute.Level) Predicate {
	return func(e xroute.Entry) bool { return xroute.AtLeast(e.Level, min) }
}

// HasField accepts entries carrying a field named key.
func HasField(key string) Predicate {
	return func(e xroute.Entry) bool {
		for i := range e.Fields {
			if e.Fields[i].K == key {
				return true
			}
		}
		return false
	}
}

// FieldEquals accepts entries with a field key whose value equals v. Only
// comparable values can match.
func FieldEquals(key string, v any) Predicate {
	return func(e xroute.Entry) bool {
		for i := range e.Fields {
			if e.Fields[i].K != key {
				continue
			}
			if equal(e.Fields[i].Value(), v) {
				return true
			}
		}
		return false
	}
}

func equal(a, b any) (eq bool) {
	defer func() {
		if recover() != nil {
			eq = false
		}
	}()
	return a == b
}

// Not inverts p.
func Not(p Predicate) Predicate {
	return func(e xroute.Entry) bool { return !p(e) }
}

// All accepts entries accepted by every predicate.
func All(ps ...Predicate) Predicate {
	return func(e xroute.Entry) bool {
		for _, p := range ps {
			if !p(e) {
				return false
			}
		}
		return true
	}
}

// Any accepts entries accepted by at least one predicate.
func Any(ps ...Predicate) Predicate {
	return func(e xroute.Entry) bool {
		for _, p := range ps {
			if p(e) {
				return true
			}
		}
		return false
	}
}
