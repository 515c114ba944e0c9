package xroute

import (
	"reflect"
	"time"
)

// Entry is one dispatched log event as a sink sees it.
type Entry struct {
	At      time.Time
	Level   Level
	Logger  string
	Message string
	Fields  []Field // bound + event fields; shared across sinks, do not retain or mutate
}

// Sink is a named output endpoint (Strategy). The name is its identity inside
// one Configuration. Implementations must be concurrency-safe and comparable
// (use pointer receivers).
type Sink interface {
	Name() string
	Log(e Entry) error
}

// Flusher is an optional interface for sinks with buffered backing storage.
// Runtime.Flush calls it.
type Flusher interface {
	Flush() error
}

// FuncSink adapts a function into a named Sink.
type FuncSink struct {
	name string
	fn   func(Entry) error
}

// NewFuncSink returns a Sink that forwards every entry to fn.
func NewFuncSink(name string, fn func(Entry) error) *FuncSink {
	return &FuncSink{name: name, fn: fn}
}

func (s *FuncSink) Name() string { return s.name }

func (s *FuncSink) Log(e Entry) error {
	if s.fn == nil {
		return nil
	}
	return s.fn(e)
}

// comparableSink reports whether s can be matched by identity. A sink of a
// non-comparable dynamic type (a struct value holding a slice, say) could
// never be found again to remove it.
func comparableSink(s Sink) bool {
	return s != nil && reflect.TypeOf(s).Comparable()
}

// sameSink compares two sinks by name and value without panicking on
// non-comparable dynamic types.
func sameSink(a, b Sink) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Name() != b.Name() {
		return false
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb || !ta.Comparable() {
		return false
	}
	return a == b
}
