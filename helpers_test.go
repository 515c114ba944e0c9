package xroute

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// stubSink is a minimal Sink for tests. It records every entry it receives
// and can be told to fail.
type stubSink struct {
	name string

	mu      sync.Mutex
	logs    []Entry
	fail    error
	flushed int
}

func newStubSink(name string) *stubSink {
	return &stubSink{name: name}
}

func (s *stubSink) Name() string { return s.name }

func (s *stubSink) Log(e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Fields are shared across sinks; keep a private copy.
	e.Fields = copyFields(nil, e.Fields)
	s.logs = append(s.logs, e)
	return s.fail
}

func (s *stubSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushed++
	return nil
}

func (s *stubSink) entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry(nil), s.logs...)
}

func (s *stubSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.logs)
}

func mustRule(t testing.TB, pattern string, sinks ...Sink) *Rule {
	t.Helper()
	r, err := NewRule(pattern, sinks...)
	if err != nil {
		t.Fatalf("NewRule(%q): %v", pattern, err)
	}
	return r
}

func newTestDirectory(t *testing.T) (*Runtime, *Directory) {
	t.Helper()
	rt := NewBuilder().Build()
	d, err := NewDirectory(rt, WithBaseDir(t.TempDir()))
	if err != nil {
		t.Fatalf("NewDirectory: %v", err)
	}
	return rt, d
}

func mustCreate(t *testing.T, d *Directory, name string) *Session {
	t.Helper()
	s, err := d.Create(name, "acme")
	if err != nil {
		t.Fatalf("Create(%q): %v", name, err)
	}
	return s
}

func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("want %v, got %v", target, err)
	}
}

func assertHasStr(t *testing.T, fs []Field, k, v string) {
	t.Helper()
	for _, f := range fs {
		if f.K == k && f.Kind == KindString && f.Str == v {
			return
		}
	}
	t.Fatalf("missing string field %q=%q in %+v", k, v, fs)
}

func assertHasInt64(t *testing.T, fs []Field, k string, v int64) {
	t.Helper()
	for _, f := range fs {
		if f.K == k && f.Kind == KindInt64 && f.Int64 == v {
			return
		}
	}
	t.Fatalf("missing int64 field %q=%d in %+v", k, v, fs)
}

func assertHasDur(t *testing.T, fs []Field, k string, v time.Duration) {
	t.Helper()
	for _, f := range fs {
		if f.K == k && f.Kind == KindDuration && f.Dur == v {
			return
		}
	}
	t.Fatalf("missing duration field %q=%s in %+v", k, v, fs)
}
