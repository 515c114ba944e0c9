package xroute

import (
	"path/filepath"
	"reflect"
	"sync"
	"testing"
)

func countRule(cfg *Configuration, r *Rule) int {
	var n int
	for _, cur := range cfg.Rules() {
		if cur == r {
			n++
		}
	}
	return n
}

func TestSession_ThresholdThenExplicitLevel(t *testing.T) {
	t.Parallel()

	rt, d := newTestDirectory(t)
	s := mustCreate(t, d, "svc")
	defer s.Close()

	sink := newStubSink("console")
	r := mustRule(t, "svc", sink)
	if err := s.AddSink(sink, true); err != nil {
		t.Fatalf("AddSink: %v", err)
	}
	if err := s.AddRule("main", r, false); err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	if err := s.SetRuleThreshold("main", LevelWarn); err != nil {
		t.Fatalf("SetRuleThreshold: %v", err)
	}
	if want := []Level{LevelWarn, LevelError, LevelFatal}; !reflect.DeepEqual(r.EnabledLevels(), want) {
		t.Fatalf("enabled=%v want %v", r.EnabledLevels(), want)
	}
	for _, lvl := range []Level{LevelTrace, LevelDebug, LevelInfo} {
		if r.Enabled(lvl) {
			t.Fatalf("%v should be disabled", lvl)
		}
	}

	if err := s.SetRuleLevel("main", LevelDebug, true); err != nil {
		t.Fatalf("SetRuleLevel: %v", err)
	}
	if want := []Level{LevelDebug, LevelWarn, LevelError, LevelFatal}; !reflect.DeepEqual(r.EnabledLevels(), want) {
		t.Fatalf("enabled=%v want %v", r.EnabledLevels(), want)
	}

	l := rt.Logger("svc")
	l.Debug().Msg("debug passes")
	l.Info().Msg("info dropped")
	l.Warn().Msg("warn passes")
	if sink.count() != 2 {
		t.Fatalf("sink got %d entries want 2", sink.count())
	}
}

func TestSession_LevelControlErrors(t *testing.T) {
	t.Parallel()

	_, d := newTestDirectory(t)
	s := mustCreate(t, d, "svc")
	defer s.Close()

	assertErrorIs(t, s.SetRuleThreshold("missing", LevelInfo), ErrNotFound)
	assertErrorIs(t, s.SetRuleLevel("missing", LevelInfo, true), ErrNotFound)

	sink := newStubSink("s")
	if err := s.AddRule("r", mustRule(t, "svc", sink), true); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	assertErrorIs(t, s.SetRuleLevel("r", LevelOff, true), ErrInvalidArgument)
}

func TestSession_DeferredAddsThenCommit(t *testing.T) {
	t.Parallel()

	rt, d := newTestDirectory(t)
	s := mustCreate(t, d, "batch")
	defer s.Close()

	a, b := newStubSink("a"), newStubSink("b")
	r1, r2 := mustRule(t, "batch.one", a), mustRule(t, "batch.two", a, b)

	for _, sk := range []Sink{a, b, a} {
		if err := s.AddSink(sk, true); err != nil {
			t.Fatalf("AddSink(%s): %v", sk.Name(), err)
		}
	}
	if err := s.AddRule("one", r1, true); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := s.AddRule("two", r2, true); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := s.AddRule("one", r1, true); err != nil {
		t.Fatalf("re-adding the same rule: %v", err)
	}

	cfg := rt.Active()
	if len(cfg.Rules()) != 0 || len(cfg.Sinks()) != 0 {
		t.Fatal("deferred registrations must not reach the active configuration before Commit")
	}

	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	rules := cfg.Rules()
	if len(rules) != 2 || rules[0] != r1 || rules[1] != r2 {
		t.Fatalf("rules=%v want [one two] in registration order", rules)
	}
	if len(cfg.Sinks()) != 2 || !cfg.HasSink(a) || !cfg.HasSink(b) {
		t.Fatalf("sinks=%v want a and b", cfg.Sinks())
	}

	if err := s.Commit(); err != nil {
		t.Fatalf("second Commit: %v", err)
	}
	if countRule(cfg, r1) != 1 || countRule(cfg, r2) != 1 || len(cfg.Sinks()) != 2 {
		t.Fatal("a second Commit must not duplicate entries")
	}
}

func TestSession_DuplicateNames(t *testing.T) {
	t.Parallel()

	_, d := newTestDirectory(t)
	s := mustCreate(t, d, "dups")
	defer s.Close()

	sink := newStubSink("s")
	r := mustRule(t, "dups", sink)
	if err := s.AddRule("r", r, true); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	assertErrorIs(t, s.AddRule("r", mustRule(t, "dups", sink), true), ErrInvalidArgument)
	assertErrorIs(t, s.AddRule("alias", r, true), ErrInvalidArgument)
	assertErrorIs(t, s.AddRule("", r, true), ErrInvalidArgument)
	assertErrorIs(t, s.AddRule("nil", nil, true), ErrInvalidArgument)

	if err := s.AddSink(sink, true); err != nil {
		t.Fatalf("AddSink: %v", err)
	}
	assertErrorIs(t, s.AddSink(newStubSink("s"), true), ErrInvalidArgument)
	assertErrorIs(t, s.AddSink(nil, true), ErrInvalidArgument)
	assertErrorIs(t, s.AddSink(newStubSink(" "), true), ErrInvalidArgument)
}

func TestSession_RemoveAppliedOnCommit(t *testing.T) {
	t.Parallel()

	rt, d := newTestDirectory(t)
	s := mustCreate(t, d, "rm")
	defer s.Close()

	sink := newStubSink("s")
	r := mustRule(t, "rm", sink)
	_ = s.AddSink(sink, true)
	_ = s.AddRule("r", r, false)

	cfg := rt.Active()
	if err := s.RemoveRule(r, true); err != nil {
		t.Fatalf("RemoveRule: %v", err)
	}
	if err := s.RemoveSinkByName("s", true); err != nil {
		t.Fatalf("RemoveSinkByName: %v", err)
	}
	if !cfg.HasRule(r) || !cfg.HasSink(sink) {
		t.Fatal("deferred removals must wait for Commit")
	}
	if s.Rule("r") != nil || s.Sink("s") != nil {
		t.Fatal("removed entries must leave the session at once")
	}

	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if cfg.HasRule(r) || cfg.HasSink(sink) {
		t.Fatal("Commit must apply pending removals")
	}

	assertErrorIs(t, s.RemoveRule(r, false), ErrNotFound)
	assertErrorIs(t, s.RemoveRuleByName("r", false), ErrNotFound)
	assertErrorIs(t, s.RemoveSink(sink, false), ErrNotFound)
	assertErrorIs(t, s.RemoveSinkByName("s", false), ErrNotFound)
}

func TestSession_ReAddCancelsPendingRemoval(t *testing.T) {
	t.Parallel()

	rt, d := newTestDirectory(t)
	s := mustCreate(t, d, "readd")
	defer s.Close()

	sink := newStubSink("s")
	r := mustRule(t, "readd", sink)
	_ = s.AddSink(sink, true)
	_ = s.AddRule("r", r, false)

	_ = s.RemoveRuleByName("r", true)
	if err := s.AddRule("r", r, true); err != nil {
		t.Fatalf("AddRule: %v", err)
	}
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if !rt.Active().HasRule(r) {
		t.Fatal("a rule re-added before Commit must stay active")
	}
}

func TestSession_RemoveSinkByIdentity(t *testing.T) {
	t.Parallel()

	_, d := newTestDirectory(t)
	s := mustCreate(t, d, "ident")
	defer s.Close()

	mine := newStubSink("out")
	_ = s.AddSink(mine, false)
	assertErrorIs(t, s.RemoveSink(newStubSink("out"), false), ErrNotFound)
	assertErrorIs(t, s.RemoveSink(nil, false), ErrInvalidArgument)
	if err := s.RemoveSink(mine, false); err != nil {
		t.Fatalf("RemoveSink: %v", err)
	}
}

func TestSession_SelfHealsAfterReplacement(t *testing.T) {
	t.Parallel()

	rt, d := newTestDirectory(t)
	s := mustCreate(t, d, "heal")
	defer s.Close()

	a, b, c := newStubSink("a"), newStubSink("b"), newStubSink("c")
	r1, r2 := mustRule(t, "heal", a, b), mustRule(t, "heal.*", c)
	for _, sk := range []Sink{a, b, c} {
		_ = s.AddSink(sk, true)
	}
	_ = s.AddRule("r1", r1, true)
	_ = s.AddRule("r2", r2, true)
	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	fresh := NewConfiguration()
	if err := rt.Replace(fresh); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	if rt.Active() != fresh {
		t.Fatal("replacement must stay active")
	}
	rules := fresh.Rules()
	if len(rules) != 2 || rules[0] != r1 || rules[1] != r2 {
		t.Fatalf("rules=%v want exactly r1, r2", rules)
	}
	sinks := fresh.Sinks()
	if len(sinks) != 3 || !fresh.HasSink(a) || !fresh.HasSink(b) || !fresh.HasSink(c) {
		t.Fatalf("sinks=%v want exactly a, b, c", sinks)
	}

	rt.Logger("heal").Info().Msg("after replacement")
	if a.count() != 1 || b.count() != 1 {
		t.Fatal("dispatch must use the re-populated configuration")
	}
}

func TestSession_ReplacementKeepsForeignEntries(t *testing.T) {
	t.Parallel()

	rt, d := newTestDirectory(t)
	s := mustCreate(t, d, "mine")
	defer s.Close()

	sink := newStubSink("mine")
	_ = s.AddSink(sink, true)
	_ = s.AddRule("r", mustRule(t, "mine", sink), false)

	foreignSink := newStubSink("foreign")
	foreign := NewConfiguration()
	foreign.AddSink(foreignSink)
	foreignRule := mustRule(t, "other", foreignSink)
	foreign.AddRule(foreignRule)

	_ = rt.Replace(foreign)
	if !foreign.HasRule(foreignRule) || !foreign.HasSink(foreignSink) {
		t.Fatal("reconciliation must not touch entries it does not own")
	}
	if len(foreign.Rules()) != 2 || len(foreign.Sinks()) != 2 {
		t.Fatalf("want own and foreign entries, got %d rules %d sinks", len(foreign.Rules()), len(foreign.Sinks()))
	}
}

func TestSession_CloseRemovesOnlyOwnEntries(t *testing.T) {
	t.Parallel()

	rt, d := newTestDirectory(t)
	a := mustCreate(t, d, "A")
	b := mustCreate(t, d, "B")
	defer b.Close()

	sa, sb := newStubSink("sa"), newStubSink("sb")
	r1, r2 := mustRule(t, "a", sa), mustRule(t, "b", sb)
	_ = a.AddSink(sa, true)
	_ = a.AddRule("r1", r1, false)
	_ = b.AddSink(sb, true)
	_ = b.AddRule("r2", r2, false)

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	cfg := rt.Active()
	if cfg.HasRule(r1) || cfg.HasSink(sa) {
		t.Fatal("A's entries must be gone")
	}
	if !cfg.HasRule(r2) || !cfg.HasSink(sb) {
		t.Fatal("B's entries must survive")
	}
	if !a.Closed() || len(a.RuleNames()) != 0 || len(a.SinkNames()) != 0 {
		t.Fatal("closed session must be empty")
	}
	if err := a.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestSession_ClosedRejectsMutation(t *testing.T) {
	t.Parallel()

	_, d := newTestDirectory(t)
	s := mustCreate(t, d, "gone")
	sink := newStubSink("s")
	r := mustRule(t, "gone", sink)
	_ = s.Close()

	assertErrorIs(t, s.AddRule("r", r, false), ErrSessionClosed)
	assertErrorIs(t, s.AddSink(sink, false), ErrSessionClosed)
	assertErrorIs(t, s.RemoveRule(r, false), ErrSessionClosed)
	assertErrorIs(t, s.RemoveRuleByName("r", false), ErrSessionClosed)
	assertErrorIs(t, s.RemoveSink(sink, false), ErrSessionClosed)
	assertErrorIs(t, s.RemoveSinkByName("s", false), ErrSessionClosed)
	assertErrorIs(t, s.Commit(), ErrSessionClosed)
	assertErrorIs(t, s.SetRuleThreshold("r", LevelInfo), ErrSessionClosed)
	assertErrorIs(t, s.SetRuleLevel("r", LevelInfo, true), ErrSessionClosed)
}

func TestSession_ClosedIgnoresReplacement(t *testing.T) {
	t.Parallel()

	rt, d := newTestDirectory(t)
	s := mustCreate(t, d, "quiet")
	sink := newStubSink("s")
	_ = s.AddSink(sink, true)
	_ = s.AddRule("r", mustRule(t, "quiet", sink), false)
	_ = s.Close()

	fresh := NewConfiguration()
	_ = rt.Replace(fresh)
	if len(fresh.Rules()) != 0 || len(fresh.Sinks()) != 0 {
		t.Fatal("a closed session must not re-register")
	}
}

func TestSession_Accessors(t *testing.T) {
	t.Parallel()

	rt := NewBuilder().Build()
	base := t.TempDir()
	d, err := NewDirectory(rt, WithBaseDir(base))
	if err != nil {
		t.Fatal(err)
	}
	s, err := d.Create("billing", "acme", WithLogFolder("trace"))
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Name() != "billing" || s.Company() != "acme" || s.LogFolder() != "trace" {
		t.Fatalf("unexpected identity: %s %s %s", s.Name(), s.Company(), s.LogFolder())
	}
	if want := filepath.Join(base, "acme", "billing", "trace"); s.LogFilesPath() != want {
		t.Fatalf("LogFilesPath=%q want %q", s.LogFilesPath(), want)
	}

	other := mustCreate(t, d, "other")
	defer other.Close()
	if other.LogFolder() != "logs" {
		t.Fatalf("default log folder=%q want logs", other.LogFolder())
	}

	sink := newStubSink("s")
	for _, n := range []string{"z", "a", "m"} {
		_ = s.AddRule(n, mustRule(t, "billing."+n, sink), true)
	}
	_ = s.AddSink(newStubSink("y"), true)
	_ = s.AddSink(newStubSink("b"), true)
	if got := s.RuleNames(); !reflect.DeepEqual(got, []string{"z", "a", "m"}) {
		t.Fatalf("RuleNames=%v want registration order", got)
	}
	if got := s.SinkNames(); !reflect.DeepEqual(got, []string{"b", "y"}) {
		t.Fatalf("SinkNames=%v want sorted", got)
	}
}

func TestSession_ConcurrentCommitAndReplace(t *testing.T) {
	t.Parallel()

	rt, d := newTestDirectory(t)

	const sessions = 4
	owned := make([][]*Rule, sessions)
	handles := make([]*Session, sessions)
	for i := range handles {
		s := mustCreate(t, d, "c"+string(rune('a'+i)))
		defer s.Close()
		handles[i] = s
	}

	var wg sync.WaitGroup
	for i, s := range handles {
		wg.Add(1)
		go func(i int, s *Session) {
			defer wg.Done()
			sink := newStubSink(s.Name())
			_ = s.AddSink(sink, true)
			for j := 0; j < 20; j++ {
				r, err := NewRule(s.Name(), sink)
				if err != nil {
					t.Errorf("NewRule: %v", err)
					return
				}
				owned[i] = append(owned[i], r)
				if err := s.AddRule(string(rune('A'+j)), r, j%2 == 0); err != nil {
					t.Errorf("AddRule: %v", err)
					return
				}
			}
			_ = s.Commit()
		}(i, s)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			_ = rt.Replace(NewConfiguration())
		}
	}()
	wg.Wait()

	cfg := rt.Active()
	for i, rules := range owned {
		for _, r := range rules {
			if n := countRule(cfg, r); n != 1 {
				t.Fatalf("session %d rule appears %d times", i, n)
			}
		}
		if !cfg.HasSink(handles[i].Sink(handles[i].Name())) {
			t.Fatalf("session %d sink missing", i)
		}
	}
	if got, want := len(cfg.Rules()), sessions*20; got != want {
		t.Fatalf("rules=%d want %d", got, want)
	}
	for i, s := range handles {
		s.st.mu.Lock()
		reconciled := s.st.cfg
		s.st.mu.Unlock()
		if reconciled != cfg {
			t.Fatalf("session %d last reconciled against a superseded configuration", i)
		}
	}
}

// taggedSink is a value-type sink with a slice field, so its dynamic type is
// not comparable.
type taggedSink struct {
	name string
	tags []string
}

func (s taggedSink) Name() string    { return s.name }
func (s taggedSink) Log(Entry) error { return nil }

func TestSession_RejectsNonComparableSink(t *testing.T) {
	t.Parallel()

	rt, d := newTestDirectory(t)
	s := mustCreate(t, d, "values")

	bad := taggedSink{name: "tagged", tags: []string{"a"}}
	assertErrorIs(t, s.AddSink(bad, false), ErrInvalidArgument)
	if s.Sink("tagged") != nil {
		t.Fatal("a rejected sink must not be registered")
	}
	if _, err := NewRule("values", bad); err == nil {
		t.Fatal("a rule must refuse a non-comparable sink")
	}

	if err := s.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	_ = s.Close()
	if len(rt.Active().Sinks()) != 0 {
		t.Fatalf("no sink may outlive Close: %v", rt.Active().Sinks())
	}
}

func TestSession_WarnsWhenDisplacingForeignSink(t *testing.T) {
	t.Parallel()

	rt, d := newTestDirectory(t)
	diag := newStubSink("diag")
	if err := d.EnableSelfLog(LevelWarn, diag); err != nil {
		t.Fatalf("EnableSelfLog: %v", err)
	}
	defer d.DisableSelfLog()

	a := mustCreate(t, d, "A")
	defer a.Close()
	b := mustCreate(t, d, "B")
	defer b.Close()

	mine, theirs := newStubSink("console"), newStubSink("console")
	if err := a.AddSink(mine, false); err != nil {
		t.Fatalf("AddSink A: %v", err)
	}
	if len(diag.entries()) != 0 {
		t.Fatalf("first registration must not warn: %+v", diag.entries())
	}
	if err := b.AddSink(theirs, false); err != nil {
		t.Fatalf("AddSink B: %v", err)
	}
	if rt.Active().Sink("console") != theirs {
		t.Fatal("the later commit wins the name")
	}

	logs := diag.entries()
	if len(logs) != 1 {
		t.Fatalf("want one warning, got %+v", logs)
	}
	e := logs[0]
	if e.Level != LevelWarn || e.Logger != "xroute.session" {
		t.Fatalf("unexpected entry: %+v", e)
	}
	assertHasStr(t, e.Fields, "session", "B")
	assertHasStr(t, e.Fields, "sink", "console")
}
