package xroute

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/trickstertwo/xclock"
)

// ErrorHandler receives sink write failures and recovered observer panics.
type ErrorHandler func(error)

// Runtime is the logging runtime: it owns the active Configuration, compiles
// it into a dispatch table and routes log events to sinks. The active
// Configuration can be replaced at any time by any actor; observers are told
// after the swap.
type Runtime struct {
	clock   xclock.Clock // nil means xclock.Now()
	onError ErrorHandler

	active atomic.Pointer[Configuration]
	table  atomic.Pointer[dispatchTable]

	// mu serializes Replace and Rebuild so a table is never built from a
	// configuration that has already been swapped out.
	mu  sync.Mutex
	bus observerBus
}

func newRuntime(cfg Config) *Runtime {
	rt := &Runtime{
		clock:   cfg.Clock,
		onError: cfg.ErrorHandler,
	}
	active := cfg.Configuration
	if active == nil {
		active = NewConfiguration()
	}
	rt.active.Store(active)
	rt.table.Store(compile(active))
	for _, o := range cfg.Observers {
		rt.bus.subscribe(o)
	}
	return rt
}

// Active returns the configuration currently wired into the runtime. It is
// never nil.
func (rt *Runtime) Active() *Configuration {
	return rt.active.Load()
}

// Replace swaps the active configuration, rebuilds dispatch state and then
// notifies observers outside any runtime lock.
func (rt *Runtime) Replace(cfg *Configuration) error {
	if cfg == nil {
		return fmt.Errorf("%w: nil configuration", ErrInvalidArgument)
	}
	rt.mu.Lock()
	old := rt.active.Swap(cfg)
	rt.table.Store(compile(cfg))
	rt.mu.Unlock()

	rt.bus.publish(ConfigChange{Old: old, New: cfg}, rt.reportError)
	return nil
}

// Subscribe registers o for replacement notifications and returns a handle
// for Unsubscribe.
func (rt *Runtime) Subscribe(o Observer) uint64 {
	return rt.bus.subscribe(o)
}

// Unsubscribe removes a subscription. It reports whether the handle was live.
func (rt *Runtime) Unsubscribe(id uint64) bool {
	return rt.bus.unsubscribe(id)
}

// Rebuild recompiles the dispatch table from the active configuration. Call
// it after adding or removing sinks and rules so later log calls see the
// change.
func (rt *Runtime) Rebuild() {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.table.Store(compile(rt.active.Load()))
}

// Logger returns a named logger bound to this runtime. Loggers are cheap and
// always reflect the current dispatch table.
func (rt *Runtime) Logger(name string) *Logger {
	return &Logger{rt: rt, name: name}
}

// Enabled reports whether an entry for loggerName at level would reach at
// least one sink.
func (rt *Runtime) Enabled(loggerName string, level Level) bool {
	t := rt.table.Load()
	for _, i := range t.match(loggerName) {
		if t.rules[i].rule.Enabled(level) {
			return true
		}
	}
	return false
}

// Flush flushes every active sink that implements Flusher.
func (rt *Runtime) Flush() error {
	var errs []error
	for _, s := range rt.Active().Sinks() {
		f, ok := s.(Flusher)
		if !ok {
			continue
		}
		if err := f.Flush(); err != nil {
			errs = append(errs, fmt.Errorf("flush sink %q: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (rt *Runtime) now() time.Time {
	if rt.clock != nil {
		return rt.clock.Now()
	}
	return xclock.Now()
}

func (rt *Runtime) reportError(err error) {
	if rt.onError != nil && err != nil {
		rt.onError(err)
	}
}

// dispatch routes e through the current table. Rules are evaluated in order;
// a matching final rule that handled the entry stops evaluation.
func (rt *Runtime) dispatch(e Entry) {
	t := rt.table.Load()
	for _, i := range t.match(e.Logger) {
		cr := &t.rules[i]
		if !cr.rule.Enabled(e.Level) {
			continue
		}
		for _, s := range cr.sinks {
			if err := s.Log(e); err != nil {
				rt.reportError(fmt.Errorf("sink %q: %w", s.Name(), err))
			}
		}
		if cr.rule.final {
			return
		}
	}
}

// dispatchTable is an immutable compiled view of one Configuration. Only the
// per-logger match cache is filled lazily.
type dispatchTable struct {
	rules []compiledRule
	cache sync.Map // logger name -> []int
}

type compiledRule struct {
	rule  *Rule
	sinks []Sink // rule sinks that are registered in the configuration
}

func compile(cfg *Configuration) *dispatchTable {
	sinks, rules := cfg.snapshot()
	t := &dispatchTable{rules: make([]compiledRule, 0, len(rules))}
	for _, r := range rules {
		cr := compiledRule{rule: r}
		for _, s := range r.sinks {
			if reg, ok := sinks[s.Name()]; ok && sameSink(reg, s) {
				cr.sinks = append(cr.sinks, s)
			}
		}
		if len(cr.sinks) == 0 {
			continue
		}
		t.rules = append(t.rules, cr)
	}
	return t
}

func (t *dispatchTable) match(name string) []int {
	if v, ok := t.cache.Load(name); ok {
		return v.([]int)
	}
	var idx []int
	for i := range t.rules {
		if t.rules[i].rule.Matches(name) {
			idx = append(idx, i)
		}
	}
	t.cache.Store(name, idx)
	return idx
}
