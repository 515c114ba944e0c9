package xroute

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Session is one module's registry of the rules and sinks it declared. It
// keeps them reconciled into the Runtime's active Configuration: additions
// are pushed on Commit (immediately unless deferred), a replaced
// Configuration is re-populated automatically, and Close removes exactly the
// session's own entries.
//
// Sessions are created by Directory.Create and are safe for concurrent use.
type Session struct {
	st  *sessionState
	dir *Directory // pins the Directory while this handle is reachable
}

// sessionState holds everything a Session owns. It never references the
// Directory or a *Session handle; see Directory.
type sessionState struct {
	name      string
	company   string
	logFolder string
	baseDir   string

	rt    *Runtime
	table *sessionTable
	log   *Logger

	// mu guards everything below together with the add/remove/commit/
	// reconcile sequence, so a Commit and a replacement reconciliation can
	// never interleave.
	mu        sync.Mutex
	cfg       *Configuration // last configuration reconciled against
	rules     map[string]*Rule
	ruleOrder []string
	sinks     map[string]Sink
	// removals not yet applied to the active configuration (deferred).
	pendingRules []*Rule
	pendingSinks []Sink
	subID        uint64
	closed       bool
}

// SessionOption configures a Session at creation.
type SessionOption func(*sessionState)

// WithLogFolder sets the folder name under the session's application folder
// where file sinks place their files. Default "logs".
func WithLogFolder(folder string) SessionOption {
	return func(st *sessionState) {
		if folder != "" {
			st.logFolder = folder
		}
	}
}

func newSessionState(d *Directory, name, company string, opts ...SessionOption) *sessionState {
	st := &sessionState{
		name:      name,
		company:   company,
		logFolder: "logs",
		baseDir:   d.baseDir,
		rt:        d.rt,
		table:     d.sessions,
		log:       d.rt.Logger("xroute.session").With(Str("session", name)),
		rules:     make(map[string]*Rule),
		sinks:     make(map[string]Sink),
	}
	for _, opt := range opts {
		opt(st)
	}
	st.cfg = d.rt.Active()
	st.subID = d.rt.Subscribe(ObserverFunc(st.onConfig))
	return st
}

// Name returns the session (module) name.
func (s *Session) Name() string { return s.st.name }

// Company returns the company name given at creation.
func (s *Session) Company() string { return s.st.company }

// LogFolder returns the log folder name (not a path).
func (s *Session) LogFolder() string { return s.st.logFolder }

// LogFilesPath returns base/company/name/logFolder, the root for this
// session's file sinks.
func (s *Session) LogFilesPath() string {
	return filepath.Join(s.st.baseDir, s.st.company, s.st.name, s.st.logFolder)
}

// AddRule registers r under name. Unless deferUpdate is set the session is
// committed immediately. Registering the same rule under the same name again
// is a no-op.
func (s *Session) AddRule(name string, r *Rule, deferUpdate bool) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty rule name", ErrInvalidArgument)
	}
	if r == nil {
		return fmt.Errorf("%w: nil rule %q", ErrInvalidArgument, name)
	}

	st := s.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return ErrSessionClosed
	}
	if cur, ok := st.rules[name]; ok {
		if cur == r {
			return nil
		}
		return fmt.Errorf("%w: rule %q already registered in session %q", ErrInvalidArgument, name, st.name)
	}
	if other := st.ruleNameLocked(r); other != "" {
		return fmt.Errorf("%w: rule already registered as %q in session %q", ErrInvalidArgument, other, st.name)
	}

	st.rules[name] = r
	st.ruleOrder = append(st.ruleOrder, name)
	st.pendingRules = removeRuleRef(st.pendingRules, r)

	if !deferUpdate {
		st.commitLocked()
	}
	return nil
}

// AddSink registers sk under its name. Unless deferUpdate is set the session
// is committed immediately. Registering the same sink again is a no-op.
func (s *Session) AddSink(sk Sink, deferUpdate bool) error {
	if sk == nil {
		return fmt.Errorf("%w: nil sink", ErrInvalidArgument)
	}
	name := sk.Name()
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty sink name", ErrInvalidArgument)
	}
	if !comparableSink(sk) {
		return fmt.Errorf("%w: sink %q of type %T is not comparable, use a pointer", ErrInvalidArgument, name, sk)
	}

	st := s.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return ErrSessionClosed
	}
	if cur, ok := st.sinks[name]; ok {
		if sameSink(cur, sk) {
			return nil
		}
		return fmt.Errorf("%w: sink %q already registered in session %q", ErrInvalidArgument, name, st.name)
	}

	st.sinks[name] = sk
	st.pendingSinks = removeSinkRef(st.pendingSinks, sk)

	if !deferUpdate {
		st.commitLocked()
	}
	return nil
}

// RemoveRule drops r from the session and, on the next commit (immediately
// unless deferUpdate is set), from the active configuration.
func (s *Session) RemoveRule(r *Rule, deferUpdate bool) error {
	st := s.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return ErrSessionClosed
	}
	name := st.ruleNameLocked(r)
	if name == "" {
		return fmt.Errorf("%w: rule not owned by session %q", ErrNotFound, st.name)
	}
	st.removeRuleLocked(name, deferUpdate)
	return nil
}

// RemoveRuleByName is RemoveRule for the rule registered under name.
func (s *Session) RemoveRuleByName(name string, deferUpdate bool) error {
	st := s.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return ErrSessionClosed
	}
	if _, ok := st.rules[name]; !ok {
		return fmt.Errorf("%w: rule %q in session %q", ErrNotFound, name, st.name)
	}
	st.removeRuleLocked(name, deferUpdate)
	return nil
}

// RemoveSink drops sk from the session and, on the next commit (immediately
// unless deferUpdate is set), from the active configuration.
func (s *Session) RemoveSink(sk Sink, deferUpdate bool) error {
	if sk == nil {
		return fmt.Errorf("%w: nil sink", ErrInvalidArgument)
	}
	st := s.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return ErrSessionClosed
	}
	cur, ok := st.sinks[sk.Name()]
	if !ok || !sameSink(cur, sk) {
		return fmt.Errorf("%w: sink %q not owned by session %q", ErrNotFound, sk.Name(), st.name)
	}
	st.removeSinkLocked(sk.Name(), deferUpdate)
	return nil
}

// RemoveSinkByName is RemoveSink for the sink registered under name.
func (s *Session) RemoveSinkByName(name string, deferUpdate bool) error {
	st := s.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return ErrSessionClosed
	}
	if _, ok := st.sinks[name]; !ok {
		return fmt.Errorf("%w: sink %q in session %q", ErrNotFound, name, st.name)
	}
	st.removeSinkLocked(name, deferUpdate)
	return nil
}

// Commit reconciles the session into the runtime's current configuration:
// pending removals are applied, every owned sink and rule that is not present
// is added, and dispatch state is rebuilt. It never touches entries owned by
// others and is a no-op pass when nothing is missing.
func (s *Session) Commit() error {
	st := s.st
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return ErrSessionClosed
	}
	st.commitLocked()
	return nil
}

// Rule returns the rule registered under name, or nil.
func (s *Session) Rule(name string) *Rule {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.rules[name]
}

// Sink returns the sink registered under name, or nil.
func (s *Session) Sink(name string) Sink {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.sinks[name]
}

// RuleNames returns rule names in registration order.
func (s *Session) RuleNames() []string {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return append([]string(nil), s.st.ruleOrder...)
}

// SinkNames returns sink names sorted.
func (s *Session) SinkNames() []string {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.sinkNamesLocked()
}

// SetRuleThreshold enables every level at or above min on the named rule and
// rebuilds dispatch state.
func (s *Session) SetRuleThreshold(ruleName string, min Level) error {
	return s.st.withRule(ruleName, func(r *Rule) error {
		r.SetThreshold(min)
		return nil
	})
}

// SetRuleLevel enables or disables a single level on the named rule and
// rebuilds dispatch state. See Rule.SetLevel.
func (s *Session) SetRuleLevel(ruleName string, level Level, enabled bool) error {
	return s.st.withRule(ruleName, func(r *Rule) error {
		return r.SetLevel(level, enabled)
	})
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return s.st.closed
}

// Close stops listening for configuration replacement, removes the session's
// own rules and sinks from the active configuration, leaves the Directory and
// rebuilds dispatch state. Calling it again is a no-op.
func (s *Session) Close() error {
	s.st.close()
	return nil
}

func (st *sessionState) withRule(ruleName string, fn func(*Rule) error) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return ErrSessionClosed
	}
	r, ok := st.rules[ruleName]
	if !ok {
		return fmt.Errorf("%w: rule %q in session %q", ErrNotFound, ruleName, st.name)
	}
	if err := fn(r); err != nil {
		return err
	}
	st.rt.Rebuild()
	return nil
}

// current refreshes the cached configuration from the runtime. It must be
// called under st.mu so a reconciliation always targets whatever is active
// when the lock is held, never a superseded object.
func (st *sessionState) current() *Configuration {
	st.cfg = st.rt.Active()
	return st.cfg
}

func (st *sessionState) commitLocked() {
	cfg := st.current()

	removed := len(st.pendingRules) + len(st.pendingSinks)
	for _, r := range st.pendingRules {
		cfg.RemoveRule(r)
	}
	for _, sk := range st.pendingSinks {
		cfg.RemoveSink(sk)
	}
	st.pendingRules, st.pendingSinks = nil, nil

	var added int
	for _, name := range st.sinkNamesLocked() {
		sk := st.sinks[name]
		if cfg.HasSink(sk) {
			continue
		}
		if cur := cfg.Sink(name); cur != nil {
			st.log.Warn().
				Str("sink", name).
				Str("displaced_type", fmt.Sprintf("%T", cur)).
				Msg("sink name taken by another owner, replacing it")
		}
		_ = cfg.AddSink(sk) // vetted by Session.AddSink
		added++
	}
	for _, name := range st.ruleOrder {
		if r := st.rules[name]; !cfg.HasRule(r) {
			cfg.AddRule(r)
			added++
		}
	}

	st.rt.Rebuild()

	st.log.Trace().
		Int("added", added).
		Int("removed", removed).
		Msg("session reconciled")
}

// onConfig runs when any actor replaced the active configuration. The event
// payload is ignored: the active configuration is re-read under the lock.
func (st *sessionState) onConfig(ConfigChange) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return
	}
	if st.rt.Active() == st.cfg {
		return
	}
	st.log.Debug().Msg("active configuration replaced, re-registering")
	st.commitLocked()
}

func (st *sessionState) close() {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.closed {
		return
	}
	st.closed = true
	st.rt.Unsubscribe(st.subID)

	cfg := st.current()
	var rules, sinks int
	for _, name := range st.ruleOrder {
		if r := st.rules[name]; cfg.HasRule(r) {
			cfg.RemoveRule(r)
			rules++
		}
	}
	for _, r := range st.pendingRules {
		cfg.RemoveRule(r)
	}
	for _, sk := range st.sinks {
		if cfg.HasSink(sk) {
			cfg.RemoveSink(sk)
			sinks++
		}
	}
	for _, sk := range st.pendingSinks {
		cfg.RemoveSink(sk)
	}

	st.rules = make(map[string]*Rule)
	st.ruleOrder = nil
	st.sinks = make(map[string]Sink)
	st.pendingRules, st.pendingSinks = nil, nil

	if st.table != nil {
		st.table.remove(st.name, st)
	}
	st.rt.Rebuild()

	st.log.Debug().
		Int("rules_removed", rules).
		Int("sinks_removed", sinks).
		Msg("session closed")
}

func (st *sessionState) removeRuleLocked(name string, deferUpdate bool) {
	r := st.rules[name]
	delete(st.rules, name)
	for i, n := range st.ruleOrder {
		if n == name {
			st.ruleOrder = append(st.ruleOrder[:i:i], st.ruleOrder[i+1:]...)
			break
		}
	}
	st.pendingRules = append(st.pendingRules, r)
	if !deferUpdate {
		st.commitLocked()
	}
}

func (st *sessionState) removeSinkLocked(name string, deferUpdate bool) {
	sk := st.sinks[name]
	delete(st.sinks, name)
	st.pendingSinks = append(st.pendingSinks, sk)
	if !deferUpdate {
		st.commitLocked()
	}
}

func (st *sessionState) ruleNameLocked(r *Rule) string {
	if r == nil {
		return ""
	}
	for name, cur := range st.rules {
		if cur == r {
			return name
		}
	}
	return ""
}

func (st *sessionState) sinkNamesLocked() []string {
	names := make([]string, 0, len(st.sinks))
	for name := range st.sinks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func removeRuleRef(rs []*Rule, r *Rule) []*Rule {
	out := rs[:0]
	for _, cur := range rs {
		if cur != r {
			out = append(out, cur)
		}
	}
	return out
}

func removeSinkRef(ss []Sink, sk Sink) []Sink {
	out := ss[:0]
	for _, cur := range ss {
		if !sameSink(cur, sk) {
			out = append(out, cur)
		}
	}
	return out
}
