package xroute

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"weak"
)

// Directory is the process-wide registry of live sessions keyed by name. An
// entry stays until its session is closed, whether or not the caller still
// holds the *Session.
//
// Every Session handle keeps its Directory reachable. Once neither the
// Directory nor any handle is reachable, a cleanup closes the sessions still
// registered, withdrawing their rules and sinks.
type Directory struct {
	rt       *Runtime
	baseDir  string
	log      *Logger
	sessions *sessionTable

	// selfMu guards self; it is taken before any session or table lock.
	selfMu sync.Mutex
	self   *Session
}

// sessionTable is the name index. It owns session state strongly and the
// handles weakly, and nothing in it points back at the Directory.
type sessionTable struct {
	mu sync.Mutex
	m  map[string]*tableEntry
}

type tableEntry struct {
	state  *sessionState
	handle weak.Pointer[Session]
}

// remove drops name only while it still maps to st, so a closing session
// never evicts a newer one of the same name.
func (t *sessionTable) remove(name string, st *sessionState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.m[name]; ok && e.state == st {
		delete(t.m, name)
	}
}

func (t *sessionTable) closeAll() {
	t.mu.Lock()
	states := make([]*sessionState, 0, len(t.m))
	for _, e := range t.m {
		states = append(states, e.state)
	}
	t.mu.Unlock()

	for _, st := range states {
		st.close()
	}
}

// DirectoryOption configures a Directory.
type DirectoryOption func(*Directory)

// WithBaseDir sets the per-user application data root that session log paths
// are built under. Defaults to os.UserConfigDir.
func WithBaseDir(dir string) DirectoryOption {
	return func(d *Directory) {
		if dir != "" {
			d.baseDir = dir
		}
	}
}

// NewDirectory returns an empty Directory whose sessions reconcile into rt.
func NewDirectory(rt *Runtime, opts ...DirectoryOption) (*Directory, error) {
	if rt == nil {
		return nil, ErrNoRuntime
	}
	d := &Directory{
		rt:       rt,
		log:      rt.Logger("xroute.directory"),
		sessions: &sessionTable{m: make(map[string]*tableEntry)},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.baseDir == "" {
		d.baseDir = defaultBaseDir()
	}
	runtime.AddCleanup(d, (*sessionTable).closeAll, d.sessions)
	return d, nil
}

func defaultBaseDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return dir
	}
	return os.TempDir()
}

// Runtime returns the runtime sessions reconcile into.
func (d *Directory) Runtime() *Runtime { return d.rt }

// BaseDir returns the application data root.
func (d *Directory) BaseDir() string { return d.baseDir }

// Create registers a new session. It fails with ErrDuplicateSession while a
// session of that name is registered; Close frees the name.
func (d *Directory) Create(name, company string, opts ...SessionOption) (*Session, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("%w: empty session name", ErrInvalidArgument)
	}
	if strings.TrimSpace(company) == "" {
		return nil, fmt.Errorf("%w: empty company name for session %q", ErrInvalidArgument, name)
	}

	t := d.sessions
	t.mu.Lock()
	if _, ok := t.m[name]; ok {
		t.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateSession, name)
	}
	e := &tableEntry{state: newSessionState(d, name, company, opts...)}
	t.m[name] = e
	s := d.handleLocked(e)
	t.mu.Unlock()

	d.log.Debug().
		Str("session", name).
		Str("company", company).
		Msg("session created")
	return s, nil
}

// handleLocked returns the live handle of e, minting a new one if every
// earlier handle was dropped. d.sessions.mu must be held.
func (d *Directory) handleLocked(e *tableEntry) *Session {
	if s := e.handle.Value(); s != nil {
		return s
	}
	s := &Session{st: e.state, dir: d}
	e.handle = weak.Make(s)
	return s
}

// Lookup returns the session registered under name.
func (d *Directory) Lookup(name string) (*Session, error) {
	t := d.sessions
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.m[name]
	if !ok {
		return nil, fmt.Errorf("%w: session %q", ErrNotFound, name)
	}
	return d.handleLocked(e), nil
}

// Names returns the names of registered sessions, sorted.
func (d *Directory) Names() []string {
	t := d.sessions
	t.mu.Lock()
	names := make([]string, 0, len(t.m))
	for name := range t.m {
		names = append(names, name)
	}
	t.mu.Unlock()
	sort.Strings(names)
	return names
}

// SetRuleThreshold looks up sessionName and sets the threshold of its rule
// ruleName.
func (d *Directory) SetRuleThreshold(sessionName, ruleName string, min Level) error {
	s, err := d.Lookup(sessionName)
	if err != nil {
		return err
	}
	return s.SetRuleThreshold(ruleName, min)
}

// SetRuleLevel looks up sessionName and toggles a single level on its rule
// ruleName.
func (d *Directory) SetRuleLevel(sessionName, ruleName string, level Level, enabled bool) error {
	s, err := d.Lookup(sessionName)
	if err != nil {
		return err
	}
	return s.SetRuleLevel(ruleName, level, enabled)
}

// CloseAll closes every registered session. Useful at shutdown before
// flushing sinks.
func (d *Directory) CloseAll() {
	d.sessions.closeAll()

	d.selfMu.Lock()
	d.self = nil
	d.selfMu.Unlock()
}
