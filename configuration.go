package xroute

import (
	"fmt"
	"sort"
	"sync"
)

// Configuration is the shared set of sinks and rules a Runtime dispatches
// against. It is owned by the Runtime, may be swapped out wholesale at any
// time, and is mutated concurrently by every Session. All mutations are
// idempotent: adding something present or removing something absent succeeds.
//
// Changes become visible to dispatch only after Runtime.Rebuild.
type Configuration struct {
	mu    sync.RWMutex
	sinks map[string]Sink
	rules []*Rule
}

// NewConfiguration returns an empty configuration.
func NewConfiguration() *Configuration {
	return &Configuration{sinks: make(map[string]Sink)}
}

// AddSink registers s under its name. A different sink already registered
// under that name is replaced. A nil or non-comparable sink is refused with
// ErrInvalidArgument.
func (c *Configuration) AddSink(s Sink) error {
	if !comparableSink(s) {
		return fmt.Errorf("%w: sink %T is nil or not comparable", ErrInvalidArgument, s)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks[s.Name()] = s
	return nil
}

// RemoveSink removes s if it is the sink registered under its name.
func (c *Configuration) RemoveSink(s Sink) {
	if s == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, ok := c.sinks[s.Name()]; ok && sameSink(cur, s) {
		delete(c.sinks, s.Name())
	}
}

// HasSink reports whether s itself (not merely its name) is registered.
func (c *Configuration) HasSink(s Sink) bool {
	if s == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	cur, ok := c.sinks[s.Name()]
	return ok && sameSink(cur, s)
}

// Sink returns the sink registered under name, or nil.
func (c *Configuration) Sink(name string) Sink {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sinks[name]
}

// Sinks returns the registered sinks sorted by name.
func (c *Configuration) Sinks() []Sink {
	c.mu.RLock()
	out := make([]Sink, 0, len(c.sinks))
	for _, s := range c.sinks {
		out = append(out, s)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// AddRule appends r unless it is already present.
func (c *Configuration) AddRule(r *Rule) {
	if r == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.indexOfLocked(r) >= 0 {
		return
	}
	c.rules = append(c.rules, r)
}

// RemoveRule removes r if present, preserving the order of the others.
func (c *Configuration) RemoveRule(r *Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexOfLocked(r)
	if i < 0 {
		return
	}
	c.rules = append(c.rules[:i:i], c.rules[i+1:]...)
}

// HasRule reports whether r is present.
func (c *Configuration) HasRule(r *Rule) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexOfLocked(r) >= 0
}

// Rules returns the rules in dispatch order.
func (c *Configuration) Rules() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func (c *Configuration) indexOfLocked(r *Rule) int {
	if r == nil {
		return -1
	}
	for i, cur := range c.rules {
		if cur == r {
			return i
		}
	}
	return -1
}

// snapshot copies sinks and rules under one read lock so the dispatch table is
// built from a consistent view.
func (c *Configuration) snapshot() (map[string]Sink, []*Rule) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sinks := make(map[string]Sink, len(c.sinks))
	for k, v := range c.sinks {
		sinks[k] = v
	}
	rules := make([]*Rule, len(c.rules))
	copy(rules, c.rules)
	return sinks, rules
}
