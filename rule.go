package xroute

import (
	"fmt"
	"path"
	"strings"
	"sync/atomic"
)

// Rule binds a logger-name pattern to a set of enabled levels and an ordered
// list of sinks. Rules are shared by pointer: the same *Rule owned by a
// Session is the one the runtime dispatches against, so level edits take
// effect without re-registration.
type Rule struct {
	pattern string
	sinks   []Sink
	final   bool

	// levels is a bitmask over allLevels indexes.
	levels atomic.Uint32
}

// NewRule validates its arguments and returns a rule enabled for every level,
// routing pattern matches to sinks in order.
func NewRule(pattern string, sinks ...Sink) (*Rule, error) {
	return NewRuleBuilder().Pattern(pattern).Sinks(sinks...).Build()
}

// Pattern returns the logger-name pattern.
func (r *Rule) Pattern() string { return r.pattern }

// Final reports whether dispatch stops after this rule handles an entry.
func (r *Rule) Final() bool { return r.final }

// Sinks returns a copy of the rule's sink list.
func (r *Rule) Sinks() []Sink {
	out := make([]Sink, len(r.sinks))
	copy(out, r.sinks)
	return out
}

// Matches reports whether loggerName matches the rule pattern. '*' spans any
// run of characters, dots included; '?' matches exactly one.
func (r *Rule) Matches(loggerName string) bool {
	return matchPattern(r.pattern, loggerName)
}

// Enabled reports whether level is enabled on the rule.
func (r *Rule) Enabled(level Level) bool {
	i := level.index()
	if i < 0 {
		return false
	}
	return r.levels.Load()&(1<<uint(i)) != 0
}

// EnabledLevels returns the enabled levels in ascending order.
func (r *Rule) EnabledLevels() []Level {
	mask := r.levels.Load()
	var out []Level
	for i, lvl := range allLevels {
		if mask&(1<<uint(i)) != 0 {
			out = append(out, lvl)
		}
	}
	return out
}

// MinLevel returns the lowest enabled level, or LevelOff when none is.
func (r *Rule) MinLevel() Level {
	mask := r.levels.Load()
	for i, lvl := range allLevels {
		if mask&(1<<uint(i)) != 0 {
			return lvl
		}
	}
	return LevelOff
}

// SetThreshold enables every level at or above min and disables the rest.
// The enabled set is always a contiguous upper set; LevelOff disables all.
func (r *Rule) SetThreshold(min Level) {
	var mask uint32
	for i, lvl := range allLevels {
		if AtLeast(lvl, min) {
			mask |= 1 << uint(i)
		}
	}
	r.levels.Store(mask)
}

// SetLevel enables or disables a single level. Unlike SetThreshold it may
// leave gaps in the enabled set.
func (r *Rule) SetLevel(level Level, enabled bool) error {
	i := level.index()
	if i < 0 {
		return fmt.Errorf("%w: %s is not a severity", ErrInvalidArgument, level)
	}
	bit := uint32(1) << uint(i)
	for {
		old := r.levels.Load()
		next := old &^ bit
		if enabled {
			next = old | bit
		}
		if r.levels.CompareAndSwap(old, next) {
			return nil
		}
	}
}

// RuleBuilder assembles a Rule (Builder pattern).
type RuleBuilder struct {
	pattern   string
	sinks     []Sink
	threshold Level
	final     bool
}

// NewRuleBuilder starts a rule with threshold Trace.
func NewRuleBuilder() *RuleBuilder {
	return &RuleBuilder{threshold: LevelTrace}
}

func (b *RuleBuilder) Pattern(p string) *RuleBuilder {
	b.pattern = p
	return b
}

func (b *RuleBuilder) Sinks(s ...Sink) *RuleBuilder {
	b.sinks = append(b.sinks, s...)
	return b
}

func (b *RuleBuilder) Threshold(min Level) *RuleBuilder {
	b.threshold = min
	return b
}

func (b *RuleBuilder) Final(final bool) *RuleBuilder {
	b.final = final
	return b
}

// Build validates and returns the rule.
func (b *RuleBuilder) Build() (*Rule, error) {
	if strings.TrimSpace(b.pattern) == "" {
		return nil, fmt.Errorf("%w: empty rule pattern", ErrInvalidArgument)
	}
	if _, err := path.Match(b.pattern, ""); err != nil {
		return nil, fmt.Errorf("%w: rule pattern %q: %v", ErrInvalidArgument, b.pattern, err)
	}
	if len(b.sinks) == 0 {
		return nil, fmt.Errorf("%w: rule %q has no sinks", ErrInvalidArgument, b.pattern)
	}
	for i, s := range b.sinks {
		if s == nil {
			return nil, fmt.Errorf("%w: rule %q sink %d is nil", ErrInvalidArgument, b.pattern, i)
		}
		if !comparableSink(s) {
			return nil, fmt.Errorf("%w: rule %q sink %q of type %T is not comparable", ErrInvalidArgument, b.pattern, s.Name(), s)
		}
	}
	r := &Rule{
		pattern: b.pattern,
		sinks:   append([]Sink(nil), b.sinks...),
		final:   b.final,
	}
	r.SetThreshold(b.threshold)
	return r, nil
}

// matchPattern treats '*' as "any run of characters". path.Match stops '*' at
// '/', so names containing '/' fall back to a segment-free comparison.
func matchPattern(pattern, name string) bool {
	if pattern == "*" || pattern == name {
		return true
	}
	if !strings.Contains(name, "/") {
		ok, err := path.Match(pattern, name)
		return err == nil && ok
	}
	ok, err := path.Match(strings.ReplaceAll(pattern, "/", "\x00"), strings.ReplaceAll(name, "/", "\x00"))
	return err == nil && ok
}
