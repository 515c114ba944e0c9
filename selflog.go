package xroute

import "fmt"

// Reserved names for the library's own diagnostics. Directory and Session
// log through loggers named "xroute.directory" and "xroute.session", which
// the self-log rule pattern matches.
const (
	SelfLogSession = "xroute"
	SelfLogRule    = "xroute.self"
	selfLogPattern = "xroute.*"
)

// EnableSelfLog routes the library's own diagnostics to sinks at level and
// above by creating the reserved session SelfLogSession. If self-logging is
// already on only the level changes.
func (d *Directory) EnableSelfLog(level Level, sinks ...Sink) error {
	d.selfMu.Lock()
	defer d.selfMu.Unlock()

	if d.self != nil && !d.self.Closed() {
		return d.self.SetRuleThreshold(SelfLogRule, level)
	}
	if len(sinks) == 0 {
		return fmt.Errorf("%w: self log needs at least one sink", ErrInvalidArgument)
	}

	rule, err := NewRuleBuilder().
		Pattern(selfLogPattern).
		Sinks(sinks...).
		Threshold(level).
		Build()
	if err != nil {
		return err
	}

	s, err := d.Create(SelfLogSession, SelfLogSession)
	if err != nil {
		return err
	}
	for _, sk := range sinks {
		if err := s.AddSink(sk, true); err != nil {
			_ = s.Close()
			return err
		}
	}
	if err := s.AddRule(SelfLogRule, rule, false); err != nil {
		_ = s.Close()
		return err
	}
	d.self = s
	return nil
}

// SetSelfLogLevel re-thresholds the self-log rule. LevelOff silences it
// without removing the session.
func (d *Directory) SetSelfLogLevel(level Level) error {
	d.selfMu.Lock()
	defer d.selfMu.Unlock()

	if d.self == nil {
		return fmt.Errorf("%w: self log not enabled", ErrNotFound)
	}
	return d.self.SetRuleThreshold(SelfLogRule, level)
}

// SelfLogLevel returns the lowest level the self-log rule lets through, or
// LevelOff when self-logging is disabled.
func (d *Directory) SelfLogLevel() Level {
	d.selfMu.Lock()
	defer d.selfMu.Unlock()

	if d.self == nil {
		return LevelOff
	}
	r := d.self.Rule(SelfLogRule)
	if r == nil {
		return LevelOff
	}
	return r.MinLevel()
}

// DisableSelfLog closes the self-log session. It is a no-op when
// self-logging is off.
func (d *Directory) DisableSelfLog() error {
	d.selfMu.Lock()
	defer d.selfMu.Unlock()

	if d.self == nil {
		return nil
	}
	err := d.self.Close()
	d.self = nil
	return err
}
