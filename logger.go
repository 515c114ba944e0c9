package xroute

// Logger is a named entry point into a Runtime. The name is what rule
// patterns match against; routing is resolved per call against the
// runtime's current dispatch table, so a Logger created before a rule was
// registered still picks it up.
type Logger struct {
	rt         *Runtime
	name       string
	baseFields []Field
}

// Name returns the logger name used for rule matching.
func (l *Logger) Name() string { return l.name }

// Enabled reports whether logs at 'level' would reach any sink.
// Use to avoid building fields in hot paths when disabled.
func (l *Logger) Enabled(level Level) bool {
	return l.rt.Enabled(l.name, level)
}

// Level entry points. Each returns nil when nothing routes the level; see
// Event.

func (l *Logger) Trace() *Event { return newEvent(l, LevelTrace) }
func (l *Logger) Debug() *Event { return newEvent(l, LevelDebug) }
func (l *Logger) Info() *Event  { return newEvent(l, LevelInfo) }
func (l *Logger) Warn() *Event  { return newEvent(l, LevelWarn) }
func (l *Logger) Error() *Event { return newEvent(l, LevelError) }

// Fatal logs at LevelFatal. It never exits the process.
func (l *Logger) Fatal() *Event { return newEvent(l, LevelFatal) }

// With returns a child logger with bound fields.
func (l *Logger) With(fs ...Field) *Logger {
	return &Logger{
		rt:         l.rt,
		name:       l.name,
		baseFields: append(copyFields(nil, l.baseFields), fs...),
	}
}

// emit runs for events that passed the Enabled check at creation. Dispatch
// re-checks each rule, so a level disabled in between is still dropped.
func (l *Logger) emit(level Level, msg string, evFields []Field) {
	merged := make([]Field, 0, len(l.baseFields)+len(evFields))
	merged = append(merged, l.baseFields...)
	merged = append(merged, evFields...)

	l.rt.dispatch(Entry{
		At:      l.rt.now(),
		Level:   level,
		Logger:  l.name,
		Message: msg,
		Fields:  merged,
	})
}
