package xroute

import (
	"fmt"
	"sync"
	"time"
)

// Event collects the fields of one log call.
//
//	rt.Logger("svc.http").Info().Str("route", r).Int("status", 200).Msg("served")
//
// Logger level methods return a nil *Event when no rule routes that level,
// and every method is a no-op on nil, so a filtered call costs one table
// lookup and no allocation. Msg, Msgf and Send recycle the Event.
type Event struct {
	log    *Logger
	level  Level
	fields []Field
}

// maxPooledFields caps the backing array kept by a recycled Event.
const maxPooledFields = 128

var events = sync.Pool{
	New: func() any { return &Event{fields: make([]Field, 0, 8)} },
}

func newEvent(l *Logger, level Level) *Event {
	if !l.Enabled(level) {
		return nil
	}
	e := events.Get().(*Event)
	e.log, e.level = l, level
	return e
}

func (e *Event) release() {
	if cap(e.fields) > maxPooledFields {
		e.fields = make([]Field, 0, 8)
	} else {
		e.fields = e.fields[:0]
	}
	e.log = nil
	events.Put(e)
}

func (e *Event) add(f Field) *Event {
	if e != nil {
		e.fields = append(e.fields, f)
	}
	return e
}

func (e *Event) Str(k, v string) *Event            { return e.add(Str(k, v)) }
func (e *Event) Int(k string, v int) *Event         { return e.add(Int64(k, int64(v))) }
func (e *Event) Int64(k string, v int64) *Event     { return e.add(Int64(k, v)) }
func (e *Event) Uint64(k string, v uint64) *Event   { return e.add(Uint64(k, v)) }
func (e *Event) Float64(k string, v float64) *Event { return e.add(Float64(k, v)) }
func (e *Event) Bool(k string, v bool) *Event       { return e.add(Bool(k, v)) }
func (e *Event) Dur(k string, v time.Duration) *Event {
	return e.add(Dur(k, v))
}
func (e *Event) Time(k string, v time.Time) *Event { return e.add(Time(k, v)) }
func (e *Event) Bytes(k string, v []byte) *Event   { return e.add(Bytes(k, v)) }
func (e *Event) Any(k string, v any) *Event        { return e.add(Any(k, v)) }

// Err adds err under "error". A nil error adds nothing.
func (e *Event) Err(err error) *Event {
	if err == nil {
		return e
	}
	return e.add(Err("error", err))
}

// Fields appends pre-built fields.
func (e *Event) Fields(fs ...Field) *Event {
	if e != nil {
		e.fields = append(e.fields, fs...)
	}
	return e
}

// Enabled reports whether the event will reach a sink.
func (e *Event) Enabled() bool { return e != nil }

// Msg emits the event.
func (e *Event) Msg(msg string) {
	if e == nil {
		return
	}
	e.log.emit(e.level, msg, e.fields)
	e.release()
}

// Msgf emits the event with a fmt.Sprintf message. Arguments are not
// formatted for a nil event.
func (e *Event) Msgf(format string, args ...any) {
	if e == nil {
		return
	}
	e.Msg(fmt.Sprintf(format, args...))
}

// Send emits the event with an empty message.
func (e *Event) Send() { e.Msg("") }
