package xroute

import "sync/atomic"

// Facade: process-wide Runtime (Singleton + Facade).
// Usage: xroute.Named("svc.http").Info().Str("k","v").Msg("hello")

var global atomic.Pointer[Runtime]

// SetGlobal sets the process-wide Runtime. Passing nil resets it; the next
// Global call builds a fresh empty one.
func SetGlobal(rt *Runtime) { global.Store(rt) }

// Global returns the process-wide Runtime, building an empty one on first
// use. It is never nil.
func Global() *Runtime {
	if rt := global.Load(); rt != nil {
		return rt
	}
	rt := NewBuilder().Build()
	if global.CompareAndSwap(nil, rt) {
		return rt
	}
	return global.Load()
}

// Named returns a logger on the global Runtime.
func Named(name string) *Logger { return Global().Logger(name) }
