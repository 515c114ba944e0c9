package xroute

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Observer pattern

// ConfigChange is published after the active Configuration was replaced.
// Subscribers must treat it as a trigger only: by the time it arrives another
// replacement may already have happened, so the current value is read from
// Runtime.Active.
type ConfigChange struct {
	Old *Configuration
	New *Configuration
}

// Observer receives configuration replacement notifications.
// Implementations MUST be concurrency-safe.
type Observer interface {
	OnConfig(c ConfigChange)
}

// ObserverFunc adapter.
type ObserverFunc func(ConfigChange)

func (f ObserverFunc) OnConfig(c ConfigChange) { f(c) }

// subscription represents a registered observer.
type subscription struct {
	id  uint64
	obs Observer
}

// observerBus is a synchronous pub-sub list. Publish copies the list under the
// read lock and calls observers outside it, so observers may subscribe,
// unsubscribe or call back into the runtime.
type observerBus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID atomic.Uint64
}

func (b *observerBus) subscribe(o Observer) uint64 {
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, obs: o})
	b.mu.Unlock()
	return id
}

func (b *observerBus) unsubscribe(id uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, sub := range b.subs {
		if sub.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return true
		}
	}
	return false
}

func (b *observerBus) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// publish calls every observer in registration order. A panicking observer is
// recovered and reported through onPanic; delivery continues.
func (b *observerBus) publish(c ConfigChange, onPanic func(error)) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	for _, sub := range subs {
		safeNotify(sub.obs, c, onPanic)
	}
}

func safeNotify(o Observer, c ConfigChange, onPanic func(error)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(fmt.Errorf("xroute: config observer panicked: %v\n%s", r, debug.Stack()))
		}
	}()
	o.OnConfig(c)
}
