package xroute

import "github.com/trickstertwo/xclock"

// Config for constructing a Runtime (Factory data structure).
type Config struct {
	Clock         xclock.Clock // optional; defaults to xclock.Now()
	ErrorHandler  ErrorHandler // optional; sink errors are dropped when nil
	Configuration *Configuration
	Observers     []Observer
}

// Builder separates construction from representation (Builder pattern).
type Builder struct {
	cfg Config
}

func NewBuilder() *Builder {
	return &Builder{}
}

func (b *Builder) WithClock(c xclock.Clock) *Builder {
	b.cfg.Clock = c
	return b
}

func (b *Builder) WithErrorHandler(h ErrorHandler) *Builder {
	b.cfg.ErrorHandler = h
	return b
}

// WithConfiguration sets the initial active configuration. An empty one is
// created when unset.
func (b *Builder) WithConfiguration(c *Configuration) *Builder {
	b.cfg.Configuration = c
	return b
}

func (b *Builder) AddObserver(o Observer) *Builder {
	if o != nil {
		b.cfg.Observers = append(b.cfg.Observers, o)
	}
	return b
}

// Build constructs the Runtime (Factory + Builder).
func (b *Builder) Build() *Runtime {
	return newRuntime(b.cfg)
}
