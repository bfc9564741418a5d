package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/vango-dev/fluxstore/pkg/sched"
)

const (
	// DefaultCoalesceWindow is how long Set waits before emitting the
	// accumulated changes.
	DefaultCoalesceWindow = 100 * time.Millisecond

	// DefaultLoadDebounce is the window in which TriggerLoad requests collapse
	// into one Load.
	DefaultLoadDebounce = 100 * time.Millisecond
)

// Loader is the collaborator that fetches data into a store.
// The context is cancelled when the store is disposed.
type Loader interface {
	Load(ctx context.Context, s *Store)
}

// LoadFunc adapts a function to the Loader interface.
type LoadFunc func(ctx context.Context, s *Store)

// Load calls f.
func (f LoadFunc) Load(ctx context.Context, s *Store) {
	f(ctx, s)
}

// Observer receives store instrumentation events.
type Observer interface {
	// StoreWrite is called for every Set with the number of keys written.
	StoreWrite(store string, keys int)

	// StoreEmit is called before a change is broadcast. The returned
	// function is called once delivery completes.
	StoreEmit(store string, keys []string) func()

	// ListenerPanic is called when a change listener panics.
	ListenerPanic(store string, recovered any)
}

// Option configures a Store.
type Option func(*Store)

// WithName sets the store name used in logs, metrics and the inspector.
func WithName(name string) Option {
	return func(s *Store) {
		s.name = name
	}
}

// WithKey records the binding key the store was created for.
func WithKey(key any) Option {
	return func(s *Store) {
		s.key = key
	}
}

// WithDefaults declares the values Get falls back to for unset keys.
// Defaults may include *Method values.
func WithDefaults(defaults map[string]any) Option {
	return func(s *Store) {
		for k, v := range defaults {
			s.defaults[k] = v
		}
	}
}

// WithValues seeds the table without emitting a change.
func WithValues(values map[string]any) Option {
	return func(s *Store) {
		for k, v := range values {
			s.putLocked(k, v)
		}
	}
}

// WithLoader sets the Load collaborator.
func WithLoader(l Loader) Option {
	return func(s *Store) {
		s.loader = l
	}
}

// WithScheduler sets the scheduler for the coalescing and load timers.
func WithScheduler(sc sched.Scheduler) Option {
	return func(s *Store) {
		s.sched = sched.OrSystem(sc)
	}
}

// WithCoalesceWindow sets how long writes are accumulated before emitting.
func WithCoalesceWindow(d time.Duration) Option {
	return func(s *Store) {
		s.window = d
	}
}

// WithLoadDebounce sets the TriggerLoad debounce window.
func WithLoadDebounce(d time.Duration) Option {
	return func(s *Store) {
		s.loadDebounce = d
	}
}

// WithLogger sets the structured logger. If nil, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithObserver sets the instrumentation observer.
func WithObserver(o Observer) Option {
	return func(s *Store) {
		s.observer = o
	}
}

// WithStrictChannel makes EmitChange panic when there are no keys to emit.
func WithStrictChannel() Option {
	return func(s *Store) {
		s.strict = true
	}
}

// WithHandlers maps action types to method names for HandleAction.
func WithHandlers(handlers map[string]string) Option {
	return func(s *Store) {
		for action, method := range handlers {
			s.handlers[action] = method
		}
	}
}
