// Package capability layers reusable behaviors onto stores.
//
// A Capability is a named set of methods plus an optional initializer. Apply
// merges the methods into a store's defaults, skipping any name the store
// already declares, so a store overrides a capability method by declaring it
// first. Each capability may be applied to a store once.
//
//	s := store.New(store.WithDefaults(map[string]any{
//	    "applySort": store.Func("applySort", customSort),
//	}))
//	err := capability.Apply(s, capability.Sortable("title", "asc"), capability.Searchable())
package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vango-dev/fluxstore/pkg/persist"
	"github.com/vango-dev/fluxstore/pkg/store"
)

// ReservedMethod is the lifecycle method name stores must not declare.
const ReservedMethod = "initCapabilities"

var (
	// ErrDuplicateCapability is returned when a capability ID is applied twice.
	ErrDuplicateCapability = errors.New("capability: cannot use the same capability more than once")

	// ErrReservedMethod is returned when a store declares ReservedMethod.
	ErrReservedMethod = errors.New("capability: store declares the reserved " + ReservedMethod + " method")

	// ErrMissingID is returned for a capability without an ID.
	ErrMissingID = errors.New("capability: missing ID")

	// ErrInvalidStorage is returned when a stateful capability is given no storage.
	ErrInvalidStorage = errors.New("capability: invalid storage")
)

// Capability is a reusable behavior.
type Capability struct {
	// ID identifies the capability. A store accepts each ID once.
	ID string

	// Methods are merged into the store's defaults.
	Methods map[string]*store.Method

	// Init runs once per store after every capability's methods are merged.
	Init func(s *store.Store) error
}

// Option configures the built-in capabilities.
type Option func(*settings)

type settings struct {
	value      any
	buffer     time.Duration
	derive     func(props map[string]any) (any, bool)
	storage    persist.Storage
	storageSet bool
}

// Default sets the initial value of the capability's key.
func Default(v any) Option {
	return func(o *settings) {
		o.value = v
	}
}

// Buffer sets the search buffer of Searchable.
func Buffer(d time.Duration) Option {
	return func(o *settings) {
		o.buffer = d
	}
}

// Derive sets how the capability's value is read from view props.
func Derive(fn func(props map[string]any) (any, bool)) Option {
	return func(o *settings) {
		o.derive = fn
	}
}

// Storage sets the backend of Stateful.
func Storage(st persist.Storage) Option {
	return func(o *settings) {
		o.storage = st
		o.storageSet = true
	}
}

func buildSettings(opts []Option) settings {
	var o settings
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// record tracks what has been applied to one store.
type record struct {
	applied []string
	state   map[string]any
}

var (
	mu      sync.Mutex
	records = make(map[*store.Store]*record)
)

// recordLocked returns the record for s, creating it on first use. The
// record is dropped when s is disposed.
func recordLocked(s *store.Store) *record {
	if r, ok := records[s]; ok {
		return r
	}
	r := &record{state: make(map[string]any)}
	records[s] = r
	context.AfterFunc(s.Context(), func() {
		mu.Lock()
		delete(records, s)
		mu.Unlock()
	})
	return r
}

// Apply applies caps to s in order. Validation happens before any method is
// merged, so a validation error leaves s untouched. Init runs after every
// capability is recorded and merged; an Init error leaves them applied and
// the store should be discarded.
func Apply(s *store.Store, caps ...Capability) error {
	if s.HasDefault(ReservedMethod) {
		return fmt.Errorf("%w (store %q)", ErrReservedMethod, s.Name())
	}

	mu.Lock()
	r := recordLocked(s)
	seen := make(map[string]bool, len(r.applied)+len(caps))
	for _, id := range r.applied {
		seen[id] = true
	}
	for _, c := range caps {
		if c.ID == "" {
			mu.Unlock()
			return ErrMissingID
		}
		if seen[c.ID] {
			mu.Unlock()
			return fmt.Errorf("%w: %s", ErrDuplicateCapability, c.ID)
		}
		seen[c.ID] = true
	}
	for _, c := range caps {
		r.applied = append(r.applied, c.ID)
	}
	mu.Unlock()

	for _, c := range caps {
		names := make([]string, 0, len(c.Methods))
		for name := range c.Methods {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			s.Define(name, c.Methods[name])
		}
	}

	for _, c := range caps {
		if c.Init == nil {
			continue
		}
		if err := c.Init(s); err != nil {
			return fmt.Errorf("capability %s: %w", c.ID, err)
		}
	}
	return nil
}

// Applied reports whether the capability id was applied to s.
func Applied(s *store.Store, id string) bool {
	mu.Lock()
	defer mu.Unlock()

	r, ok := records[s]
	if !ok {
		return false
	}
	for _, a := range r.applied {
		if a == id {
			return true
		}
	}
	return false
}

// stateFor returns the per-store state of capability id, creating it with
// init on first use.
func stateFor[T any](s *store.Store, id string, init func() *T) *T {
	mu.Lock()
	defer mu.Unlock()

	r := recordLocked(s)
	if v, ok := r.state[id].(*T); ok {
		return v
	}
	v := init()
	r.state[id] = v
	return v
}

// override returns the method s declares under name.
func override(s *store.Store, name string) (*store.Method, bool) {
	v, ok := s.Lookup(name)
	if !ok {
		return nil, false
	}
	m, ok := v.(*store.Method)
	return m, ok
}

// applyOr calls the override method name with args, or emits keys when the
// store declares none.
func applyOr(s *store.Store, name string, args []any, keys ...string) {
	if m, ok := override(s, name); ok {
		m.Call(s, args...)
		return
	}
	s.EmitChange(keys...)
}

func arg[T any](args []any, i int) T {
	var zero T
	if i >= len(args) {
		return zero
	}
	v, _ := args[i].(T)
	return v
}

func invoke(s *store.Store, name string, args ...any) error {
	_, err := s.Invoke(name, args...)
	return err
}
