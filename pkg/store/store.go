package store

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vango-dev/fluxstore/pkg/notify"
	"github.com/vango-dev/fluxstore/pkg/sched"
)

// ErrNoMethod is returned when a named handler does not resolve to a method.
var ErrNoMethod = errors.New("store: handler does not resolve to a method")

// Store is an observable table of keyed values.
// All methods are safe for concurrent use.
type Store struct {
	id   string
	name string
	key  any

	mu sync.Mutex

	// data is the table; order records first insertion order of its keys.
	data  map[string]any
	order []string

	// defaults are the kind-level fallbacks, including methods.
	defaults map[string]any

	// changed buffers touched keys until the next emission.
	changed []string

	emitTimer sched.Timer
	emitGen   uint64
	loadTimer sched.Timer

	binding    any
	hasBinding bool

	propsListeners []propsListener
	propsSeq       uint64

	handlers map[string]string
	bound    map[*Method]*Bound

	disposed bool

	ch           *notify.Channel
	strict       bool
	loader       Loader
	sched        sched.Scheduler
	window       time.Duration
	loadDebounce time.Duration
	logger       *slog.Logger
	observer     Observer

	ctx    context.Context
	cancel context.CancelFunc
}

type propsListener struct {
	id uint64
	fn func(map[string]any)
}

// New creates a store.
func New(opts ...Option) *Store {
	s := &Store{
		id:           uuid.NewString(),
		data:         make(map[string]any),
		defaults:     make(map[string]any),
		handlers:     make(map[string]string),
		sched:        sched.System(),
		window:       DefaultCoalesceWindow,
		loadDebounce: DefaultLoadDebounce,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	chOpts := []notify.ChannelOption{notify.OnPanic(s.listenerPanicked)}
	if s.strict {
		chOpts = append(chOpts, notify.Strict())
	}
	s.ch = notify.NewChannel(chOpts...)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	return s
}

// ID returns the unique instance ID.
func (s *Store) ID() string {
	return s.id
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// Key returns the binding key the store was created for, if any.
func (s *Store) Key() any {
	return s.key
}

// Scheduler returns the scheduler the store arms its timers on.
func (s *Store) Scheduler() sched.Scheduler {
	return s.sched
}

// Logger returns the store's logger.
func (s *Store) Logger() *slog.Logger {
	return s.logger
}

// Context returns a context that is cancelled when the store is disposed.
func (s *Store) Context() context.Context {
	return s.ctx
}

// Get returns the value for key, falling back to the declared default.
// A key that was set, even to nil or a zero value, is returned as set.
func (s *Store) Get(key string) any {
	v, _ := s.Lookup(key)
	return v
}

// Lookup returns the value for key and whether the store defines it, either
// in its table or in its defaults.
func (s *Store) Lookup(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := s.data[key]; ok {
		return v, true
	}
	v, ok := s.defaults[key]
	return v, ok
}

// Set writes one value and schedules a coalesced emission.
func (s *Store) Set(key string, value any) {
	s.SetValues(map[string]any{key: value})
}

// SetValues writes several values and schedules a coalesced emission.
// A single pending timer absorbs every write until it fires.
func (s *Store) SetValues(values map[string]any) {
	s.mu.Lock()
	s.mergeLocked(values)
	s.scheduleLocked()
	s.mu.Unlock()

	s.observeWrite(len(values))
}

// SetImmediate writes one value and emits synchronously.
func (s *Store) SetImmediate(key string, value any) {
	s.SetValuesImmediate(map[string]any{key: value})
}

// SetValuesImmediate writes several values and emits synchronously,
// cancelling any pending coalesced emission.
func (s *Store) SetValuesImmediate(values map[string]any) {
	s.mu.Lock()
	s.mergeLocked(values)
	s.mu.Unlock()

	s.observeWrite(len(values))
	s.EmitChange()
}

// Clear empties the table. When it held any keys, an emission carrying all of
// them is scheduled, or sent right away when immediate is true.
func (s *Store) Clear(immediate bool) {
	s.mu.Lock()
	if len(s.order) == 0 {
		s.mu.Unlock()
		return
	}
	for _, k := range s.order {
		s.touchLocked(k)
	}
	s.data = make(map[string]any)
	s.order = nil
	if !immediate {
		s.scheduleLocked()
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.EmitChange()
}

// EmitChange cancels any pending emission and broadcasts a change carrying
// types followed by the buffered keys, de-duplicated in first-seen order.
// It broadcasts even when there are no keys; consumers treat such a change as
// carrying no information. A disposed store does not broadcast.
func (s *Store) EmitChange(types ...string) {
	s.mu.Lock()
	s.stopEmitLocked()
	keys := mergeKeys(types, s.changed)
	s.changed = nil
	disposed := s.disposed
	s.mu.Unlock()

	if disposed {
		return
	}

	done := s.observeEmit(keys)
	s.ch.Emit(notify.Change{Keys: keys, Source: s})
	done()
}

// AddChangeListener subscribes l. Adding the same listener again replaces the
// earlier registration.
func (s *Store) AddChangeListener(l notify.Listener) {
	s.ch.Subscribe(l)
}

// RemoveChangeListener unsubscribes l. It is idempotent.
func (s *Store) RemoveChangeListener(l notify.Listener) {
	s.ch.Unsubscribe(l)
}

// ListenerCount returns the number of change listeners.
func (s *Store) ListenerCount() int {
	return s.ch.Len()
}

// Define adds a default under name unless the store already declares one.
// It reports whether the default was added.
func (s *Store) Define(name string, value any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.defaults[name]; ok {
		return false
	}
	s.defaults[name] = value
	return true
}

// HasDefault reports whether name is declared as a default.
func (s *Store) HasDefault(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.defaults[name]
	return ok
}

// Keys returns the keys of the table in first insertion order.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]string(nil), s.order...)
}

// Snapshot returns a copy of the table.
func (s *Store) Snapshot() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Values returns the declared defaults overlaid with the table, which is
// what Get would return for every known key.
func (s *Store) Values() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]any, len(s.defaults)+len(s.data))
	for k, v := range s.defaults {
		out[k] = v
	}
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Invoke calls the method registered under name with args.
// A name that does not resolve to a method is logged and reported as ErrNoMethod.
func (s *Store) Invoke(name string, args ...any) (any, error) {
	v, _ := s.Lookup(name)
	m, ok := v.(*Method)
	if !ok {
		s.logger.Warn("store: key does not point to a method",
			"store", s.name,
			"key", name,
		)
		return nil, ErrNoMethod
	}
	return m.Call(s, args...), nil
}

// HandleAction dispatches payload to the method registered for action via
// WithHandlers. It reports whether a handler ran.
func (s *Store) HandleAction(action string, payload any) bool {
	if action == "" {
		s.logger.Error("store: dispatched action does not have a type", "store", s.name)
		return false
	}

	s.mu.Lock()
	name, ok := s.handlers[action]
	s.mu.Unlock()
	if !ok {
		return false
	}

	_, err := s.Invoke(name, payload)
	return err == nil
}

// Dispose cancels pending timers and the load context. After Dispose the
// store no longer emits changes. It is idempotent.
func (s *Store) Dispose() {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	s.disposed = true
	s.stopEmitLocked()
	if s.loadTimer != nil {
		s.loadTimer.Stop()
		s.loadTimer = nil
	}
	s.changed = nil
	s.mu.Unlock()

	s.cancel()
}

// IsDisposed reports whether Dispose was called.
func (s *Store) IsDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// mergeLocked writes values into the table and buffers their keys.
// Keys are processed in sorted order so that multi-key writes buffer
// deterministically.
func (s *Store) mergeLocked(values map[string]any) {
	for _, k := range sortedKeys(values) {
		s.putLocked(k, values[k])
		s.touchLocked(k)
	}
}

func (s *Store) putLocked(key string, value any) {
	if _, ok := s.data[key]; !ok {
		s.order = append(s.order, key)
	}
	s.data[key] = value
}

func (s *Store) touchLocked(key string) {
	for _, k := range s.changed {
		if k == key {
			return
		}
	}
	s.changed = append(s.changed, key)
}

// scheduleLocked arms the coalescing timer unless one is pending.
func (s *Store) scheduleLocked() {
	if s.emitTimer != nil || s.disposed {
		return
	}
	s.emitGen++
	gen := s.emitGen
	s.emitTimer = s.sched.AfterFunc(s.window, func() {
		s.flush(gen)
	})
}

// flush emits for the timer armed at generation gen. A timer that lost the
// race with EmitChange or Dispose finds a newer generation and does nothing.
func (s *Store) flush(gen uint64) {
	s.mu.Lock()
	stale := s.emitTimer == nil || s.emitGen != gen
	s.mu.Unlock()
	if stale {
		return
	}
	s.EmitChange()
}

func (s *Store) stopEmitLocked() {
	if s.emitTimer != nil {
		s.emitTimer.Stop()
		s.emitTimer = nil
	}
	s.emitGen++
}

func (s *Store) listenerPanicked(c notify.Change, _ notify.Listener, recovered any, stack []byte) {
	s.logger.Error("store: change listener panicked",
		"store", s.name,
		"keys", c.Keys,
		"panic", recovered,
		"stack", string(stack),
	)
	if s.observer != nil {
		s.observer.ListenerPanic(s.name, recovered)
	}
}

func (s *Store) observeWrite(n int) {
	if s.observer != nil {
		s.observer.StoreWrite(s.name, n)
	}
}

func (s *Store) observeEmit(keys []string) func() {
	if s.observer == nil {
		return func() {}
	}
	if done := s.observer.StoreEmit(s.name, keys); done != nil {
		return done
	}
	return func() {}
}

// mergeKeys concatenates lists, dropping repeats.
func mergeKeys(lists ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, list := range lists {
		for _, k := range list {
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// Equal reports whether two values are the same. Comparable values use ==,
// anything else falls back to reflect.DeepEqual.
func Equal(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ta, tb := reflect.TypeOf(a), reflect.TypeOf(b)
	if ta != tb {
		return false
	}
	if ta.Comparable() {
		return a == b
	}
	return reflect.DeepEqual(a, b)
}
