package store

import (
	"context"
	"runtime/debug"
	"sort"
)

// LoadMethod is the default method name Load falls back to when no Loader
// is configured.
const LoadMethod = "load"

// HasLoader reports whether a Loader is configured or a method is declared
// under LoadMethod.
func (s *Store) HasLoader() bool {
	return s.loaderFunc() != nil
}

// loaderFunc returns the configured loader, or one calling the LoadMethod
// default, or nil.
func (s *Store) loaderFunc() Loader {
	if s.loader != nil {
		return s.loader
	}
	s.mu.Lock()
	m, ok := s.defaults[LoadMethod].(*Method)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return LoadFunc(func(_ context.Context, st *Store) {
		m.Call(st)
	})
}

// TriggerLoad requests a Load. The first request arms the debounce timer and
// later requests inside the window are absorbed; once the timer fires the
// loader runs once and the next request arms a new cycle. Without a loader
// TriggerLoad does nothing.
func (s *Store) TriggerLoad() {
	if !s.HasLoader() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loadTimer != nil || s.disposed {
		return
	}
	s.loadTimer = s.sched.AfterFunc(s.loadDebounce, func() {
		s.mu.Lock()
		s.loadTimer = nil
		disposed := s.disposed
		s.mu.Unlock()

		if !disposed {
			s.Load()
		}
	})
}

// Load runs the loader immediately with the store's context.
// A store without a loader logs the omission and returns.
func (s *Store) Load() {
	loader := s.loaderFunc()
	if loader == nil {
		s.logger.Warn("store: Load called on a store without a loader", "store", s.name)
		return
	}
	if s.IsDisposed() {
		return
	}
	loader.Load(s.ctx, s)
}

// SetBinding records the value the store is bound to and calls Load when it
// differs from the previous binding. The first binding always loads.
func (s *Store) SetBinding(binding any) {
	s.mu.Lock()
	changed := !s.hasBinding || !Equal(s.binding, binding)
	s.binding = binding
	s.hasBinding = true
	s.mu.Unlock()

	if changed {
		s.Load()
	}
}

// Binding returns the current binding.
func (s *Store) Binding() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.binding
}

// OnPropsChange registers fn to receive the props of connected views.
// The returned function removes the registration.
func (s *Store) OnPropsChange(fn func(props map[string]any)) (remove func()) {
	s.mu.Lock()
	s.propsSeq++
	id := s.propsSeq
	s.propsListeners = append(s.propsListeners, propsListener{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.propsListeners {
			if l.id == id {
				s.propsListeners = append(s.propsListeners[:i:i], s.propsListeners[i+1:]...)
				return
			}
		}
	}
}

// NotifyPropsChange passes props to every props-change listener. A panicking
// listener is logged and does not prevent the others from running.
func (s *Store) NotifyPropsChange(props map[string]any) {
	s.mu.Lock()
	listeners := append([]propsListener(nil), s.propsListeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		s.callPropsListener(l, props)
	}
}

func (s *Store) callPropsListener(l propsListener, props map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("store: props change listener panicked",
				"store", s.name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		}
	}()
	l.fn(props)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
