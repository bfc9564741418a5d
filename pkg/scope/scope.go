// Package scope provides the tree-scoped value registry that views use to
// share stores with their descendants.
//
// Scopes form a hierarchy mirroring the view tree. A value set on a scope is
// visible to every descendant unless a nearer scope shadows it. Disposing a
// scope disposes its children first, then runs its cleanups in reverse order.
package scope

import (
	"sync"
	"sync/atomic"
)

var idCounter atomic.Uint64

// Scope is one node of the view tree.
type Scope struct {
	id     uint64
	parent *Scope

	childrenMu sync.Mutex
	children   []*Scope

	cleanupsMu sync.Mutex
	cleanups   []func()

	valuesMu sync.RWMutex
	values   map[any]any

	disposed atomic.Bool
}

// New creates a scope. A non-nil parent registers the scope as its child.
func New(parent *Scope) *Scope {
	s := &Scope{
		id:     idCounter.Add(1),
		parent: parent,
	}
	if parent != nil {
		parent.addChild(s)
	}
	return s
}

// ID returns the unique identifier of the scope.
func (s *Scope) ID() uint64 {
	return s.id
}

// Parent returns the parent scope, or nil for a root.
func (s *Scope) Parent() *Scope {
	return s.parent
}

// IsDisposed reports whether Dispose has been called.
func (s *Scope) IsDisposed() bool {
	return s.disposed.Load()
}

// SetValue stores a value on this scope.
func (s *Scope) SetValue(key, value any) {
	s.valuesMu.Lock()
	defer s.valuesMu.Unlock()

	if s.values == nil {
		s.values = make(map[any]any)
	}
	s.values[key] = value
}

// Value returns the value for key from this scope or the nearest ancestor
// that has one.
func (s *Scope) Value(key any) (any, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		cur.valuesMu.RLock()
		v, ok := cur.values[key]
		cur.valuesMu.RUnlock()
		if ok {
			return v, true
		}
	}
	return nil, false
}

// OnCleanup registers fn to run when the scope is disposed. On a disposed
// scope fn runs immediately.
func (s *Scope) OnCleanup(fn func()) {
	if s.disposed.Load() {
		fn()
		return
	}

	s.cleanupsMu.Lock()
	defer s.cleanupsMu.Unlock()
	s.cleanups = append(s.cleanups, fn)
}

// Dispose disposes the children in reverse order, then runs the cleanups
// in reverse registration order. Dispose is idempotent.
func (s *Scope) Dispose() {
	if s.disposed.Swap(true) {
		return
	}

	if s.parent != nil {
		s.parent.removeChild(s)
	}

	s.childrenMu.Lock()
	children := s.children
	s.children = nil
	s.childrenMu.Unlock()

	for i := len(children) - 1; i >= 0; i-- {
		children[i].Dispose()
	}

	s.cleanupsMu.Lock()
	cleanups := s.cleanups
	s.cleanups = nil
	s.cleanupsMu.Unlock()

	for i := len(cleanups) - 1; i >= 0; i-- {
		cleanups[i]()
	}
}

func (s *Scope) addChild(child *Scope) {
	s.childrenMu.Lock()
	defer s.childrenMu.Unlock()
	s.children = append(s.children, child)
}

func (s *Scope) removeChild(child *Scope) {
	s.childrenMu.Lock()
	defer s.childrenMu.Unlock()

	for i, c := range s.children {
		if c == child {
			s.children = append(s.children[:i], s.children[i+1:]...)
			return
		}
	}
}
