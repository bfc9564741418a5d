// Package lineage tracks the ordered chain of stores provided by enclosing
// views.
//
// Each view that provides a store creates a child scope whose lineage is the
// parent's lineage plus that store. Lineages are append-only and ordered
// outer to inner, so the last element is the nearest store.
package lineage

import (
	"github.com/vango-dev/fluxstore/pkg/scope"
	"github.com/vango-dev/fluxstore/pkg/store"
)

type lineageKey struct{}

// Predicate selects stores from a lineage.
type Predicate func(s *store.Store) bool

// Lineage is an immutable outer-to-inner sequence of stores.
type Lineage struct {
	stores []*store.Store
}

// Provide creates a child scope of parent that exposes the parent's lineage
// extended with s.
func Provide(parent *scope.Scope, s *store.Store) *scope.Scope {
	child := scope.New(parent)
	child.SetValue(lineageKey{}, From(parent).with(s))
	return child
}

// From returns the lineage visible from sc. A nil scope or one without any
// provider yields an empty lineage.
func From(sc *scope.Scope) *Lineage {
	if sc == nil {
		return &Lineage{}
	}
	if v, ok := sc.Value(lineageKey{}); ok {
		return v.(*Lineage)
	}
	return &Lineage{}
}

// Of builds a lineage from stores ordered outer to inner.
func Of(stores ...*store.Store) *Lineage {
	return &Lineage{stores: append([]*store.Store(nil), stores...)}
}

func (l *Lineage) with(s *store.Store) *Lineage {
	stores := make([]*store.Store, len(l.stores), len(l.stores)+1)
	copy(stores, l.stores)
	return &Lineage{stores: append(stores, s)}
}

// Len returns the number of stores.
func (l *Lineage) Len() int {
	return len(l.stores)
}

// Stores returns a copy of the stores, outer to inner.
func (l *Lineage) Stores() []*store.Store {
	return append([]*store.Store(nil), l.stores...)
}

// Nearest returns the innermost store matching pred. A nil pred matches any
// store.
func (l *Lineage) Nearest(pred Predicate) (*store.Store, bool) {
	for i := len(l.stores) - 1; i >= 0; i-- {
		if pred == nil || pred(l.stores[i]) {
			return l.stores[i], true
		}
	}
	return nil, false
}

// Filter returns the stores matching pred, outer to inner.
func (l *Lineage) Filter(pred Predicate) []*store.Store {
	var out []*store.Store
	for _, s := range l.stores {
		if pred == nil || pred(s) {
			out = append(out, s)
		}
	}
	return out
}

// Named matches stores with the given name.
func Named(name string) Predicate {
	return func(s *store.Store) bool {
		return s.Name() == name
	}
}

// Defines matches stores with a value or default for key.
func Defines(key string) Predicate {
	return func(s *store.Store) bool {
		_, ok := s.Lookup(key)
		return ok
	}
}
