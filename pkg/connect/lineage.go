package connect

import (
	"sync"

	"github.com/vango-dev/fluxstore/pkg/lineage"
	"github.com/vango-dev/fluxstore/pkg/resolve"
	"github.com/vango-dev/fluxstore/pkg/scope"
	"github.com/vango-dev/fluxstore/pkg/store"
)

// LineageSubscription subscribes to the stores of a scope's lineage that
// match a predicate. Stores are kept outer to inner so the nearest store wins
// when several define a key.
type LineageSubscription struct {
	*Subscription

	sc   *scope.Scope
	pred lineage.Predicate

	mu      sync.Mutex
	current []*store.Store
}

// FromLineage creates an unbound subscription to the stores visible from sc
// that match pred. A nil pred selects every store. Disposing sc disposes the
// subscription.
func FromLineage(sc *scope.Scope, pred lineage.Predicate, opts ...Option) *LineageSubscription {
	selected := lineage.From(sc).Filter(pred)
	l := &LineageSubscription{
		sc:      sc,
		pred:    pred,
		current: selected,
	}
	l.Subscription = New(toSources(selected), opts...)
	if sc != nil {
		sc.OnCleanup(l.Dispose)
	}
	return l
}

// Update re-evaluates the selection against the scope's lineage and rebinds
// when the matching stores differ. It is the props-changed signal for views
// whose provider chain may have changed.
func (l *LineageSubscription) Update() bool {
	selected := lineage.From(l.sc).Filter(l.pred)

	l.mu.Lock()
	if sameMembers(l.current, selected) {
		l.mu.Unlock()
		return false
	}
	l.current = selected
	l.mu.Unlock()

	return l.Rebind(toSources(selected))
}

// Nearest returns the innermost selected store.
func (l *LineageSubscription) Nearest() (*store.Store, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.current) == 0 {
		return nil, false
	}
	return l.current[len(l.current)-1], true
}

func toSources(stores []*store.Store) []resolve.Source {
	out := make([]resolve.Source, len(stores))
	for i, s := range stores {
		out[i] = s
	}
	return out
}

func sameMembers(a, b []*store.Store) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
