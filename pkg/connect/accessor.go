package connect

import (
	"sync"

	"github.com/vango-dev/fluxstore/pkg/notify"
	"github.com/vango-dev/fluxstore/pkg/resolve"
)

// Accessor is a short-lived getter used while a view renders. Every Get
// records the key as monitored; Commit locks the accessor and subscribes to
// the stores with the monitored keys as selection. Reading from a locked
// accessor panics, so the accessor must not be retained past the render that
// created it.
//
// Accessor has no bulk getter; values are read one key at a time.
type Accessor struct {
	mu        sync.Mutex
	stores    []resolve.Source
	monitored []string
	seen      map[string]bool
	locked    bool
	opts      []Option
}

// NewAccessor creates an open accessor over stores. The options are applied
// to the subscription built by Commit.
func NewAccessor(stores []resolve.Source, opts ...Option) *Accessor {
	return &Accessor{
		stores: stores,
		seen:   make(map[string]bool),
		opts:   opts,
	}
}

// Get resolves key against the stores and monitors it.
func (a *Accessor) Get(key string) any {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.locked {
		notify.Usage(notify.CodeLockedAccessor, "Accessor.Get",
			"do not store a reference to this accessor; read values while rendering and discard it")
	}
	if !a.seen[key] {
		a.seen[key] = true
		a.monitored = append(a.monitored, key)
	}

	res, ok := resolve.Resolve(a.stores, key)
	if !ok {
		return nil
	}
	return res.Value
}

// Monitored returns the keys read so far, in first-read order.
func (a *Accessor) Monitored() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.monitored...)
}

// Locked reports whether Commit has been called.
func (a *Accessor) Locked() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.locked
}

// Commit locks the accessor and returns a mounted subscription selecting the
// monitored keys. An accessor that read nothing subscribes with a wildcard
// selection.
func (a *Accessor) Commit() *Subscription {
	a.mu.Lock()
	a.locked = true
	keys := append([]string(nil), a.monitored...)
	a.mu.Unlock()

	opts := append(append([]Option(nil), a.opts...), WithSelection(keys))
	sub := New(a.stores, opts...)
	sub.Mount()
	return sub
}
