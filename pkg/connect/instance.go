package connect

import (
	"sync"

	"github.com/vango-dev/fluxstore/pkg/resolve"
	"github.com/vango-dev/fluxstore/pkg/store"
)

// Instance connects a view to a single store selected by a binding key.
//
// The store is exposed to the view under the store prop (DefaultStoreProp
// unless WithStoreProp says otherwise). Whenever the binding key changes the
// store is rebound to it, which runs its loader.
type Instance struct {
	*Subscription

	opts options

	mu         sync.Mutex
	store      *store.Store
	binding    any
	hasBinding bool
}

// NewInstance creates an unbound single-store subscription.
func NewInstance(st *store.Store, opts ...Option) *Instance {
	o := buildOptions(opts)
	i := &Instance{opts: o, store: st}
	o.extra = i.extraFor(st)
	i.Subscription = newSubscription(sources(st), o)
	return i
}

// Store returns the bound store.
func (i *Instance) Store() *store.Store {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.store
}

// Mount subscribes to the store and binds it to binding.
func (i *Instance) Mount(binding any) {
	i.Subscription.Mount()
	i.bind(binding)
}

// Rebind switches to st and binding. A different store replaces the
// subscription; a different binding key runs the store's loader. It reports
// whether either changed.
func (i *Instance) Rebind(st *store.Store, binding any) bool {
	if i.State() == Disposed {
		return false
	}

	i.mu.Lock()
	storeChanged := st != i.store
	i.store = st
	i.mu.Unlock()

	if storeChanged {
		i.Subscription.mu.Lock()
		i.Subscription.extra = i.extraFor(st)
		i.Subscription.mu.Unlock()
		i.Subscription.Rebind(sources(st))
	}
	return i.bind(binding) || storeChanged
}

// SetProps replaces the passthrough props and forwards them to the store's
// props-change listeners.
func (i *Instance) SetProps(p resolve.Props) resolve.Props {
	merged := i.Subscription.SetProps(p)
	if st := i.Store(); st != nil {
		st.NotifyPropsChange(p)
	}
	return merged
}

// bind records binding and loads the store when it changed.
func (i *Instance) bind(binding any) bool {
	i.mu.Lock()
	changed := !i.hasBinding || !store.Equal(i.binding, binding)
	i.binding = binding
	i.hasBinding = true
	st := i.store
	i.mu.Unlock()

	if changed && st != nil && st.HasLoader() {
		st.SetBinding(binding)
	}
	return changed
}

func (i *Instance) extraFor(st *store.Store) resolve.Props {
	extra := resolve.Merge(i.opts.extra)
	if i.opts.storeProp != "" && st != nil {
		extra[i.opts.storeProp] = st
	}
	return extra
}

func sources(st *store.Store) []resolve.Source {
	if st == nil {
		return nil
	}
	return []resolve.Source{st}
}
