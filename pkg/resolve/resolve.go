// Package resolve computes view props from an ordered list of stores.
//
// Stores are searched from the last to the first, so the last store in the
// list wins when several define the same key. Callers arrange the list so the
// preferred store comes last; a lineage passed in declaration order therefore
// lets the nearest store win.
package resolve

import (
	"github.com/vango-dev/fluxstore/pkg/keymap"
	"github.com/vango-dev/fluxstore/pkg/notify"
	"github.com/vango-dev/fluxstore/pkg/store"
)

// Source is the minimum a store must offer to take part in resolution and
// subscriptions.
type Source interface {
	// Lookup returns the value for key and whether the source defines it.
	Lookup(key string) (any, bool)

	// AddChangeListener subscribes l to change notifications.
	AddChangeListener(l notify.Listener)

	// RemoveChangeListener unsubscribes l.
	RemoveChangeListener(l notify.Listener)
}

// binder is implemented by sources that cache bound methods.
type binder interface {
	Bind(m *store.Method) *store.Bound
}

// Props is a resolved prop set.
type Props map[string]any

// Merge returns a new Props with the entries of each layer applied in order,
// later layers overriding earlier ones.
func Merge(layers ...Props) Props {
	out := make(Props)
	for _, layer := range layers {
		for k, v := range layer {
			out[k] = v
		}
	}
	return out
}

// Result is the outcome of resolving one key.
type Result struct {
	// Source is the store that defined the key.
	Source Source

	// Value is the resolved value. Methods are returned bound to Source.
	Value any
}

// Resolve finds the last store in stores that defines key with a non-nil
// value. A stored nil does not shadow an earlier store.
func Resolve(stores []Source, key string) (Result, bool) {
	for i := len(stores) - 1; i >= 0; i-- {
		src := stores[i]
		if src == nil {
			continue
		}
		v, ok := src.Lookup(key)
		if !ok || v == nil {
			continue
		}
		return Result{Source: src, Value: bindValue(src, v)}, true
	}
	return Result{}, false
}

// ResolveAll resolves every entry of selection against stores.
//
// Entries whose target is a prop name are written under that name when some
// store defines the key and are absent otherwise. Literal entries are passed
// through under their original key.
func ResolveAll(stores []Source, selection any) Props {
	km := keymap.Normalize(selection)
	props := make(Props, len(km))

	for key, target := range km {
		name, ok := target.(string)
		if !ok {
			props[key] = target
			continue
		}
		if res, found := Resolve(stores, key); found {
			props[name] = res.Value
		}
	}
	return props
}

// bindValue binds methods to the source that defined them.
func bindValue(src Source, v any) any {
	m, ok := v.(*store.Method)
	if !ok {
		return v
	}
	if b, ok := src.(binder); ok {
		return b.Bind(m)
	}
	return v
}

// Stores converts concrete stores into sources, preserving order.
func Stores(stores ...*store.Store) []Source {
	out := make([]Source, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}
