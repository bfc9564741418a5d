// Package store provides the observable keyed-state unit of fluxstore.
//
// A Store holds a table of values, coalesces bursts of writes into a single
// change notification and lets listeners subscribe to those notifications.
//
//	cart := store.New(
//	    store.WithName("cart"),
//	    store.WithDefaults(map[string]any{"items": []Item(nil)}),
//	)
//
//	l := notify.NewListener(func(c notify.Change) {
//	    fmt.Println("changed:", c.Keys)
//	})
//	cart.AddChangeListener(l)
//
//	cart.Set("items", items)
//	cart.Set("total", 3)
//	// one notification carrying [items total] after the coalescing window
//
// # Defaults and Methods
//
// Get falls back to the defaults declared for the store kind when a key was
// never set. Defaults may hold *Method values; resolving a method through the
// resolve package yields a *Bound that is stable for the lifetime of the store.
//
// # Loading
//
// A store configured WithLoader exposes a debounced TriggerLoad. SetBinding
// calls the loader directly whenever the binding changes.
package store
