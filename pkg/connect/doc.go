// Package connect keeps views subscribed to the stores they read from.
//
// A Subscription binds one view to an ordered set of stores and a key
// selection. While bound it listens to every store in the set, and on each
// relevant change it re-resolves the selected props and asks the view to
// refresh:
//
//	sub := connect.New(resolve.Stores(cart),
//	    connect.WithSelection([]string{"items", "total"}),
//	    connect.WithRefresh(func(p resolve.Props) { view.Render(p) }),
//	)
//	sub.Mount()
//	defer sub.Dispose()
//
// Instance is the single-store form that also drives the store's loader from
// a binding key. FromLineage selects the stores from the enclosing scope's
// lineage, and Accessor records the keys a view reads during one render.
//
// Resolved props are layered lowest to highest: values resolved from stores,
// extra props supplied by the connector, then props passed through by the
// caller.
package connect
