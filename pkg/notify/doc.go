// Package notify provides the change notification channel shared by stores.
//
// A Channel is the explicit composition of a typed event emitter: stores embed
// one and expose only AddChangeListener, RemoveChangeListener and EmitChange.
//
//	ch := notify.NewChannel()
//	l := notify.NewListener(func(c notify.Change) {
//	    fmt.Println("changed:", c.Keys)
//	})
//	ch.Subscribe(l)
//	ch.Emit(notify.Change{Keys: []string{"items"}})
//
// # Delivery
//
// Listeners are invoked in registration order, outside of any lock. A panic in
// one listener is recovered and reported through the channel's panic handler
// so the remaining listeners are still notified.
//
// # Usage Errors
//
// Programming mistakes (an untyped change on a strict channel, an untyped change
// reaching a key selection, reading a locked accessor) panic with a *UsageError.
package notify
