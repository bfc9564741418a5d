package notify

import "sync/atomic"

// Listener receives change notifications.
//
// Listeners are identified by ID: registering a listener whose ID is already
// registered replaces the earlier registration rather than adding a duplicate.
type Listener interface {
	// HandleChange is called once per broadcast change.
	HandleChange(Change)

	// ID returns a unique identifier for this listener.
	ID() uint64
}

// listenerIDCounter is the source of listener IDs.
var listenerIDCounter uint64

// NextID returns the next unique listener ID.
// Types implementing Listener themselves should allocate their ID here.
func NextID() uint64 {
	return atomic.AddUint64(&listenerIDCounter, 1)
}

// funcListener adapts a function to the Listener interface.
type funcListener struct {
	id uint64
	fn func(Change)
}

// NewListener wraps fn in a Listener with a fresh ID.
// Keep the returned value to unsubscribe later; wrapping the same function
// twice produces two distinct listeners.
func NewListener(fn func(Change)) Listener {
	return &funcListener{id: NextID(), fn: fn}
}

func (l *funcListener) HandleChange(c Change) {
	if l.fn != nil {
		l.fn(c)
	}
}

func (l *funcListener) ID() uint64 {
	return l.id
}
