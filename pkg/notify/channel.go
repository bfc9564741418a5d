package notify

import (
	"runtime/debug"
	"sync"
)

// PanicHandler is called when a listener panics during delivery.
type PanicHandler func(c Change, l Listener, recovered any, stack []byte)

// Channel is a typed change notification channel.
// It is safe for concurrent use.
type Channel struct {
	// subs are the registered listeners in registration order.
	subs []Listener

	// mu protects subs.
	mu sync.RWMutex

	strict  bool
	onPanic PanicHandler
}

// ChannelOption configures a Channel.
type ChannelOption func(*Channel)

// Strict makes the channel reject typeless changes with a usage panic.
func Strict() ChannelOption {
	return func(c *Channel) {
		c.strict = true
	}
}

// OnPanic sets the handler invoked when a listener panics.
// Without a handler, listener panics are recovered silently.
func OnPanic(h PanicHandler) ChannelOption {
	return func(c *Channel) {
		c.onPanic = h
	}
}

// NewChannel creates a change channel.
func NewChannel(opts ...ChannelOption) *Channel {
	c := &Channel{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe registers l. A listener already registered under the same ID is
// removed first, so it is never invoked twice for one change.
func (c *Channel) Subscribe(l Listener) {
	if l == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(l.ID())
	c.subs = append(c.subs, l)
}

// Unsubscribe removes l. Removing an unknown listener is a no-op.
func (c *Channel) Unsubscribe(l Listener) {
	if l == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.removeLocked(l.ID())
}

// removeLocked drops the listener with id, preserving delivery order.
func (c *Channel) removeLocked(id uint64) {
	for i, existing := range c.subs {
		if existing.ID() == id {
			c.subs = append(c.subs[:i:i], c.subs[i+1:]...)
			return
		}
	}
}

// Len returns the number of registered listeners.
func (c *Channel) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// Emit broadcasts change to every listener in registration order.
// Listeners registered or removed during delivery take effect on the next Emit.
func (c *Channel) Emit(change Change) {
	if c.strict && !change.Typed() {
		Usage(CodeUntypedEmit, "Emit", "change events must have a type")
	}

	c.mu.RLock()
	subs := make([]Listener, len(c.subs))
	copy(subs, c.subs)
	c.mu.RUnlock()

	for _, sub := range subs {
		c.deliver(sub, change)
	}
}

// deliver invokes one listener, isolating its panics from the others.
func (c *Channel) deliver(l Listener, change Change) {
	defer func() {
		if r := recover(); r != nil {
			if c.onPanic != nil {
				c.onPanic(change, l, r, debug.Stack())
			}
		}
	}()
	l.HandleChange(change)
}
