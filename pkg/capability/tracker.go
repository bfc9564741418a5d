package capability

import (
	"sync"

	"github.com/vango-dev/fluxstore/pkg/store"
)

// LoadTracker issues tickets for asynchronous loads. Only the most recently
// issued ticket is current, so a load that finishes after a newer one
// started can discard its result.
type LoadTracker struct {
	mu      sync.Mutex
	count   uint64
	current uint64
}

// Ticket identifies one load cycle.
type Ticket struct {
	tracker *LoadTracker
	id      uint64
}

// TrackerFor returns the tracker of s, creating it on first use.
func TrackerFor(s *store.Store) *LoadTracker {
	return stateFor(s, "LoadTracker", func() *LoadTracker { return &LoadTracker{} })
}

// Start issues a new ticket and makes it current.
func (t *LoadTracker) Start() Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.count++
	t.current = t.count
	return Ticket{tracker: t, id: t.count}
}

// IsCurrent reports whether no newer ticket has been issued.
func (k Ticket) IsCurrent() bool {
	if k.tracker == nil {
		return false
	}
	k.tracker.mu.Lock()
	defer k.tracker.mu.Unlock()
	return k.tracker.current == k.id
}
