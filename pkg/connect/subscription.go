package connect

import (
	"log/slog"
	"sync"

	"github.com/vango-dev/fluxstore/pkg/keymap"
	"github.com/vango-dev/fluxstore/pkg/notify"
	"github.com/vango-dev/fluxstore/pkg/resolve"
)

// State is the lifecycle state of a subscription.
type State int

const (
	// Unbound subscriptions hold a store set but do not listen yet.
	Unbound State = iota

	// Bound subscriptions listen to every store in their set.
	Bound

	// Disposed subscriptions ignore all further events.
	Disposed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	case Disposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Subscription connects a view to an ordered set of stores. The last store
// in the set wins when several define a selected key.
type Subscription struct {
	mu       sync.Mutex
	state    State
	stores   []resolve.Source
	selected keymap.KeyMap
	extra    resolve.Props
	passed   resolve.Props
	props    resolve.Props

	refresh func(resolve.Props)
	cleanup func()
	logger  *slog.Logger

	listener notify.Listener
}

// New creates an unbound subscription to stores.
func New(stores []resolve.Source, opts ...Option) *Subscription {
	return newSubscription(stores, buildOptions(opts))
}

func newSubscription(stores []resolve.Source, o options) *Subscription {
	s := &Subscription{
		stores:   stores,
		selected: o.selection,
		extra:    o.extra,
		passed:   o.props,
		refresh:  o.refresh,
		cleanup:  o.cleanup,
		logger:   o.logger,
	}
	s.listener = notify.NewListener(s.handleChange)
	s.props = s.computeLocked()
	return s
}

// State returns the lifecycle state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stores returns the current store set.
func (s *Subscription) Stores() []resolve.Source {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stores
}

// Selection returns the normalized key selection.
func (s *Subscription) Selection() keymap.KeyMap {
	return s.selected
}

// Mount subscribes to every store in the set and resolves the initial props.
// Mount on a bound or disposed subscription does nothing.
func (s *Subscription) Mount() {
	s.mu.Lock()
	if s.state != Unbound {
		s.mu.Unlock()
		return
	}
	s.state = Bound
	stores := s.stores
	s.props = s.computeLocked()
	s.mu.Unlock()

	s.subscribe(stores)
}

// Rebind replaces the store set. When the new set is a different slice from
// the current one the whole old set is unsubscribed and the whole new set
// subscribed, even if they share members. It reports whether a rebind
// happened. A rebind while bound refreshes the view.
func (s *Subscription) Rebind(stores []resolve.Source) bool {
	s.mu.Lock()
	if s.state == Disposed || sameSet(s.stores, stores) {
		s.mu.Unlock()
		return false
	}
	old := s.stores
	s.stores = stores
	bound := s.state == Bound
	s.props = s.computeLocked()
	props := s.props
	s.mu.Unlock()

	if !bound {
		return true
	}
	s.logger.Debug("connect: rebinding subscription", "from", len(old), "to", len(stores))
	s.unsubscribe(old)
	s.subscribe(stores)
	s.notify(props)
	return true
}

// SetProps replaces the passthrough props and returns the merged props. It is
// the props-changed signal of the view and does not request a refresh.
func (s *Subscription) SetProps(p resolve.Props) resolve.Props {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.passed = p
	s.props = s.computeLocked()
	return copyProps(s.props)
}

// Props returns the last merged props.
func (s *Subscription) Props() resolve.Props {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyProps(s.props)
}

// Dispose unsubscribes from every store and runs the cleanup hook. Changes
// delivered afterwards are ignored. Dispose is idempotent.
func (s *Subscription) Dispose() {
	s.mu.Lock()
	if s.state == Disposed {
		s.mu.Unlock()
		return
	}
	bound := s.state == Bound
	s.state = Disposed
	stores := s.stores
	cleanup := s.cleanup
	s.mu.Unlock()

	if bound {
		s.unsubscribe(stores)
	}
	if cleanup != nil {
		cleanup()
	}
}

func (s *Subscription) handleChange(c notify.Change) {
	if props, ok := s.update(c); ok {
		s.notify(props)
	}
}

// update re-resolves props when c is relevant to the selection.
func (s *Subscription) update(c notify.Change) (resolve.Props, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Bound || !keymap.ShouldUpdate(c, s.selected) {
		return nil, false
	}
	s.props = s.computeLocked()
	return s.props, true
}

func (s *Subscription) notify(props resolve.Props) {
	if s.refresh != nil {
		s.refresh(copyProps(props))
	}
}

func (s *Subscription) computeLocked() resolve.Props {
	return resolve.Merge(resolve.ResolveAll(s.stores, s.selected), s.extra, s.passed)
}

func (s *Subscription) subscribe(stores []resolve.Source) {
	for _, src := range stores {
		if src != nil {
			src.AddChangeListener(s.listener)
		}
	}
}

func (s *Subscription) unsubscribe(stores []resolve.Source) {
	for _, src := range stores {
		if src != nil {
			src.RemoveChangeListener(s.listener)
		}
	}
}

// sameSet reports whether a and b are the same slice: same length and, when
// non-empty, the same backing array start.
func sameSet(a, b []resolve.Source) bool {
	if len(a) != len(b) {
		return false
	}
	if len(a) == 0 {
		return (a == nil) == (b == nil)
	}
	return &a[0] == &b[0]
}

func copyProps(p resolve.Props) resolve.Props {
	out := make(resolve.Props, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
