package notify

import "strings"

// Change is a change notification broadcast by a store.
//
// Keys holds the keys that changed in one coalesced batch. A single key is the
// "bare" form, several keys the list form. A Change without keys is typeless and
// carries no information about what changed.
type Change struct {
	// Keys are the changed keys in first-touched-first order.
	Keys []string

	// Source is the emitter of the change, usually a *store.Store.
	Source any
}

// Typed reports whether the change names at least one key.
func (c Change) Typed() bool {
	return len(c.Keys) > 0
}

// Type returns the single changed key when the change is in bare form.
func (c Change) Type() (string, bool) {
	if len(c.Keys) != 1 {
		return "", false
	}
	return c.Keys[0], true
}

// Has reports whether key is one of the changed keys.
func (c Change) Has(key string) bool {
	for _, k := range c.Keys {
		if k == key {
			return true
		}
	}
	return false
}

// String returns the keys joined by commas.
func (c Change) String() string {
	return strings.Join(c.Keys, ",")
}
