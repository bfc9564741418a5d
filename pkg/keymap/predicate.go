package keymap

import "github.com/vango-dev/fluxstore/pkg/notify"

// ShouldUpdate reports whether a subscriber with the given selection must
// refresh for change.
//
// An empty selection is a wildcard: every typed change triggers an update and a
// typeless change does not. A typeless change reaching a non-empty selection is
// a contract violation and panics with a usage error.
func ShouldUpdate(change notify.Change, selection any) bool {
	normalized := Normalize(selection)

	if !change.Typed() {
		if len(normalized) > 0 {
			notify.Usage(notify.CodeUntypedSelection, "ShouldUpdate", "no type on change")
		}
		return false
	}

	if len(normalized) == 0 {
		return true
	}

	for _, key := range change.Keys {
		if normalized.Has(key) {
			return true
		}
	}
	return false
}
