// Package keymap canonicalizes key selections and decides whether a change
// notification is relevant to a selection.
//
// A selection is written as a list of keys, a set of keys or an explicit
// mapping from store key to prop name:
//
//	keymap.Normalize([]string{"items", "loading"})
//	keymap.Normalize(keymap.KeyMap{"AppUser": "user", "pageSize": 20})
//
// String values in a KeyMap name the prop the resolved value is written to.
// Any other value is a literal that is passed through without consulting a store.
package keymap

import (
	"fmt"

	"github.com/vango-dev/fluxstore/pkg/notify"
)

// KeyMap maps a store key to a target prop name (string) or a literal value.
type KeyMap map[string]any

// Keys returns the selected keys. Order is unspecified.
func (m KeyMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Has reports whether key is selected.
func (m KeyMap) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Target returns the prop name for key and whether the entry is resolvable.
// Literal entries report false.
func (m KeyMap) Target(key string) (string, bool) {
	name, ok := m[key].(string)
	return name, ok
}

// Of builds a KeyMap selecting each key under its own name.
func Of(keys ...string) KeyMap {
	return Normalize(keys)
}

// Normalize converts a selection into a KeyMap.
//
// Supported inputs are nil, []string, map[string]struct{}, map[string]bool,
// map[string]string, map[string]any and KeyMap. Mappings are returned with
// the same entries; list and set forms map every key to itself. Any other
// input type panics with a usage error.
func Normalize(spec any) KeyMap {
	switch v := spec.(type) {
	case nil:
		return nil
	case KeyMap:
		return v
	case map[string]any:
		return KeyMap(v)
	case map[string]string:
		m := make(KeyMap, len(v))
		for k, name := range v {
			m[k] = name
		}
		return m
	case []string:
		m := make(KeyMap, len(v))
		for _, k := range v {
			m[k] = k
		}
		return m
	case map[string]struct{}:
		m := make(KeyMap, len(v))
		for k := range v {
			m[k] = k
		}
		return m
	case map[string]bool:
		m := make(KeyMap, len(v))
		for k, in := range v {
			if in {
				m[k] = k
			}
		}
		return m
	default:
		notify.Usage(notify.CodeUnsupportedKeyMap, "Normalize", "unsupported key selection %s", fmt.Sprintf("%T", spec))
		return nil
	}
}
