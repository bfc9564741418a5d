package capability

import (
	"fmt"
	"sync"

	"github.com/vango-dev/fluxstore/pkg/notify"
	"github.com/vango-dev/fluxstore/pkg/persist"
	"github.com/vango-dev/fluxstore/pkg/store"
)

// MethodSetStateKey switches the state key of a Stateful store.
const MethodSetStateKey = "setStateKey"

type statefulState struct {
	mu     sync.Mutex
	key    string
	hasKey bool
}

// Stateful saves properties to a storage under a state key whenever the
// store changes, and restores them when the state key changes. The key is
// key initially; Derive reads it from view props instead. Without Storage
// the process-wide persist.Default is used; Storage(nil) is rejected with
// ErrInvalidStorage.
func Stateful(key string, properties []string, opts ...Option) (Capability, error) {
	o := buildSettings(opts)
	storage := o.storage
	if !o.storageSet {
		storage = persist.Default
	}
	if storage == nil {
		return Capability{}, ErrInvalidStorage
	}
	properties = append([]string(nil), properties...)

	c := Capability{
		ID: "Stateful",
		Methods: map[string]*store.Method{
			MethodSetStateKey: store.Func(MethodSetStateKey, func(s *store.Store, args ...any) any {
				setStateKey(s, storage, properties, arg[string](args, 0))
				return nil
			}),
		},
		Init: func(s *store.Store) error {
			s.AddChangeListener(notify.NewListener(func(notify.Change) {
				saveState(s, storage, properties)
			}))
			if o.derive != nil {
				s.OnPropsChange(func(props map[string]any) {
					if v, ok := o.derive(props); ok {
						SetStateKey(s, fmt.Sprint(v))
					}
				})
			}
			if key != "" {
				return SetStateKey(s, key)
			}
			return nil
		},
	}
	return c, nil
}

func statefulStateOf(s *store.Store) *statefulState {
	return stateFor(s, "Stateful", func() *statefulState { return &statefulState{} })
}

func setStateKey(s *store.Store, storage persist.Storage, properties []string, key string) {
	st := statefulStateOf(s)
	st.mu.Lock()
	changed := !st.hasKey || st.key != key
	st.key = key
	st.hasKey = true
	st.mu.Unlock()

	if changed {
		restoreState(s, storage, properties, key)
	}
}

func restoreState(s *store.Store, storage persist.Storage, properties []string, key string) {
	if len(properties) == 0 {
		return
	}
	state, err := storage.Read(s.Context(), key)
	if err != nil {
		s.Logger().Error("capability: reading state failed", "store", s.Name(), "key", key, "error", err)
		return
	}
	if state == nil {
		return
	}

	values := make(map[string]any, len(properties))
	for _, p := range properties {
		if v, ok := state[p]; ok {
			values[p] = v
		}
	}
	if len(values) > 0 {
		s.SetValues(values)
	}
}

func saveState(s *store.Store, storage persist.Storage, properties []string) {
	if len(properties) == 0 {
		return
	}
	key, ok := StateKey(s)
	if !ok {
		return
	}

	state := make(map[string]any, len(properties))
	for _, p := range properties {
		state[p] = s.Get(p)
	}
	if err := storage.Write(s.Context(), key, state); err != nil {
		s.Logger().Error("capability: writing state failed", "store", s.Name(), "key", key, "error", err)
	}
}

// SetStateKey switches the state key, restoring any state saved under it.
func SetStateKey(s *store.Store, key string) error {
	return invoke(s, MethodSetStateKey, key)
}

// StateKey returns the current state key.
func StateKey(s *store.Store) (string, bool) {
	st := statefulStateOf(s)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.key, st.hasKey
}
