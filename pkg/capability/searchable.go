package capability

import (
	"sync"
	"time"

	"github.com/vango-dev/fluxstore/pkg/sched"
	"github.com/vango-dev/fluxstore/pkg/store"
)

// DefaultSearchBuffer is how long Searchable waits after the last search
// update before loading.
const DefaultSearchBuffer = 300 * time.Millisecond

// Searchable keys and methods.
const (
	KeySearchTerm = "searchTerm"

	MethodSetSearchTerm    = "setSearchTerm"
	MethodUpdateSearchTerm = "updateSearchTerm"

	// MethodApplySearchTerm replaces the default change emission of search
	// updates. It receives the term.
	MethodApplySearchTerm = "applySearchTerm"
)

type searchState struct {
	mu        sync.Mutex
	timer     sched.Timer
	buffering bool
}

// Searchable tracks a search term. UpdateSearchTerm loads once the term has
// been stable for the search buffer; clearing the term loads right away.
//
// The term follows the "searchTerm" view prop unless Derive says otherwise.
func Searchable(opts ...Option) Capability {
	o := buildSettings(opts)
	if o.buffer <= 0 {
		o.buffer = DefaultSearchBuffer
	}
	defaultTerm, _ := o.value.(string)
	derive := o.derive
	if derive == nil {
		derive = propValue(KeySearchTerm)
	}

	return Capability{
		ID: "Searchable",
		Methods: map[string]*store.Method{
			MethodSetSearchTerm: store.Func(MethodSetSearchTerm, func(s *store.Store, args ...any) any {
				setSearchTerm(s, arg[string](args, 0))
				return nil
			}),
			MethodUpdateSearchTerm: store.Func(MethodUpdateSearchTerm, func(s *store.Store, args ...any) any {
				term := arg[string](args, 0)
				setSearchTerm(s, term)

				st := stateFor(s, "Searchable", func() *searchState { return &searchState{} })
				st.mu.Lock()
				if st.timer != nil {
					st.timer.Stop()
					st.timer = nil
				}
				if term == "" {
					st.buffering = false
					st.mu.Unlock()
					s.TriggerLoad()
					return nil
				}
				st.buffering = true
				st.timer = s.Scheduler().AfterFunc(o.buffer, func() {
					st.mu.Lock()
					st.buffering = false
					st.timer = nil
					st.mu.Unlock()
					s.TriggerLoad()
				})
				st.mu.Unlock()
				return nil
			}),
		},
		Init: func(s *store.Store) error {
			s.Define(KeySearchTerm, defaultTerm)
			s.Set(KeySearchTerm, defaultTerm)
			s.OnPropsChange(func(props map[string]any) {
				v, ok := derive(props)
				if !ok {
					return
				}
				term, _ := v.(string)
				if term == SearchTerm(s) {
					return
				}
				if term == "" {
					term = defaultTerm
				}
				UpdateSearchTerm(s, term)
			})
			return nil
		},
	}
}

func setSearchTerm(s *store.Store, term string) {
	s.Set(KeySearchTerm, term)
	applyOr(s, MethodApplySearchTerm, []any{term}, KeySearchTerm)
}

// SetSearchTerm sets the term without loading.
func SetSearchTerm(s *store.Store, term string) error {
	return invoke(s, MethodSetSearchTerm, term)
}

// UpdateSearchTerm sets the term and loads once the search buffer elapses.
func UpdateSearchTerm(s *store.Store, term string) error {
	return invoke(s, MethodUpdateSearchTerm, term)
}

// SearchTerm returns the current search term.
func SearchTerm(s *store.Store) string {
	v, _ := s.Get(KeySearchTerm).(string)
	return v
}

// IsBufferingSearch reports whether a search update is waiting for the
// buffer to elapse.
func IsBufferingSearch(s *store.Store) bool {
	st := stateFor(s, "Searchable", func() *searchState { return &searchState{} })
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.buffering
}

// propValue derives a value from the view prop named key.
func propValue(key string) func(map[string]any) (any, bool) {
	return func(props map[string]any) (any, bool) {
		v, ok := props[key]
		return v, ok
	}
}
