package capability

import "github.com/vango-dev/fluxstore/pkg/store"

// Filterable keys and methods.
const (
	KeyFilter = "filter"

	MethodSetFilter    = "setFilter"
	MethodUpdateFilter = "updateFilter"

	// MethodApplyFilter replaces the default change emission of filter
	// updates. It receives the filter.
	MethodApplyFilter = "applyFilter"
)

// Filterable tracks a filter value of any type. UpdateFilter runs the
// store's loader. The filter follows the "filter" view prop unless Derive
// says otherwise.
func Filterable(opts ...Option) Capability {
	o := buildSettings(opts)
	derive := o.derive
	if derive == nil {
		derive = propValue(KeyFilter)
	}

	return Capability{
		ID: "Filterable",
		Methods: map[string]*store.Method{
			MethodSetFilter: store.Func(MethodSetFilter, func(s *store.Store, args ...any) any {
				setFilter(s, arg[any](args, 0))
				return nil
			}),
			MethodUpdateFilter: store.Func(MethodUpdateFilter, func(s *store.Store, args ...any) any {
				setFilter(s, arg[any](args, 0))
				s.TriggerLoad()
				return nil
			}),
		},
		Init: func(s *store.Store) error {
			s.Define(KeyFilter, o.value)
			s.Set(KeyFilter, o.value)
			s.OnPropsChange(func(props map[string]any) {
				v, ok := derive(props)
				if ok && !store.Equal(v, Filter(s)) {
					UpdateFilter(s, v)
				}
			})
			return nil
		},
	}
}

func setFilter(s *store.Store, filter any) {
	s.Set(KeyFilter, filter)
	applyOr(s, MethodApplyFilter, []any{filter}, KeyFilter)
}

// SetFilter sets the filter without loading.
func SetFilter(s *store.Store, filter any) error {
	return invoke(s, MethodSetFilter, filter)
}

// UpdateFilter sets the filter and loads.
func UpdateFilter(s *store.Store, filter any) error {
	return invoke(s, MethodUpdateFilter, filter)
}

// Filter returns the current filter.
func Filter(s *store.Store) any {
	return s.Get(KeyFilter)
}
