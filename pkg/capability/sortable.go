package capability

import "github.com/vango-dev/fluxstore/pkg/store"

// Sortable keys and methods.
const (
	KeySortProperty  = "sortProperty"
	KeySortDirection = "sortDirection"

	MethodSetSort          = "setSort"
	MethodSetSortProperty  = "setSortProperty"
	MethodSetSortDirection = "setSortDirection"

	// MethodApplySort replaces the default change emission of sort updates.
	// It receives the property and direction.
	MethodApplySort = "applySort"
)

// Sortable tracks a sort property and direction. Every update runs the
// store's loader.
func Sortable(defaultProperty, defaultDirection string) Capability {
	return Capability{
		ID: "Sortable",
		Methods: map[string]*store.Method{
			MethodSetSort: store.Func(MethodSetSort, func(s *store.Store, args ...any) any {
				property, direction := arg[string](args, 0), arg[string](args, 1)
				s.SetValues(map[string]any{KeySortProperty: property, KeySortDirection: direction})
				applyOr(s, MethodApplySort, []any{property, direction}, KeySortProperty, KeySortDirection)
				s.TriggerLoad()
				return nil
			}),
			MethodSetSortProperty: store.Func(MethodSetSortProperty, func(s *store.Store, args ...any) any {
				property := arg[string](args, 0)
				s.Set(KeySortProperty, property)
				applyOr(s, MethodApplySort, []any{property, SortDirection(s)}, KeySortProperty)
				s.TriggerLoad()
				return nil
			}),
			MethodSetSortDirection: store.Func(MethodSetSortDirection, func(s *store.Store, args ...any) any {
				direction := arg[string](args, 0)
				s.Set(KeySortDirection, direction)
				applyOr(s, MethodApplySort, []any{SortProperty(s), direction}, KeySortDirection)
				s.TriggerLoad()
				return nil
			}),
		},
		Init: func(s *store.Store) error {
			s.Define(KeySortProperty, defaultProperty)
			s.Define(KeySortDirection, defaultDirection)
			s.SetValues(map[string]any{
				KeySortProperty:  defaultProperty,
				KeySortDirection: defaultDirection,
			})
			return nil
		},
	}
}

// SetSort sets both the sort property and direction.
func SetSort(s *store.Store, property, direction string) error {
	return invoke(s, MethodSetSort, property, direction)
}

// SetSortProperty sets the sort property.
func SetSortProperty(s *store.Store, property string) error {
	return invoke(s, MethodSetSortProperty, property)
}

// SetSortDirection sets the sort direction.
func SetSortDirection(s *store.Store, direction string) error {
	return invoke(s, MethodSetSortDirection, direction)
}

// SortProperty returns the current sort property.
func SortProperty(s *store.Store) string {
	v, _ := s.Get(KeySortProperty).(string)
	return v
}

// SortDirection returns the current sort direction.
func SortDirection(s *store.Store) string {
	v, _ := s.Get(KeySortDirection).(string)
	return v
}
