package capability

import (
	"sync"

	"github.com/vango-dev/fluxstore/pkg/store"
)

// Batch is one page of results.
type Batch struct {
	Items   []any
	Total   int
	Page    int
	HasNext bool
	HasPrev bool

	// Cursor is an opaque value the source uses to fetch the next batch.
	Cursor any
}

// Paging keys and methods.
const (
	KeyItems       = "items"
	KeyTotal       = "total"
	KeyCurrentPage = "currentPage"
	KeyHasNextPage = "hasNextPage"
	KeyHasPrevPage = "hasPrevPage"

	MethodSetBatch     = "setBatch"
	MethodLoadPage     = "loadPage"
	MethodLoadNextPage = "loadNextPage"
	MethodLoadPrevPage = "loadPrevPage"

	// MethodApplyBatch replaces the default table update of SetBatch.
	// It receives the *Batch.
	MethodApplyBatch = "applyBatch"
)

type pagingState struct {
	mu    sync.Mutex
	batch *Batch
}

// BatchPaging presents results one page at a time. loadPage fetches the
// page at a given index, usually finishing with SetBatch; a store may
// declare its own MethodLoadPage instead.
func BatchPaging(loadPage func(s *store.Store, index int)) Capability {
	return Capability{
		ID: "BatchPaging",
		Methods: map[string]*store.Method{
			MethodSetBatch: store.Func(MethodSetBatch, func(s *store.Store, args ...any) any {
				batch := arg[*Batch](args, 0)

				st := stateFor(s, "BatchPaging", func() *pagingState { return &pagingState{} })
				st.mu.Lock()
				st.batch = batch
				st.mu.Unlock()

				if m, ok := override(s, MethodApplyBatch); ok {
					m.Call(s, batch)
					return nil
				}
				s.SetValues(batchValues(batch))
				return nil
			}),
			MethodLoadPage: store.Func(MethodLoadPage, func(s *store.Store, args ...any) any {
				if loadPage != nil {
					loadPage(s, arg[int](args, 0))
				}
				return nil
			}),
			MethodLoadNextPage: store.Func(MethodLoadNextPage, func(s *store.Store, _ ...any) any {
				return invoke(s, MethodLoadPage, currentPage(s)+1)
			}),
			MethodLoadPrevPage: store.Func(MethodLoadPrevPage, func(s *store.Store, _ ...any) any {
				return invoke(s, MethodLoadPage, currentPage(s)-1)
			}),
		},
	}
}

func batchValues(b *Batch) map[string]any {
	if b == nil {
		return map[string]any{
			KeyItems:       nil,
			KeyTotal:       nil,
			KeyCurrentPage: nil,
			KeyHasNextPage: nil,
			KeyHasPrevPage: nil,
		}
	}
	return map[string]any{
		KeyItems:       b.Items,
		KeyTotal:       b.Total,
		KeyCurrentPage: b.Page,
		KeyHasNextPage: b.HasNext,
		KeyHasPrevPage: b.HasPrev,
	}
}

func currentPage(s *store.Store) int {
	page, _ := s.Get(KeyCurrentPage).(int)
	return page
}

// SetBatch presents b.
func SetBatch(s *store.Store, b *Batch) error {
	return invoke(s, MethodSetBatch, b)
}

// LoadPage loads the page at index.
func LoadPage(s *store.Store, index int) error {
	return invoke(s, MethodLoadPage, index)
}

// LoadNextPage loads the page after the current one.
func LoadNextPage(s *store.Store) error {
	return invoke(s, MethodLoadNextPage)
}

// LoadPrevPage loads the page before the current one.
func LoadPrevPage(s *store.Store) error {
	return invoke(s, MethodLoadPrevPage)
}

// CurrentBatch returns the batch last passed to SetBatch.
func CurrentBatch(s *store.Store) *Batch {
	st := stateFor(s, "BatchPaging", func() *pagingState { return &pagingState{} })
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.batch
}
