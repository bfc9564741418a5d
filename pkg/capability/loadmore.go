package capability

import (
	"context"
	"sync"

	"github.com/vango-dev/fluxstore/pkg/store"
)

// Load-more keys and methods.
const (
	KeyLoading = "loading"
	KeyError   = "error"
	KeyHasMore = "hasMore"

	MethodLoadMore = "loadMore"
)

// BatchSource fetches batches for BatchLoadMore.
type BatchSource interface {
	// LoadInitial fetches the first batch.
	LoadInitial(ctx context.Context, s *store.Store) (*Batch, error)

	// LoadNext fetches the batch following prev.
	LoadNext(ctx context.Context, s *store.Store, prev *Batch) (*Batch, error)
}

type loadMoreState struct {
	mu          sync.Mutex
	loaded      bool
	prevBinding any
	lastSearch  string
	batch       *Batch
}

// BatchLoadMore accumulates batches into one growing item list. It declares
// the store's load method, so TriggerLoad and Load fetch the initial batch.
//
// After the first load, Load only fetches again when the binding changed or,
// on a Searchable store, the search term changed since the last load.
// Results of a load that was overtaken by a newer one are discarded.
func BatchLoadMore(src BatchSource) Capability {
	return Capability{
		ID: "BatchLoadMore",
		Methods: map[string]*store.Method{
			store.LoadMethod: store.Func(store.LoadMethod, func(s *store.Store, _ ...any) any {
				loadInitial(s, src)
				return nil
			}),
			MethodLoadMore: store.Func(MethodLoadMore, func(s *store.Store, _ ...any) any {
				loadMore(s, src)
				return nil
			}),
		},
	}
}

func loadMoreStateOf(s *store.Store) *loadMoreState {
	return stateFor(s, "BatchLoadMore", func() *loadMoreState { return &loadMoreState{} })
}

func loadInitial(s *store.Store, src BatchSource) {
	st := loadMoreStateOf(s)
	searchable := Applied(s, "Searchable")

	st.mu.Lock()
	if st.loaded && !needsReload(s, st, searchable) {
		st.mu.Unlock()
		return
	}
	st.loaded = true
	st.prevBinding = s.Binding()
	if searchable {
		st.lastSearch = SearchTerm(s)
	}
	st.mu.Unlock()

	ticket := TrackerFor(s).Start()
	s.SetValuesImmediate(map[string]any{
		KeyLoading: true,
		KeyItems:   nil,
		KeyError:   nil,
		KeyHasMore: nil,
	})

	batch, err := src.LoadInitial(s.Context(), s)
	if !ticket.IsCurrent() {
		return
	}
	if err != nil {
		s.SetValues(map[string]any{
			KeyLoading: false,
			KeyError:   err,
			KeyHasMore: false,
		})
		return
	}

	st.mu.Lock()
	st.batch = batch
	st.mu.Unlock()

	var items []any
	hasMore := false
	if batch != nil {
		items = append(items, batch.Items...)
		hasMore = batch.HasNext
	}
	s.SetValues(map[string]any{
		KeyLoading: false,
		KeyItems:   items,
		KeyHasMore: hasMore,
	})
}

func needsReload(s *store.Store, st *loadMoreState, searchable bool) bool {
	if !store.Equal(st.prevBinding, s.Binding()) {
		return true
	}
	return searchable && st.lastSearch != SearchTerm(s)
}

func loadMore(s *store.Store, src BatchSource) {
	st := loadMoreStateOf(s)
	st.mu.Lock()
	prev := st.batch
	st.mu.Unlock()

	ticket := TrackerFor(s).Start()
	s.Set(KeyLoading, true)

	next, err := src.LoadNext(s.Context(), s, prev)
	if !ticket.IsCurrent() {
		return
	}
	if err != nil {
		s.SetValues(map[string]any{
			KeyLoading: false,
			KeyError:   err,
		})
		return
	}

	st.mu.Lock()
	st.batch = next
	st.mu.Unlock()

	existing, _ := s.Get(KeyItems).([]any)
	items := append([]any(nil), existing...)
	hasMore := false
	if next != nil {
		items = append(items, next.Items...)
		hasMore = next.HasNext
	}
	s.SetValues(map[string]any{
		KeyLoading: false,
		KeyItems:   items,
		KeyHasMore: hasMore,
	})
}

// LoadMore appends the next batch.
func LoadMore(s *store.Store) error {
	return invoke(s, MethodLoadMore)
}
