// Package persist provides storage backends for stateful stores.
//
// A Storage keeps one state object per state key. The state is the subset of
// a store's table that survives the store itself, such as the current sort or
// search term of a list view.
package persist

import "context"

// Storage reads and writes store state by key.
// Implementations must be safe for concurrent use.
type Storage interface {
	// Read returns the state saved under key.
	// Returns (nil, nil) when nothing is saved.
	Read(ctx context.Context, key string) (map[string]any, error)

	// Write replaces the state saved under key.
	Write(ctx context.Context, key string, state map[string]any) error
}

// Default is the process-wide storage used when none is configured.
var Default Storage = NewMemory()
