package persist

import (
	"context"
	"sync"
)

// Memory keeps state in process memory.
type Memory struct {
	mu     sync.RWMutex
	states map[string]map[string]any
}

// NewMemory creates an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{states: make(map[string]map[string]any)}
}

// Read returns a copy of the state saved under key.
func (m *Memory) Read(_ context.Context, key string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[key]
	if !ok {
		return nil, nil
	}
	return clone(state), nil
}

// Write saves a copy of state under key.
func (m *Memory) Write(_ context.Context, key string, state map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.states[key] = clone(state)
	return nil
}

// Len returns the number of saved states.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.states)
}

func clone(state map[string]any) map[string]any {
	out := make(map[string]any, len(state))
	for k, v := range state {
		out[k] = v
	}
	return out
}
