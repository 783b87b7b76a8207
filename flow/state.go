// ABOUTME: Thread-safe key-value state shared across every node activation of a run.
// ABOUTME: The engine threads one *State by reference through the whole traversal; it is never copied.
package flow

import (
	"sync"
)

// State is the single mutable value threaded through an entire run. The engine
// treats it as opaque; by convention only the decide phase writes to it, and
// the compute phase reads only. There is no per-key locking discipline beyond
// the internal mutex because the engine activates one node at a time.
type State struct {
	values map[string]any
	mu     sync.RWMutex
}

// NewState creates a new empty State.
func NewState() *State {
	return &State{values: make(map[string]any)}
}

// Seed creates a State pre-populated with the given key-value pairs.
func Seed(values map[string]any) *State {
	s := NewState()
	for k, v := range values {
		s.values[k] = v
	}
	return s
}

// Set stores a value under the given key.
func (s *State) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = value
}

// Get retrieves the value for the given key, or nil if not found.
func (s *State) Get(key string) any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[key]
}

// GetString retrieves the string value for the given key.
// If the key is missing or the value is not a string, defaultVal is returned.
func (s *State) GetString(key string, defaultVal string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return defaultVal
	}
	str, ok := v.(string)
	if !ok {
		return defaultVal
	}
	return str
}

// GetInt retrieves the int value for the given key.
// If the key is missing or the value is not an int, defaultVal is returned.
func (s *State) GetInt(key string, defaultVal int) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return defaultVal
	}
	n, ok := v.(int)
	if !ok {
		return defaultVal
	}
	return n
}

// Add increments the int stored under key by delta and returns the new value.
// A missing or non-int value counts as zero.
func (s *State) Add(key string, delta int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, _ := s.values[key].(int)
	n += delta
	s.values[key] = n
	return n
}

// ApplyUpdates merges the given key-value pairs into the state.
func (s *State) ApplyUpdates(updates map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, v := range updates {
		s.values[k] = v
	}
}

// Snapshot returns a shallow copy of all key-value pairs.
func (s *State) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := make(map[string]any, len(s.values))
	for k, v := range s.values {
		snap[k] = v
	}
	return snap
}
