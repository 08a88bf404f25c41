package rules

import "sync/atomic"

var emptyIndex = &Index{}

// Store holds the current Index. Readers always see a fully built snapshot;
// writers replace it whole.
type Store struct {
	current atomic.Pointer[Index]
}

// NewStore returns a store holding an empty index.
func NewStore() *Store {
	return &Store{}
}

// Load returns the current snapshot. It never returns nil.
func (s *Store) Load() *Index {
	if idx := s.current.Load(); idx != nil {
		return idx
	}

	return emptyIndex
}

// Publish swaps in idx and returns the snapshot it replaced.
func (s *Store) Publish(idx *Index) *Index {
	if idx == nil {
		idx = emptyIndex
	}

	prev := s.current.Swap(idx)
	if prev == nil {
		return emptyIndex
	}

	return prev
}

// Clear drops every rule and template.
func (s *Store) Clear() {
	s.current.Store(emptyIndex)
}
