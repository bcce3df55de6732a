package agent

import (
	"sort"
	"sync"
)

// Store exposes agent lookup for session creation and the HTTP surface.
type Store interface {
	List() []Descriptor
	FindByID(id string) (Descriptor, bool)
	FindByPhoneNumber(number string) (Descriptor, bool)
}

// MemoryStore implements Store with an in-memory index that can be swapped
// atomically when the backing file changes.
type MemoryStore struct {
	mu       sync.RWMutex
	items    []Descriptor
	byID     map[string]int
	byNumber map[string]int
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied agents.
func NewMemoryStore(items []Descriptor) *MemoryStore {
	s := &MemoryStore{}
	s.Replace(items)
	return s
}

// Replace swaps the whole agent set. Sessions already holding a descriptor
// keep their copy.
func (s *MemoryStore) Replace(items []Descriptor) {
	next := make([]Descriptor, 0, len(items))
	byID := make(map[string]int, len(items))
	byNumber := make(map[string]int, len(items))
	for _, item := range items {
		next = append(next, item.Clone())
		idx := len(next) - 1
		byID[item.ID] = idx
		if item.PhoneNumber != "" {
			byNumber[item.PhoneNumber] = idx
		}
	}

	s.mu.Lock()
	s.items = next
	s.byID = byID
	s.byNumber = byNumber
	s.mu.Unlock()
}

// List returns every agent ordered by ID.
func (s *MemoryStore) List() []Descriptor {
	s.mu.RLock()
	out := make([]Descriptor, 0, len(s.items))
	for _, item := range s.items {
		out = append(out, item.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindByID looks up an agent by identifier.
func (s *MemoryStore) FindByID(id string) (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byID[id]
	if !ok {
		return Descriptor{}, false
	}
	return s.items[idx].Clone(), true
}

// FindByPhoneNumber looks up the agent answering calls to number.
func (s *MemoryStore) FindByPhoneNumber(number string) (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byNumber[number]
	if !ok {
		return Descriptor{}, false
	}
	return s.items[idx].Clone(), true
}
