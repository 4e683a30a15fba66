package api

import (
	"sync"
)

// DefaultStoreCapacity bounds how many compositions are kept for retrieval.
const DefaultStoreCapacity = 256

// CompositionStore keeps recent compositions by id. When full, the oldest
// entry is evicted.
type CompositionStore struct {
	mu       sync.Mutex
	capacity int
	order    []string
	items    map[string]Composition
}

func NewCompositionStore(capacity int) *CompositionStore {
	if capacity <= 0 {
		capacity = DefaultStoreCapacity
	}
	return &CompositionStore{
		capacity: capacity,
		items:    make(map[string]Composition),
	}
}

func (s *CompositionStore) Put(c Composition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[c.ID]; !ok {
		s.order = append(s.order, c.ID)
	}
	s.items[c.ID] = c
	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.items, oldest)
	}
}

func (s *CompositionStore) Get(id string) (Composition, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.items[id]
	return c, ok
}

func (s *CompositionStore) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return false
	}
	delete(s.items, id)
	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *CompositionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
