package api

import (
	"sort"
	"sync"
	"time"
)

// Item is an entry of the demo item store.
type Item struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Quantity  int       `json:"quantity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ItemStore is an in-memory, concurrency-safe item table.
type ItemStore struct {
	mu     sync.Mutex
	items  map[int]*Item
	nextID int
}

// NewItemStore creates an empty store.
func NewItemStore() *ItemStore {
	return &ItemStore{items: make(map[int]*Item), nextID: 1}
}

// List returns all items ordered by id.
func (s *ItemStore) List() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, *it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Get returns the item with id.
func (s *ItemStore) Get(id int) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	return *it, true
}

// Create stores a new item and returns it with its id.
func (s *ItemStore) Create(name string, quantity int) Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	it := &Item{ID: s.nextID, Name: name, Quantity: quantity, UpdatedAt: time.Now().UTC()}
	s.items[it.ID] = it
	s.nextID++
	return *it
}

// Update replaces name and quantity of an existing item.
func (s *ItemStore) Update(id int, name string, quantity int) (Item, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return Item{}, false
	}
	it.Name = name
	it.Quantity = quantity
	it.UpdatedAt = time.Now().UTC()
	return *it, true
}

// Delete removes an item and reports whether it existed.
func (s *ItemStore) Delete(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	delete(s.items, id)
	return ok
}

// Len returns the number of items.
func (s *ItemStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
