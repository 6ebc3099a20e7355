package guide

// Store exposes guide retrieval for handlers and the assistant.
type Store interface {
	List() []Guide
	FindByID(id string) (Guide, bool)
}

// MemoryStore implements Store with an in-memory slice.
type MemoryStore struct {
	items []Guide
}

// NewMemoryStore returns a MemoryStore preloaded with the supplied guides.
func NewMemoryStore(items []Guide) *MemoryStore {
	return &MemoryStore{items: append([]Guide(nil), items...)}
}

// List returns the guides in seed order.
func (s *MemoryStore) List() []Guide {
	return append([]Guide(nil), s.items...)
}

// FindByID looks up a guide by identifier.
func (s *MemoryStore) FindByID(id string) (Guide, bool) {
	for _, item := range s.items {
		if item.ID == id {
			return item, true
		}
	}
	return Guide{}, false
}

// Resolve returns the guide for id, falling back to the default guide and
// then to the first one.
func Resolve(store Store, id string) (Guide, bool) {
	if id != "" {
		if g, ok := store.FindByID(id); ok {
			return g, true
		}
	}
	if g, ok := store.FindByID(DefaultID); ok {
		return g, true
	}
	items := store.List()
	if len(items) == 0 {
		return Guide{}, false
	}
	return items[0], true
}
