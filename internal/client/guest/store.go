// Package guest persists the pseudo-identity used for unauthenticated chat.
package guest

import (
	"path/filepath"
	"strings"
	"sync"
)

// Store is a durable key-value store scoped to one local profile.
type Store interface {
	Get(key string) (string, bool, error)
	Set(key, value string) error
	Delete(key string) error
}

// OpenStore picks a backend from the path: ".db", ".sqlite" and ".sqlite3"
// select SQLite, anything else a YAML file. An empty path yields a MemoryStore.
func OpenStore(path string) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return NewMemoryStore(), nil
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteStore(path)
	default:
		return NewFileStore(path)
	}
}

// MemoryStore keeps values for the life of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	s.values[key] = value
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(key string) error {
	s.mu.Lock()
	delete(s.values, key)
	s.mu.Unlock()
	return nil
}
