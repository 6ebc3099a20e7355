package guest

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Key is the store entry holding the guest id.
const Key = "guest_user_id"

// Identity hands out the profile's guest id, creating it on first use.
type Identity struct {
	mu     sync.Mutex
	store  Store
	cached string
}

func NewIdentity(store Store) *Identity {
	if store == nil {
		store = NewMemoryStore()
	}
	return &Identity{store: store}
}

// ID returns the persisted guest id, generating and storing one if absent.
// When the store cannot be read or written the id is kept in memory and
// still returned with the error, so the caller keeps one guest session for
// the life of the process; it just will not survive a restart.
func (i *Identity) ID() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	id, ok, err := i.store.Get(Key)
	if err != nil {
		return i.memoryIDLocked(), errors.Wrap(err, "read guest id")
	}
	if ok && id != "" {
		i.cached = id
		return id, nil
	}

	id = i.memoryIDLocked()
	if err := i.store.Set(Key, id); err != nil {
		return id, errors.Wrap(err, "persist guest id")
	}
	return id, nil
}

// memoryIDLocked returns the id held in memory, minting one if needed.
func (i *Identity) memoryIDLocked() string {
	if i.cached == "" {
		i.cached = "guest-" + uuid.NewString()
	}
	return i.cached
}

// Clear forgets the guest id; the next ID call generates a new one.
func (i *Identity) Clear() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.cached = ""
	return errors.Wrap(i.store.Delete(Key), "clear guest id")
}
