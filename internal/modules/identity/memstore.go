// README: In-memory identity store for local runs and tests.
package identity

import (
	"context"
	"strings"
	"sync"

	"tripease/internal/apperr"
)

type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	users  map[string]Identity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]Identity)}
}

func (m *MemoryStore) FindByEmail(_ context.Context, email string) (Identity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.users[strings.ToLower(email)]
	if !ok {
		return Identity{}, apperr.New(apperr.ErrNotFound, "user not found")
	}
	return id, nil
}

func (m *MemoryStore) Save(_ context.Context, id *Identity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToLower(id.Email)
	if existing, ok := m.users[key]; ok {
		id.ReferenceID = existing.ReferenceID
	} else {
		m.nextID++
		id.ReferenceID = m.nextID
	}
	id.Email = key
	m.users[key] = *id
	return nil
}
