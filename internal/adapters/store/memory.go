package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/okian/migrisk/internal/domain/model"
)

// MemoryStore implements EventStore in process memory. It is safe for
// concurrent use and never fails except on a cancelled context.
type MemoryStore struct {
	mu       sync.RWMutex
	events   map[string]map[string]map[string]any // user -> key -> document
	profiles map[string]model.Profile
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string]map[string]map[string]any),
		profiles: make(map[string]model.Profile),
	}
}

// UserEvents returns copies of the user's events ordered by timestamp.
func (m *MemoryStore) UserEvents(ctx context.Context, userID string) ([]model.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return collect(m.events[userID]), nil
}

// AppendEvent stores a copy of e under a new time-ordered key.
func (m *MemoryStore) AppendEvent(ctx context.Context, userID string, e model.Event) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := uuid.Must(uuid.NewV7()).String()

	doc := make(map[string]any, len(e))
	for k, v := range e {
		doc[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.events[userID] == nil {
		m.events[userID] = make(map[string]map[string]any)
	}
	m.events[userID][key] = doc
	return key, nil
}

// UserProfile returns a copy of the user's profile.
func (m *MemoryStore) UserProfile(ctx context.Context, userID string) (model.Profile, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[userID]
	if !ok {
		return nil, false, nil
	}
	return cloneProfile(p), true, nil
}

// UpsertProfile replaces the user's profile.
func (m *MemoryStore) UpsertProfile(ctx context.Context, userID string, p model.Profile) (model.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[userID] = cloneProfile(p)
	return cloneProfile(p), nil
}

func cloneProfile(p model.Profile) model.Profile {
	out := make(model.Profile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
