package prefs

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

const (
	Scope   = "wpnas-kit"
	ViewKey = "dataviews-settings"
)

// Store is a scoped key-value store for user preferences. Values are stored
// as JSON.
type Store interface {
	Get(ctx context.Context, scope, key string) (json.RawMessage, bool, error)
	Set(ctx context.Context, scope, key string, value any) error
}

// MemoryStore keeps preferences for the life of the process.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]json.RawMessage
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]json.RawMessage)}
}

func memKey(scope, key string) string { return scope + "\x00" + key }

func (m *MemoryStore) Get(_ context.Context, scope, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[memKey(scope, key)]
	if !ok {
		return nil, false, nil
	}
	return append(json.RawMessage(nil), v...), true, nil
}

func (m *MemoryStore) Set(_ context.Context, scope, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode preference %s/%s: %w", scope, key, err)
	}
	m.mu.Lock()
	m.values[memKey(scope, key)] = data
	m.mu.Unlock()
	return nil
}
