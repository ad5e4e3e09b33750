// Package storage is the persistence adapter: opaque JSON values under a
// small fixed set of keys. Last write wins; there are no transactions.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

const (
	KeyCart        = "cart"
	KeyOrders      = "orders"
	KeyReminders   = "reminders"
	KeyAuthToken   = "authToken"
	KeyCurrentUser = "currentUser"
)

// Keys lists every key the engine reads at start-up.
var Keys = []string{KeyCart, KeyOrders, KeyReminders, KeyAuthToken, KeyCurrentUser}

// DecodeError is returned by Get when a key is present but its value does not
// decode into dest.
type DecodeError struct {
	Key string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %q: %v", e.Key, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Store is implemented by every backing store. Get decodes the stored value
// into dest and reports whether the key was present.
type Store interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore keeps encoded values in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (m *MemoryStore) Get(_ context.Context, key string, dest interface{}) (bool, error) {
	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return true, &DecodeError{Key: key, Err: err}
	}
	return true, nil
}

func (m *MemoryStore) Set(_ context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Raw returns the encoded bytes under key, for inspection in tests and tools.
func (m *MemoryStore) Raw(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	raw, ok := m.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), raw...), true
}
