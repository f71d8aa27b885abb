package kvstore

import (
	"context"
	"strings"
	"sync"

	"github.com/docuforge/docuforge/common/cryptox"
	"github.com/docuforge/docuforge/common/logger"
)

// MemoryStore is the availability fallback: identical envelope semantics,
// no persistence across sessions.
type MemoryStore struct {
	prefix string
	data   map[string][]byte
	mu     sync.RWMutex
	codec  codec
	log    *logger.Logger
}

// NewMemoryStore creates an in-memory store.
func NewMemoryStore(prefix string, crypto *cryptox.Provider, keys *SessionKeys, log *logger.Logger) *MemoryStore {
	return &MemoryStore{
		prefix: prefix,
		data:   make(map[string][]byte),
		codec:  codec{crypto: crypto, keys: keys},
		log:    log,
	}
}

// Put stores a value under the prefixed key.
func (m *MemoryStore) Put(ctx context.Context, key string, value any, opts *PutOptions) error {
	encoded, err := m.codec.encode(value, opts)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.data[m.prefix+key] = encoded
	m.mu.Unlock()
	return nil
}

// Get retrieves a value. Expired records are discarded on read.
func (m *MemoryStore) Get(ctx context.Context, key string, out any) (bool, error) {
	m.mu.RLock()
	encoded, exists := m.data[m.prefix+key]
	m.mu.RUnlock()

	if !exists {
		return false, nil
	}

	ok, err := m.codec.decode(encoded, out)
	if err == nil && !ok {
		m.mu.Lock()
		delete(m.data, m.prefix+key)
		m.mu.Unlock()
	}
	return ok, err
}

// Remove deletes a key.
func (m *MemoryStore) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, m.prefix+key)
	m.mu.Unlock()
	return nil
}

// Clear removes every key under the store's prefix.
func (m *MemoryStore) Clear(ctx context.Context) error {
	m.mu.Lock()
	for k := range m.data {
		if strings.HasPrefix(k, m.prefix) {
			delete(m.data, k)
		}
	}
	m.mu.Unlock()
	return nil
}

// Keys lists every logical key under the store's prefix.
func (m *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if strings.HasPrefix(k, m.prefix) {
			keys = append(keys, strings.TrimPrefix(k, m.prefix))
		}
	}
	return keys, nil
}
