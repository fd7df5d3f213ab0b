package bundlestore

import (
	"context"
	"maps"
	"sync"
)

// Memory keeps bundles in process memory. Intended for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	bundles map[string]map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{bundles: make(map[string]map[string]string)}
}

// Save stores a copy of bundle under key.
func (m *Memory) Save(_ context.Context, key string, bundle map[string]string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	m.mu.Lock()
	m.bundles[key] = maps.Clone(bundle)
	m.mu.Unlock()
	return nil
}

// Load returns a copy of the bundle stored under key.
func (m *Memory) Load(_ context.Context, key string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bundle, ok := m.bundles[key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make(map[string]string, len(bundle))
	maps.Copy(out, bundle)
	return out, nil
}

// Delete removes key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bundles[key]; !ok {
		return ErrNotFound
	}
	delete(m.bundles, key)
	return nil
}

// Len returns the number of stored bundles.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.bundles)
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
