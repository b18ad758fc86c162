// Package localstore provides string key/value storage with the semantics of
// browser local and session storage, backed by memory, bbolt, SQLite or Redis.
package localstore

import (
	"context"
	"errors"
	"sync"
)

// ErrUnavailable marks failures of the underlying storage medium (disabled,
// full, closed). Callers treat it the same as missing data.
var ErrUnavailable = errors.New("local storage unavailable")

// Storage is a flat string key/value store.
type Storage interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Memory is an in-process Storage. It doubles as the session-scoped store:
// values live exactly as long as the process.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

func NewMemory() *Memory {
	return &Memory{values: make(map[string]string)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.values[key]
	return value, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
