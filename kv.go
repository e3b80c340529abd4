package main

import (
	"context"
	"sync"
)

// OpKind is the kind of write in a batch.
type OpKind int

const (
	OpSet OpKind = iota
	OpRemove
)

// Op is one write of an Apply batch.
type Op struct {
	Kind  OpKind
	Key   string
	Value []byte
}

// SetOp writes value under key.
func SetOp(key string, value []byte) Op {
	return Op{Kind: OpSet, Key: key, Value: value}
}

// RemoveOp deletes key.
func RemoveOp(key string) Op {
	return Op{Kind: OpRemove, Key: key}
}

// KV is the key-value capability the content store persists to.
type KV interface {
	// Get returns the value stored under key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set overwrites the value stored under key.
	Set(ctx context.Context, key string, value []byte) error

	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error

	// Apply performs every op or none of them.
	Apply(ctx context.Context, ops []Op) error

	Close() error
}

// MemoryKV holds values in memory.
type MemoryKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryKV creates an empty in-memory store.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string][]byte)}
}

func (m *MemoryKV) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemoryKV) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	m.data[key] = append([]byte(nil), value...)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Apply(_ context.Context, ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, op := range ops {
		switch op.Kind {
		case OpSet:
			m.data[op.Key] = append([]byte(nil), op.Value...)
		case OpRemove:
			delete(m.data, op.Key)
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryKV) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *MemoryKV) Close() error { return nil }
