package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStorage keeps objects in process memory under "mem://<key>" URLs.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		objects: map[string][]byte{},
	}
}

func (m *MemoryStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[key] = append([]byte(nil), data...)
	return "mem://" + key, nil
}

func (m *MemoryStorage) Get(ctx context.Context, url string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.objects[strings.TrimPrefix(url, "mem://")]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", url)
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.objects))
	for key := range m.objects {
		keys = append(keys, key)
	}
	return keys
}
