package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryStore is an in-process ArtifactStore used by tests and local runs
// without a bucket.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string][]byte{}}
}

func (m *MemoryStore) Exists(_ context.Context, key Key) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key.Object()]
	return ok, nil
}

func (m *MemoryStore) Get(_ context.Context, key Key) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key.Object()]
	if !ok {
		return nil, fmt.Errorf("object not found: %s", key.Object())
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryStore) Put(_ context.Context, key Key, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.objects[key.Object()] = stored
	return nil
}

func (m *MemoryStore) DeleteLecture(_ context.Context, lectureID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prefix := Key{LectureID: lectureID}.Object() + "/"
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			delete(m.objects, name)
		}
	}
	return nil
}

func (m *MemoryStore) PublicURL(key Key) string {
	return "memory://" + key.Object()
}

// Len reports the number of stored objects. Test helper.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
