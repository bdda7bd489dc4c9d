package storage

import (
	"sync"

	"github.com/duetlabs/duet/internal/core"
)

// MemoryStateStore keeps the snapshot in memory. Used for tests and the
// ephemeral play mode where nothing should touch disk.
type MemoryStateStore struct {
	mu       sync.Mutex
	snapshot []byte
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{}
}

func (m *MemoryStateStore) LoadState() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshot == nil {
		return nil, nil
	}
	out := make([]byte, len(m.snapshot))
	copy(out, m.snapshot)
	return out, nil
}

func (m *MemoryStateStore) SaveState(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshot = make([]byte, len(data))
	copy(m.snapshot, data)
	return nil
}

// MemoryBlobStore keeps blobs in a map.
type MemoryBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (m *MemoryBlobStore) Put(data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := core.NewBlobKey()
	stored := make([]byte, len(data))
	copy(stored, data)
	m.blobs[key] = stored
	return key, nil
}

func (m *MemoryBlobStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[key]
	if !ok {
		return nil, nil
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryBlobStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blobs, key)
	return nil
}

// Len reports the number of stored blobs. Test helper.
func (m *MemoryBlobStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
