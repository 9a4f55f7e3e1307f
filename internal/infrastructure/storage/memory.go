package storage

import (
	"context"
	"sync"

	"ArticlePublisher/internal/domain"
	"ArticlePublisher/internal/ports"
)

// MemoryStore keeps the encoded document in memory. It goes through the same
// Decode/Encode path as FileStore so tests observe identical bytes.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

var _ ports.StateStore = (*MemoryStore)(nil)

// NewMemoryStore seeds the store with a persisted document (nil for empty).
func NewMemoryStore(initial []byte) *MemoryStore {
	return &MemoryStore{data: append([]byte(nil), initial...)}
}

func (m *MemoryStore) Load(ctx context.Context) (*domain.StateDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	data := append([]byte(nil), m.data...)
	m.mu.Unlock()
	return Decode(data)
}

func (m *MemoryStore) Save(ctx context.Context, doc *domain.StateDocument) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Encode(doc)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data = data
	m.saves++
	m.mu.Unlock()
	return nil
}

// Bytes returns a copy of the persisted document.
func (m *MemoryStore) Bytes() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.data...)
}

// Saves counts successful Save calls.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
