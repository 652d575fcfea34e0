package store

import (
	"context"
	"sync"

	"github.com/HanTheDev/scan-gateway/internal/models"
)

// MemoryStore is a volatile Store. State is lost when the process exits.
type MemoryStore struct {
	mu  sync.RWMutex
	doc *models.Document
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{doc: models.NewDocument()}
}

func (s *MemoryStore) Load(ctx context.Context) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, doc *models.Document) error {
	c := doc.Clone()
	c.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc = c
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
