// Package storage provides in-memory persistence.
//
// Information Hiding:
// - Map storage structure hidden from users
// - Thread-safe access via RWMutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"context"
	"sync"

	"github.com/richinex/contextloom/history"
	"github.com/richinex/contextloom/knowledge"
)

// InMemoryStorage implements history.Storage and knowledge.EmbeddingCache
// using in-memory maps. Data is lost when process terminates.
type InMemoryStorage struct {
	mu         sync.RWMutex
	records    map[string]*history.Record
	embeddings map[embeddingKey]storedEmbedding
}

type embeddingKey struct {
	itemID string
	model  string
}

type storedEmbedding struct {
	fingerprint string
	vector      []float32
}

// NewInMemoryStorage creates a new in-memory storage.
func NewInMemoryStorage() *InMemoryStorage {
	return &InMemoryStorage{
		records:    make(map[string]*history.Record),
		embeddings: make(map[embeddingKey]storedEmbedding),
	}
}

// LoadRecord returns a copy of the record, or nil if none exists.
func (s *InMemoryStorage) LoadRecord(ctx context.Context, key history.Key) (*history.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[key.String()]
	if !ok {
		return nil, nil
	}
	return record.Clone(), nil
}

// SaveRecord replaces the stored record with a copy of record.
func (s *InMemoryStorage) SaveRecord(ctx context.Context, record *history.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[record.Key.String()] = record.Clone()
	return nil
}

// DeleteRecord removes the record for key.
func (s *InMemoryStorage) DeleteRecord(ctx context.Context, key history.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, key.String())
	return nil
}

// ListKeys lists all stored keys.
func (s *InMemoryStorage) ListKeys(ctx context.Context) ([]history.Key, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]history.Key, 0, len(s.records))
	for _, record := range s.records {
		keys = append(keys, record.Key)
	}
	return keys, nil
}

// LoadEmbedding returns the cached vector when it was computed from the same
// fingerprint with the same model.
func (s *InMemoryStorage) LoadEmbedding(ctx context.Context, itemID, fingerprint, model string) ([]float32, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored, ok := s.embeddings[embeddingKey{itemID: itemID, model: model}]
	if !ok || stored.fingerprint != fingerprint {
		return nil, false, nil
	}
	return append([]float32(nil), stored.vector...), true, nil
}

// StoreEmbedding caches vector for the item, replacing any older fingerprint.
func (s *InMemoryStorage) StoreEmbedding(ctx context.Context, itemID, fingerprint, model string, vector []float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.embeddings[embeddingKey{itemID: itemID, model: model}] = storedEmbedding{
		fingerprint: fingerprint,
		vector:      append([]float32(nil), vector...),
	}
	return nil
}

// Verify InMemoryStorage implements the persistence interfaces
var _ history.Storage = (*InMemoryStorage)(nil)
var _ knowledge.EmbeddingCache = (*InMemoryStorage)(nil)
