package storage

import (
	"context"
	"sync"
	"time"

	"github.com/xaenox/bridge-bot/internal/models"
)

type mappingKey struct {
	sourceChannelID string
	sourceID        string
}

type MemoryStorage struct {
	mu       sync.RWMutex
	nextID   int64
	mappings map[mappingKey]*models.ThreadMapping
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		mappings: make(map[mappingKey]*models.ThreadMapping),
	}
}

func (s *MemoryStorage) GetMapping(ctx context.Context, sourceChannelID, sourceID string) (*models.ThreadMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if m, exists := s.mappings[mappingKey{sourceChannelID, sourceID}]; exists {
		cp := *m
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStorage) SaveMapping(ctx context.Context, sourceChannelID, sourceID, destChannelID, destThreadRef string) (*models.ThreadMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := mappingKey{sourceChannelID, sourceID}
	if m, exists := s.mappings[key]; exists {
		cp := *m
		return &cp, nil
	}

	s.nextID++
	m := &models.ThreadMapping{
		ID:              s.nextID,
		SourceChannelID: sourceChannelID,
		SourceID:        sourceID,
		DestChannelID:   destChannelID,
		DestThreadRef:   destThreadRef,
		CreatedAt:       time.Now().UTC(),
	}
	s.mappings[key] = m
	cp := *m
	return &cp, nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
