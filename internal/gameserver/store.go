package gameserver

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cory-johannsen/progression/internal/game/character"
)

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks github.com/cory-johannsen/progression/internal/gameserver Store

// Store persists character records.
//
// Load and Delete return an error wrapping character.ErrNotFound when no
// record exists for id.
type Store interface {
	Save(ctx context.Context, rec character.Record) error
	Load(ctx context.Context, id string) (character.Record, error)
	Delete(ctx context.Context, id string) error
}

// MemoryStore is an in-process Store used by the memory backend and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]character.Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]character.Record)}
}

// Save stores rec, stamping UpdatedAt.
//
// Precondition: rec.ID must be non-empty.
func (s *MemoryStore) Save(_ context.Context, rec character.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("saving character: empty id")
	}
	rec.UpdatedAt = time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

// Load returns the record for id.
func (s *MemoryStore) Load(_ context.Context, id string) (character.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return character.Record{}, fmt.Errorf("loading character %q: %w", id, character.ErrNotFound)
	}
	return rec, nil
}

// Delete removes the record for id.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return fmt.Errorf("deleting character %q: %w", id, character.ErrNotFound)
	}
	delete(s.records, id)
	return nil
}

// ListIDs returns every stored ID in sorted order.
func (s *MemoryStore) ListIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
