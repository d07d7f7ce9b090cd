package mocks

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/store"
)

// Verify interface compliance at compile time
var _ store.GroupStore = (*MemoryGroupStore)(nil)

// MemoryGroupStore is an in-memory store.GroupStore for tests.
type MemoryGroupStore struct {
	mu     sync.Mutex
	groups map[uuid.UUID]*domain.Group

	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryGroupStore creates an empty MemoryGroupStore.
func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{groups: make(map[uuid.UUID]*domain.Group)}
}

func cloneGroup(g *domain.Group) *domain.Group {
	data, err := json.Marshal(g)
	if err != nil {
		panic("cloneGroup: " + err.Error())
	}
	var out domain.Group
	if err := json.Unmarshal(data, &out); err != nil {
		panic("cloneGroup: " + err.Error())
	}
	return &out
}

// Add seeds a group into the store.
func (s *MemoryGroupStore) Add(group *domain.Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[group.ID] = cloneGroup(group)
}

// GetByID implements store.GroupStore.
func (s *MemoryGroupStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	group, ok := s.groups[id]
	if !ok {
		return nil, store.ErrGroupNotFound
	}
	return cloneGroup(group), nil
}

// List implements store.GroupStore.
func (s *MemoryGroupStore) List(_ context.Context) ([]*domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]*domain.Group, 0, len(s.groups))
	for _, group := range s.groups {
		out = append(out, cloneGroup(group))
	}
	return out, nil
}

// Update implements store.GroupStore.
func (s *MemoryGroupStore) Update(_ context.Context, group *domain.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.groups[group.ID]; !ok {
		return store.ErrGroupNotFound
	}
	s.groups[group.ID] = cloneGroup(group)
	return nil
}

// WithTx implements store.GroupStore.
func (s *MemoryGroupStore) WithTx(_ *sql.Tx) store.GroupStore {
	return s
}
