package mocks

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/taskhive/taskhive/internal/domain"
	"github.com/taskhive/taskhive/internal/store"
)

// Verify interface compliance at compile time
var _ store.TemplateStore = (*MemoryTemplateStore)(nil)

// MemoryTemplateStore is an in-memory store.TemplateStore for tests.
type MemoryTemplateStore struct {
	mu        sync.Mutex
	templates map[uuid.UUID]*domain.RecurringTaskTemplate

	// Err, when set, is returned by every operation.
	Err error
}

// NewMemoryTemplateStore creates an empty MemoryTemplateStore.
func NewMemoryTemplateStore() *MemoryTemplateStore {
	return &MemoryTemplateStore{templates: make(map[uuid.UUID]*domain.RecurringTaskTemplate)}
}

func cloneTemplate(t *domain.RecurringTaskTemplate) *domain.RecurringTaskTemplate {
	data, err := json.Marshal(t)
	if err != nil {
		panic("cloneTemplate: " + err.Error())
	}
	var out domain.RecurringTaskTemplate
	if err := json.Unmarshal(data, &out); err != nil {
		panic("cloneTemplate: " + err.Error())
	}
	return &out
}

// Create implements store.TemplateStore.
func (s *MemoryTemplateStore) Create(_ context.Context, tmpl *domain.RecurringTaskTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if err := tmpl.Validate(); err != nil {
		return store.NewStoreError("template", "create", "validation failed", err)
	}
	if _, exists := s.templates[tmpl.ID]; exists {
		return store.ErrDuplicate
	}
	s.templates[tmpl.ID] = cloneTemplate(tmpl)
	return nil
}

// GetByID implements store.TemplateStore.
func (s *MemoryTemplateStore) GetByID(_ context.Context, id uuid.UUID) (*domain.RecurringTaskTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	tmpl, ok := s.templates[id]
	if !ok {
		return nil, store.ErrTemplateNotFound
	}
	return cloneTemplate(tmpl), nil
}

// GetActiveDue implements store.TemplateStore.
func (s *MemoryTemplateStore) GetActiveDue(_ context.Context, now time.Time) ([]*domain.RecurringTaskTemplate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	var out []*domain.RecurringTaskTemplate
	for _, tmpl := range s.templates {
		if tmpl.Active && !tmpl.NextRunAt.After(now) {
			out = append(out, cloneTemplate(tmpl))
		}
	}
	return out, nil
}

// Update implements store.TemplateStore.
func (s *MemoryTemplateStore) Update(_ context.Context, tmpl *domain.RecurringTaskTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.templates[tmpl.ID]; !ok {
		return store.ErrTemplateNotFound
	}
	s.templates[tmpl.ID] = cloneTemplate(tmpl)
	return nil
}

// WithTx implements store.TemplateStore.
func (s *MemoryTemplateStore) WithTx(_ *sql.Tx) store.TemplateStore {
	return s
}
