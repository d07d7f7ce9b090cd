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
var _ store.TaskStore = (*MemoryTaskStore)(nil)

// MemoryTaskStore is an in-memory store.TaskStore for tests.
type MemoryTaskStore struct {
	mu    sync.Mutex
	tasks map[uuid.UUID]*domain.Task

	// Err, when set, is returned by every operation. Useful for exercising
	// error paths in sweeps.
	Err error
}

// NewMemoryTaskStore creates an empty MemoryTaskStore.
func NewMemoryTaskStore() *MemoryTaskStore {
	return &MemoryTaskStore{tasks: make(map[uuid.UUID]*domain.Task)}
}

func cloneTask(t *domain.Task) *domain.Task {
	data, err := json.Marshal(t)
	if err != nil {
		panic("cloneTask: " + err.Error())
	}
	var out domain.Task
	if err := json.Unmarshal(data, &out); err != nil {
		panic("cloneTask: " + err.Error())
	}
	return &out
}

// Create implements store.TaskStore.
func (s *MemoryTaskStore) Create(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if err := task.Validate(); err != nil {
		return store.NewStoreError("task", "create", "validation failed", err)
	}
	if _, exists := s.tasks[task.ID]; exists {
		return store.ErrDuplicate
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// GetByID implements store.TaskStore.
func (s *MemoryTaskStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	task, ok := s.tasks[id]
	if !ok {
		return nil, store.ErrTaskNotFound
	}
	return cloneTask(task), nil
}

// Update implements store.TaskStore.
func (s *MemoryTaskStore) Update(_ context.Context, task *domain.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.tasks[task.ID]; !ok {
		return store.ErrTaskNotFound
	}
	s.tasks[task.ID] = cloneTask(task)
	return nil
}

// Delete implements store.TaskStore.
func (s *MemoryTaskStore) Delete(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return s.Err
	}
	if _, ok := s.tasks[id]; !ok {
		return store.ErrTaskNotFound
	}
	delete(s.tasks, id)
	return nil
}

func (s *MemoryTaskStore) filter(pred func(*domain.Task) bool) []*domain.Task {
	var out []*domain.Task
	for _, task := range s.tasks {
		if pred(task) {
			out = append(out, cloneTask(task))
		}
	}
	return out
}

func isOpen(t *domain.Task) bool {
	return t.Status == domain.TaskStatusPending || t.Status == domain.TaskStatusInProgress
}

// GetDueForReminder implements store.TaskStore.
func (s *MemoryTaskStore) GetDueForReminder(_ context.Context, from, until time.Time) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.filter(func(t *domain.Task) bool {
		return isOpen(t) && t.DueTime.After(from) && !t.DueTime.After(until)
	}), nil
}

// GetOverdueCandidates implements store.TaskStore.
func (s *MemoryTaskStore) GetOverdueCandidates(_ context.Context, groupID uuid.UUID, before time.Time) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.filter(func(t *domain.Task) bool {
		return t.GroupID == groupID && isOpen(t) && t.DueTime.Before(before)
	}), nil
}

// GetOverdue implements store.TaskStore.
func (s *MemoryTaskStore) GetOverdue(_ context.Context, groupID uuid.UUID) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.filter(func(t *domain.Task) bool {
		return t.GroupID == groupID && t.Status == domain.TaskStatusOverdue
	}), nil
}

// GetOpen implements store.TaskStore.
func (s *MemoryTaskStore) GetOpen(_ context.Context, groupID uuid.UUID) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.filter(func(t *domain.Task) bool {
		return t.GroupID == groupID && !t.Status.IsTerminal()
	}), nil
}

// GetLateForReview implements store.TaskStore.
func (s *MemoryTaskStore) GetLateForReview(_ context.Context, before time.Time) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.filter(func(t *domain.Task) bool {
		r := t.Workflow.Review
		return r.Status == domain.ReviewStatusPending &&
			r.ReviewDueAt != nil && r.ReviewDueAt.Before(before)
	}), nil
}

// GetCompletedSince implements store.TaskStore.
func (s *MemoryTaskStore) GetCompletedSince(_ context.Context, groupID uuid.UUID, since time.Time) ([]*domain.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return s.filter(func(t *domain.Task) bool {
		return t.GroupID == groupID && t.Status == domain.TaskStatusCompleted &&
			t.CompletedAt != nil && !t.CompletedAt.Before(since)
	}), nil
}

// RecurringInstanceExists implements store.TaskStore.
func (s *MemoryTaskStore) RecurringInstanceExists(_ context.Context, templateID uuid.UUID, instance int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Err != nil {
		return false, s.Err
	}
	for _, t := range s.tasks {
		if t.RecurringTaskID != nil && *t.RecurringTaskID == templateID && t.RecurringInstance == instance {
			return true, nil
		}
	}
	return false, nil
}

// WithTx implements store.TaskStore. The memory store has no transactions;
// it returns itself.
func (s *MemoryTaskStore) WithTx(_ *sql.Tx) store.TaskStore {
	return s
}

// Len returns the number of stored tasks.
func (s *MemoryTaskStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}
