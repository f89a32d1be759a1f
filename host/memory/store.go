// Package memory implements host.Store fully in memory. Safe for
// concurrent access. Intended for unit testing and single-process
// deployments; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	worker "github.com/toyota-m2k/android-worker"
	"github.com/toyota-m2k/android-worker/host"
	"github.com/toyota-m2k/android-worker/id"
)

var _ host.Store = (*Store)(nil)

// Store is an in-memory host.Store.
type Store struct {
	mu    sync.RWMutex
	tasks map[string]*host.Task
}

// New returns a new empty Store.
func New() *Store {
	return &Store{tasks: make(map[string]*host.Task)}
}

// Enqueue persists a new task in enqueued state.
func (m *Store) Enqueue(_ context.Context, t *host.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, exists := m.tasks[key]; exists {
		return worker.ErrTaskExists
	}
	cp := *t
	cp.State = host.StateEnqueued
	if cp.EnqueuedAt.IsZero() {
		cp.EnqueuedAt = time.Now().UTC()
	}
	m.tasks[key] = &cp
	return nil
}

// Dequeue atomically claims up to limit enqueued tasks, sets them to
// running, and returns them. Expedited tasks are claimed before regular
// ones, oldest first within each class.
func (m *Store) Dequeue(_ context.Context, limit int) ([]*host.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := make([]*host.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.State == host.StateEnqueued {
			candidates = append(candidates, t)
		}
	}

	sort.Slice(candidates, func(i, k int) bool {
		if candidates[i].Expedited != candidates[k].Expedited {
			return candidates[i].Expedited
		}
		return candidates[i].EnqueuedAt.Before(candidates[k].EnqueuedAt)
	})

	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	now := time.Now().UTC()
	result := make([]*host.Task, len(candidates))
	for i, t := range candidates {
		t.State = host.StateRunning
		n := now
		t.StartedAt = &n
		// Return a copy so callers can mutate without racing with the store.
		cp := *t
		result[i] = &cp
	}
	return result, nil
}

// Get retrieves a task by ID.
func (m *Store) Get(_ context.Context, taskID id.TaskID) (*host.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[taskID.String()]
	if !ok {
		return nil, worker.ErrTaskNotFound
	}
	cp := *t
	return &cp, nil
}

// Update persists changes to an existing task.
func (m *Store) Update(_ context.Context, t *host.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := t.ID.String()
	if _, ok := m.tasks[key]; !ok {
		return worker.ErrTaskNotFound
	}
	cp := *t
	m.tasks[key] = &cp
	return nil
}

// Delete removes a task by ID.
func (m *Store) Delete(_ context.Context, taskID id.TaskID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := taskID.String()
	if _, ok := m.tasks[key]; !ok {
		return worker.ErrTaskNotFound
	}
	delete(m.tasks, key)
	return nil
}

// Pending lists non-terminal tasks, oldest first.
func (m *Store) Pending(_ context.Context) ([]*host.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*host.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		if t.State.Terminal() {
			continue
		}
		cp := *t
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, k int) bool {
		return result[i].EnqueuedAt.Before(result[k].EnqueuedAt)
	})
	return result, nil
}

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }
