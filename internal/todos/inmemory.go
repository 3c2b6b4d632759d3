package todos

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// InMemoryStore keeps todos in process memory in insertion order.
type InMemoryStore struct {
	mu    sync.RWMutex
	clock Clock
	order []string
	todos map[string]*Task
}

func NewInMemoryStore(clock Clock) *InMemoryStore {
	return &InMemoryStore{
		clock: clockOrDefault(clock),
		todos: make(map[string]*Task),
	}
}

func (s *InMemoryStore) List(_ context.Context, filter Filter) ([]Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Task, 0, len(s.order))
	for _, id := range s.order {
		t := s.todos[id]
		if t == nil || !filter.Match(*t) {
			continue
		}
		out = append(out, t.Clone())
	}
	return out, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.todos[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t.Clone(), nil
}

func (s *InMemoryStore) Create(_ context.Context, in CreateInput) (Task, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.NewString()
	for s.todos[id] != nil {
		id = uuid.NewString()
	}
	t := newTask(id, in, now)
	s.todos[id] = &t
	s.order = append(s.order, id)
	return t.Clone(), nil
}

func (s *InMemoryStore) Replace(_ context.Context, id string, in ReplaceInput) (Task, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.todos[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	*t = in.apply(*t, now)
	return t.Clone(), nil
}

func (s *InMemoryStore) Merge(_ context.Context, id string, patch Patch) (Task, error) {
	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.todos[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	*t = patch.apply(*t, now)
	return t.Clone(), nil
}

func (s *InMemoryStore) Remove(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.todos[id]; !ok {
		return false, nil
	}
	delete(s.todos, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.todos)
}

func (s *InMemoryStore) Close() error { return nil }
