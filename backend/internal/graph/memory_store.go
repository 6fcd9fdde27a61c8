package graph

import (
	"context"
	"sync"

	"noahs-ark/backend/internal/genealogy"
)

// MemoryStore is an in-process Store. It backs NEO4J_URI=memory and the tests;
// FailWith and FailNext let tests make it behave like an unreachable server.
type MemoryStore struct {
	mu       sync.RWMutex
	persons  genealogy.IDSet
	parents  map[genealogy.PersonID]genealogy.Parentage
	failErr  error
	failLeft int
	calls    int
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		persons: genealogy.NewIDSet(),
		parents: make(map[genealogy.PersonID]genealogy.Parentage),
	}
}

// FailWith makes every following call return err until cleared with nil
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
	s.failLeft = -1
}

// FailNext makes the next n calls return err, then recovers
func (s *MemoryStore) FailNext(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
	s.failLeft = n
}

// Calls is the number of store calls made so far
func (s *MemoryStore) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}

// enter must be called with mu held for writing
func (s *MemoryStore) enter(ctx context.Context) error {
	s.calls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failErr == nil || s.failLeft == 0 {
		return nil
	}
	err := s.failErr
	if s.failLeft > 0 {
		s.failLeft--
		if s.failLeft == 0 {
			s.failErr = nil
		}
	}
	return err
}

func (s *MemoryStore) EnsurePerson(ctx context.Context, id genealogy.PersonID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx); err != nil {
		return err
	}
	s.persons.Add(id)
	return nil
}

func (s *MemoryStore) Parentage(ctx context.Context, child genealogy.PersonID) (genealogy.Parentage, error) {
	// Fault bookkeeping mutates state, so reads take the write lock too.
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx); err != nil {
		return genealogy.Parentage{}, err
	}
	return s.parents[child], nil
}

func (s *MemoryStore) UpsertEdge(ctx context.Context, child, parent genealogy.PersonID, slot genealogy.Slot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx); err != nil {
		return err
	}

	current := s.parents[child]
	if current.Contains(parent) {
		return nil
	}
	if held := current.At(slot); held != nil {
		return ErrSlotTaken
	}
	s.persons.Add(child)
	s.persons.Add(parent)
	s.parents[child] = current.With(slot, parent)
	return nil
}

func (s *MemoryStore) ReplaceParents(ctx context.Context, child genealogy.PersonID, parents genealogy.Parentage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enter(ctx); err != nil {
		return err
	}

	s.persons.Add(child)
	if parents.Count() == 0 {
		delete(s.parents, child)
		return nil
	}
	for _, p := range parents.Ordered() {
		s.persons.Add(p)
	}
	s.parents[child] = parents
	return nil
}

// HasPerson reports whether a node exists for id
func (s *MemoryStore) HasPerson(id genealogy.PersonID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.persons.Has(id)
}
