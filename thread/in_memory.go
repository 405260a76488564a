package thread

import (
	"context"
	"sync"

	"github.com/hupe1980/secboard/core"
)

// InMemoryStore keeps threads in a process local map. It is safe for
// concurrent access and best suited for tests and single-process servers.
// Returned threads are clones.
type InMemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*core.Thread
}

// NewInMemoryStore constructs an empty in-memory thread store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{threads: make(map[string]*core.Thread)}
}

// Create allocates a thread with a fresh id.
func (s *InMemoryStore) Create(_ context.Context) (*core.Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t := core.NewThread(core.NewID())
	s.threads[t.ID] = t

	return t.Clone(), nil
}

// Get returns a clone of the thread or core.ErrThreadNotFound.
func (s *InMemoryStore) Get(_ context.Context, id string) (*core.Thread, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.threads[id]
	if !ok {
		return nil, core.ErrThreadNotFound
	}

	return t.Clone(), nil
}

// AppendMessage appends msg to an existing thread.
func (s *InMemoryStore) AppendMessage(_ context.Context, threadID string, msg core.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.threads[threadID]
	if !ok {
		return core.ErrThreadNotFound
	}
	t.AddMessage(msg)

	return nil
}

// Ping always succeeds.
func (s *InMemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *InMemoryStore) Close() error { return nil }
