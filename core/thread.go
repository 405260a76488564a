package core

import (
	"context"
	"sync"
	"time"
)

// Thread is a conversation container shared by every step of a run. Each step
// reads the history for context and appends its own task / answer pair. It is
// safe for concurrent access.
type Thread struct {
	ID       string    `json:"id"`
	Messages []Message `json:"messages"`
	Created  time.Time `json:"created"`
	Updated  time.Time `json:"updated"`
	mu       sync.RWMutex
}

// NewThread creates an empty thread with the given id.
func NewThread(id string) *Thread {
	now := time.Now()
	return &Thread{ID: id, Messages: []Message{}, Created: now, Updated: now}
}

// AddMessage appends a message to the history updating Updated.
func (t *Thread) AddMessage(m Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Messages = append(t.Messages, m)
	t.Updated = time.Now()
}

// GetMessages returns a defensive copy of the message history.
func (t *Thread) GetMessages() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	msgs := make([]Message, len(t.Messages))
	copy(msgs, t.Messages)
	return msgs
}

// Len returns the number of messages in the thread.
func (t *Thread) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.Messages)
}

// Clone returns a deep copy of the thread safe for independent mutation.
func (t *Thread) Clone() *Thread {
	t.mu.RLock()
	defer t.mu.RUnlock()
	clone := &Thread{ID: t.ID, Messages: make([]Message, len(t.Messages)), Created: t.Created, Updated: t.Updated}
	copy(clone.Messages, t.Messages)
	return clone
}

// ThreadStore persists threads and their message history.
type ThreadStore interface {
	// Create allocates a new thread with a generated id.
	Create(ctx context.Context) (*Thread, error)
	// Get returns a snapshot of the thread or ErrThreadNotFound.
	Get(ctx context.Context, id string) (*Thread, error)
	// AppendMessage appends msg to the thread or returns ErrThreadNotFound.
	AppendMessage(ctx context.Context, threadID string, msg Message) error
}
