package core

import (
	"time"

	"github.com/google/uuid"
)

// Conversation roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one persisted conversation turn of a thread.
type Message struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage creates a message with a fresh id and the current timestamp.
func NewMessage(role, content string) Message {
	return Message{ID: NewID(), Role: role, Content: content, CreatedAt: time.Now()}
}

// NewID returns a new random identifier (uuid v4).
func NewID() string {
	return uuid.NewString()
}
