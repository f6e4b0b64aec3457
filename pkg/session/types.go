// Package session provides the conversation session abstraction for the
// relay: a bounded per-user message window with interchangeable storage
// backends (in-memory, Redis, Postgres).
package session

import (
	"time"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser is a message sent by the end user.
	RoleUser Role = "user"
	// RoleAssistant is a model-generated reply.
	RoleAssistant Role = "assistant"
	// RoleSystem is an instruction turn.
	RoleSystem Role = "system"
)

// Turn is one role-tagged message in a conversation.
// Turns are immutable once appended.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"timestamp"`
}

// UserStats summarizes a user's retained history across all chats,
// including chats deactivated by a clear. Only the persistent backend
// can produce these.
type UserStats struct {
	UserID        string `json:"user_id"`
	PhoneNumber   string `json:"phone_number"`
	FullName      string `json:"full_name,omitempty"`
	TotalChats    int    `json:"total_chats"`
	TotalMessages int    `json:"total_messages"`
}
