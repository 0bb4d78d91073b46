package models

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies the author of a message. Only the three known roles are
// accepted; anything else is rejected at the boundary instead of being
// silently dropped later.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ParseRole validates a raw role string.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleSystem:
		return RoleSystem, nil
	case RoleUser:
		return RoleUser, nil
	case RoleAssistant:
		return RoleAssistant, nil
	default:
		return "", fmt.Errorf("models: unknown message role %q", raw)
	}
}

// Conversation lifecycle states.
const (
	StatusActive   = "active"
	StatusArchived = "archived"
)

// Message is one immutable turn in a conversation.
type Message struct {
	ID        string    `bson:"message_id" json:"message_id"`
	Role      Role      `bson:"role" json:"role"`
	Content   string    `bson:"content" json:"content"`
	Timestamp time.Time `bson:"timestamp" json:"timestamp"`
}

// ConversationMetadata keeps aggregate counters alongside the message list.
// TotalMessages always equals len(Conversation.Messages); the store updates
// both in a single atomic operation.
type ConversationMetadata struct {
	TotalMessages            int        `bson:"total_messages" json:"total_messages"`
	LastUserMessageTime      *time.Time `bson:"last_user_message_time" json:"last_user_message_time,omitempty"`
	LastAssistantMessageTime *time.Time `bson:"last_assistant_message_time" json:"last_assistant_message_time,omitempty"`
}

// Conversation is the persisted document for one user/assistant thread.
// The field layout is the durable contract any storage backend must keep.
type Conversation struct {
	ID         string               `bson:"conversation_id" json:"conversation_id"`
	UserID     string               `bson:"user_id" json:"user_id"`
	Messages   []Message            `bson:"messages" json:"messages"`
	CreatedAt  time.Time            `bson:"created_at" json:"created_at"`
	UpdatedAt  time.Time            `bson:"updated_at" json:"updated_at"`
	Status     string               `bson:"status" json:"status"`
	ArchivedAt *time.Time           `bson:"archived_at,omitempty" json:"archived_at,omitempty"`
	Metadata   ConversationMetadata `bson:"metadata" json:"metadata"`
}

// ConversationSummary is the projection returned when listing a user's
// active conversations.
type ConversationSummary struct {
	ID            string    `json:"conversation_id"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	TotalMessages int       `json:"total_messages"`
}
