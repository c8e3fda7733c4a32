// Package types provides core types used across the agentrun runtime.
// This package has ZERO dependencies on other agentrun packages to avoid
// circular imports. All other packages should import types from here.
package types

import "time"

// Role represents the role of a message participant.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message represents a conversation message.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content,omitempty"`
	Timestamp time.Time `json:"timestamp,omitempty"`
	Metadata  any       `json:"metadata,omitempty"`
}

// NewMessage creates a new message with the given role and content.
func NewMessage(role Role, content string) Message {
	return Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return NewMessage(RoleSystem, content)
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return NewMessage(RoleUser, content)
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return NewMessage(RoleAssistant, content)
}

// NavigationContext is an optional hint of where in the client UI a request
// originated. It is a read-only input to intent routing.
type NavigationContext struct {
	Section  string `json:"section,omitempty"`
	Topic    string `json:"topic,omitempty"`
	EntityID string `json:"entity_id,omitempty"`
}
