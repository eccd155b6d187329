package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// ParseRole parses a role name (case-insensitive).
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(s) {
	case "user":
		return RoleUser, nil
	case "assistant":
		return RoleAssistant, nil
	case "system":
		return RoleSystem, nil
	default:
		return "", fmt.Errorf("unknown role: %s", s)
	}
}

// Flags mark content that summarization must preserve.
type Flags struct {
	FlowArtifact bool `json:"flow_artifact,omitempty"`
	Error        bool `json:"error,omitempty"`
	Decision     bool `json:"decision,omitempty"`
}

// Any reports whether at least one flag is set.
func (f Flags) Any() bool {
	return f.FlowArtifact || f.Error || f.Decision
}

// Protected reports whether the message may never be dropped by truncation.
func (f Flags) Protected() bool {
	return f.FlowArtifact || f.Error
}

// Label returns the most significant flag name, or "" when no flag is set.
func (f Flags) Label() string {
	switch {
	case f.Error:
		return "error"
	case f.FlowArtifact:
		return "flow"
	case f.Decision:
		return "decision"
	default:
		return ""
	}
}

// Message is immutable once appended.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Flags     Flags     `json:"flags"`
}

// NewMessage creates a message with a fresh identifier and the current time.
func NewMessage(role Role, content string, flags Flags) Message {
	return Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
		Flags:     flags,
	}
}

// UserMessage creates an unflagged user message.
func UserMessage(content string) Message {
	return NewMessage(RoleUser, content, Flags{})
}

// AssistantMessage creates an assistant message.
func AssistantMessage(content string, flags Flags) Message {
	return NewMessage(RoleAssistant, content, flags)
}
