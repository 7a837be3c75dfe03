// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/rigchat/internal/ollama"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = ollama.RoleUser
	RoleAssistant Role = ollama.RoleAssistant
	RoleSystem    Role = ollama.RoleSystem
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant || r == RoleSystem
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message is a single stored message. Content grows by append while an
// assistant reply streams in.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// NewMessage creates a message with a fresh ID.
func NewMessage(conversationID string, role Role, content string, createdAt time.Time) Message {
	return Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		CreatedAt:      createdAt,
	}
}

// IsEmpty returns true if the message has no content.
func (m Message) IsEmpty() bool {
	return m.Content == ""
}

// Preview returns a single-line preview of at most maxLen runes.
func (m Message) Preview(maxLen int) string {
	content := strings.Join(strings.Fields(m.Content), " ")
	runes := []rune(content)
	if maxLen <= 0 || len(runes) <= maxLen {
		return content
	}
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// ToOllama converts the message to its wire form.
func (m Message) ToOllama() ollama.Message {
	return ollama.Message{Role: string(m.Role), Content: m.Content}
}

// SortByCreated orders messages by CreatedAt in place. Messages with equal
// timestamps keep their relative order.
func SortByCreated(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].CreatedAt.Before(messages[j].CreatedAt)
	})
}

// ToOllamaMessages sorts a copy of messages by CreatedAt and converts it to
// request history. Empty messages are left out.
func ToOllamaMessages(messages []Message) []ollama.Message {
	sorted := make([]Message, len(messages))
	copy(sorted, messages)
	SortByCreated(sorted)

	out := make([]ollama.Message, 0, len(sorted))
	for _, m := range sorted {
		if m.IsEmpty() {
			continue
		}
		out = append(out, m.ToOllama())
	}
	return out
}
