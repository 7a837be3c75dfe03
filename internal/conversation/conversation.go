// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTitle is shown for conversations that have not been titled yet.
const DefaultTitle = "New Conversation"

// Conversation is the chat-list entry for a transcript.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewConversation creates an untitled conversation with a fresh ID.
func NewConversation(model string) Conversation {
	now := time.Now()
	return Conversation{
		ID:        uuid.New().String(),
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// DisplayTitle returns the conversation title or a default.
func (c Conversation) DisplayTitle() string {
	if c.Title != "" {
		return c.Title
	}
	return DefaultTitle
}
