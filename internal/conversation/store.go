// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
)

// ErrNotFound is returned by a Store for an unknown conversation or message.
// Use errors.Is(err, ErrNotFound) to check for it.
var ErrNotFound = errors.New("not found")

// Store persists conversations and their messages.
//
// Implementations must be safe for concurrent use.
type Store interface {
	CreateConversation(ctx context.Context, conv Conversation) error

	// ListConversations returns all conversations, most recently updated first.
	ListConversations(ctx context.Context) ([]Conversation, error)
	GetConversation(ctx context.Context, id string) (Conversation, error)
	SetTitle(ctx context.Context, id, title string) error

	// DeleteConversation removes the conversation and all of its messages.
	DeleteConversation(ctx context.Context, id string) error

	// AppendMessage stores a new message and bumps the conversation's UpdatedAt.
	AppendMessage(ctx context.Context, msg Message) error
	UpdateMessageContent(ctx context.Context, conversationID, messageID, content string) error
	DeleteMessage(ctx context.Context, conversationID, messageID string) error

	// ListMessages returns the conversation's messages ordered by CreatedAt.
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
}
