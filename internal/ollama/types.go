// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// Message is a single {role, content} pair as sent to and received from /chat.
type Message struct {
	Role    string `json:"role"`    // "user", "assistant", "system"
	Content string `json:"content"` // The message content
}

// ChatRequest is the request body for the /chat endpoint.
// The full conversation history is replayed on every call.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  Options   `json:"options"`
}

// Options contains model parameters for inference.
type Options struct {
	NumCtx int `json:"num_ctx"` // Context window size
}

// ChatResponsePartial is one decoded /chat response object. A streamed
// response produces one per line; the terminal one has Done set and may
// carry no message.
type ChatResponsePartial struct {
	Message *Message `json:"message"`
	Done    bool     `json:"done"`
}

// Content returns the message content, or "" when the record carries no message.
func (p ChatResponsePartial) Content() string {
	if p.Message == nil {
		return ""
	}
	return p.Message.Content
}

// modelListResponse is the response from the /tags endpoint.
type modelListResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// errorResponse is the {"error": "..."} body Ollama returns on failures.
type errorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// HELPER CONSTRUCTORS
// =============================================================================

// NewUserMessage creates a new user message.
func NewUserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}
