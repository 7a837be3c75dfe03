// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"sync"
	"time"

	"github.com/jeranaias/rigchat/internal/ollama"
)

// Transcript holds the messages of one conversation in memory. Writes come
// from a single goroutine; the mutex only makes concurrent reads safe.
type Transcript struct {
	mu       sync.RWMutex
	messages []Message
}

// NewTranscript creates a transcript from stored messages.
func NewTranscript(messages []Message) *Transcript {
	t := &Transcript{messages: make([]Message, len(messages))}
	copy(t.messages, messages)
	SortByCreated(t.messages)
	return t
}

// Snapshot returns a copy of the messages ordered by CreatedAt.
func (t *Transcript) Snapshot() []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Message, len(t.messages))
	copy(out, t.messages)
	SortByCreated(out)
	return out
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.messages)
}

// Get returns the message with the given ID.
func (t *Transcript) Get(id string) (Message, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if i := t.indexLocked(id); i >= 0 {
		return t.messages[i], true
	}
	return Message{}, false
}

// History returns the request history for the server, sorted by CreatedAt.
func (t *Transcript) History() []ollama.Message {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return ToOllamaMessages(t.messages)
}

// HasRole reports whether any message with a non-empty body has the role.
func (t *Transcript) HasRole(role Role) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, m := range t.messages {
		if m.Role == role && !m.IsEmpty() {
			return true
		}
	}
	return false
}

// NextCreatedAt returns a timestamp strictly after every known message,
// preferring now.
func (t *Transcript) NextCreatedAt(now time.Time) time.Time {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, m := range t.messages {
		if !now.After(m.CreatedAt) {
			now = m.CreatedAt.Add(time.Nanosecond)
		}
	}
	return now
}

// Add appends a message.
func (t *Transcript) Add(msg Message) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.messages = append(t.messages, msg)
}

// AppendContent appends delta to a message's content in place and returns
// the updated message.
func (t *Transcript) AppendContent(id, delta string) (Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(id)
	if i < 0 {
		return Message{}, false
	}
	t.messages[i].Content += delta
	return t.messages[i], true
}

// Remove deletes a message by ID.
func (t *Transcript) Remove(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.indexLocked(id)
	if i < 0 {
		return false
	}
	t.messages = append(t.messages[:i], t.messages[i+1:]...)
	return true
}

// From returns the message with the given ID and every message ordered
// after it.
func (t *Transcript) From(id string) []Message {
	sorted := t.Snapshot()
	for i, m := range sorted {
		if m.ID == id {
			return sorted[i:]
		}
	}
	return nil
}

func (t *Transcript) indexLocked(id string) int {
	for i := range t.messages {
		if t.messages[i].ID == id {
			return i
		}
	}
	return -1
}
