// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/jeranaias/rigchat/internal/conversation"
	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// STORED CONVERSATION TYPE
// =============================================================================

// storedConversation is the on-disk form of one conversation.
type storedConversation struct {
	conversation.Conversation
	Messages []storedMessage `json:"messages"`
}

// storedMessage is a message without its conversation ID, which is implied
// by the file.
type storedMessage struct {
	ID        string            `json:"id"`
	Role      conversation.Role `json:"role"`
	Content   string            `json:"content"`
	CreatedAt time.Time         `json:"created_at"`
}

func (m storedMessage) toMessage(convID string) conversation.Message {
	return conversation.Message{
		ID:             m.ID,
		ConversationID: convID,
		Role:           m.Role,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
	}
}

// =============================================================================
// FILE STORE
// =============================================================================

// FileStore keeps one JSON file per conversation.
type FileStore struct {
	// BaseDir is the directory for storing conversations
	BaseDir string

	// MaxConversations limits stored conversations (0 = unlimited)
	MaxConversations int

	mu sync.Mutex
}

// NewFileStore creates a store in baseDir, creating it if needed.
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create conversation directory: %w", err)
	}
	return &FileStore{BaseDir: baseDir}, nil
}

// Close implements io.Closer.
func (s *FileStore) Close() error {
	return nil
}

// =============================================================================
// CONVERSATIONS
// =============================================================================

// CreateConversation writes an empty conversation file.
func (s *FileStore) CreateConversation(_ context.Context, conv conversation.Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.filePath(conv.ID); err != nil {
		return err
	}
	if err := s.save(&storedConversation{Conversation: conv, Messages: []storedMessage{}}); err != nil {
		return err
	}
	if s.MaxConversations > 0 {
		s.enforceLimit()
	}
	return nil
}

// ListConversations returns all conversations, most recently updated first.
// Unreadable files are skipped.
func (s *FileStore) ListConversations(context.Context) ([]conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.list()
}

func (s *FileStore) list() ([]conversation.Conversation, error) {
	entries, err := os.ReadDir(s.BaseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []conversation.Conversation{}, nil
		}
		return nil, err
	}

	convs := make([]conversation.Conversation, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		id := strings.TrimSuffix(entry.Name(), ".json")
		stored, err := s.load(id)
		if err != nil {
			log.WithError(err).WithField("file", entry.Name()).Warn("skipping unreadable conversation")
			continue
		}
		convs = append(convs, stored.Conversation)
	}

	sort.SliceStable(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})
	return convs, nil
}

// GetConversation returns the conversation metadata.
func (s *FileStore) GetConversation(_ context.Context, id string) (conversation.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.load(id)
	if err != nil {
		return conversation.Conversation{}, err
	}
	return stored.Conversation, nil
}

// SetTitle updates the conversation title.
func (s *FileStore) SetTitle(_ context.Context, id, title string) error {
	return s.update(id, func(c *storedConversation) error {
		c.Title = title
		return nil
	})
}

// DeleteConversation removes the conversation file.
func (s *FileStore) DeleteConversation(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delete(id)
}

func (s *FileStore) delete(id string) error {
	path, err := s.filePath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return conversation.ErrNotFound
		}
		return err
	}
	return nil
}

// =============================================================================
// MESSAGES
// =============================================================================

// AppendMessage adds a message to its conversation file.
func (s *FileStore) AppendMessage(_ context.Context, msg conversation.Message) error {
	return s.update(msg.ConversationID, func(c *storedConversation) error {
		c.Messages = append(c.Messages, storedMessage{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
		return nil
	})
}

// UpdateMessageContent replaces a message's content.
func (s *FileStore) UpdateMessageContent(_ context.Context, conversationID, messageID, content string) error {
	return s.update(conversationID, func(c *storedConversation) error {
		for i := range c.Messages {
			if c.Messages[i].ID == messageID {
				c.Messages[i].Content = content
				return nil
			}
		}
		return conversation.ErrNotFound
	})
}

// DeleteMessage removes a message.
func (s *FileStore) DeleteMessage(_ context.Context, conversationID, messageID string) error {
	return s.update(conversationID, func(c *storedConversation) error {
		for i := range c.Messages {
			if c.Messages[i].ID == messageID {
				c.Messages = append(c.Messages[:i], c.Messages[i+1:]...)
				return nil
			}
		}
		return conversation.ErrNotFound
	})
}

// ListMessages returns the messages ordered by CreatedAt.
func (s *FileStore) ListMessages(_ context.Context, conversationID string) ([]conversation.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load(conversationID)
	if err != nil {
		return nil, err
	}
	messages := make([]conversation.Message, len(stored.Messages))
	for i, m := range stored.Messages {
		messages[i] = m.toMessage(conversationID)
	}
	conversation.SortByCreated(messages)
	return messages, nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// update loads, mutates and saves one conversation under the lock.
func (s *FileStore) update(id string, fn func(*storedConversation) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, err := s.load(id)
	if err != nil {
		return err
	}
	if err := fn(stored); err != nil {
		return err
	}
	stored.UpdatedAt = time.Now()
	return s.save(stored)
}

func (s *FileStore) load(id string) (*storedConversation, error) {
	path, err := s.filePath(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, conversation.ErrNotFound
		}
		return nil, err
	}

	var stored storedConversation
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("corrupt conversation file %s: %w", filepath.Base(path), err)
	}
	return &stored, nil
}

func (s *FileStore) save(stored *storedConversation) error {
	path, err := s.filePath(stored.ID)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return err
	}
	return util.AtomicWriteFile(path, data, 0644)
}

// enforceLimit removes the least recently updated conversations.
func (s *FileStore) enforceLimit() {
	convs, err := s.list()
	if err != nil || len(convs) <= s.MaxConversations {
		return
	}
	for _, c := range convs[s.MaxConversations:] {
		if err := s.delete(c.ID); err != nil {
			log.WithError(err).WithField("conversation", c.ID).Warn("failed to prune conversation")
		}
	}
}

// filePath returns the file path for a conversation ID.
func (s *FileStore) filePath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", errors.New("invalid conversation id")
	}
	return filepath.Join(s.BaseDir, id+".json"), nil
}
