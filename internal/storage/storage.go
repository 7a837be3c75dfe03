// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"fmt"
	"io"
	"strings"

	"github.com/jeranaias/rigchat/internal/conversation"
)

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendJSON   = "json"
)

// Store is a conversation.Store that holds resources until closed.
type Store interface {
	conversation.Store
	io.Closer
}

// Options tunes an opened store.
type Options struct {
	// MaxConversations keeps only the most recently updated conversations
	// when a new one is created (0 = unlimited)
	MaxConversations int
}

// Open opens the store for backend at path. Path is a database file for
// sqlite and a directory for json.
func Open(backend, path string, opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case BackendSQLite, "":
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		s.MaxConversations = opts.MaxConversations
		return s, nil
	case BackendJSON:
		s, err := NewFileStore(path)
		if err != nil {
			return nil, err
		}
		s.MaxConversations = opts.MaxConversations
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (want %s or %s)", backend, BackendSQLite, BackendJSON)
	}
}
