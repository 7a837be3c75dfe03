// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides conversation persistence for rigchat.
//
// Two implementations of conversation.Store are provided:
//
//   - SQLiteStore: a single database file (default ~/.rigchat/rigchat.db)
//     using the pure Go modernc.org/sqlite driver
//   - FileStore: one JSON file per conversation (default
//     ~/.rigchat/conversations/), written atomically
//
// # Usage
//
//	store, err := storage.Open(storage.BackendSQLite, path, storage.Options{MaxConversations: 200})
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	convs, err := store.ListConversations(ctx)
package storage
