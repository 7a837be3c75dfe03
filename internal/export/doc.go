// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export renders saved conversations as Markdown, JSON or HTML.
//
// # Usage
//
//	exporter, err := export.ForFormat("markdown", export.DefaultOptions())
//	doc := export.Document{Conversation: conv, Messages: msgs}
//	path, err := export.ExportToFile(doc, exporter, ".")
//
// ExportToFile writes atomically. Given a directory it picks a filename
// from the conversation title and the current time.
package export
