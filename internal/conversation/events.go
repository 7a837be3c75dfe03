// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

// EventKind identifies what changed in a transcript.
type EventKind int

const (
	MessageAdded EventKind = iota
	MessageUpdated
	MessageRemoved
	TitleChanged
)

// String returns the string representation of the kind.
func (k EventKind) String() string {
	switch k {
	case MessageAdded:
		return "message_added"
	case MessageUpdated:
		return "message_updated"
	case MessageRemoved:
		return "message_removed"
	case TitleChanged:
		return "title_changed"
	default:
		return "unknown"
	}
}

// Event describes one transcript change. Message is set for message kinds,
// Title for TitleChanged.
type Event struct {
	Kind    EventKind
	Message Message
	Title   string
}

// Observer receives transcript changes. Observers run on the reducer's
// goroutine and must not call back into the reducer.
type Observer func(Event)
