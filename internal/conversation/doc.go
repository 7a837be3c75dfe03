// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package conversation contains the transcript types and the reducer that
// applies a streamed generation to them.
//
// # Key Types
//
//   - Message: one stored chat message, ordered by CreatedAt
//   - Conversation: chat-list metadata (title, model, timestamps)
//   - Transcript: the in-memory ordered messages of one conversation
//   - Reducer: sends input, consumes a session.Stream into an assistant
//     placeholder, persists through a Store and notifies observers
//   - Store: persistence collaborator, implemented in internal/storage
//
// # Usage
//
//	r, err := conversation.Open(ctx, controller, store, convID, conversation.Options{
//	    Model:               "llama3",
//	    SummarizationPrompt: config.DefaultSummarizationPrompt,
//	})
//	r.Subscribe(func(ev conversation.Event) {
//	    if ev.Kind == conversation.MessageUpdated {
//	        render(ev.Message)
//	    }
//	})
//	err = r.Send(ctx, "Why is the sky blue?")
//	if session.IsCancelled(err) {
//	    // user pressed Ctrl+C, nothing to report
//	}
package conversation
