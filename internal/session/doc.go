// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session owns the lifecycle of streamed chat generations.
//
// A Controller runs at most one Stream at a time. Starting a new stream or
// sending a single-shot message first cancels whatever stream is active,
// so there is never contention, only sequential supersession.
//
// # States
//
//	Idle -> Requesting -> Streaming -> Completed | Cancelled | Failed
//
// Cancellation is cooperative: it is observed before each line of the
// response is processed. A line already being read may finish first.
//
// # Usage
//
//	ctrl := session.NewController(client, session.Config{ContextWindow: 4096})
//	stream, err := ctrl.StreamConversation(ctx, "llama3", history)
//	if err != nil {
//	    return err // ErrNoModel
//	}
//	defer stream.Close()
//	for ev := range stream.Events() {
//	    if ev.Done {
//	        return ev.Err // nil, ErrCancelled, or the failure
//	    }
//	    fmt.Print(ev.Delta)
//	}
package session
