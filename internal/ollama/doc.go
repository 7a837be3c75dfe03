// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the HTTP client for communicating with Ollama API.
//
// It covers the two endpoints rigchat uses, GET tags and POST chat, and the
// JSON codec for their bodies.
//
// # Key Types
//
//   - Client: transport over an injectable Doer, single-shot and line-streamed calls
//   - LineReader: lazy sequence of lines from a streamed response
//   - ChatRequest / ChatResponsePartial: the chat wire schema
//   - NetworkError / DecodingError: the failure taxonomy
//
// # Usage
//
//	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
//	    BaseURL: "http://localhost:11434/api",
//	})
//	names, err := client.FetchModelList(ctx)
//
// For streaming responses:
//
//	lines, err := client.ChatStream(ctx, "llama3", messages, 4096)
//	defer lines.Close()
//	for lines.Next() {
//	    if part, ok := ollama.DecodeStreamLine(lines.Line()); ok {
//	        fmt.Print(part.Content())
//	    }
//	}
//
// Streamed lines that fail to decode are skipped by DecodeStreamLine, while
// DecodeChatResponse on a single-shot body is strict.
package ollama
