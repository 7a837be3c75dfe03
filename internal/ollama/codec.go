// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// =============================================================================
// ENCODING
// =============================================================================

// EncodeChatRequest builds the /chat request body. The stream flag is always
// emitted so the server never falls back to its own default.
func EncodeChatRequest(model string, messages []Message, stream bool, contextWindow int) ([]byte, error) {
	// Never send "messages": null
	if messages == nil {
		messages = []Message{}
	}
	body, err := json.Marshal(ChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Options:  Options{NumCtx: contextWindow},
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: encode chat request: %w", err)
	}
	return body, nil
}

// =============================================================================
// DECODING
// =============================================================================

// wireChatResponse mirrors ChatResponsePartial with Done as a pointer so a
// missing "done" field can be told apart from "done": false.
type wireChatResponse struct {
	Message *Message `json:"message"`
	Done    *bool    `json:"done"`
}

// DecodeChatResponse decodes a single /chat response object. Malformed JSON
// or a body without the "done" field fails with a *DecodingError.
func DecodeChatResponse(data []byte) (ChatResponsePartial, error) {
	var wire wireChatResponse
	if err := json.Unmarshal(data, &wire); err != nil {
		return ChatResponsePartial{}, &DecodingError{What: "chat response", Cause: err}
	}
	if wire.Done == nil {
		return ChatResponsePartial{}, &DecodingError{What: "chat response", Cause: errors.New(`missing "done" field`)}
	}
	return ChatResponsePartial{Message: wire.Message, Done: *wire.Done}, nil
}

// DecodeStreamLine is the tolerant variant used on streamed responses.
// Blank lines, keep-alives and lines that fail to decode report ok=false
// and are meant to be skipped, not treated as errors.
func DecodeStreamLine(line []byte) (ChatResponsePartial, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return ChatResponsePartial{}, false
	}
	partial, err := DecodeChatResponse(line)
	if err != nil {
		return ChatResponsePartial{}, false
	}
	return partial, true
}

// DecodeModelList decodes a /tags response into model names, preserving the
// order the server returned them in.
func DecodeModelList(data []byte) ([]string, error) {
	var resp modelListResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &DecodingError{What: "model list", Cause: err}
	}
	if resp.Models == nil {
		// Distinguish {"models": []} from a body with no models key at all
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(data, &probe); err != nil || probe["models"] == nil {
			return nil, &DecodingError{What: "model list", Cause: errors.New(`missing "models" field`)}
		}
	}

	names := make([]string, 0, len(resp.Models))
	for _, m := range resp.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// decodeErrorMessage extracts the "error" text from a failed response body.
func decodeErrorMessage(data []byte) string {
	var resp errorResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return ""
	}
	return resp.Error
}
