// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"net/http"
)

// =============================================================================
// TRANSPORT ABSTRACTION
// =============================================================================

// Doer performs a single HTTP round trip. *http.Client satisfies it; tests
// inject fakes.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// DoerFunc adapts a function to the Doer interface.
type DoerFunc func(req *http.Request) (*http.Response, error)

// Do calls f(req).
func (f DoerFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Request describes one call against the API. Path is appended to the
// client's base URL ("tags", "chat").
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// bodyReader returns the request body as an io.Reader, or nil for GETs.
func (r Request) bodyReader() io.Reader {
	if r.Body == nil {
		return nil
	}
	return bytes.NewReader(r.Body)
}

// =============================================================================
// LINE READER
// =============================================================================

// maxErrorBody caps how much of a failed response body is read for the
// server's error message.
const maxErrorBody = 64 * 1024

// LineReader is a lazy sequence of newline-delimited lines from a streamed
// response body. It is not safe for concurrent use.
//
//	for lines.Next() {
//	    handle(lines.Line())
//	}
//	if err := lines.Err(); err != nil { ... }
type LineReader struct {
	body   io.ReadCloser
	reader *bufio.Reader
	line   []byte
	err    error
	done   bool
}

// NewLineReader wraps a response body. Close releases the body.
func NewLineReader(body io.ReadCloser) *LineReader {
	return &LineReader{
		body:   body,
		reader: bufio.NewReader(body),
	}
}

// Next advances to the next line. It returns false at end of stream or on
// a read error; Err distinguishes the two.
func (l *LineReader) Next() bool {
	if l.done {
		return false
	}

	line, err := l.reader.ReadBytes('\n')
	if err != nil {
		l.done = true
		if !errors.Is(err, io.EOF) {
			l.err = classifyTransportError(err)
			return false
		}
		// Deliver a trailing line without a newline before reporting EOF
		if len(line) == 0 {
			return false
		}
	}

	l.line = bytes.TrimRight(line, "\r\n")
	return true
}

// Line returns the current line without its terminator. The slice is only
// valid until the next call to Next.
func (l *LineReader) Line() []byte {
	return l.line
}

// Err returns the read error that stopped iteration, or nil at a clean EOF.
func (l *LineReader) Err() error {
	return l.err
}

// Close releases the underlying body. Safe to call more than once.
func (l *LineReader) Close() error {
	l.done = true
	if l.body == nil {
		return nil
	}
	err := l.body.Close()
	l.body = nil
	return err
}
