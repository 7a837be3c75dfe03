// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultBufferSize is the capacity of a stream's event channel.
const DefaultBufferSize = 32

// =============================================================================
// EVENTS
// =============================================================================

// Event is one item of a stream's output. Exactly one event per stream has
// Done set; it is always the last one before the channel closes.
type Event struct {
	// Delta is a content fragment to append. Empty on the final event.
	Delta string

	// Done marks the final event.
	Done bool

	// Err is set on the final event: nil for a normal completion,
	// ErrCancelled after cancellation, anything else for a failure.
	Err error
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is one in-flight streamed generation. Its events must be consumed
// by a single reader. A reader that stops early must call Close so the
// generation is stopped as well.
type Stream struct {
	events chan Event
	done   chan struct{}

	// cancel aborts the HTTP request; cancelled is the flag the read loop
	// checks before each line.
	cancel    context.CancelFunc
	cancelled atomic.Bool

	// abandoned is closed when the consumer stops listening.
	abandoned   chan struct{}
	abandonOnce sync.Once

	state atomic.Int32

	mu          sync.Mutex
	placeholder string
}

func newStream(cancel context.CancelFunc, bufferSize int) *Stream {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Stream{
		events:    make(chan Event, bufferSize),
		done:      make(chan struct{}),
		cancel:    cancel,
		abandoned: make(chan struct{}),
	}
}

// Events returns the output channel. It is closed after the final event.
func (s *Stream) Events() <-chan Event {
	return s.events
}

// Done is closed once the producer has exited and released the connection.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// State returns the current lifecycle state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

func (s *Stream) setState(state State) {
	s.state.Store(int32(state))
}

// Cancel signals cancellation. The final event will carry ErrCancelled
// unless the stream already reached a terminal state. Safe to call more
// than once and from any goroutine.
func (s *Stream) Cancel() {
	s.cancelled.Store(true)
	s.cancel()
}

// Close tells the producer nobody is listening anymore and cancels the
// generation. Pending events are dropped.
func (s *Stream) Close() {
	s.Cancel()
	s.abandonOnce.Do(func() { close(s.abandoned) })
}

// isCancelled is checked at the top of every loop iteration.
func (s *Stream) isCancelled(ctx context.Context) bool {
	return s.cancelled.Load() || ctx.Err() != nil
}

// SetPlaceholderID records the assistant message this stream feeds.
func (s *Stream) SetPlaceholderID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.placeholder = id
}

// PlaceholderID returns the assistant message this stream feeds, if set.
func (s *Stream) PlaceholderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.placeholder
}

// emit delivers an event, blocking while the buffer is full. It returns
// false if the consumer has gone away.
func (s *Stream) emit(ev Event) bool {
	select {
	case s.events <- ev:
		return true
	case <-s.abandoned:
		return false
	}
}

// Collect drains the stream and returns the concatenated content together
// with the final error. Partial content is returned alongside errors.
func (s *Stream) Collect() (string, error) {
	var content strings.Builder
	for ev := range s.events {
		if ev.Done {
			return content.String(), ev.Err
		}
		content.WriteString(ev.Delta)
	}
	return content.String(), nil
}
