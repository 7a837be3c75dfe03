// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/apex/log"

	"github.com/jeranaias/rigchat/internal/ollama"
)

// =============================================================================
// CLIENT INTERFACE
// =============================================================================

// ChatClient is the subset of *ollama.Client the controller needs.
type ChatClient interface {
	FetchModelList(ctx context.Context) ([]string, error)
	Chat(ctx context.Context, model string, messages []ollama.Message, contextWindow int) (ollama.ChatResponsePartial, error)
	ChatStream(ctx context.Context, model string, messages []ollama.Message, contextWindow int) (*ollama.LineReader, error)
}

// =============================================================================
// CONTROLLER
// =============================================================================

// DefaultContextWindow is used when Config.ContextWindow is not set.
const DefaultContextWindow = 2048

// Config holds controller settings.
type Config struct {
	// ContextWindow is sent as options.num_ctx on every request
	ContextWindow int

	// BufferSize is the event channel capacity of each stream
	BufferSize int
}

// Controller issues chat requests and owns the single active stream.
//
// The Controller is safe for concurrent use.
type Controller struct {
	client     ChatClient
	bufferSize int

	contextWindow atomic.Int64

	mu     sync.Mutex
	active *Stream
}

// NewController creates a controller over client.
func NewController(client ChatClient, cfg Config) *Controller {
	c := &Controller{
		client:     client,
		bufferSize: cfg.BufferSize,
	}
	c.SetContextWindow(cfg.ContextWindow)
	return c
}

// SetContextWindow changes num_ctx for subsequent requests. Non-positive
// values reset it to DefaultContextWindow.
func (c *Controller) SetContextWindow(n int) {
	if n <= 0 {
		n = DefaultContextWindow
	}
	c.contextWindow.Store(int64(n))
}

// ContextWindow returns the num_ctx that the next request will carry.
func (c *Controller) ContextWindow() int {
	return int(c.contextWindow.Load())
}

// HasActiveStream reports whether a stream is currently in flight.
func (c *Controller) HasActiveStream() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active != nil
}

// CancelStream cancels the active stream, if any. Idempotent.
func (c *Controller) CancelStream() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelActiveLocked()
}

func (c *Controller) cancelActiveLocked() {
	if c.active != nil {
		c.active.Cancel()
		c.active = nil
	}
}

// release clears the active reference if it still points at s.
func (c *Controller) release(s *Stream) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active == s {
		c.active = nil
	}
}

// =============================================================================
// MODEL OPERATIONS
// =============================================================================

// FetchModelList returns the server's models in server order.
func (c *Controller) FetchModelList(ctx context.Context) ([]string, error) {
	names, err := c.client.FetchModelList(ctx)
	return names, cancelled(ctx, err)
}

// ResolveModel returns preferred when set, otherwise the first model the
// server lists. ErrNoModel if neither exists.
func (c *Controller) ResolveModel(ctx context.Context, preferred string) (string, error) {
	if model := strings.TrimSpace(preferred); model != "" {
		return model, nil
	}
	names, err := c.FetchModelList(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", ErrNoModel
	}
	return names[0], nil
}

// =============================================================================
// SINGLE-SHOT
// =============================================================================

// SendSingleMessage cancels any active stream, then performs a non-streamed
// request and returns the assistant content ("" if the response carries no
// message). Decode failures are returned, not skipped.
func (c *Controller) SendSingleMessage(ctx context.Context, model string, messages []ollama.Message) (string, error) {
	if strings.TrimSpace(model) == "" {
		return "", ErrNoModel
	}
	c.CancelStream()

	resp, err := c.client.Chat(ctx, model, messages, c.ContextWindow())
	if err != nil {
		return "", cancelled(ctx, err)
	}
	return resp.Content(), nil
}

// cancelled reports a failure caused by cancelling ctx as ErrCancelled.
func cancelled(ctx context.Context, err error) error {
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return ErrCancelled
	}
	return err
}

// =============================================================================
// STREAMING
// =============================================================================

// StreamConversation cancels any active stream and starts a new one. The
// only error returned directly is ErrNoModel; transport and read failures
// arrive as the stream's final event.
func (c *Controller) StreamConversation(ctx context.Context, model string, messages []ollama.Message) (*Stream, error) {
	if strings.TrimSpace(model) == "" {
		return nil, ErrNoModel
	}

	// The history is replayed verbatim, so take a copy the caller can't mutate
	history := make([]ollama.Message, len(messages))
	copy(history, messages)

	streamCtx, cancel := context.WithCancel(ctx)

	c.mu.Lock()
	c.cancelActiveLocked()
	s := newStream(cancel, c.bufferSize)
	s.setState(StateRequesting)
	c.active = s
	c.mu.Unlock()

	go c.run(streamCtx, s, model, history, c.ContextWindow())
	return s, nil
}

// run is the producer: it opens the connection and turns response lines
// into events until the terminal record, cancellation, or an error.
func (c *Controller) run(ctx context.Context, s *Stream, model string, messages []ollama.Message, contextWindow int) {
	defer close(s.done)

	logger := log.WithFields(log.Fields{"model": model, "messages": len(messages)})
	logger.Debug("stream requesting")

	lines, err := c.client.ChatStream(ctx, model, messages, contextWindow)
	if err != nil {
		if s.isCancelled(ctx) {
			c.finish(s, StateCancelled, ErrCancelled, logger)
			return
		}
		c.finish(s, StateFailed, err, logger)
		return
	}
	defer lines.Close()

	s.setState(StateStreaming)
	logger.Debug("stream connected")

	for {
		if s.isCancelled(ctx) {
			c.finish(s, StateCancelled, ErrCancelled, logger)
			return
		}
		if !lines.Next() {
			break
		}

		part, ok := ollama.DecodeStreamLine(lines.Line())
		if !ok {
			logger.WithField("line", string(lines.Line())).Debug("skipping undecodable stream line")
			continue
		}
		if content := part.Content(); content != "" {
			if !s.emit(Event{Delta: content}) {
				c.finish(s, StateCancelled, ErrCancelled, logger)
				return
			}
		}
		if part.Done {
			// Anything after the terminal record is abandoned with the body
			c.finish(s, StateCompleted, nil, logger)
			return
		}
	}

	switch {
	case s.isCancelled(ctx):
		c.finish(s, StateCancelled, ErrCancelled, logger)
	case lines.Err() != nil:
		c.finish(s, StateFailed, lines.Err(), logger)
	default:
		logger.Warn("stream ended without a done record")
		c.finish(s, StateCompleted, nil, logger)
	}
}

// finish moves s to a terminal state, releases it from the controller and
// delivers the final event.
func (c *Controller) finish(s *Stream, state State, err error, logger log.Interface) {
	s.setState(state)
	c.release(s)

	if id := s.PlaceholderID(); id != "" {
		logger = logger.WithField("placeholder", id)
	}

	if err != nil && state == StateFailed {
		logger.WithError(err).Debug("stream failed")
	} else {
		logger.WithField("state", state.String()).Debug("stream finished")
	}

	s.emit(Event{Done: true, Err: err})
	close(s.events)
	s.cancel()
}
