// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"

	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/session"
)

// DefaultSummarizationPrompt is appended to the history to ask for a title.
const DefaultSummarizationPrompt = "Summarize this conversation in a short title of at most six words. Reply with the title only."

// ErrEmptyMessage is returned by Send for blank input.
var ErrEmptyMessage = errors.New("message is empty")

// Generator is the slice of *session.Controller the reducer drives.
type Generator interface {
	StreamConversation(ctx context.Context, model string, messages []ollama.Message) (*session.Stream, error)
	SendSingleMessage(ctx context.Context, model string, messages []ollama.Message) (string, error)
	CancelStream()
}

// Options configures a Reducer.
type Options struct {
	// Model used for generation and titling
	Model string

	// SummarizationPrompt asks for a title after the first reply.
	// Empty uses DefaultSummarizationPrompt.
	SummarizationPrompt string

	// Now overrides the clock (tests)
	Now func() time.Time
}

// =============================================================================
// REDUCER
// =============================================================================

// Reducer applies user input and streamed replies to one conversation. It
// owns the transcript, writes every change through to the Store and
// notifies observers.
//
// Send, Generate and RetryFrom must be called from one goroutine at a time.
// Cancel, Snapshot and the setters may be called from anywhere.
type Reducer struct {
	gen        Generator
	store      Store
	transcript *Transcript
	now        func() time.Time

	mu        sync.RWMutex
	conv      Conversation
	model     string
	prompt    string
	observers []Observer
}

// NewReducer creates a reducer over an existing transcript.
func NewReducer(gen Generator, store Store, conv Conversation, transcript *Transcript, opts Options) *Reducer {
	if transcript == nil {
		transcript = NewTranscript(nil)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	model := opts.Model
	if model == "" {
		model = conv.Model
	}
	r := &Reducer{
		gen:        gen,
		store:      store,
		transcript: transcript,
		now:        now,
		conv:       conv,
		model:      model,
	}
	r.SetSummarizationPrompt(opts.SummarizationPrompt)
	return r
}

// Create stores a new conversation and returns a reducer for it.
func Create(ctx context.Context, gen Generator, store Store, opts Options) (*Reducer, error) {
	conv := NewConversation(opts.Model)
	if err := store.CreateConversation(ctx, conv); err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	return NewReducer(gen, store, conv, nil, opts), nil
}

// Open loads a stored conversation and returns a reducer for it.
func Open(ctx context.Context, gen Generator, store Store, id string, opts Options) (*Reducer, error) {
	conv, err := store.GetConversation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open conversation %s: %w", id, err)
	}
	messages, err := store.ListMessages(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load messages for %s: %w", id, err)
	}
	return NewReducer(gen, store, conv, NewTranscript(messages), opts), nil
}

// Conversation returns the conversation metadata.
func (r *Reducer) Conversation() Conversation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.conv
}

// Snapshot returns the transcript ordered by CreatedAt.
func (r *Reducer) Snapshot() []Message {
	return r.transcript.Snapshot()
}

// Model returns the model used for the next generation.
func (r *Reducer) Model() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.model
}

// SetModel changes the model used for the next generation.
func (r *Reducer) SetModel(model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.model = strings.TrimSpace(model)
}

// SetSummarizationPrompt changes the titling prompt.
func (r *Reducer) SetSummarizationPrompt(prompt string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if strings.TrimSpace(prompt) == "" {
		prompt = DefaultSummarizationPrompt
	}
	r.prompt = prompt
}

// Subscribe registers an observer for transcript changes.
func (r *Reducer) Subscribe(fn Observer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers = append(r.observers, fn)
}

func (r *Reducer) notify(ev Event) {
	r.mu.RLock()
	observers := r.observers
	r.mu.RUnlock()
	for _, fn := range observers {
		fn(ev)
	}
}

// Cancel stops the generation in progress, if any.
func (r *Reducer) Cancel() {
	r.gen.CancelStream()
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Send appends a user message and generates a reply to it.
func (r *Reducer) Send(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}
	if r.Model() == "" {
		return session.ErrNoModel
	}

	msg := NewMessage(r.Conversation().ID, RoleUser, text, r.transcript.NextCreatedAt(r.now()))
	if err := r.store.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("store user message: %w", err)
	}
	r.transcript.Add(msg)
	r.notify(Event{Kind: MessageAdded, Message: msg})

	return r.Generate(ctx)
}

// Generate streams an assistant reply to the current transcript into a new
// placeholder message. It returns session.ErrCancelled if the generation
// was cancelled and the stream error if it failed.
func (r *Reducer) Generate(ctx context.Context) error {
	model := r.Model()
	firstReply := !r.transcript.HasRole(RoleAssistant)
	history := r.transcript.History()

	stream, err := r.gen.StreamConversation(ctx, model, history)
	if err != nil {
		return err
	}

	placeholder := NewMessage(r.Conversation().ID, RoleAssistant, "", r.transcript.NextCreatedAt(r.now()))
	stream.SetPlaceholderID(placeholder.ID)
	if err := r.store.AppendMessage(ctx, placeholder); err != nil {
		stream.Close()
		return fmt.Errorf("store assistant placeholder: %w", err)
	}
	r.transcript.Add(placeholder)
	r.notify(Event{Kind: MessageAdded, Message: placeholder})

	var streamErr error
	for ev := range stream.Events() {
		if ev.Done {
			streamErr = ev.Err
			continue
		}
		if msg, ok := r.transcript.AppendContent(placeholder.ID, ev.Delta); ok {
			r.notify(Event{Kind: MessageUpdated, Message: msg})
		}
	}

	// Cleanup has to land even if ctx was what cancelled the stream
	persistCtx := context.WithoutCancel(ctx)
	logger := log.WithFields(log.Fields{"conversation": placeholder.ConversationID, "message": placeholder.ID})

	switch {
	case streamErr == nil:
		if err := r.persistContent(persistCtx, placeholder.ID); err != nil {
			return err
		}
		if firstReply {
			r.summarize(ctx, model, logger)
		}
		return nil

	case session.IsCancelled(streamErr):
		msg, _ := r.transcript.Get(placeholder.ID)
		if msg.IsEmpty() {
			logger.Debug("cancelled before any content, dropping placeholder")
			if err := r.removeMessage(persistCtx, msg); err != nil {
				return err
			}
		} else if err := r.persistContent(persistCtx, placeholder.ID); err != nil {
			return err
		}
		return streamErr

	default:
		msg, _ := r.transcript.Get(placeholder.ID)
		if err := r.removeMessage(persistCtx, msg); err != nil {
			logger.WithError(err).Warn("failed to remove placeholder")
		}
		return streamErr
	}
}

// RetryFrom discards the given message and everything after it, then
// generates again. Retrying from a user message resends its text.
func (r *Reducer) RetryFrom(ctx context.Context, messageID string) error {
	target, ok := r.transcript.Get(messageID)
	if !ok {
		return fmt.Errorf("retry from %s: %w", messageID, ErrNotFound)
	}
	r.gen.CancelStream()

	for _, msg := range r.transcript.From(messageID) {
		if err := r.removeMessage(ctx, msg); err != nil {
			return err
		}
	}

	if target.Role == RoleUser {
		return r.Send(ctx, target.Content)
	}
	return r.Generate(ctx)
}

// Retitle asks the model for a new title regardless of history.
func (r *Reducer) Retitle(ctx context.Context) (string, error) {
	title, err := r.requestTitle(ctx, r.Model())
	if err != nil {
		return "", err
	}
	if title != "" {
		if err := r.applyTitle(ctx, title); err != nil {
			return "", err
		}
	}
	return title, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (r *Reducer) persistContent(ctx context.Context, id string) error {
	msg, ok := r.transcript.Get(id)
	if !ok {
		return nil
	}
	if err := r.store.UpdateMessageContent(ctx, msg.ConversationID, msg.ID, msg.Content); err != nil {
		return fmt.Errorf("store assistant reply: %w", err)
	}
	return nil
}

func (r *Reducer) removeMessage(ctx context.Context, msg Message) error {
	if !r.transcript.Remove(msg.ID) {
		return nil
	}
	r.notify(Event{Kind: MessageRemoved, Message: msg})
	if err := r.store.DeleteMessage(ctx, msg.ConversationID, msg.ID); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("delete message %s: %w", msg.ID, err)
	}
	return nil
}

// summarize titles the conversation after its first reply. Cancelling ctx
// abandons the title request; a title that did arrive is still stored.
// Failures are logged and never reach the caller.
func (r *Reducer) summarize(ctx context.Context, model string, logger log.Interface) {
	title, err := r.requestTitle(ctx, model)
	switch {
	case session.IsCancelled(err):
		logger.Debug("title summarization cancelled")
		return
	case err != nil:
		logger.WithError(err).Warn("title summarization failed")
		return
	case title == "":
		logger.Debug("summarization returned an empty title")
		return
	}
	if err := r.applyTitle(context.WithoutCancel(ctx), title); err != nil {
		logger.WithError(err).Warn("failed to store title")
	}
}

func (r *Reducer) requestTitle(ctx context.Context, model string) (string, error) {
	r.mu.RLock()
	prompt := r.prompt
	r.mu.RUnlock()

	history := append(r.transcript.History(), ollama.NewUserMessage(prompt))
	title, err := r.gen.SendSingleMessage(ctx, model, history)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(title), nil
}

func (r *Reducer) applyTitle(ctx context.Context, title string) error {
	id := r.Conversation().ID
	if err := r.store.SetTitle(ctx, id, title); err != nil {
		return fmt.Errorf("set title: %w", err)
	}
	r.mu.Lock()
	r.conv.Title = title
	r.conv.UpdatedAt = r.now()
	r.mu.Unlock()
	r.notify(Event{Kind: TitleChanged, Title: title})
	return nil
}
