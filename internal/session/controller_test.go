// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/apex/log"
	"github.com/apex/log/handlers/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/rigchat/internal/ollama"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type streamFunc func(ctx context.Context, model string, messages []ollama.Message, contextWindow int) (*ollama.LineReader, error)

// fakeClient is an in-memory ChatClient.
type fakeClient struct {
	mu sync.Mutex

	models   []string
	chatResp ollama.ChatResponsePartial
	chatErr  error
	streamFn streamFunc

	modelCalls  int
	chatCalls   int
	streamCalls int
	lastWindow  int
	lastModel   string
}

func (f *fakeClient) FetchModelList(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modelCalls++
	return f.models, nil
}

func (f *fakeClient) Chat(ctx context.Context, model string, messages []ollama.Message, contextWindow int) (ollama.ChatResponsePartial, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	f.lastWindow = contextWindow
	f.lastModel = model
	return f.chatResp, f.chatErr
}

func (f *fakeClient) ChatStream(ctx context.Context, model string, messages []ollama.Message, contextWindow int) (*ollama.LineReader, error) {
	f.mu.Lock()
	f.streamCalls++
	f.lastWindow = contextWindow
	f.lastModel = model
	fn := f.streamFn
	f.mu.Unlock()
	return fn(ctx, model, messages, contextWindow)
}

func (f *fakeClient) calls() (models, chat, stream int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.modelCalls, f.chatCalls, f.streamCalls
}

// staticBody serves the given lines as a complete response body.
func staticBody(lines ...string) streamFunc {
	return func(ctx context.Context, _ string, _ []ollama.Message, _ int) (*ollama.LineReader, error) {
		return ollama.NewLineReader(io.NopCloser(strings.NewReader(strings.Join(lines, "\n")))), nil
	}
}

// pipeBody returns a body fed by the returned writer. Cancelling the
// request context closes the pipe the way net/http aborts a body read.
func pipeBody() (streamFunc, *io.PipeWriter) {
	pr, pw := io.Pipe()
	fn := func(ctx context.Context, _ string, _ []ollama.Message, _ int) (*ollama.LineReader, error) {
		go func() {
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
		}()
		return ollama.NewLineReader(pr), nil
	}
	return fn, pw
}

// blockUntilCancelled never connects; it returns once ctx is cancelled.
func blockUntilCancelled(started chan<- struct{}) streamFunc {
	return func(ctx context.Context, _ string, _ []ollama.Message, _ int) (*ollama.LineReader, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func chunk(content string) string {
	return `{"model":"llama3","message":{"role":"assistant","content":"` + content + `"},"done":false}`
}

const doneLine = `{"model":"llama3","message":{"role":"assistant","content":""},"done":true}`

func waitDone(t *testing.T, s *Stream) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not exit")
	}
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestStreamConversation_DeltasInOrder(t *testing.T) {
	fn, pw := pipeBody()
	client := &fakeClient{streamFn: fn}
	c := NewController(client, Config{})

	s, err := c.StreamConversation(context.Background(), "llama3", []ollama.Message{ollama.NewUserMessage("hi")})
	require.NoError(t, err)

	afterDone := make(chan error, 1)
	go func() {
		for _, part := range []string{"This", " is", " a", " stream."} {
			if _, err := io.WriteString(pw, chunk(part)+"\n"); err != nil {
				afterDone <- err
				return
			}
		}
		if _, err := io.WriteString(pw, doneLine+"\n"); err != nil {
			afterDone <- err
			return
		}
		_, err := io.WriteString(pw, chunk(" never")+"\n")
		afterDone <- err
	}()

	var deltas []string
	var final Event
	for ev := range s.Events() {
		if ev.Done {
			final = ev
			continue
		}
		deltas = append(deltas, ev.Delta)
	}

	assert.Equal(t, []string{"This", " is", " a", " stream."}, deltas)
	assert.True(t, final.Done)
	assert.NoError(t, final.Err)
	waitDone(t, s)
	assert.Equal(t, StateCompleted, s.State())
	assert.False(t, c.HasActiveStream())

	select {
	case err := <-afterDone:
		assert.ErrorIs(t, err, io.ErrClosedPipe, "lines after done must not be read")
	case <-time.After(2 * time.Second):
		t.Fatal("writer still blocked after done")
	}
}

func TestStreamConversation_SkipsMalformedLines(t *testing.T) {
	client := &fakeClient{streamFn: staticBody(
		chunk("a"),
		"garbage",
		"",
		`{"invalid_structure":true}`,
		chunk("b"),
		doneLine,
	)}
	c := NewController(client, Config{})

	s, err := c.StreamConversation(context.Background(), "llama3", nil)
	require.NoError(t, err)

	content, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "ab", content)
}

func TestStreamConversation_EOFWithoutDone(t *testing.T) {
	client := &fakeClient{streamFn: staticBody(chunk("partial"))}
	c := NewController(client, Config{})

	s, err := c.StreamConversation(context.Background(), "llama3", nil)
	require.NoError(t, err)

	content, err := s.Collect()
	require.NoError(t, err)
	assert.Equal(t, "partial", content)
	waitDone(t, s)
	assert.Equal(t, StateCompleted, s.State())
}

func TestStreamConversation_EstablishmentError(t *testing.T) {
	refused := &ollama.NetworkError{Kind: ollama.NetworkConnectionRefused, Cause: errors.New("dial tcp: connection refused")}
	client := &fakeClient{streamFn: func(context.Context, string, []ollama.Message, int) (*ollama.LineReader, error) {
		return nil, refused
	}}
	c := NewController(client, Config{})

	s, err := c.StreamConversation(context.Background(), "llama3", nil)
	require.NoError(t, err, "transport errors arrive on the stream")

	var events []Event
	for ev := range s.Events() {
		events = append(events, ev)
	}
	require.Len(t, events, 1)
	assert.True(t, events[0].Done)
	assert.True(t, ollama.IsConnectionRefused(events[0].Err))
	assert.Equal(t, StateFailed, s.State())
	assert.False(t, c.HasActiveStream())
}

func TestStreamConversation_ReadErrorKeepsPartial(t *testing.T) {
	pr, pw := io.Pipe()
	client := &fakeClient{streamFn: func(context.Context, string, []ollama.Message, int) (*ollama.LineReader, error) {
		return ollama.NewLineReader(pr), nil
	}}
	c := NewController(client, Config{})

	s, err := c.StreamConversation(context.Background(), "llama3", nil)
	require.NoError(t, err)

	go func() {
		io.WriteString(pw, chunk("half")+"\n")
		pw.CloseWithError(errors.New("connection reset by peer"))
	}()

	content, err := s.Collect()
	assert.Equal(t, "half", content)
	require.Error(t, err)
	assert.False(t, IsCancelled(err))
	assert.True(t, ollama.IsNetworkError(err))
	waitDone(t, s)
	assert.Equal(t, StateFailed, s.State())
}

func TestStreamConversation_NoModel(t *testing.T) {
	client := &fakeClient{streamFn: staticBody(doneLine)}
	c := NewController(client, Config{})

	s, err := c.StreamConversation(context.Background(), "  ", nil)
	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrNoModel)

	_, _, streams := client.calls()
	assert.Zero(t, streams, "no request without a model")
}

func TestStreamConversation_SecondCancelsFirst(t *testing.T) {
	started := make(chan struct{})
	client := &fakeClient{streamFn: blockUntilCancelled(started)}
	c := NewController(client, Config{})

	first, err := c.StreamConversation(context.Background(), "llama3", nil)
	require.NoError(t, err)
	<-started

	// The first request must already be cancelled when the second goes out
	var firstSignalled bool
	client.mu.Lock()
	client.streamFn = func(ctx context.Context, model string, messages []ollama.Message, window int) (*ollama.LineReader, error) {
		firstSignalled = first.cancelled.Load()
		return staticBody(chunk("second"), doneLine)(ctx, model, messages, window)
	}
	client.mu.Unlock()

	second, err := c.StreamConversation(context.Background(), "llama3", nil)
	require.NoError(t, err)

	_, err = first.Collect()
	assert.ErrorIs(t, err, ErrCancelled)
	waitDone(t, first)
	assert.Equal(t, StateCancelled, first.State())

	content, err := second.Collect()
	require.NoError(t, err)
	assert.Equal(t, "second", content)
	assert.True(t, firstSignalled, "second request started before the first was cancelled")
}

func TestCancelStream_Idempotent(t *testing.T) {
	started := make(chan struct{})
	client := &fakeClient{streamFn: blockUntilCancelled(started)}
	c := NewController(client, Config{})

	c.CancelStream() // nothing active

	s, err := c.StreamConversation(context.Background(), "llama3", nil)
	require.NoError(t, err)
	<-started
	assert.True(t, c.HasActiveStream())

	c.CancelStream()
	c.CancelStream()
	s.Cancel()

	_, err = s.Collect()
	assert.True(t, IsCancelled(err))
	assert.False(t, c.HasActiveStream())
}

func TestStreamConversation_ParentContextCancel(t *testing.T) {
	started := make(chan struct{})
	client := &fakeClient{streamFn: blockUntilCancelled(started)}
	c := NewController(client, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	s, err := c.StreamConversation(ctx, "llama3", nil)
	require.NoError(t, err)
	<-started
	cancel()

	_, err = s.Collect()
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestStream_CloseStopsProducer(t *testing.T) {
	fn, pw := pipeBody()
	client := &fakeClient{streamFn: fn}
	c := NewController(client, Config{BufferSize: 1})

	s, err := c.StreamConversation(context.Background(), "llama3", nil)
	require.NoError(t, err)

	go io.WriteString(pw, chunk("first")+"\n")
	ev := <-s.Events()
	assert.Equal(t, "first", ev.Delta)

	s.Close()
	waitDone(t, s)
	assert.Equal(t, StateCancelled, s.State())
	assert.False(t, c.HasActiveStream())
}

func TestStreamConversation_ContextWindow(t *testing.T) {
	client := &fakeClient{streamFn: staticBody(doneLine)}
	c := NewController(client, Config{ContextWindow: 4096})
	assert.Equal(t, 4096, c.ContextWindow())

	c.SetContextWindow(8192)
	s, err := c.StreamConversation(context.Background(), "llama3", nil)
	require.NoError(t, err)
	_, err = s.Collect()
	require.NoError(t, err)

	client.mu.Lock()
	assert.Equal(t, 8192, client.lastWindow)
	client.mu.Unlock()

	c.SetContextWindow(0)
	assert.Equal(t, DefaultContextWindow, c.ContextWindow())
}

// =============================================================================
// SINGLE-SHOT TESTS
// =============================================================================

func TestSendSingleMessage_CancelsActiveStream(t *testing.T) {
	started := make(chan struct{})
	client := &fakeClient{
		streamFn: blockUntilCancelled(started),
		chatResp: ollama.ChatResponsePartial{Message: &ollama.Message{Role: ollama.RoleAssistant, Content: "A short title"}, Done: true},
	}
	c := NewController(client, Config{})

	s, err := c.StreamConversation(context.Background(), "llama3", nil)
	require.NoError(t, err)
	<-started

	reply, err := c.SendSingleMessage(context.Background(), "llama3", []ollama.Message{ollama.NewUserMessage("summarize")})
	require.NoError(t, err)
	assert.Equal(t, "A short title", reply)

	_, err = s.Collect()
	assert.ErrorIs(t, err, ErrCancelled)

	_, chats, _ := client.calls()
	assert.Equal(t, 1, chats)
}

func TestSendSingleMessage_Errors(t *testing.T) {
	client := &fakeClient{chatErr: &ollama.DecodingError{What: "chat response", Cause: errors.New("bad")}}
	c := NewController(client, Config{})

	_, err := c.SendSingleMessage(context.Background(), "", nil)
	assert.ErrorIs(t, err, ErrNoModel)
	_, chats, _ := client.calls()
	assert.Zero(t, chats)

	_, err = c.SendSingleMessage(context.Background(), "llama3", nil)
	assert.True(t, ollama.IsDecodingError(err))
}

func TestSendSingleMessage_NullMessage(t *testing.T) {
	client := &fakeClient{chatResp: ollama.ChatResponsePartial{Done: true}}
	c := NewController(client, Config{})

	reply, err := c.SendSingleMessage(context.Background(), "llama3", nil)
	require.NoError(t, err)
	assert.Empty(t, reply)
}

// hangingServer accepts requests and never answers until the client goes away.
func hangingServer(t *testing.T) (*ollama.Client, <-chan struct{}) {
	t.Helper()
	arrived := make(chan struct{}, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		arrived <- struct{}{}
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)
	return ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: srv.URL + "/api"}), arrived
}

func TestSendSingleMessage_CancelledIsNotNetworkError(t *testing.T) {
	client, arrived := hangingServer(t)
	c := NewController(client, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-arrived
		cancel()
	}()

	_, err := c.SendSingleMessage(ctx, "llama3", []ollama.Message{ollama.NewUserMessage("summarize")})
	require.Error(t, err)
	assert.True(t, IsCancelled(err))
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, ollama.IsNetworkError(err))
}

func TestResolveModel_Cancelled(t *testing.T) {
	client, arrived := hangingServer(t)
	c := NewController(client, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-arrived
		cancel()
	}()

	_, err := c.ResolveModel(ctx, "")
	assert.ErrorIs(t, err, ErrCancelled)

	_, err = c.FetchModelList(ctx)
	assert.ErrorIs(t, err, ErrCancelled, "already-cancelled context")
}

func TestSendSingleMessage_FailureKeptWhenNotCancelled(t *testing.T) {
	client := &fakeClient{chatErr: &ollama.NetworkError{Kind: ollama.NetworkOther, Cause: errors.New("connection reset")}}
	c := NewController(client, Config{})

	_, err := c.SendSingleMessage(context.Background(), "llama3", nil)
	assert.True(t, ollama.IsNetworkError(err))
	assert.False(t, IsCancelled(err))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(ErrCancelled))
	assert.True(t, IsCancelled(context.Canceled))
	assert.False(t, IsCancelled(context.DeadlineExceeded))
	assert.False(t, IsCancelled(nil))
}

func TestStream_FinishLogsPlaceholder(t *testing.T) {
	h := memory.New()
	log.SetHandler(h)
	log.SetLevel(log.DebugLevel)
	t.Cleanup(func() { log.SetLevel(log.InfoLevel) })

	started := make(chan struct{})
	c := NewController(&fakeClient{streamFn: blockUntilCancelled(started)}, Config{})

	s, err := c.StreamConversation(context.Background(), "llama3", nil)
	require.NoError(t, err)
	s.SetPlaceholderID("msg-7")
	<-started
	s.Cancel()
	waitDone(t, s)

	var found bool
	for _, e := range h.Entries {
		if e.Message == "stream finished" {
			found = true
			assert.Equal(t, "msg-7", e.Fields.Get("placeholder"))
			assert.Equal(t, "cancelled", e.Fields.Get("state"))
		}
	}
	assert.True(t, found, "no stream finished entry")
}

// =============================================================================
// MODEL TESTS
// =============================================================================

func TestResolveModel(t *testing.T) {
	client := &fakeClient{models: []string{"mistral", "llama3"}}
	c := NewController(client, Config{})

	model, err := c.ResolveModel(context.Background(), "phi3")
	require.NoError(t, err)
	assert.Equal(t, "phi3", model)
	models, _, _ := client.calls()
	assert.Zero(t, models, "explicit model skips the lookup")

	model, err = c.ResolveModel(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, "mistral", model)

	client.models = nil
	_, err = c.ResolveModel(context.Background(), "")
	assert.ErrorIs(t, err, ErrNoModel)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "streaming", StateStreaming.String())
	assert.True(t, StateCancelled.Terminal())
	assert.False(t, StateRequesting.Terminal())
}
