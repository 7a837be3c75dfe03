// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/apex/log"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// DefaultBaseURL is the API root of a stock local Ollama install.
const DefaultBaseURL = "http://localhost:11434/api"

// API paths, relative to the base URL.
const (
	PathTags = "tags"
	PathChat = "chat"
)

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// BaseURL is the API root (default: http://localhost:11434/api)
	BaseURL string

	// Timeout for single-shot requests (default: 60s)
	Timeout time.Duration

	// ConnectTimeout bounds dialing and waiting for response headers on
	// streamed requests. The body itself has no deadline. (default: 10s)
	ConnectTimeout time.Duration

	// Doer overrides the HTTP client for single-shot calls
	Doer Doer

	// StreamDoer overrides the HTTP client for streamed calls. Falls back
	// to Doer when only that is set.
	StreamDoer Doer
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:        DefaultBaseURL,
		Timeout:        60 * time.Second,
		ConnectTimeout: 10 * time.Second,
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the Ollama API. It never retries;
// every failure is returned to the caller as-is.
//
// The Client is safe for concurrent use.
type Client struct {
	baseURL    string
	doer       Doer
	streamDoer Doer
}

// NewClient creates a new Ollama client with default configuration.
func NewClient() *Client {
	return NewClientWithConfig(DefaultConfig())
}

// NewClientWithConfig creates a new Ollama client with custom configuration.
func NewClientWithConfig(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}
	defaults := DefaultConfig()

	baseURL := strings.TrimRight(config.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaults.BaseURL
	}
	timeout := config.Timeout
	if timeout == 0 {
		timeout = defaults.Timeout
	}
	connectTimeout := config.ConnectTimeout
	if connectTimeout == 0 {
		connectTimeout = defaults.ConnectTimeout
	}

	doer := config.Doer
	if doer == nil {
		doer = &http.Client{Timeout: timeout}
	}

	streamDoer := config.StreamDoer
	switch {
	case streamDoer != nil:
	case config.Doer != nil:
		streamDoer = config.Doer
	default:
		// No overall timeout: a generation can legitimately run for minutes
		dialer := &net.Dialer{Timeout: connectTimeout}
		streamDoer = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				ResponseHeaderTimeout: connectTimeout,
			},
		}
	}

	return &Client{
		baseURL:    baseURL,
		doer:       doer,
		streamDoer: streamDoer,
	}
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// RAW CALLS
// =============================================================================

// newHTTPRequest builds the *http.Request for r against the base URL.
func (c *Client) newHTTPRequest(ctx context.Context, r Request) (*http.Request, error) {
	method := r.Method
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+strings.TrimLeft(r.Path, "/"), r.bodyReader())
	if err != nil {
		return nil, &NetworkError{Kind: NetworkOther, Cause: err}
	}
	for key, values := range r.Header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if r.Body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// statusError builds the NetworkError for a non-2xx response, consuming
// and closing its body.
func statusError(resp *http.Response) *NetworkError {
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &NetworkError{
		Kind:    NetworkStatus,
		Status:  resp.StatusCode,
		Message: decodeErrorMessage(data),
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

// Send performs a single-shot call and returns the full body and status.
func (c *Client) Send(ctx context.Context, r Request) ([]byte, int, error) {
	req, err := c.newHTTPRequest(ctx, r)
	if err != nil {
		return nil, 0, err
	}

	log.WithFields(log.Fields{"method": req.Method, "url": req.URL.String()}).Debug("ollama request")

	resp, err := c.doer.Do(req)
	if err != nil {
		return nil, 0, classifyTransportError(err)
	}
	if !isSuccess(resp.StatusCode) {
		return nil, resp.StatusCode, statusError(resp)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, classifyTransportError(err)
	}
	return data, resp.StatusCode, nil
}

// Stream performs a streamed call and returns its body as a lazy sequence
// of lines. The caller must Close the reader. Cancelling ctx aborts any
// pending read.
func (c *Client) Stream(ctx context.Context, r Request) (*LineReader, error) {
	req, err := c.newHTTPRequest(ctx, r)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{"method": req.Method, "url": req.URL.String()}).Debug("ollama stream request")

	resp, err := c.streamDoer.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if !isSuccess(resp.StatusCode) {
		return nil, statusError(resp)
	}
	return NewLineReader(resp.Body), nil
}

// =============================================================================
// API OPERATIONS
// =============================================================================

// FetchModelList returns the names of locally available models in the order
// the server lists them.
func (c *Client) FetchModelList(ctx context.Context) ([]string, error) {
	data, _, err := c.Send(ctx, Request{Method: http.MethodGet, Path: PathTags})
	if err != nil {
		return nil, err
	}
	return DecodeModelList(data)
}

// Chat sends a non-streamed chat request and strictly decodes the response.
func (c *Client) Chat(ctx context.Context, model string, messages []Message, contextWindow int) (ChatResponsePartial, error) {
	body, err := EncodeChatRequest(model, messages, false, contextWindow)
	if err != nil {
		return ChatResponsePartial{}, err
	}
	data, _, err := c.Send(ctx, Request{Method: http.MethodPost, Path: PathChat, Body: body})
	if err != nil {
		return ChatResponsePartial{}, err
	}
	return DecodeChatResponse(data)
}

// ChatStream sends a streamed chat request and returns the raw response lines.
// Decoding is left to the caller so it can choose how to treat bad lines.
func (c *Client) ChatStream(ctx context.Context, model string, messages []Message, contextWindow int) (*LineReader, error) {
	body, err := EncodeChatRequest(model, messages, true, contextWindow)
	if err != nil {
		return nil, err
	}
	return c.Stream(ctx, Request{Method: http.MethodPost, Path: PathChat, Body: body})
}
