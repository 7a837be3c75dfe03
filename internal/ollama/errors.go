// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// NetworkErrorKind categorizes transport failures for presentation.
type NetworkErrorKind int

const (
	NetworkOther NetworkErrorKind = iota
	NetworkConnectionRefused
	NetworkTimeout
	NetworkStatus
)

// String returns a short name for the kind.
func (k NetworkErrorKind) String() string {
	switch k {
	case NetworkConnectionRefused:
		return "connection refused"
	case NetworkTimeout:
		return "timeout"
	case NetworkStatus:
		return "bad status"
	default:
		return "network"
	}
}

// NetworkError is a transport-level failure: connection refused, timeout,
// or a non-2xx status. It is never retried by this package.
type NetworkError struct {
	Kind    NetworkErrorKind
	Status  int    // HTTP status for NetworkStatus, 0 otherwise
	Message string // Server-provided error text, if any
	Cause   error
}

func (e *NetworkError) Error() string {
	switch {
	case e.Kind == NetworkStatus && e.Message != "":
		return "ollama: status " + strconv.Itoa(e.Status) + ": " + e.Message
	case e.Kind == NetworkStatus:
		return "ollama: unexpected status " + strconv.Itoa(e.Status)
	case e.Cause != nil:
		return "ollama: " + e.Kind.String() + ": " + e.Cause.Error()
	default:
		return "ollama: " + e.Kind.String()
	}
}

func (e *NetworkError) Unwrap() error {
	return e.Cause
}

// DecodingError reports a response body that does not match the schema.
type DecodingError struct {
	What  string // what was being decoded, e.g. "chat response"
	Cause error
}

func (e *DecodingError) Error() string {
	return "ollama: decode " + e.What + ": " + e.Cause.Error()
}

func (e *DecodingError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// classifyTransportError wraps an error returned by the Doer.
func classifyTransportError(err error) *NetworkError {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr
	}

	kind := NetworkOther
	var timeoutErr interface{ Timeout() bool }
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		kind = NetworkTimeout
	case errors.As(err, &timeoutErr) && timeoutErr.Timeout():
		kind = NetworkTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		kind = NetworkConnectionRefused
	case isDialError(err):
		kind = NetworkConnectionRefused
	}
	return &NetworkError{Kind: kind, Cause: err}
}

// isDialError reports whether err came from failing to dial the server.
func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial"
}

// IsConnectionRefused checks if an error indicates the server could not be reached.
func IsConnectionRefused(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.Kind == NetworkConnectionRefused
}

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr) && netErr.Kind == NetworkTimeout
}

// IsNetworkError checks if an error is any transport failure.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsDecodingError checks if an error is a schema mismatch.
func IsDecodingError(err error) bool {
	var decErr *DecodingError
	return errors.As(err, &decErr)
}
