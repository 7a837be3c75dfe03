// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/conversation"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/session"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the server could not be reached
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
	// ExitInterrupted follows the shell convention for SIGINT
	ExitInterrupted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ValidationError represents invalid user input.
type ValidationError struct {
	Field   string // Field that failed validation
	Value   string // Value that was provided
	Reason  string // Why validation failed
	Example string // Example of valid usage (optional)
}

func (e *ValidationError) Error() string {
	msg := fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
	if e.Value != "" {
		msg += fmt.Sprintf(" (got: %s)", e.Value)
	}
	if e.Example != "" {
		msg += fmt.Sprintf("\nExample: %s", e.Example)
	}
	return msg
}

// ErrMissingArgument creates an error for a missing required argument.
func ErrMissingArgument(argName, usage string) error {
	return &ValidationError{
		Field:   argName,
		Reason:  "required argument missing",
		Example: usage,
	}
}

// ErrUnknownSubcommand creates an error for an unrecognised subcommand.
func ErrUnknownSubcommand(command, sub string) error {
	return &ValidationError{
		Field:   command + " subcommand",
		Value:   sub,
		Reason:  "unknown subcommand",
		Example: "rigchat help",
	}
}

// =============================================================================
// PRESENTATION
// =============================================================================

// DescribeError turns err into the message shown to the user. It returns ""
// for cancellation, which is never reported as a failure.
func DescribeError(err error, baseURL string) string {
	switch {
	case err == nil, session.IsCancelled(err):
		return ""
	case ollama.IsConnectionRefused(err):
		return fmt.Sprintf("Cannot reach the Ollama server at %s. Is `ollama serve` running?", baseURL)
	case ollama.IsTimeout(err):
		return "The Ollama server took too long to respond."
	case ollama.IsNetworkError(err):
		var netErr *ollama.NetworkError
		errors.As(err, &netErr)
		if netErr.Cause != nil {
			return fmt.Sprintf("Network error: %v", netErr.Cause)
		}
		return fmt.Sprintf("Network error: %v", netErr)
	case errors.Is(err, session.ErrNoModel):
		return "No model is available. Pull one with `ollama pull <model>` or pass --model."
	default:
		return err.Error()
	}
}

// DisplayError writes err to w in the human-readable or JSON format.
func DisplayError(w io.Writer, err error, baseURL string, jsonMode bool) {
	msg := DescribeError(err, baseURL)
	if msg == "" {
		return
	}
	if jsonMode {
		NewJSONErrorResponseStr("", msg).Write(w)
		return
	}
	fmt.Fprintf(w, "%s %s\n", ErrorStyle.Render("[ERROR]"), msg)
}

// GetExitCode determines the exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var validationErr *ValidationError
	var configErrs config.ValidateErrors
	switch {
	case session.IsCancelled(err):
		return ExitInterrupted
	case errors.As(err, &validationErr), errors.Is(err, conversation.ErrEmptyMessage):
		return ExitUsageError
	case errors.As(err, &configErrs):
		return ExitConfigError
	case errors.Is(err, conversation.ErrNotFound):
		return ExitNotFoundError
	case ollama.IsTimeout(err):
		return ExitTimeoutError
	case ollama.IsNetworkError(err):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}
