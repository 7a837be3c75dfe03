// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging configures the process-wide apex/log logger.
//
// Library packages log through the apex/log package functions; only the
// command entry point calls Setup.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/discard"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// Setup installs a handler writing to w in the given format (text, json or
// cli) and sets the minimum level. A nil writer discards all output.
func Setup(level, format string, w io.Writer) error {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	handler, err := NewHandler(format, w)
	if err != nil {
		return err
	}

	log.SetHandler(handler)
	log.SetLevel(lvl)
	return nil
}

// NewHandler returns the apex handler for format.
func NewHandler(format string, w io.Writer) (log.Handler, error) {
	if w == nil {
		return discard.New(), nil
	}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return text.New(w), nil
	case "json":
		return json.New(w), nil
	case "cli":
		return cli.New(w), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

// OpenFile opens path for appending, creating its directory if needed.
// Interactive chat logs here so diagnostics don't interleave with the
// streamed reply.
func OpenFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

// Discard silences all logging.
func Discard() {
	log.SetHandler(discard.New())
}
