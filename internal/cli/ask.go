// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/rigchat/internal/ollama"
)

// MaxFileSize is the largest file ask will attach (50KB).
const MaxFileSize = 50 * 1024

// =============================================================================
// MARKDOWN RENDERING
// =============================================================================

// renderMarkdown renders markdown for the terminal, falling back to the
// raw text if glamour fails.
func renderMarkdown(content string, width int) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content
	}
	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}

// =============================================================================
// FILE READING
// =============================================================================

// readFileForContext reads a file and formats it for inclusion in a prompt.
func readFileForContext(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("file not found: %s", path)
		}
		return "", fmt.Errorf("cannot access file: %w", err)
	}
	if info.Size() > MaxFileSize {
		return "", fmt.Errorf("file too large: %d bytes (max %d bytes)", info.Size(), MaxFileSize)
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "\n--- File: %s ---\n", path)
	b.Write(content)
	b.WriteString("\n--- End of file ---\n")
	return b.String(), nil
}

// =============================================================================
// ASK HANDLER
// =============================================================================

// HandleAsk handles "rigchat ask".
func HandleAsk(ctx context.Context, args Args) int {
	app, err := NewApp(args)
	if err != nil {
		return Exit(os.Stderr, err, args)
	}
	defer app.Close()

	if err := app.Ask(ctx, os.Stdin); err != nil {
		return app.Fail(err)
	}
	return ExitSuccess
}

// Ask sends one question and prints the reply. The question comes from the
// positional arguments, then --file, then stdin if it is not a terminal.
//
// Replies stream to Out as they arrive unless markdown rendering is on, in
// which case the complete reply is rendered once.
func (a *App) Ask(ctx context.Context, stdin io.Reader) error {
	p := NewArgParser(a.args.Raw, "raw")

	prompt := p.Joined(0)
	if file := p.Flag("file", "f"); file != "" {
		content, err := readFileForContext(file)
		if err != nil {
			return err
		}
		prompt += content
	}
	if strings.TrimSpace(prompt) == "" && stdin != nil && !IsTTY() {
		data, err := io.ReadAll(io.LimitReader(stdin, MaxFileSize))
		if err != nil {
			return fmt.Errorf("read stdin: %w", err)
		}
		prompt = string(data)
	}
	if strings.TrimSpace(prompt) == "" {
		return ErrMissingArgument("question", `rigchat ask "Why is the sky blue?"`)
	}

	model, err := a.Controller.ResolveModel(ctx, a.Config.Chat.DefaultModel)
	if err != nil {
		return err
	}

	stream, err := a.Controller.StreamConversation(ctx, model, []ollama.Message{ollama.NewUserMessage(prompt)})
	if err != nil {
		return err
	}
	defer stream.Close()

	live := !a.args.JSON && !(a.Markdown && !p.BoolFlag("raw"))

	if live {
		var streamErr error
		for ev := range stream.Events() {
			if ev.Done {
				streamErr = ev.Err
				continue
			}
			fmt.Fprint(a.Out, ev.Delta)
		}
		fmt.Fprintln(a.Out)
		return streamErr
	}

	reply, streamErr := stream.Collect()
	if a.args.JSON {
		if streamErr != nil {
			return streamErr
		}
		return NewJSONResponse("ask", AskData{Model: model, Prompt: prompt, Response: reply}).Write(a.Out)
	}
	fmt.Fprint(a.Out, renderMarkdown(reply, GetTerminalWidth()))
	return streamErr
}
