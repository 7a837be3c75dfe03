// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/jeranaias/rigchat/internal/conversation"
	"github.com/jeranaias/rigchat/internal/export"
	"github.com/jeranaias/rigchat/internal/util"
)

// shortIDLen is how much of a conversation ID "history list" shows. Any
// unique prefix is accepted back.
const shortIDLen = 8

// HandleHistory handles "rigchat history".
func HandleHistory(ctx context.Context, args Args) int {
	app, err := NewApp(args)
	if err != nil {
		return Exit(os.Stderr, err, args)
	}
	defer app.Close()

	if err := app.History(ctx); err != nil {
		return app.Fail(err)
	}
	return ExitSuccess
}

// History dispatches the history subcommands.
func (a *App) History(ctx context.Context) error {
	p := NewArgParser(a.args.Raw, "yes", "y")
	store, err := a.Store()
	if err != nil {
		return err
	}

	switch sub := p.Positional(0); sub {
	case "", "list", "ls":
		return a.historyList(ctx, store)
	case "show", "cat":
		if p.Positional(1) == "" {
			return ErrMissingArgument("conversation id", "rigchat history show 1a2b3c4d")
		}
		conv, err := resolveConversation(ctx, store, p.Positional(1))
		if err != nil {
			return err
		}
		return a.historyShow(ctx, store, conv)
	case "delete", "rm":
		if p.Positional(1) == "" {
			return ErrMissingArgument("conversation id", "rigchat history delete 1a2b3c4d")
		}
		conv, err := resolveConversation(ctx, store, p.Positional(1))
		if err != nil {
			return err
		}
		return a.historyDelete(ctx, store, conv, p.BoolFlag("yes", "y"))
	case "export":
		if p.Positional(1) == "" {
			return ErrMissingArgument("conversation id", "rigchat history export 1a2b3c4d --format html -o chat.html")
		}
		conv, err := resolveConversation(ctx, store, p.Positional(1))
		if err != nil {
			return err
		}
		return a.historyExport(ctx, store, conv, p.Flag("format"), p.Flag("output", "o"))
	default:
		return ErrUnknownSubcommand("history", sub)
	}
}

func (a *App) historyList(ctx context.Context, store conversation.Store) error {
	convs, err := store.ListConversations(ctx)
	if err != nil {
		return err
	}
	if a.args.JSON {
		return NewJSONResponse("history list", convs).Write(a.Out)
	}
	if len(convs) == 0 {
		fmt.Fprintln(a.Out, DimStyle.Render("No saved conversations."))
		return nil
	}

	titleWidth := GetTerminalWidth() - shortIDLen - 40
	if titleWidth < 20 {
		titleWidth = 20
	}
	for _, c := range convs {
		fmt.Fprintf(a.Out, "%s  %s  %s  %s\n",
			HighlightStyle.Render(shortID(c.ID)),
			util.PadRight(util.SingleLine(c.DisplayTitle()), titleWidth),
			DimStyle.Render(util.PadRight(c.Model, 16)),
			DimStyle.Render(c.UpdatedAt.Local().Format("2006-01-02 15:04")))
	}
	return nil
}

// historyData is the --json payload of "history show".
type historyData struct {
	Conversation conversation.Conversation `json:"conversation"`
	Messages     []conversation.Message    `json:"messages"`
}

func (a *App) historyShow(ctx context.Context, store conversation.Store, conv conversation.Conversation) error {
	messages, err := store.ListMessages(ctx, conv.ID)
	if err != nil {
		return err
	}
	if a.args.JSON {
		return NewJSONResponse("history show", historyData{Conversation: conv, Messages: messages}).Write(a.Out)
	}

	fmt.Fprintln(a.Out, TitleStyle.Render(conv.DisplayTitle()))
	fmt.Fprintf(a.Out, "%s\n\n", DimStyle.Render(fmt.Sprintf("%s · %s · %s",
		conv.ID, conv.Model, conv.CreatedAt.Local().Format(time.RFC1123))))
	printTranscript(a.Out, messages)
	return nil
}

func (a *App) historyDelete(ctx context.Context, store conversation.Store, conv conversation.Conversation, yes bool) error {
	if !yes {
		if !IsTTY() {
			return &ValidationError{Field: "confirmation", Reason: "stdin is not a terminal; pass --yes to delete", Example: "rigchat history delete " + shortID(conv.ID) + " --yes"}
		}
		ok, err := confirm(fmt.Sprintf("Delete %q? [y/N] ", conv.DisplayTitle()))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.Out, DimStyle.Render("Kept."))
			return nil
		}
	}
	if err := store.DeleteConversation(ctx, conv.ID); err != nil {
		return err
	}
	if !a.args.Quiet {
		fmt.Fprintf(a.Out, "%s Deleted %s\n", SuccessStyle.Render("[OK]"), shortID(conv.ID))
	}
	return nil
}

// exportDocument loads a conversation's messages for export.
func exportDocument(ctx context.Context, store conversation.Store, conv conversation.Conversation) (export.Document, error) {
	messages, err := store.ListMessages(ctx, conv.ID)
	if err != nil {
		return export.Document{}, err
	}
	return export.Document{Conversation: conv, Messages: messages}, nil
}

// historyExport writes the conversation to output, or to Out when output
// is empty.
func (a *App) historyExport(ctx context.Context, store conversation.Store, conv conversation.Conversation, format, output string) error {
	exporter, err := export.ForFormat(format, export.DefaultOptions())
	if err != nil {
		return &ValidationError{Field: "format", Value: format, Reason: "unsupported export format", Example: "--format " + strings.Join(export.Formats, "|")}
	}
	doc, err := exportDocument(ctx, store, conv)
	if err != nil {
		return err
	}

	if output == "" {
		content, err := exporter.Export(doc)
		if err != nil {
			return err
		}
		_, err = a.Out.Write(content)
		return err
	}

	path, err := export.ExportToFile(doc, exporter, output)
	if err != nil {
		return err
	}
	if a.args.JSON {
		return NewJSONResponse("history export", map[string]string{"id": conv.ID, "path": path}).Write(a.Out)
	}
	if !a.args.Quiet {
		fmt.Fprintf(a.Out, "%s Exported to %s\n", SuccessStyle.Render("[OK]"), path)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// resolveConversation finds a conversation by full ID or unique prefix.
func resolveConversation(ctx context.Context, store conversation.Store, id string) (conversation.Conversation, error) {
	conv, err := store.GetConversation(ctx, id)
	if err == nil || !errors.Is(err, conversation.ErrNotFound) {
		return conv, err
	}

	convs, err := store.ListConversations(ctx)
	if err != nil {
		return conversation.Conversation{}, err
	}
	var matches []conversation.Conversation
	for _, c := range convs {
		if strings.HasPrefix(c.ID, id) {
			matches = append(matches, c)
		}
	}
	switch len(matches) {
	case 0:
		return conversation.Conversation{}, fmt.Errorf("conversation %s: %w", id, conversation.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return conversation.Conversation{}, &ValidationError{Field: "conversation id", Value: id, Reason: fmt.Sprintf("matches %d conversations", len(matches))}
	}
}

func shortID(id string) string {
	if len(id) > shortIDLen {
		return id[:shortIDLen]
	}
	return id
}

// printTranscript writes messages with role labels.
func printTranscript(w io.Writer, messages []conversation.Message) {
	for _, m := range messages {
		fmt.Fprintf(w, "%s\n%s\n\n", roleLabel(m.Role), m.Content)
	}
}

func roleLabel(role conversation.Role) string {
	switch role {
	case conversation.RoleUser:
		return userLabelStyle.Render(role.DisplayName())
	case conversation.RoleAssistant:
		return assistantLabelStyle.Render(role.DisplayName())
	default:
		return systemLabelStyle.Render(role.DisplayName())
	}
}

// confirm asks a yes/no question on the terminal.
func confirm(prompt string) (bool, error) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	answer, err := line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ok, _ := ParseBoolString(answer)
	return ok, nil
}
