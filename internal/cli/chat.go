// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"syscall"

	"github.com/apex/log"
	"github.com/peterh/liner"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/conversation"
	"github.com/jeranaias/rigchat/internal/export"
	"github.com/jeranaias/rigchat/internal/util"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing and persistent input history.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor whose history lives in historyFile.
func NewChatCLI(historyFile string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	c := &ChatCLI{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return c
}

// ReadInput reads a line with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history (owner read/write only) and restores the terminal.
func (c *ChatCLI) Close() {
	defer c.line.Close()

	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0755); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		log.WithError(err).Warn("failed to save input history")
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession is one interactive chat: the current conversation and the
// rendering of its transcript events.
type ChatSession struct {
	app   *App
	store conversation.Store
	out   io.Writer

	mu      sync.Mutex
	reducer *conversation.Reducer

	// lineCancel aborts the requests of the line being handled
	lineCancel context.CancelFunc

	// printed tracks how much of each streaming reply has been written
	printed map[string]int
}

func newChatSession(app *App, store conversation.Store) *ChatSession {
	return &ChatSession{
		app:     app,
		store:   store,
		out:     app.Out,
		printed: make(map[string]int),
	}
}

// current returns the active reducer.
func (s *ChatSession) current() *conversation.Reducer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reducer
}

// attach makes r the active conversation.
func (s *ChatSession) attach(r *conversation.Reducer) {
	r.Subscribe(s.render)
	s.mu.Lock()
	s.reducer = r
	s.mu.Unlock()
}

// start opens the conversation with id, or creates one if id is empty.
func (s *ChatSession) start(ctx context.Context, id, model string) error {
	opts := conversation.Options{
		Model:               model,
		SummarizationPrompt: s.app.Config.Chat.SummarizationPrompt,
	}

	var (
		r   *conversation.Reducer
		err error
	)
	if id != "" {
		conv, rerr := resolveConversation(ctx, s.store, id)
		if rerr != nil {
			return rerr
		}
		r, err = conversation.Open(ctx, s.app.Controller, s.store, conv.ID, opts)
	} else {
		r, err = conversation.Create(ctx, s.app.Controller, s.store, opts)
	}
	if err != nil {
		return err
	}
	s.attach(r)
	return nil
}

// discardIfEmpty removes the current conversation if nothing was said.
func (s *ChatSession) discardIfEmpty(ctx context.Context) {
	r := s.current()
	if r == nil || len(r.Snapshot()) > 0 {
		return
	}
	if err := s.store.DeleteConversation(ctx, r.Conversation().ID); err != nil && !errors.Is(err, conversation.ErrNotFound) {
		log.WithError(err).Warn("failed to remove empty conversation")
	}
}

// applyConfig pushes reloaded settings into the running session.
func (s *ChatSession) applyConfig(cfg *config.Config) {
	s.app.Controller.SetContextWindow(cfg.Chat.ContextWindow)
	if r := s.current(); r != nil {
		r.SetSummarizationPrompt(cfg.Chat.SummarizationPrompt)
	}
	log.WithFields(log.Fields{
		"context_window": cfg.Chat.ContextWindow,
	}).Info("applied reloaded config")
}

// render writes transcript events as they happen.
func (s *ChatSession) render(ev conversation.Event) {
	switch ev.Kind {
	case conversation.MessageAdded:
		if ev.Message.Role == conversation.RoleAssistant {
			fmt.Fprintf(s.out, "\n%s\n", roleLabel(ev.Message.Role))
			s.printed[ev.Message.ID] = 0
		}
	case conversation.MessageUpdated:
		n, ok := s.printed[ev.Message.ID]
		if !ok || n >= len(ev.Message.Content) {
			return
		}
		fmt.Fprint(s.out, ev.Message.Content[n:])
		s.printed[ev.Message.ID] = len(ev.Message.Content)
	case conversation.MessageRemoved:
		if _, ok := s.printed[ev.Message.ID]; ok {
			delete(s.printed, ev.Message.ID)
			fmt.Fprintf(s.out, "\n%s\n", DimStyle.Render("[reply discarded]"))
		}
	case conversation.TitleChanged:
		s.finishReply()
		if !s.app.args.Quiet {
			fmt.Fprintf(s.out, "%s\n", DimStyle.Render("Title: "+ev.Title))
		}
	}
}

// finishReply ends the line of a streamed reply.
func (s *ChatSession) finishReply() {
	if len(s.printed) > 0 {
		fmt.Fprintln(s.out)
	}
	clear(s.printed)
}

// handleLine processes one line of input. It returns false when the user
// asked to quit.
func (s *ChatSession) handleLine(ctx context.Context, input string) (bool, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return true, nil
	}

	ctx, done := s.beginLine(ctx)
	defer done()

	switch {
	case strings.HasPrefix(input, "/"):
		return s.handleSlashCommand(ctx, input)
	case strings.EqualFold(input, "exit"), strings.EqualFold(input, "quit"):
		return false, nil
	}

	defer s.finishReply()
	return true, s.current().Send(ctx, input)
}

// beginLine derives the context for one line of input so interrupt can
// stop whatever request the line is waiting on, title requests included.
func (s *ChatSession) beginLine(ctx context.Context) (context.Context, func()) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.lineCancel = cancel
	s.mu.Unlock()
	return ctx, func() {
		s.mu.Lock()
		s.lineCancel = nil
		s.mu.Unlock()
		cancel()
	}
}

// interrupt cancels the active stream and the line in flight. It reports
// whether there was anything to cancel.
func (s *ChatSession) interrupt() bool {
	s.mu.Lock()
	cancel := s.lineCancel
	s.mu.Unlock()

	busy := s.app.Controller.HasActiveStream() || cancel != nil
	s.app.Controller.CancelStream()
	if cancel != nil {
		cancel()
	}
	return busy
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

func (s *ChatSession) handleSlashCommand(ctx context.Context, input string) (bool, error) {
	parts := strings.Fields(input)
	command := strings.ToLower(parts[0])
	args := parts[1:]
	r := s.current()

	switch command {
	case "/help", "/h", "/?", "/":
		printChatHelp(s.out)

	case "/quit", "/q", "/exit":
		return false, nil

	case "/retry", "/r":
		target, ok := retryTarget(r.Snapshot())
		if !ok {
			return true, errors.New("nothing to retry")
		}
		defer s.finishReply()
		return true, r.RetryFrom(ctx, target.ID)

	case "/model", "/m":
		if len(args) == 0 {
			fmt.Fprintf(s.out, "%s %s\n", DimStyle.Render("Model:"), HighlightStyle.Render(r.Model()))
			return true, nil
		}
		models, err := s.app.Controller.FetchModelList(ctx)
		if err != nil {
			return true, err
		}
		if !slices.Contains(models, args[0]) {
			fmt.Fprintf(s.out, "%s model %q is not installed on the server\n", WarningStyle.Render("[Warning]"), args[0])
		}
		r.SetModel(args[0])
		fmt.Fprintf(s.out, "%s Switched to %s\n", SuccessStyle.Render("[OK]"), args[0])

	case "/models":
		return true, s.app.Models(ctx)

	case "/title":
		title, err := r.Retitle(ctx)
		if err != nil {
			return true, err
		}
		if title == "" {
			fmt.Fprintln(s.out, DimStyle.Render("The model returned an empty title; keeping the current one."))
		}

	case "/history":
		messages := r.Snapshot()
		if len(messages) == 0 {
			fmt.Fprintln(s.out, DimStyle.Render("[No messages yet]"))
			return true, nil
		}
		fmt.Fprintln(s.out, TitleStyle.Render(r.Conversation().DisplayTitle()))
		for i, m := range messages {
			fmt.Fprintf(s.out, "  %d. %s: %s\n", i+1, roleLabel(m.Role), util.TruncateWidth(util.SingleLine(m.Content), 100))
		}

	case "/export":
		format := ""
		if len(args) > 0 {
			format = args[0]
		}
		exporter, err := export.ForFormat(format, export.DefaultOptions())
		if err != nil {
			return true, err
		}
		doc, err := exportDocument(ctx, s.store, r.Conversation())
		if err != nil {
			return true, err
		}
		path, err := export.ExportToFile(doc, exporter, ".")
		if err != nil {
			return true, err
		}
		fmt.Fprintf(s.out, "%s Exported to %s\n", SuccessStyle.Render("[OK]"), path)

	case "/new", "/clear":
		model := r.Model()
		s.discardIfEmpty(ctx)
		if err := s.start(ctx, "", model); err != nil {
			return true, err
		}
		fmt.Fprintln(s.out, SuccessStyle.Render("[New conversation]"))

	default:
		return true, fmt.Errorf("unknown command: %s (type /help for commands)", command)
	}
	return true, nil
}

// retryTarget picks the message to regenerate from: the last reply, or the
// last user message if its reply never arrived.
func retryTarget(messages []conversation.Message) (conversation.Message, bool) {
	if len(messages) == 0 {
		return conversation.Message{}, false
	}
	last := messages[len(messages)-1]
	return last, last.Role == conversation.RoleAssistant || last.Role == conversation.RoleUser
}

func printChatHelp(w io.Writer) {
	commands := []struct {
		cmd  string
		desc string
	}{
		{"/retry", "Regenerate the last reply"},
		{"/model [name]", "Show or switch the model"},
		{"/models", "List models on the server"},
		{"/title", "Ask the model for a new title"},
		{"/history", "Show the conversation so far"},
		{"/new", "Start a new conversation"},
		{"/export [format]", "Save as markdown, json or html"},
		{"/quit", "Exit chat"},
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("Chat Commands"))
	for _, c := range commands {
		fmt.Fprintf(w, "  %s  %s\n", HighlightStyle.Render(util.PadRight(c.cmd, 15)), DimStyle.Render(c.desc))
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, DimStyle.Render("Ctrl+C cancels the reply being generated, Ctrl+D exits"))
	fmt.Fprintln(w)
}

// =============================================================================
// CHAT HANDLER
// =============================================================================

// HandleChat handles "rigchat chat".
func HandleChat(args Args) int {
	app, err := NewApp(args)
	if err != nil {
		return Exit(os.Stderr, err, args)
	}
	defer app.Close()

	if err := app.Chat(context.Background()); err != nil {
		return app.Fail(err)
	}
	return ExitSuccess
}

// Chat runs the interactive REPL.
func (a *App) Chat(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := NewArgParser(a.args.Raw)
	convID := p.Flag("conversation", "c")

	if err := a.logToFile(); err != nil {
		fmt.Fprintf(a.Err, "%s %v\n", WarningStyle.Render("[Warning]"), err)
	}

	store, err := a.Store()
	if err != nil {
		return err
	}
	s := newChatSession(a, store)

	model := a.Config.Chat.DefaultModel
	if convID == "" || a.args.Model != "" {
		if model, err = a.Controller.ResolveModel(ctx, model); err != nil {
			return err
		}
	} else {
		// Resumed conversations keep their model
		model = ""
	}
	if err := s.start(ctx, convID, model); err != nil {
		return err
	}
	defer s.discardIfEmpty(context.WithoutCancel(ctx))

	if _, err := os.Stat(a.ConfigPath); err == nil {
		if err := config.Watch(ctx, a.ConfigPath, s.applyConfig); err != nil {
			log.WithError(err).Warn("config hot reload disabled")
		}
	}

	// Ctrl+C outside the prompt cancels the reply in flight
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigChan:
				if s.interrupt() {
					fmt.Fprintln(a.Err, "\n"+WarningStyle.Render("[Cancelled]"))
				}
			}
		}
	}()

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	input := NewChatCLI(filepath.Join(dir, "chat_history"))
	defer input.Close()

	r := s.current()
	if !a.args.Quiet {
		printWelcome(a.Out, r)
	}
	if convID != "" {
		printTranscript(a.Out, r.Snapshot())
	}

	for {
		line, err := input.ReadInput("rigchat> ")
		if err != nil {
			// Ctrl+C at the prompt, Ctrl+D or closed stdin
			fmt.Fprintln(a.Out)
			return nil
		}

		more, err := s.handleLine(ctx, line)
		if msg := DescribeError(err, a.Client.BaseURL()); msg != "" {
			fmt.Fprintf(a.Err, "%s %s\n", ErrorStyle.Render("[Error]"), msg)
		}
		if !more {
			return nil
		}
	}
}

// printWelcome prints the banner.
func printWelcome(w io.Writer, r *conversation.Reducer) {
	conv := r.Conversation()
	fmt.Fprintln(w)
	fmt.Fprintln(w, TitleStyle.Render("rigchat"))
	fmt.Fprintln(w, RenderSeparator(30))
	fmt.Fprintf(w, "%s %s\n", DimStyle.Render("Model:"), HighlightStyle.Render(r.Model()))
	fmt.Fprintf(w, "%s %s %s\n", DimStyle.Render("Conversation:"), conv.DisplayTitle(), DimStyle.Render("("+shortID(conv.ID)+")"))
	fmt.Fprintln(w)
	fmt.Fprintln(w, DimStyle.Render("Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(w)
}
