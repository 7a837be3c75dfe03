// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/apex/log"

	"github.com/jeranaias/rigchat/internal/config"
	"github.com/jeranaias/rigchat/internal/logging"
	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/session"
	"github.com/jeranaias/rigchat/internal/storage"
)

// App wires configuration, the Ollama client, the session controller and
// the conversation store for one command invocation.
type App struct {
	Config     *config.Config
	ConfigPath string
	Client     *ollama.Client
	Controller *session.Controller

	// Out receives command output; Err receives diagnostics
	Out io.Writer
	Err io.Writer

	// Markdown enables glamour rendering of replies
	Markdown bool

	args    Args
	store   storage.Store
	logFile *os.File
}

// NewApp loads configuration and builds the client stack.
func NewApp(args Args) (*App, error) {
	path := args.ConfigFile
	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		if path, err = config.Path(); err != nil {
			return nil, err
		}
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	a := &App{
		ConfigPath: path,
		Out:        os.Stdout,
		Err:        os.Stderr,
		Markdown:   IsStdoutTTY(),
		args:       args,
	}
	if err := a.setupLogging(cfg, os.Stderr); err != nil {
		return nil, err
	}
	a.applyConfig(cfg)

	a.Client = ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:        cfg.Server.BaseURL,
		Timeout:        cfg.Server.Timeout(),
		ConnectTimeout: cfg.Server.ConnectTimeout(),
	})
	a.Controller = session.NewController(a.Client, session.Config{
		ContextWindow: cfg.Chat.ContextWindow,
	})
	return a, nil
}

// applyConfig installs cfg, keeping the --model override on top of it.
func (a *App) applyConfig(cfg *config.Config) {
	if a.args.Model != "" {
		cfg.Chat.DefaultModel = a.args.Model
	}
	a.Config = cfg
}

func (a *App) logLevel(cfg *config.Config) string {
	switch {
	case a.args.Verbose:
		return "debug"
	case a.args.Quiet:
		return "error"
	default:
		return cfg.Log.Level
	}
}

func (a *App) setupLogging(cfg *config.Config, w io.Writer) error {
	return logging.Setup(a.logLevel(cfg), cfg.Log.Format, w)
}

// logToFile moves log output to the configured log file so it doesn't
// interleave with streamed replies.
func (a *App) logToFile() error {
	path, err := a.Config.LogPath()
	if err != nil {
		return err
	}
	f, err := logging.OpenFile(path)
	if err != nil {
		return err
	}
	if err := a.setupLogging(a.Config, f); err != nil {
		f.Close()
		return err
	}
	a.logFile = f
	log.WithField("path", path).Debug("logging to file")
	return nil
}

// Store opens the configured conversation store on first use.
func (a *App) Store() (storage.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	path, err := a.Config.StoragePath()
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(a.Config.Storage.Backend, path, storage.Options{MaxConversations: a.Config.Storage.MaxConversations})
	if err != nil {
		return nil, fmt.Errorf("open %s store at %s: %w", a.Config.Storage.Backend, path, err)
	}
	a.store = store
	return store, nil
}

// SetStore injects a store (tests).
func (a *App) SetStore(store storage.Store) {
	a.store = store
}

// Close cancels any stream and releases the store and log file.
func (a *App) Close() error {
	a.Controller.CancelStream()
	var firstErr error
	if a.store != nil {
		firstErr = a.store.Close()
	}
	if a.logFile != nil {
		logging.Discard()
		if err := a.logFile.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Fail prints err the way the user should see it and returns the exit code.
func (a *App) Fail(err error) int {
	w := a.Err
	if a.args.JSON {
		w = a.Out
	}
	DisplayError(w, err, a.Client.BaseURL(), a.args.JSON)
	return GetExitCode(err)
}

// Exit prints err without an App (config failed to load) and returns the
// exit code.
func Exit(w io.Writer, err error, args Args) int {
	DisplayError(w, err, ollama.DefaultBaseURL, args.JSON)
	return GetExitCode(err)
}
