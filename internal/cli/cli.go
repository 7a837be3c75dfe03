// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"
)

// Version information (can be overridden at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Command represents the CLI command to execute.
type Command int

const (
	CmdChat Command = iota
	CmdAsk
	CmdModels
	CmdHistory
	CmdConfig
	CmdVersion
	CmdHelp
	CmdUnknown
)

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool   // Output in JSON format
	Model      string // Overrides chat.default_model
	ConfigFile string // Overrides the config file location

	// Name is the command word as typed
	Name string

	// Raw holds the command's own arguments
	Raw []string
}

const usageText = `rigchat - chat with models on a local Ollama server

Usage:
  rigchat                          Interactive chat (default)
  rigchat chat [--conversation ID] Interactive chat, optionally resuming a conversation
  rigchat ask [--raw] "question"   Ask a single question
  rigchat models                   List models on the server
  rigchat history [SUBCOMMAND]     Saved conversations
  rigchat config [show|path|init|get|set]
  rigchat version
  rigchat help

Ask Flags:
  -f, --file FILE     Append a file to the question
  --raw               Print the reply as plain text, never rendered markdown

History Commands:
  rigchat history list              List conversations, most recent first
  rigchat history show ID           Print a conversation
  rigchat history delete ID         Delete a conversation
  rigchat history export ID         Export as markdown, json or html
    --format FORMAT                 markdown (default), json or html
    -o, --output PATH               Write to a file or directory instead of stdout

Config Commands:
  rigchat config show               Show the effective configuration
  rigchat config path               Print the config file location
  rigchat config init               Write a default config file
  rigchat config get KEY            Print one value (e.g. chat.context_window)
  rigchat config set KEY VALUE      Change one value in the config file

Chat Commands:
  /retry              Regenerate the last reply
  /model [NAME]       Show or switch the model
  /models             List models on the server
  /title              Ask the model for a new title
  /history            Show the conversation so far
  /new                Start a new conversation
  /export [FORMAT]    Save the conversation to a file
  /help               Show chat commands
  /quit               Exit
  Ctrl+C              Cancel the reply being generated

Global Flags:
  -m, --model NAME    Use this model instead of chat.default_model
  --config FILE       Use this config file
  --json              Output in JSON format
  -q, --quiet         Minimal output
  -v, --verbose       Debug logging

Environment:
  RIGCHAT_HOME        Config directory (default ~/.rigchat)
  RIGCHAT_BASE_URL    Server API root (default http://localhost:11434/api)
  RIGCHAT_MODEL       Default model
  RIGCHAT_NUM_CTX     Context window
  RIGCHAT_LOG_LEVEL   Log level
  RIGCHAT_STORE       Storage backend (sqlite or json)

Version: %s
`

// PrintUsage prints the usage/help text.
func PrintUsage(w io.Writer) {
	fmt.Fprintf(w, usageText, Version)
}

// PrintVersion prints version information.
func PrintVersion(w io.Writer, jsonMode bool) {
	if jsonMode {
		NewJSONResponse("version", VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Write(w)
		return
	}
	fmt.Fprintf(w, "rigchat version %s\n", Version)
	fmt.Fprintf(w, "  Git commit: %s\n", GitCommit)
	fmt.Fprintf(w, "  Build date: %s\n", BuildDate)
}

// Parse parses command-line arguments (without the program name) and
// returns the command and its args.
func Parse(argv []string) (Command, Args) {
	remaining, args := parseGlobalFlags(argv)

	if len(remaining) == 0 {
		return CmdChat, args
	}

	args.Name = strings.ToLower(remaining[0])
	args.Raw = remaining[1:]

	switch args.Name {
	case "chat":
		return CmdChat, args
	case "ask", "a":
		return CmdAsk, args
	case "models", "model", "ls":
		return CmdModels, args
	case "history", "conversations", "h":
		return CmdHistory, args
	case "config":
		return CmdConfig, args
	case "version", "--version":
		return CmdVersion, args
	case "help", "-h", "--help":
		return CmdHelp, args
	default:
		return CmdUnknown, args
	}
}

// parseGlobalFlags extracts global flags that appear before or after the
// command word. Command-specific flags are left in place.
func parseGlobalFlags(argv []string) ([]string, Args) {
	var remaining []string
	var args Args

	for i := 0; i < len(argv); i++ {
		arg := argv[i]

		switch {
		case arg == "--":
			remaining = append(remaining, argv[i:]...)
			return remaining, args
		case arg == "-q" || arg == "--quiet":
			args.Quiet = true
		case arg == "-v" || arg == "--verbose":
			args.Verbose = true
		case arg == "--json":
			args.JSON = true
		case (arg == "-m" || arg == "--model") && i+1 < len(argv):
			i++
			args.Model = argv[i]
		case strings.HasPrefix(arg, "--model="):
			args.Model = strings.TrimPrefix(arg, "--model=")
		case arg == "--config" && i+1 < len(argv):
			i++
			args.ConfigFile = argv[i]
		case strings.HasPrefix(arg, "--config="):
			args.ConfigFile = strings.TrimPrefix(arg, "--config=")
		default:
			remaining = append(remaining, arg)
		}
	}

	return remaining, args
}
