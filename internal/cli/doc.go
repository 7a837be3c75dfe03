// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli provides command-line parsing and the command handlers for
// rigchat.
//
// # Key Types
//
//   - Command: enumeration of the available commands
//   - Args: parsed global flags plus the command's own arguments
//   - ArgParser: per-command flag and positional parsing
//   - App: configuration, client, controller and store for one invocation
//   - ChatSession: the interactive REPL over one conversation
//
// # Usage
//
//	cmd, args := cli.Parse(os.Args[1:])
//	switch cmd {
//	case cli.CmdChat:
//	    os.Exit(cli.HandleChat(args))
//	case cli.CmdAsk:
//	    os.Exit(cli.HandleAsk(ctx, args))
//	}
//
// Handlers return a process exit code; errors are shown through
// DescribeError, which never reports a user cancellation.
package cli
