// rigchat - a terminal chat client for a local Ollama server.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jeranaias/rigchat/internal/cli"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
}

func main() {
	os.Exit(run())
}

func run() int {
	cmd, args := cli.Parse(os.Args[1:])

	// The chat REPL handles Ctrl+C itself; everything else stops on it
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case cli.CmdChat:
		stop()
		return cli.HandleChat(args)
	case cli.CmdAsk:
		return cli.HandleAsk(ctx, args)
	case cli.CmdModels:
		return cli.HandleModels(ctx, args)
	case cli.CmdHistory:
		return cli.HandleHistory(ctx, args)
	case cli.CmdConfig:
		return cli.HandleConfig(args)
	case cli.CmdVersion:
		cli.PrintVersion(os.Stdout, args.JSON)
		return cli.ExitSuccess
	case cli.CmdHelp:
		cli.PrintUsage(os.Stdout)
		return cli.ExitSuccess
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args.Name)
		cli.PrintUsage(os.Stderr)
		return cli.ExitUsageError
	}
}
