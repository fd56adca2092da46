// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli is the terminal front end of navstream.
//
// It parses the command line, wires configuration, logging, the local
// cache and the backend clients into a session.Session, and renders the
// results. The interactive chat streams replies as they arrive and prompts
// for answers whenever the assistant pauses for input.
//
// # Usage
//
//	cmd, args, err := cli.Parse()
//	if err != nil {
//	    cli.DisplayError(os.Stderr, err, args.JSON)
//	    os.Exit(cli.GetExitCode(err))
//	}
//	if err := cli.Run(cmd, args); err != nil {
//	    cli.DisplayError(os.Stderr, err, args.JSON)
//	    os.Exit(cli.GetExitCode(err))
//	}
//
// # Commands
//
//   - chat: interactive chat (default)
//   - ask: one question, optionally with images
//   - list, show, export: conversation management
//   - config: show or edit ~/.navstream/config.toml
//   - version
//
// All commands accept --json for machine-readable output.
package cli
