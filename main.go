// navstream - Streaming chat client for the travel-assistant API.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/jeranaias/navstream/internal/cli"
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
	cmd, args, err := cli.Parse()
	if err != nil {
		cli.DisplayError(os.Stderr, err, args.JSON)
		os.Exit(cli.GetExitCode(err))
	}

	if err := cli.Run(cmd, args); err != nil {
		cli.DisplayError(os.Stderr, err, args.JSON)
		os.Exit(cli.GetExitCode(err))
	}
}
