// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Command line parsing for navstream.

package cli

import (
	"fmt"
	"os"
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
	CmdList
	CmdShow
	CmdExport
	CmdConfig
	CmdVersion
	CmdHelp
)

// String returns the command name used in JSON envelopes.
func (c Command) String() string {
	switch c {
	case CmdChat:
		return "chat"
	case CmdAsk:
		return "ask"
	case CmdList:
		return "list"
	case CmdShow:
		return "show"
	case CmdExport:
		return "export"
	case CmdConfig:
		return "config"
	case CmdVersion:
		return "version"
	case CmdHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Args holds parsed CLI arguments.
type Args struct {
	// Global flags
	Quiet      bool
	Verbose    bool
	JSON       bool
	ConfigPath string
	ServerURL  string

	// Command-specific
	Conversation string   // --conversation / -c, or the show/export target
	Query        string   // ask text
	Images       []string // --image, repeatable
	Format       string   // export format
	Output       string   // export directory
	All          bool     // list: include archived
	Subcommand   string
	ConfigKey    string
	ConfigVal    string

	// Raw args after the command name
	Raw []string

	// Options holds command-specific named options
	Options map[string]string
}

// boolFlags never take a value.
var boolFlags = []string{"quiet", "q", "verbose", "v", "json", "all", "a", "help", "h", "version"}

const usageText = `navstream - streaming chat client for graph-based assistants

Usage:
  navstream                          Interactive chat (default)
  navstream chat [-c ID]             Interactive chat, optionally resuming a conversation
  navstream ask "question"           Ask a single question and print the answer
    --image PATH                     Attach an image (repeatable)
    -c, --conversation ID            Continue an existing conversation
  navstream list [--all]             List conversations (server, or local cache when offline)
  navstream show ID                  Print a conversation
  navstream export ID                Export a conversation
    --format md|json                 Export format (default: md)
    --output DIR                     Output directory (default: current directory)
  navstream config [show|get|set|path]
                                     Show or change configuration
  navstream version                  Show version information

Global flags:
  --json                             Machine-readable output
  --config PATH                      Use an alternate config file
  --server URL                       Override server.base_url
  -q, --quiet                        Less output
  -v, --verbose                      Debug logging

Chat commands:
  /new [title]        Start a new conversation
  /list               List conversations
  /open N|ID          Open a conversation from the last listing
  /rename TITLE       Rename the current conversation
  /archive            Archive the current conversation
  /delete             Delete the current conversation
  /image PATH         Attach an image to the next message
  /cancel             Decline the pending question
  /export [md|json]   Export the current conversation
  /history            Reprint the conversation
  /status             Show session state
  /help               Show this help
  /quit               Exit

Press Ctrl+C while a response is streaming to stop it.

Environment:
  NAVSTREAM_SERVER_URL, NAVSTREAM_LOG_LEVEL, NAVSTREAM_MAX_INTERRUPT_DEPTH,
  NAVSTREAM_CACHE_PATH, NO_COLOR, FORCE_COLOR
`

// PrintUsage writes the help text to stdout.
func PrintUsage() {
	fmt.Print(usageText)
}

// PrintVersion writes version information to stdout.
func PrintVersion() {
	fmt.Printf("navstream %s (commit %s, built %s, %s)\n", Version, GitCommit, BuildDate, runtime.Version())
}

// Parse parses os.Args.
func Parse() (Command, Args, error) {
	return ParseArgs(os.Args[1:])
}

// ParseArgs parses a command line without the program name.
func ParseArgs(argv []string) (Command, Args, error) {
	p := NewArgParser(argv, boolFlags...)

	args := Args{
		Quiet:        p.BoolFlag("quiet", "q"),
		Verbose:      p.BoolFlag("verbose", "v"),
		JSON:         p.BoolFlag("json"),
		ConfigPath:   p.Flag("config"),
		ServerURL:    p.Flag("server"),
		Conversation: p.Flag("conversation", "c"),
		Images:       p.Flags("image", "i"),
		Format:       p.Flag("format", "f"),
		Output:       p.Flag("output", "o"),
		All:          p.BoolFlag("all", "a"),
		Options:      make(map[string]string),
	}

	if p.BoolFlag("help", "h") {
		return CmdHelp, args, nil
	}
	if p.BoolFlag("version") {
		return CmdVersion, args, nil
	}
	if p.PositionalCount() == 0 {
		return CmdChat, args, nil
	}

	name := strings.ToLower(p.Positional(0))
	rest := p.PositionalFrom(1)
	args.Raw = rest

	switch name {
	case "chat":
		if args.Conversation == "" && len(rest) > 0 {
			args.Conversation = rest[0]
		}
		return CmdChat, args, nil

	case "ask", "a":
		args.Query = strings.TrimSpace(strings.Join(rest, " "))
		if args.Query == "" {
			return CmdAsk, args, ErrMissingArgument("question", `navstream ask "what's the weather in Shanghai?"`)
		}
		return CmdAsk, args, nil

	case "list", "ls":
		return CmdList, args, nil

	case "show":
		if len(rest) == 0 {
			return CmdShow, args, ErrMissingArgument("conversation id", "navstream show 3f2a...")
		}
		args.Conversation = rest[0]
		return CmdShow, args, nil

	case "export":
		if len(rest) == 0 {
			return CmdExport, args, ErrMissingArgument("conversation id", "navstream export 3f2a... --format json")
		}
		args.Conversation = rest[0]
		if args.Format == "" {
			args.Format = "md"
		}
		return CmdExport, args, nil

	case "config":
		args.Subcommand = "show"
		if len(rest) > 0 {
			args.Subcommand = strings.ToLower(rest[0])
		}
		if len(rest) > 1 {
			args.ConfigKey = rest[1]
		}
		if len(rest) > 2 {
			args.ConfigVal = strings.Join(rest[2:], " ")
		}
		return CmdConfig, args, nil

	case "version":
		return CmdVersion, args, nil

	case "help":
		return CmdHelp, args, nil

	default:
		return CmdHelp, args, &UsageError{
			Reason:  fmt.Sprintf("unknown command %q", name),
			Example: "navstream help",
		}
	}
}
