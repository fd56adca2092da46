// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// commands.go - One-shot command handlers.

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime"

	"github.com/jeranaias/navstream/internal/attach"
	"github.com/jeranaias/navstream/internal/config"
	"github.com/jeranaias/navstream/internal/export"
	"github.com/jeranaias/navstream/internal/model"
	"github.com/jeranaias/navstream/internal/session"
)

// Run executes a parsed command.
func Run(cmd Command, args Args) error {
	switch cmd {
	case CmdChat:
		return HandleChat(args)
	case CmdAsk:
		return HandleAsk(args)
	case CmdList:
		return HandleList(args)
	case CmdShow:
		return HandleShow(args)
	case CmdExport:
		return HandleExport(args)
	case CmdConfig:
		return HandleConfig(args)
	case CmdVersion:
		return HandleVersion(args)
	default:
		PrintUsage()
		return nil
	}
}

// =============================================================================
// ASK
// =============================================================================

// HandleAsk sends one message and prints the reply. Interrupts are answered
// on the terminal when stdin is one; otherwise they are dismissed.
func HandleAsk(args Args) error {
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	images := make([]model.ImageRef, 0, len(args.Images))
	for _, path := range args.Images {
		img, err := attach.EncodeFile(path)
		if err != nil {
			return &CommandError{Command: "ask", Action: "attach", Err: err}
		}
		images = append(images, img)
	}

	var printer *turnPrinter
	sess := app.NewSession(args.Conversation, session.Hooks{
		OnChange: func(log []*model.Message) {
			if printer != nil {
				printer.update(log)
			}
		},
	})
	defer sess.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	out := app.Out
	if args.JSON {
		out = io.Discard
	}
	interactive := !args.JSON && IsTTY()
	answers := bufio.NewScanner(os.Stdin)
	printer = newTurnPrinter(out, app.Render, sess.Messages())

	interrupted := false
	err = sess.Send(ctx, args.Query, images...)
	for err == nil && sess.HITL().Waiting {
		interrupted = true
		pending := sess.HITL().Payload
		if !interactive {
			err = sess.Cancel(ctx)
			break
		}
		printer.finish(sess.Messages())
		fmt.Fprintln(out, app.Render.Interrupt(pending))
		printer = newTurnPrinter(out, app.Render, sess.Messages())
		err = answerOnce(ctx, sess, answers, out)
	}
	printer.finish(sess.Messages())

	if err != nil {
		return &CommandError{Command: "ask", Err: err}
	}
	if last := sess.LastError(); last != nil {
		return &CommandError{Command: "ask", Err: last}
	}

	if args.JSON {
		log := sess.Messages()
		data := AskData{
			ConversationID: sess.ConversationID(),
			Messages:       log,
			Interrupted:    interrupted,
		}
		if last := lastAssistant(log); last != nil {
			data.Response = last.Content
			if m := last.Metrics; m != nil {
				if m.FirstTokenLatency != nil {
					data.FirstTokenMs = m.FirstTokenLatency.Milliseconds()
				}
				if m.TotalLatency != nil {
					data.TotalMs = m.TotalLatency.Milliseconds()
				}
			}
		}
		return NewJSONResponse(CmdAsk.String(), data).Write(app.Out)
	}
	return nil
}

// answerOnce reads lines from in until one parses, then resumes or
// cancels the turn.
func answerOnce(ctx context.Context, sess *session.Session, in *bufio.Scanner, out io.Writer) error {
	pending := sess.HITL().Payload
	for {
		fmt.Fprint(out, "answer> ")
		if !in.Scan() {
			return sess.Cancel(ctx)
		}
		v, err := ParseAnswer(pending, in.Text())
		if errors.Is(err, ErrCancelAnswer) {
			return sess.Cancel(ctx)
		}
		if err != nil {
			fmt.Fprintln(out, RenderConditional(ErrorStyle, err.Error()))
			continue
		}
		return sess.Resume(ctx, v)
	}
}

// =============================================================================
// LIST / SHOW / EXPORT
// =============================================================================

// HandleList lists conversations.
func HandleList(args Args) error {
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := app.RequestContext(context.Background())
	defer cancel()

	rows, err := app.Conversations(ctx, args.All)
	if err != nil {
		return &CommandError{Command: "list", Err: err}
	}
	if args.JSON {
		return NewJSONResponse(CmdList.String(), rows).Write(app.Out)
	}

	current := ""
	if app.Cache != nil {
		current, _ = app.Cache.Current(ctx)
	}
	fmt.Fprintln(app.Out, ConversationTable(rows, current, GetTerminalWidth()))
	return nil
}

// HandleShow prints a conversation.
func HandleShow(args Args) error {
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	ctx, cancel := app.RequestContext(context.Background())
	defer cancel()

	log, _, err := app.History(ctx, args.Conversation)
	if err != nil {
		return &CommandError{Command: "show", Err: err}
	}
	if args.JSON {
		return NewJSONResponse(CmdShow.String(), export.NewDocument(args.Conversation, log)).Write(app.Out)
	}
	if len(log) == 0 {
		fmt.Fprintln(app.Out, RenderConditional(DimStyle, "No messages."))
		return nil
	}
	fmt.Fprintln(app.Out, app.Render.History(log))
	return nil
}

// HandleExport writes a conversation to a file.
func HandleExport(args Args) error {
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	opts := export.DefaultOptions()
	if args.Output != "" {
		opts.OutputDir = args.Output
	}
	exp, err := export.ForFormat(args.Format, opts)
	if err != nil {
		return &UsageError{Reason: err.Error(), Example: "navstream export ID --format json"}
	}

	ctx, cancel := app.RequestContext(context.Background())
	defer cancel()

	log, _, err := app.History(ctx, args.Conversation)
	if err != nil {
		return &CommandError{Command: "export", Action: "fetch", Err: err}
	}
	path, err := export.ToFile(export.NewDocument(args.Conversation, log), exp, opts)
	if err != nil {
		return &CommandError{Command: "export", Action: "write", Err: err}
	}

	if args.JSON {
		return NewJSONResponse(CmdExport.String(), map[string]string{"path": path}).Write(app.Out)
	}
	if !args.Quiet {
		fmt.Fprintf(app.Out, "%s %s\n", RenderConditional(SuccessStyle, "[Exported]"), path)
	}
	return nil
}

// =============================================================================
// CONFIG / VERSION
// =============================================================================

// HandleConfig shows or edits the config file.
func HandleConfig(args Args) error {
	switch args.Subcommand {
	case "path":
		path := args.ConfigPath
		if path == "" {
			p, err := config.ConfigPath()
			if err != nil {
				return err
			}
			path = p
		}
		fmt.Println(path)
		return nil

	case "show", "":
		cfg, _, err := LoadConfig(args)
		if err != nil {
			return err
		}
		if args.JSON {
			return NewJSONResponse(CmdConfig.String(), cfg).Write(os.Stdout)
		}
		fmt.Println(cfg.String())
		return nil

	case "get":
		if args.ConfigKey == "" {
			return ErrMissingArgument("key", "navstream config get server.base_url")
		}
		cfg, _, err := LoadConfig(args)
		if err != nil {
			return err
		}
		v, err := cfg.Get(args.ConfigKey)
		if err != nil {
			return &UsageError{Reason: err.Error()}
		}
		if args.JSON {
			return NewJSONResponse(CmdConfig.String(), map[string]any{args.ConfigKey: v}).Write(os.Stdout)
		}
		fmt.Println(v)
		return nil

	case "set":
		if args.ConfigKey == "" || args.ConfigVal == "" {
			return ErrMissingArgument("key and value", "navstream config set session.max_interrupt_depth 4")
		}
		cfg, path, err := LoadConfig(args)
		if err != nil {
			return err
		}
		if err := cfg.Set(args.ConfigKey, args.ConfigVal); err != nil {
			return &UsageError{Reason: err.Error()}
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		if err := config.SaveTOML(cfg, path); err != nil {
			return &CommandError{Command: "config", Action: "save", Err: err}
		}
		if !args.Quiet {
			fmt.Printf("%s %s = %s\n", RenderConditional(SuccessStyle, "[OK]"), args.ConfigKey, args.ConfigVal)
		}
		return nil

	default:
		return &UsageError{
			Reason:  fmt.Sprintf("unknown config subcommand %q", args.Subcommand),
			Example: "navstream config [show|get|set|path]",
		}
	}
}

// HandleVersion prints version information.
func HandleVersion(args Args) error {
	if args.JSON {
		return NewJSONResponse(CmdVersion.String(), VersionData{
			Version:   Version,
			GitCommit: GitCommit,
			BuildDate: BuildDate,
			GoVersion: runtime.Version(),
		}).Write(os.Stdout)
	}
	PrintVersion()
	return nil
}
