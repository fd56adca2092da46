// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Interactive chat command.
//
// Reads lines with liner, streams each reply through a session.Session and
// prompts for answers when the assistant pauses on an interrupt. Ctrl+C
// while streaming stops the reply; Ctrl+C or Ctrl+D at the prompt exits.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/jeranaias/navstream/internal/attach"
	"github.com/jeranaias/navstream/internal/config"
	"github.com/jeranaias/navstream/internal/convstore"
	"github.com/jeranaias/navstream/internal/export"
	"github.com/jeranaias/navstream/internal/hitl"
	"github.com/jeranaias/navstream/internal/model"
	"github.com/jeranaias/navstream/internal/protocol"
	"github.com/jeranaias/navstream/internal/session"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// lineReader provides input history and line editing.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	r := &lineReader{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	if f, err := os.Open(r.historyFile); err == nil {
		_, _ = r.line.ReadHistory(f)
		f.Close()
	}
	return r
}

// ReadInput reads a line; non-empty lines are added to history.
func (r *lineReader) ReadInput(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close writes history (0600) and restores the terminal.
func (r *lineReader) Close() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600); err == nil {
			_, _ = r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// =============================================================================
// CHAT STATE
// =============================================================================

// chat is one interactive session.
type chat struct {
	app    *App
	sess   *session.Session
	input  *lineReader
	out    io.Writer
	quiet  bool
	render atomic.Pointer[Renderer]

	mu      sync.Mutex
	printer *turnPrinter

	images    []model.ImageRef
	listing   []ConversationData
	encoder   *attach.Encoder
	startedAt time.Time
	turns     int
}

// HandleChat runs the interactive chat.
func HandleChat(args Args) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}
	app, err := NewApp(args)
	if err != nil {
		return err
	}
	defer app.Close()

	c := &chat{
		app:       app,
		out:       app.Out,
		quiet:     args.Quiet,
		encoder:   &attach.Encoder{MaxSize: attach.DefaultMaxSize},
		startedAt: time.Now(),
	}
	c.render.Store(app.Render)
	c.sess = app.NewSession("", session.Hooks{
		OnChange: c.onChange,
		OnError:  c.onError,
	})
	defer c.sess.Close()

	if err := c.open(args.Conversation); err != nil {
		return err
	}

	if w := c.watchConfig(); w != nil {
		defer w.Close()
	}

	c.input = newLineReader()
	defer c.input.Close()

	stop := c.handleSignals()
	defer stop()

	if !c.quiet {
		c.printWelcome()
	}
	return c.loop()
}

// open starts in convID, or reopens the last conversation recorded in the
// local cache.
func (c *chat) open(convID string) error {
	if convID != "" {
		return c.openConversation(convID)
	}
	if c.app.Cache == nil {
		return nil
	}
	current, err := c.app.Cache.Current(context.Background())
	if err != nil || current == "" {
		return nil
	}
	if err := c.openConversation(current); err != nil {
		c.app.Log.Warn("could not reopen last conversation", zap.String("conversation_id", current), zap.Error(err))
	}
	return nil
}

// watchConfig applies log level and rendering changes from the config file.
func (c *chat) watchConfig() *config.Watcher {
	w, err := config.NewWatcher(c.app.ConfigPath, 0, func(cfg *config.Config) {
		if err := c.app.Log.SetLevel(cfg.Log.Level); err != nil {
			c.app.Log.Warn("ignoring log level", zap.Error(err))
		}
		c.render.Store(NewRenderer(cfg.UI, GetTerminalWidth()))
		config.SetGlobal(cfg)
		c.app.Log.Info("configuration reloaded")
	}, c.app.Log.Named("config"))
	if err != nil {
		c.app.Log.Debug("config watcher unavailable", zap.Error(err))
		return nil
	}
	if err := w.Watch(); err != nil {
		c.app.Log.Debug("config watcher unavailable", zap.Error(err))
		w.Close()
		return nil
	}
	return w
}

// handleSignals stops the streaming reply on Ctrl+C. At the prompt liner
// owns the terminal and reports Ctrl+C itself.
func (c *chat) handleSignals() func() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		for range sigChan {
			if c.sess.Loading() {
				c.sess.Abort()
			}
		}
	}()
	return func() {
		signal.Stop(sigChan)
		close(sigChan)
	}
}

// =============================================================================
// HOOKS
// =============================================================================

func (c *chat) onChange(log []*model.Message) {
	c.mu.Lock()
	p := c.printer
	c.mu.Unlock()
	if p != nil {
		p.update(log)
	}
}

func (c *chat) onError(err error) {
	var serverErr *session.ServerError
	if errors.As(err, &serverErr) {
		fmt.Fprintf(c.app.Err, "\n%s %s\n", RenderConditional(WarningStyle, "[Server]"), serverErr.Message)
	}
}

// =============================================================================
// REPL
// =============================================================================

func (c *chat) loop() error {
	for {
		input, err := c.input.ReadInput(c.prompt())
		if err != nil {
			fmt.Fprintln(c.out)
			c.printExitSummary()
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			more, err := c.handleSlashCommand(input)
			if err != nil {
				DisplayError(c.app.Err, err, false)
			}
			if !more {
				c.printExitSummary()
				return nil
			}
			continue
		}

		if strings.EqualFold(input, "exit") || strings.EqualFold(input, "quit") {
			c.printExitSummary()
			return nil
		}

		images := c.images
		c.images = nil
		c.runTurn(func(ctx context.Context) error {
			return c.sess.Send(ctx, input, images...)
		})
		c.turns++
	}
}

func (c *chat) prompt() string {
	p := "navstream> "
	if n := len(c.images); n > 0 {
		p = fmt.Sprintf("navstream [%d image(s)]> ", n)
	}
	if ColorsEnabled() {
		return promptStyle.Render(p)
	}
	return p
}

// runTurn streams one turn and then answers interrupts until the turn
// completes or is dismissed.
func (c *chat) runTurn(start func(ctx context.Context) error) {
	for {
		c.stream(start)

		state := c.sess.HITL()
		if !state.Waiting {
			return
		}
		next, ok := c.askInterrupt(state.Payload)
		if !ok {
			return
		}
		start = next
	}
}

// stream runs start with a printer attached and reports the outcome.
func (c *chat) stream(start func(ctx context.Context) error) {
	render := c.render.Load()
	p := newTurnPrinter(c.out, render, c.sess.Messages())
	c.mu.Lock()
	c.printer = p
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.printer = nil
		c.mu.Unlock()
	}()

	fmt.Fprintln(c.out)
	err := start(context.Background())
	p.finish(c.sess.Messages())

	switch {
	case err == nil:
	case errors.Is(err, session.ErrAborted):
		fmt.Fprintln(c.out, RenderConditional(WarningStyle, "[Stopped]"))
	default:
		DisplayError(c.app.Err, err, false)
	}
	fmt.Fprintln(c.out)
}

// askInterrupt prompts until the user gives a valid answer. It returns the
// call that continues the turn, or false when input ended.
func (c *chat) askInterrupt(p protocol.InterruptPayload) (func(ctx context.Context) error, bool) {
	fmt.Fprintln(c.out, c.render.Load().Interrupt(p))
	for {
		input, err := c.input.ReadInput(c.answerPrompt())
		if errors.Is(err, liner.ErrPromptAborted) {
			return c.sess.Cancel, true
		}
		if err != nil {
			c.dismiss()
			return nil, false
		}

		v, err := ParseAnswer(p, input)
		if errors.Is(err, ErrCancelAnswer) {
			return c.sess.Cancel, true
		}
		if err != nil {
			DisplayError(c.app.Err, err, false)
			continue
		}
		return func(ctx context.Context) error { return c.sess.Resume(ctx, v) }, true
	}
}

func (c *chat) answerPrompt() string {
	if ColorsEnabled() {
		return promptStyle.Render("answer> ")
	}
	return "answer> "
}

// dismiss cancels a pending interrupt when input ends.
func (c *chat) dismiss() {
	if !c.sess.HITL().Waiting {
		return
	}
	if err := c.sess.Cancel(context.Background()); err != nil {
		c.app.Log.Warn("could not dismiss pending interrupt", zap.Error(err))
	}
}

// =============================================================================
// SLASH COMMANDS
// =============================================================================

// handleSlashCommand returns false when the chat should exit.
func (c *chat) handleSlashCommand(line string) (bool, error) {
	parts := strings.Fields(line)
	command := strings.ToLower(parts[0])
	rest := strings.TrimSpace(strings.TrimPrefix(line, parts[0]))

	ctx, cancel := c.app.RequestContext(context.Background())
	defer cancel()

	switch command {
	case "/help", "/h", "/?", "/":
		c.printHelp()
	case "/quit", "/q", "/exit":
		return false, nil
	case "/new", "/n":
		return true, c.newConversation(ctx, rest)
	case "/list", "/ls":
		return true, c.list(ctx, rest == "all")
	case "/open", "/o":
		if rest == "" {
			return true, ErrMissingArgument("conversation", "/open 2")
		}
		return true, c.openConversation(c.resolve(rest))
	case "/rename":
		return true, c.rename(ctx, rest)
	case "/archive":
		return true, c.archive(ctx)
	case "/delete":
		return true, c.delete(ctx)
	case "/image", "/img":
		return true, c.attach(rest)
	case "/cancel":
		if !c.sess.HITL().Waiting {
			return true, hitl.ErrNoPendingInterrupt
		}
		c.runTurn(c.sess.Cancel)
	case "/export":
		return true, c.export(parts[1:])
	case "/history":
		c.printHistory()
	case "/status", "/s":
		c.printStatus()
	case "/config":
		fmt.Fprintln(c.out, config.Global().String())
	default:
		return true, &UsageError{Reason: fmt.Sprintf("unknown command: %s", command), Example: "/help"}
	}
	return true, nil
}

// resolve maps a listing number to its conversation ID.
func (c *chat) resolve(ref string) string {
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(c.listing) {
		return c.listing[n-1].ID
	}
	return ref
}

func (c *chat) newConversation(ctx context.Context, title string) error {
	conv, err := c.app.Store.Create(ctx, title)
	if err != nil {
		// The backend assigns an id on the first send when it cannot
		// be reached here.
		c.app.Log.Warn("could not create conversation on server", zap.Error(err))
		if err := c.sess.Reset(""); err != nil {
			return err
		}
		fmt.Fprintln(c.out, RenderConditional(SuccessStyle, "[New conversation]"))
		return nil
	}
	if err := c.sess.Reset(conv.ID); err != nil {
		return err
	}
	c.setCurrent(conv.ID)
	fmt.Fprintf(c.out, "%s %s\n", RenderConditional(SuccessStyle, "[New conversation]"), conv.DisplayTitle())
	return nil
}

func (c *chat) list(ctx context.Context, all bool) error {
	rows, err := c.app.Conversations(ctx, all)
	if err != nil {
		return &CommandError{Command: "list", Err: err}
	}
	c.listing = rows
	fmt.Fprintln(c.out, ConversationTable(rows, c.sess.ConversationID(), GetTerminalWidth()))
	return nil
}

// openConversation loads history from the server, falling back to the
// session's cache.
func (c *chat) openConversation(convID string) error {
	ctx, cancel := c.app.RequestContext(context.Background())
	defer cancel()

	log, source, err := c.app.History(ctx, convID)
	if err != nil {
		if restoreErr := c.sess.Restore(ctx, convID); restoreErr != nil {
			return &CommandError{Command: "open", Err: err}
		}
		source = "cache"
	} else if err := c.sess.LoadHistory(convID, log); err != nil {
		return err
	}

	c.setCurrent(convID)
	history := c.sess.Messages()
	if !c.quiet {
		fmt.Fprintf(c.out, "%s %s (%d messages, %s)\n",
			RenderConditional(SuccessStyle, "[Opened]"), model.TitleFromLog(history), len(history), source)
		if len(history) > 0 {
			fmt.Fprintln(c.out)
			fmt.Fprintln(c.out, c.render.Load().History(tail(history, 4)))
			fmt.Fprintln(c.out)
		}
	}
	return nil
}

func (c *chat) setCurrent(convID string) {
	if c.app.Cache == nil || convID == "" {
		return
	}
	if err := c.app.Cache.SetCurrent(context.Background(), convID); err != nil {
		c.app.Log.Debug("could not record current conversation", zap.Error(err))
	}
}

func (c *chat) requireConversation() (string, error) {
	id := c.sess.ConversationID()
	if id == "" {
		return "", &UsageError{Reason: "no conversation yet; send a message first"}
	}
	return id, nil
}

func (c *chat) rename(ctx context.Context, title string) error {
	if title == "" {
		return ErrMissingArgument("title", "/rename Trip to Shanghai")
	}
	id, err := c.requireConversation()
	if err != nil {
		return err
	}
	conv, err := c.app.Store.Rename(ctx, id, title)
	if err != nil {
		return &CommandError{Command: "rename", Err: err}
	}
	fmt.Fprintf(c.out, "%s %s\n", RenderConditional(SuccessStyle, "[Renamed]"), conv.DisplayTitle())
	return nil
}

func (c *chat) archive(ctx context.Context) error {
	id, err := c.requireConversation()
	if err != nil {
		return err
	}
	if _, err := c.app.Store.Archive(ctx, id, true); err != nil {
		return &CommandError{Command: "archive", Err: err}
	}
	fmt.Fprintln(c.out, RenderConditional(SuccessStyle, "[Archived]"))
	return nil
}

func (c *chat) delete(ctx context.Context) error {
	id, err := c.requireConversation()
	if err != nil {
		return err
	}
	confirm, err := c.input.ReadInput("Delete this conversation? [y/N]: ")
	if err != nil {
		return nil
	}
	if ok, _ := ParseBoolString(confirm); !ok {
		fmt.Fprintln(c.out, RenderConditional(DimStyle, "Cancelled."))
		return nil
	}

	if err := c.app.Store.Delete(ctx, id); err != nil && !errors.Is(err, convstore.ErrNotFound) {
		return &CommandError{Command: "delete", Err: err}
	}
	if c.app.Cache != nil {
		if err := c.app.Cache.Delete(ctx, id); err != nil {
			c.app.Log.Debug("cache delete failed", zap.Error(err))
		}
	}
	if err := c.sess.Reset(""); err != nil {
		return err
	}
	fmt.Fprintln(c.out, RenderConditional(SuccessStyle, "[Deleted]"))
	return nil
}

func (c *chat) attach(path string) error {
	if path == "" {
		return ErrMissingArgument("path", "/image ~/Pictures/map.png")
	}
	img, err := c.encoder.EncodeFile(path)
	if err != nil {
		return &CommandError{Command: "image", Err: err}
	}
	c.images = append(c.images, img)
	fmt.Fprintf(c.out, "%s %s (sent with your next message)\n", RenderConditional(SuccessStyle, "[Attached]"), img.Name)
	return nil
}

func (c *chat) export(args []string) error {
	log := c.sess.Messages()
	opts := export.DefaultOptions()
	format := "md"
	if len(args) > 0 {
		format = args[0]
	}
	if len(args) > 1 {
		opts.OutputDir = args[1]
	}
	exp, err := export.ForFormat(format, opts)
	if err != nil {
		return &UsageError{Reason: err.Error(), Example: "/export json ~/exports"}
	}
	path, err := export.ToFile(export.NewDocument(c.sess.ConversationID(), log), exp, opts)
	if err != nil {
		return &CommandError{Command: "export", Err: err}
	}
	fmt.Fprintf(c.out, "%s %s\n", RenderConditional(SuccessStyle, "[Exported]"), path)
	return nil
}

// =============================================================================
// DISPLAY
// =============================================================================

func tail(log []*model.Message, n int) []*model.Message {
	if len(log) <= n {
		return log
	}
	return log[len(log)-n:]
}

func (c *chat) printWelcome() {
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, RenderConditional(TitleStyle, "navstream interactive chat"))
	fmt.Fprintln(c.out, RenderSeparator(30))
	fmt.Fprintf(c.out, "%s%s\n", RenderLabel("Server:", 10), c.app.Config.Server.BaseURL)
	if id := c.sess.ConversationID(); id != "" {
		fmt.Fprintf(c.out, "%s%s\n", RenderLabel("Resumed:", 10), id)
	}
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, RenderConditional(DimStyle, "Type your message and press Enter. Commands: /help, /quit"))
	fmt.Fprintln(c.out)
}

func (c *chat) printHelp() {
	commands := []struct {
		cmd  string
		desc string
	}{
		{"/new [title]", "Start a new conversation"},
		{"/list [all]", "List conversations"},
		{"/open N|ID", "Open a conversation"},
		{"/rename TITLE", "Rename the current conversation"},
		{"/archive", "Archive the current conversation"},
		{"/delete", "Delete the current conversation"},
		{"/image PATH", "Attach an image to the next message"},
		{"/cancel", "Decline the pending question"},
		{"/export [md|json] [dir]", "Export the current conversation"},
		{"/history", "Reprint the conversation"},
		{"/status", "Show session state"},
		{"/config", "Show configuration"},
		{"/quit", "Exit"},
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, RenderConditional(TitleStyle, "Available Commands"))
	fmt.Fprintln(c.out, RenderSeparator(20))
	for _, cmd := range commands {
		fmt.Fprintf(c.out, "  %s  %s\n",
			RenderConditional(SuccessStyle, fmt.Sprintf("%-24s", cmd.cmd)),
			RenderConditional(DimStyle, cmd.desc))
	}
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, RenderConditional(DimStyle, "Tip: Ctrl+C stops a streaming reply, Ctrl+D exits"))
	fmt.Fprintln(c.out)
}

func (c *chat) printHistory() {
	log := c.sess.Messages()
	if len(log) == 0 {
		fmt.Fprintln(c.out, RenderConditional(DimStyle, "[No messages yet]"))
		return
	}
	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, c.render.Load().History(log))
	fmt.Fprintln(c.out)
}

func (c *chat) printStatus() {
	st := c.sess.Status()
	id := st.ConversationID
	if id == "" {
		id = "(new)"
	}

	fmt.Fprintln(c.out)
	fmt.Fprintln(c.out, RenderConditional(TitleStyle, "Session Status"))
	fmt.Fprintln(c.out, RenderSeparator(20))
	fmt.Fprintf(c.out, "%s%s\n", RenderLabel("Conversation:"), id)
	fmt.Fprintf(c.out, "%s%s\n", RenderLabel("State:"), st.State)
	fmt.Fprintf(c.out, "%s%d\n", RenderLabel("Messages:"), len(c.sess.Messages()))
	if st.Interrupt.Waiting {
		fmt.Fprintf(c.out, "%s%s (depth %d)\n", RenderLabel("Waiting on:"), st.Interrupt.Payload.Kind(), st.Interrupt.Depth)
	}
	if st.Queued > 0 {
		fmt.Fprintf(c.out, "%s%d\n", RenderLabel("Queued:"), st.Queued)
	}
	if st.LastError != nil {
		fmt.Fprintf(c.out, "%s%s\n", RenderLabel("Last error:"), RenderConditional(ErrorStyle, st.LastError.Error()))
	}
	if err := c.sess.SaveError(); err != nil {
		fmt.Fprintf(c.out, "%s%s\n", RenderLabel("Cache:"), RenderConditional(WarningStyle, err.Error()))
	}
	if len(c.images) > 0 {
		fmt.Fprintf(c.out, "%s%d\n", RenderLabel("Attached:"), len(c.images))
	}
	fmt.Fprintf(c.out, "%s%s\n", RenderLabel("Duration:"), time.Since(c.startedAt).Round(time.Second))
	fmt.Fprintln(c.out)
}

func (c *chat) printExitSummary() {
	if c.turns > 0 && !c.quiet {
		fmt.Fprintf(c.out, "%s %d turn(s) in %s\n",
			RenderConditional(DimStyle, "[Session]"), c.turns, time.Since(c.startedAt).Round(time.Second))
	}
	fmt.Fprintln(c.out, RenderConditional(DimStyle, "Goodbye!"))
}
