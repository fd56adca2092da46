// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session.go - Streaming session: turns, interrupts and queued sends.

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jeranaias/navstream/internal/assembler"
	"github.com/jeranaias/navstream/internal/hitl"
	"github.com/jeranaias/navstream/internal/marker"
	"github.com/jeranaias/navstream/internal/metrics"
	"github.com/jeranaias/navstream/internal/model"
	"github.com/jeranaias/navstream/internal/protocol"
	"github.com/jeranaias/navstream/internal/stream"
	"github.com/jeranaias/navstream/internal/tasks"
)

// CancelNotice is the assistant message recorded when the user cancels a
// pending interrupt.
const CancelNotice = "Operation cancelled."

var (
	// ErrBusy is returned when a turn is already streaming.
	ErrBusy = errors.New("a response is still streaming")

	// ErrAwaitingInput is returned by Send while an interrupt is pending.
	ErrAwaitingInput = errors.New("waiting for a response to the pending interrupt")

	// ErrEmptyMessage is returned by Send for blank input without images.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrAborted is returned by a turn stopped by Abort or by its context.
	ErrAborted = errors.New("turn aborted")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("session is closed")

	// ErrNoStore is returned by Restore when the session has no store.
	ErrNoStore = errors.New("session has no conversation store")

	// ErrMaxInterruptDepth is recorded when a turn nests too many interrupts.
	ErrMaxInterruptDepth = hitl.ErrMaxDepth
)

// ServerError is an error frame reported by the backend. It does not end
// the turn.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// Streamer opens response streams. *stream.Client implements it.
type Streamer interface {
	Send(ctx context.Context, req protocol.SendRequest) (*stream.Stream, error)
	Resume(ctx context.Context, req protocol.ResumeRequest) (*stream.Stream, error)
}

// =============================================================================
// CONFIGURATION
// =============================================================================

// Hooks are called outside the session lock, on the goroutine driving the
// turn. Any of them may be nil.
type Hooks struct {
	// OnChange receives a copy of the log after each mutation.
	OnChange func(log []*model.Message)

	// OnToken receives the visible part of each streamed fragment.
	OnToken func(node protocol.NodeKey, text string)

	// OnInterrupt is called when the turn pauses for user input.
	OnInterrupt func(p protocol.InterruptPayload)

	// OnError is called for error frames and failed turns.
	OnError func(err error)

	// OnDone receives the consolidated log when a turn completes.
	OnDone func(log []*model.Message)

	// OnQueued is called when a send is queued behind a running turn.
	OnQueued func(t *tasks.Task)
}

// Config holds configuration for a Session.
type Config struct {
	// ConversationID resumes an existing conversation. Empty starts a new
	// one on the first send.
	ConversationID string

	// MaxInterruptDepth bounds nested interrupts per user turn.
	MaxInterruptDepth int

	// QueueSends queues sends issued while a turn streams instead of
	// rejecting them with ErrBusy.
	QueueSends bool
	QueueSize  int

	Store  Store
	Logger *zap.Logger
	Tracer trace.Tracer
	Clock  metrics.Clock
	Hooks  Hooks
}

// DefaultConfig returns the default session configuration.
func DefaultConfig() Config {
	return Config{
		MaxInterruptDepth: hitl.DefaultMaxDepth,
		QueueSize:         5,
	}
}

// Status is a point-in-time view of a session.
type Status struct {
	ConversationID string
	Loading        bool
	State          assembler.State
	Interrupt      hitl.State
	Queued         int
	LastError      error
}

// =============================================================================
// SESSION
// =============================================================================

// Session drives one conversation: it opens streams, feeds their frames
// through the marker filter into the assembler and pauses on interrupts.
// It is safe for concurrent use; one turn streams at a time.
type Session struct {
	mu sync.Mutex

	client Streamer
	convID string

	asm     *assembler.Assembler
	tracker *metrics.Tracker
	filter  *marker.Filter
	hitl    *hitl.Controller
	queue   *tasks.Queue
	persist *persister

	loading    bool
	aborted    bool
	closed     bool
	lastErr    error
	cancelTurn context.CancelFunc
	changed    bool

	// curNode is the node that last received filtered text this stream.
	curNode protocol.NodeKey
	hasNode bool

	clock   metrics.Clock
	hooks   Hooks
	logger  *zap.Logger
	tracer  trace.Tracer
	running sync.WaitGroup
}

// New creates an idle session that streams through client.
func New(client Streamer, cfg Config) *Session {
	s := &Session{
		client: client,
		convID: cfg.ConversationID,
		filter: marker.NewFilter(),
		hitl:   hitl.NewController(cfg.MaxInterruptDepth),
		clock:  cfg.Clock,
		hooks:  cfg.Hooks,
		logger: cfg.Logger,
		tracer: cfg.Tracer,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("github.com/jeranaias/navstream/internal/session")
	}
	s.tracker = metrics.NewTracker(cfg.Clock)
	if s.clock == nil {
		s.clock = time.Now
	}
	s.asm = assembler.New(s.tracker,
		assembler.WithClock(s.clock),
		assembler.WithOnChange(func() { s.changed = true }),
	)
	if cfg.QueueSends {
		s.queue = tasks.NewQueue(20, cfg.QueueSize)
		s.queue.SetLogger(s.logger)
	}
	if cfg.Store != nil {
		s.persist = newPersister(cfg.Store, s.logger)
	}
	return s
}

// ConversationID returns the conversation ID, or "" before the first send.
func (s *Session) ConversationID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.convID
}

// Messages returns a copy of the log.
func (s *Session) Messages() []*model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asm.Messages()
}

// Loading reports whether a turn is streaming.
func (s *Session) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// LastError returns the most recent turn error. It is cleared when the
// next turn's stream opens.
func (s *Session) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// HITL returns the interrupt state.
func (s *Session) HITL() hitl.State {
	return s.hitl.State()
}

// Queue returns the send queue, or nil when sends are not queued.
func (s *Session) Queue() *tasks.Queue {
	return s.queue
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		ConversationID: s.convID,
		Loading:        s.loading,
		State:          s.asm.State(),
		Interrupt:      s.hitl.State(),
		LastError:      s.lastErr,
	}
	if s.queue != nil {
		st.Queued = s.queue.Len()
	}
	return st
}

// =============================================================================
// CONVERSATION SWITCHING
// =============================================================================

// Reset starts an empty conversation. An empty convID is replaced by a
// generated one on the first send.
func (s *Session) Reset(convID string) error {
	s.mu.Lock()
	if err := s.idleLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.convID = convID
	s.lastErr = nil
	s.hitl.Reset()
	s.asm.Load(nil)
	var ev notifier
	s.collectChangeLocked(&ev, false)
	s.mu.Unlock()

	ev.fire()
	return nil
}

// Restore loads convID's log from the store.
func (s *Session) Restore(ctx context.Context, convID string) error {
	if s.persist == nil {
		return ErrNoStore
	}
	log, err := s.persist.store.Load(ctx, convID)
	if err != nil {
		return err
	}
	return s.adopt(convID, log, false)
}

// LoadHistory replaces the log with history fetched elsewhere, such as the
// backend's message list, and saves it to the store.
func (s *Session) LoadHistory(convID string, log []*model.Message) error {
	return s.adopt(convID, log, true)
}

func (s *Session) adopt(convID string, log []*model.Message, persist bool) error {
	s.mu.Lock()
	if err := s.idleLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.convID = convID
	s.lastErr = nil
	s.hitl.Reset()
	s.asm.Load(log)
	var ev notifier
	s.collectChangeLocked(&ev, persist)
	s.mu.Unlock()

	ev.fire()
	s.logger.Debug("conversation loaded",
		zap.String("conversation_id", convID),
		zap.Int("messages", len(log)))
	return nil
}

func (s *Session) idleLocked() error {
	switch {
	case s.closed:
		return ErrClosed
	case s.loading:
		return ErrBusy
	case s.hitl.Waiting():
		return ErrAwaitingInput
	}
	return nil
}

// =============================================================================
// TURNS
// =============================================================================

type opener func(ctx context.Context) (*stream.Stream, error)

type outcome int

const (
	outcomeContinue outcome = iota
	outcomeCompleted
	outcomeInterrupted
	outcomeEnded
	outcomeFailed
	outcomeAborted
)

func (o outcome) String() string {
	switch o {
	case outcomeCompleted:
		return "completed"
	case outcomeInterrupted:
		return "interrupted"
	case outcomeEnded:
		return "ended"
	case outcomeFailed:
		return "failed"
	case outcomeAborted:
		return "aborted"
	default:
		return "streaming"
	}
}

// Send appends a user message and streams the reply. It blocks until the
// turn completes, fails or pauses on an interrupt. While another turn is
// streaming the send is queued when queueing is enabled, otherwise ErrBusy
// is returned.
func (s *Session) Send(ctx context.Context, text string, images ...model.ImageRef) error {
	text = strings.TrimSpace(text)
	if text == "" && len(images) == 0 {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.hitl.Waiting() {
		s.mu.Unlock()
		return ErrAwaitingInput
	}
	if s.loading {
		if s.queue == nil {
			s.mu.Unlock()
			return ErrBusy
		}
		task := tasks.NewTask(s.convID, text, images)
		if err := s.queue.Add(task); err != nil {
			s.mu.Unlock()
			return err
		}
		onQueued := s.hooks.OnQueued
		s.mu.Unlock()

		s.logger.Debug("send queued", zap.String("task_id", task.ID))
		if onQueued != nil {
			onQueued(task.Clone())
		}
		return nil
	}

	s.aborted = false
	open := s.beginSendLocked(text, images)
	var ev notifier
	s.collectChangeLocked(&ev, true)
	s.running.Add(1)
	s.mu.Unlock()

	ev.fire()
	defer s.running.Done()
	return s.drive(ctx, open, "send", nil)
}

// Resume answers the pending interrupt and streams the continuation into
// the same log.
func (s *Session) Resume(ctx context.Context, v protocol.ResumeValue) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.loading {
		s.mu.Unlock()
		return ErrBusy
	}
	p, err := s.hitl.Take(v)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	req := protocol.ResumeRequest{ConversationID: s.convID, ResumeValue: v}
	s.loading = true
	s.aborted = false
	s.running.Add(1)
	s.mu.Unlock()

	defer s.running.Done()
	s.logger.Info("resuming turn",
		zap.String("conversation_id", req.ConversationID),
		zap.String("interrupt", string(p.Kind())))
	return s.drive(ctx, func(ctx context.Context) (*stream.Stream, error) {
		return s.client.Resume(ctx, req)
	}, "resume", nil)
}

// Cancel dismisses the pending interrupt without contacting the backend
// and records CancelNotice in the log. Queued sends run afterwards.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.loading {
		s.mu.Unlock()
		return ErrBusy
	}
	p, err := s.hitl.Cancel()
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.hitl.Reset()
	s.asm.Stop()
	notice := model.NewAssistantMessage("", CancelNotice)
	notice.Timestamp = s.clock()
	s.asm.Push(notice)
	var ev notifier
	s.collectChangeLocked(&ev, true)
	s.mu.Unlock()

	ev.fire()
	s.logger.Info("interrupt cancelled", zap.String("interrupt", string(p.Kind())))
	s.flush()
	return s.drainQueue(ctx)
}

// Abort stops the streaming turn. Content received so far stays in the
// log and no error is recorded. Queued sends are dropped.
func (s *Session) Abort() {
	s.mu.Lock()
	cancel := s.cancelTurn
	if s.loading {
		s.aborted = true
	}
	s.mu.Unlock()

	if s.queue != nil {
		if n := s.queue.CancelAll(); n > 0 {
			s.logger.Debug("dropped queued sends", zap.Int("count", n))
		}
	}
	if cancel != nil {
		cancel()
	}
}

// Close aborts any turn, waits for it to stop and flushes the store.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.Abort()
	s.running.Wait()
	if s.persist != nil {
		return s.persist.Close()
	}
	return nil
}

func (s *Session) beginSendLocked(text string, images []model.ImageRef) opener {
	if s.convID == "" {
		s.convID = uuid.NewString()
	}
	s.hitl.Reset()
	s.loading = true

	msg := model.NewUserMessage(text, images...)
	msg.Timestamp = s.clock()
	s.asm.Push(msg)

	req := protocol.SendRequest{Message: text, ConversationID: s.convID}
	for _, img := range images {
		req.Images = append(req.Images, img.DataURL)
	}
	return func(ctx context.Context) (*stream.Stream, error) {
		return s.client.Send(ctx, req)
	}
}

// drive runs a stream and then any sends queued behind it. It returns the
// first stream's error.
func (s *Session) drive(ctx context.Context, open opener, kind string, task *tasks.Task) error {
	var firstErr error
	first := true
	for {
		out, err := s.runStream(ctx, open, kind)
		if task != nil {
			s.queue.Complete(task, err)
		}
		if first {
			firstErr = err
			first = false
		}

		s.mu.Lock()
		next := s.nextQueuedLocked(out)
		if next == nil {
			s.loading = false
			s.cancelTurn = nil
			s.mu.Unlock()
			s.flush()
			return firstErr
		}
		open = s.beginSendLocked(next.Text, next.Images)
		var ev notifier
		s.collectChangeLocked(&ev, true)
		s.mu.Unlock()

		ev.fire()
		kind, task = "send", next
	}
}

func (s *Session) nextQueuedLocked(out outcome) *tasks.Task {
	if s.queue == nil || s.closed || s.aborted {
		return nil
	}
	if out == outcomeInterrupted || out == outcomeAborted || s.hitl.Waiting() {
		return nil
	}
	return s.queue.Next()
}

func (s *Session) drainQueue(ctx context.Context) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return nil
	}
	next := s.nextQueuedLocked(outcomeCompleted)
	if next == nil {
		s.mu.Unlock()
		return nil
	}
	s.aborted = false
	open := s.beginSendLocked(next.Text, next.Images)
	var ev notifier
	s.collectChangeLocked(&ev, true)
	s.running.Add(1)
	s.mu.Unlock()

	ev.fire()
	defer s.running.Done()
	_ = s.drive(ctx, open, "send", next)
	return nil
}

// runStream opens one stream and applies its frames until it ends.
func (s *Session) runStream(ctx context.Context, open opener, kind string) (outcome, error) {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	s.cancelTurn = cancel
	aborted := s.aborted
	convID := s.convID
	s.asm.BeginTurn()
	s.filter.Reset()
	// A resume continues the turn its interrupt paused.
	if kind != "resume" || !s.tracker.Started() {
		s.tracker.Start()
	}
	s.hasNode = false
	s.mu.Unlock()
	if aborted {
		cancel()
	}

	spanCtx, span := s.tracer.Start(turnCtx, "session."+kind,
		trace.WithAttributes(attribute.String("conversation_id", convID)))
	defer span.End()

	logger := s.logger.With(zap.String("conversation_id", convID), zap.String("kind", kind))
	logger.Debug("opening stream")

	st, err := open(spanCtx)
	if err != nil {
		out, err := s.failTurn(turnCtx, err)
		s.endSpan(span, out, err, 0)
		return out, err
	}
	defer st.Close()

	var ev notifier
	s.mu.Lock()
	s.lastErr = nil
	s.mu.Unlock()

	frames := 0
	for {
		f, err := st.Next()
		if err != nil {
			var out outcome
			if errors.Is(err, io.EOF) && turnCtx.Err() == nil {
				out, err = s.endWithoutDone(logger), nil
			} else {
				out, err = s.failTurn(turnCtx, err)
			}
			if skipped := st.Skipped(); skipped > 0 {
				logger.Warn("skipped malformed frames", zap.Int("count", skipped))
			}
			s.endSpan(span, out, err, frames)
			return out, err
		}
		frames++

		ev = ev[:0]
		s.mu.Lock()
		out, ferr := s.applyLocked(f, frames, logger, &ev)
		s.collectChangeLocked(&ev, true)
		s.mu.Unlock()
		ev.fire()

		if out != outcomeContinue {
			s.endSpan(span, out, ferr, frames)
			logger.Debug("stream finished", zap.Stringer("outcome", out), zap.Int("frames", frames))
			return out, ferr
		}
	}
}

// applyLocked dispatches one frame.
func (s *Session) applyLocked(f protocol.Frame, index int, logger *zap.Logger, ev *notifier) (outcome, error) {
	node := f.NodeKey()
	if ce := logger.Check(zap.DebugLevel, "frame"); ce != nil {
		ce.Write(zap.Int("index", index), zap.String("type", string(f.Type)), zap.String("node", node.String()))
	}

	switch f.Type {
	case protocol.FrameNodeStart:
		s.switchNodeLocked(node)
		if _, err := s.asm.Ensure(node, ""); err != nil {
			logger.Warn("node_start outside a turn", zap.Error(err))
		}

	case protocol.FrameToken:
		if f.Content == "" {
			break
		}
		s.switchNodeLocked(node)
		visible := s.filter.Apply(f.Content)
		if visible == "" {
			break
		}
		if err := s.asm.Append(node, visible); err != nil {
			logger.Warn("dropping token", zap.Error(err))
			break
		}
		if fn := s.hooks.OnToken; fn != nil {
			ev.add(func() { fn(node, visible) })
		}

	case protocol.FrameMessage:
		s.switchNodeLocked(node)
		// The node's held token text is superseded by the full message.
		s.filter.Drain()
		content := strings.TrimSpace(s.filter.Apply(f.Content) + s.filter.Drain())
		if err := s.asm.Replace(node, content); err != nil {
			logger.Warn("dropping message", zap.Error(err))
		}

	case protocol.FrameError:
		msg := f.Message
		if msg == "" {
			msg = f.Content
		}
		if msg == "" {
			msg = "unknown error"
		}
		s.recordErrorLocked(&ServerError{Message: msg}, ev)

	case protocol.FrameInterrupt:
		p, err := protocol.DecodeInterrupt(f.Data)
		if err != nil {
			logger.Warn("invalid interrupt payload", zap.Error(err))
			s.recordErrorLocked(err, ev)
			break
		}
		if err := s.hitl.Enter(p); err != nil {
			s.hitl.Reset()
			s.drainLocked()
			s.asm.Stop()
			s.recordErrorLocked(err, ev)
			return outcomeFailed, err
		}
		s.drainLocked()
		s.asm.Suspend()
		if fn := s.hooks.OnInterrupt; fn != nil {
			ev.add(func() { fn(p) })
		}
		return outcomeInterrupted, nil

	case protocol.FrameDone:
		s.drainLocked()
		var target *protocol.NodeKey
		if f.HasNode() {
			target = &node
		}
		if err := s.asm.Complete(target); err != nil {
			return outcomeFailed, err
		}
		if blocks := s.filter.Blocks(); len(blocks) > 0 {
			logger.Debug("hid detected memories", zap.Int("blocks", len(blocks)))
		}
		if fn := s.hooks.OnDone; fn != nil {
			log := s.asm.Messages()
			ev.add(func() { fn(log) })
		}
		return outcomeCompleted, nil

	case protocol.FrameStart, protocol.FrameResumeStart, protocol.FrameNodeEnd,
		protocol.FrameToolStart, protocol.FrameToolEnd, protocol.FrameWaitingInput:
		// Informational.

	default:
		logger.Debug("ignoring unknown frame", zap.String("type", string(f.Type)))
	}
	return outcomeContinue, nil
}

// switchNodeLocked releases text the filter held back for the previous
// node before node starts receiving text.
func (s *Session) switchNodeLocked(node protocol.NodeKey) {
	if s.hasNode && s.curNode != node {
		if held := s.filter.Drain(); held != "" {
			_ = s.asm.Append(s.curNode, held)
		}
	}
	s.curNode, s.hasNode = node, true
}

func (s *Session) drainLocked() {
	held := s.filter.Drain()
	if held == "" {
		return
	}
	node := protocol.DefaultNode
	if s.hasNode {
		node = s.curNode
	}
	_ = s.asm.Append(node, held)
}

func (s *Session) recordErrorLocked(err error, ev *notifier) {
	s.lastErr = err
	if fn := s.hooks.OnError; fn != nil {
		ev.add(func() { fn(err) })
	}
}

// endWithoutDone handles a stream that closed before its done frame.
func (s *Session) endWithoutDone(logger *zap.Logger) outcome {
	var ev notifier
	s.mu.Lock()
	s.drainLocked()
	s.asm.Stop()
	s.collectChangeLocked(&ev, true)
	s.mu.Unlock()
	ev.fire()

	logger.Warn("stream ended without done frame")
	return outcomeEnded
}

// failTurn ends a turn whose stream could not be opened or read.
func (s *Session) failTurn(turnCtx context.Context, err error) (outcome, error) {
	var ev notifier
	s.mu.Lock()
	s.drainLocked()
	s.asm.Stop()
	if s.aborted || turnCtx.Err() != nil {
		s.collectChangeLocked(&ev, true)
		s.mu.Unlock()
		ev.fire()
		s.logger.Info("turn aborted")
		return outcomeAborted, ErrAborted
	}
	err = fmt.Errorf("stream: %w", err)
	s.recordErrorLocked(err, &ev)
	s.collectChangeLocked(&ev, true)
	s.mu.Unlock()
	ev.fire()

	s.logger.Error("turn failed", zap.Error(err))
	return outcomeFailed, err
}

func (s *Session) endSpan(span trace.Span, out outcome, err error, frames int) {
	s.mu.Lock()
	attrs := []attribute.KeyValue{
		attribute.String("stream.outcome", out.String()),
		attribute.Int("stream.frames", frames),
	}
	if d, ok := s.tracker.FirstTokenLatency(); ok {
		attrs = append(attrs, attribute.Float64("stream.time_to_first_token_seconds", d.Seconds()))
	}
	if d, ok := s.tracker.TotalLatency(); ok {
		attrs = append(attrs, attribute.Float64("stream.total_seconds", d.Seconds()))
	}
	if p, ok := s.hitl.Pending(); ok {
		attrs = append(attrs, attribute.String("stream.interrupt", string(p.Kind())))
	}
	s.mu.Unlock()

	span.SetAttributes(attrs...)
	if err != nil && out != outcomeAborted {
		span.RecordError(err)
		span.SetStatus(codes.Error, "stream failed")
		return
	}
	span.SetStatus(codes.Ok, "")
}

// =============================================================================
// CHANGE NOTIFICATION
// =============================================================================

// collectChangeLocked snapshots the log after a mutation, queues it for
// saving and schedules OnChange.
func (s *Session) collectChangeLocked(ev *notifier, persist bool) {
	if !s.changed {
		return
	}
	s.changed = false
	log := s.asm.Messages()
	if persist && s.persist != nil && s.convID != "" {
		s.persist.MarkDirty(s.convID, log)
	}
	if fn := s.hooks.OnChange; fn != nil {
		snapshot := model.CloneLog(log)
		ev.add(func() { fn(snapshot) })
	}
}

func (s *Session) flush() {
	if s.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), DefaultSaveTimeout)
	defer cancel()
	_ = s.persist.Flush(ctx)
}

// SaveError returns the error of the most recent background save.
func (s *Session) SaveError() error {
	if s.persist == nil {
		return nil
	}
	return s.persist.LastError()
}

type notifier []func()

func (n *notifier) add(fn func()) {
	*n = append(*n, fn)
}

func (n notifier) fire() {
	for _, fn := range n {
		fn()
	}
}
