// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/navstream/internal/assembler"
	"github.com/jeranaias/navstream/internal/hitl"
	"github.com/jeranaias/navstream/internal/model"
	"github.com/jeranaias/navstream/internal/protocol"
	"github.com/jeranaias/navstream/internal/storage"
	"github.com/jeranaias/navstream/internal/stream"
	"github.com/jeranaias/navstream/internal/tasks"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// reply scripts one opened stream.
type reply struct {
	frames []string
	err    error

	// gate delays the frames until closed.
	gate chan struct{}

	// hold keeps the stream open after the frames until the request
	// context ends.
	hold bool
}

type fakeStreamer struct {
	mu      sync.Mutex
	replies []reply
	sends   []protocol.SendRequest
	resumes []protocol.ResumeRequest
}

func newFakeStreamer(replies ...reply) *fakeStreamer {
	return &fakeStreamer{replies: replies}
}

func (f *fakeStreamer) Send(ctx context.Context, req protocol.SendRequest) (*stream.Stream, error) {
	f.mu.Lock()
	f.sends = append(f.sends, req)
	f.mu.Unlock()
	return f.open(ctx)
}

func (f *fakeStreamer) Resume(ctx context.Context, req protocol.ResumeRequest) (*stream.Stream, error) {
	f.mu.Lock()
	f.resumes = append(f.resumes, req)
	f.mu.Unlock()
	return f.open(ctx)
}

func (f *fakeStreamer) open(ctx context.Context) (*stream.Stream, error) {
	f.mu.Lock()
	if len(f.replies) == 0 {
		f.mu.Unlock()
		return nil, errors.New("no scripted reply")
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	f.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}

	pr, pw := io.Pipe()
	go func() {
		if r.gate != nil {
			select {
			case <-r.gate:
			case <-ctx.Done():
				pw.CloseWithError(ctx.Err())
				return
			}
		}
		for _, frame := range r.frames {
			if _, err := fmt.Fprintf(pw, "data: %s\n\n", frame); err != nil {
				return
			}
		}
		if r.hold {
			<-ctx.Done()
			pw.CloseWithError(ctx.Err())
			return
		}
		pw.Close()
	}()
	return stream.NewStream(pr, nil), nil
}

func (f *fakeStreamer) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

func (f *fakeStreamer) resumeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.resumes)
}

func token(node, content string) string {
	b, _ := json.Marshal(map[string]string{"type": "token", "node": node, "content": content})
	return string(b)
}

func interrupt(data string) string {
	return `{"type":"interrupt","data":` + data + `}`
}

const (
	doneFrame     = `{"type":"done"}`
	confirmData   = `{"type":"confirmation","message":"Navigate to the airport?","tool_name":"set_destination","args":{"poi":"PVG"}}`
	selectionData = `{"type":"selection","message":"Which station?","candidates":[{"id":1,"name":"Pudong"},{"id":2,"name":"Hongqiao"}]}`
)

// manualClock only moves when advanced.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func lastMessage(t *testing.T, s *Session) *model.Message {
	t.Helper()
	log := s.Messages()
	require.NotEmpty(t, log)
	return log[len(log)-1]
}

// =============================================================================
// TURNS
// =============================================================================

func TestSession_SingleNodeTurn(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{
		`{"type":"start"}`,
		token("", "Hi"),
		token("", " there"),
		doneFrame,
	}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "hello"))

	log := s.Messages()
	require.Len(t, log, 2)
	assert.Equal(t, model.RoleUser, log[0].Role)
	assert.Equal(t, "hello", log[0].Content)
	assert.Equal(t, model.RoleAssistant, log[1].Role)
	assert.Equal(t, "Hi there", log[1].Content)
	assert.NotNil(t, log[1].Metrics)

	assert.False(t, s.Loading())
	assert.NoError(t, s.LastError())
	assert.Equal(t, assembler.StateCompleted, s.Status().State)

	require.Equal(t, 1, fs.sendCount())
	assert.Equal(t, "hello", fs.sends[0].Message)
	assert.NotEmpty(t, fs.sends[0].ConversationID)
	assert.Equal(t, fs.sends[0].ConversationID, s.ConversationID())
}

func TestSession_KeepsConversationIDAcrossTurns(t *testing.T) {
	fs := newFakeStreamer(
		reply{frames: []string{token("", "one"), doneFrame}},
		reply{frames: []string{token("", "two"), doneFrame}},
	)
	s := New(fs, Config{ConversationID: "conv-1"})
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "a"))
	require.NoError(t, s.Send(context.Background(), "b"))

	require.Equal(t, 2, fs.sendCount())
	assert.Equal(t, "conv-1", fs.sends[0].ConversationID)
	assert.Equal(t, "conv-1", fs.sends[1].ConversationID)
	assert.Len(t, s.Messages(), 4)
}

func TestSession_HidesMemoryMarkers(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{
		token("", "x__DETECTED_"),
		token("", `MEMORIES__[{"type":"profile"}]__END_DETECTED_MEMORIES__`),
		token("", "y"),
		doneFrame,
	}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "hi"))
	assert.Equal(t, "xy", lastMessage(t, s).Content)
}

func TestSession_ReleasesHeldTextAtTurnEnd(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{
		token("", "ends with __"),
		doneFrame,
	}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "hi"))
	assert.Equal(t, "ends with __", lastMessage(t, s).Content)
}

func TestSession_MultiNodeTurnIsConsolidated(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{
		`{"type":"node_start","node":"planner"}`,
		token("planner", "Plan"),
		`{"type":"node_end","node":"planner"}`,
		`{"type":"node_start","node":"empty"}`,
		token("responder", "Answer"),
		doneFrame,
	}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "go"))

	log := s.Messages()
	require.Len(t, log, 2)
	assert.Equal(t, "Plan"+assembler.MergeSeparator+"Answer", log[1].Content)
	assert.Equal(t, "planner", log[1].Node)
}

func TestSession_MessageFrameReplacesNode(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{
		token("writer", "draft"),
		`{"type":"message","node":"writer","content":"  Final answer.__DETECTED_MEMORIES__[]__END_DETECTED_MEMORIES__ "}`,
		doneFrame,
	}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "go"))
	assert.Equal(t, "Final answer.", lastMessage(t, s).Content)
}

func TestSession_MessageFrameDropsHeldTokenText(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{
		token("A", "draft_"),
		`{"type":"message","node":"A","content":"Final answer"}`,
		doneFrame,
	}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "go"))
	assert.Equal(t, "Final answer", lastMessage(t, s).Content)
}

func TestSession_DoneFinalizesNamedNode(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{
		token("A", "alpha"),
		token("B", "beta"),
		`{"type":"done","node":"A"}`,
	}})
	clk := newManualClock()
	s := New(fs, Config{Clock: clk.Now})
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "go"))

	log := s.Messages()
	require.Len(t, log, 2)
	assert.Equal(t, "alpha"+assembler.MergeSeparator+"beta", log[1].Content)
	assert.Equal(t, "A", log[1].Node)
	require.NotNil(t, log[1].Metrics)
	assert.NotNil(t, log[1].Metrics.TotalLatency, "named node carries the final metrics")
}

func TestSession_ResumeKeepsTurnMetrics(t *testing.T) {
	fs := newFakeStreamer(
		reply{frames: []string{interrupt(confirmData)}},
		reply{frames: []string{token("navigate", "Route set."), doneFrame}},
	)
	clk := newManualClock()
	s := New(fs, Config{Clock: clk.Now})
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "take me to the airport"))
	require.True(t, s.HITL().Waiting)

	clk.Advance(10 * time.Second)
	require.NoError(t, s.Resume(context.Background(), protocol.Confirm()))

	m := lastMessage(t, s).Metrics
	require.NotNil(t, m)
	require.NotNil(t, m.FirstTokenLatency)
	require.NotNil(t, m.TotalLatency)
	assert.Equal(t, 10*time.Second, *m.FirstTokenLatency)
	assert.Equal(t, 10*time.Second, *m.TotalLatency)
}

func TestSession_SendsImages(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{token("", "A cat."), doneFrame}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	img := model.ImageRef{Name: "cat.png", MimeType: "image/png", DataURL: "data:image/png;base64,AAAA"}
	require.NoError(t, s.Send(context.Background(), "what is this?", img))

	require.Equal(t, 1, fs.sendCount())
	assert.Equal(t, []string{img.DataURL}, fs.sends[0].Images)
	assert.Len(t, s.Messages()[0].Images, 1)
}

func TestSession_RejectsEmptyMessage(t *testing.T) {
	s := New(newFakeStreamer(), DefaultConfig())
	defer s.Close()

	assert.ErrorIs(t, s.Send(context.Background(), "   "), ErrEmptyMessage)
	assert.Empty(t, s.Messages())
}

func TestSession_SkipsMalformedFrames(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{
		`{"type":"token",`,
		`{"type":"mystery","content":"ignored"}`,
		token("", "ok"),
		doneFrame,
	}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "hi"))
	assert.Equal(t, "ok", lastMessage(t, s).Content)
	assert.NoError(t, s.LastError())
}

func TestSession_StreamEndsWithoutDone(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{token("", "partial")}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "hi"))
	assert.Equal(t, "partial", lastMessage(t, s).Content)
	assert.Equal(t, assembler.StateIdle, s.Status().State)
	assert.False(t, s.Loading())
}

// =============================================================================
// ERRORS
// =============================================================================

func TestSession_ErrorFrameDoesNotEndTurn(t *testing.T) {
	var reported []error
	fs := newFakeStreamer(reply{frames: []string{
		`{"type":"error","message":"tool timed out"}`,
		token("", "ok"),
		doneFrame,
	}})
	s := New(fs, Config{Hooks: Hooks{OnError: func(err error) { reported = append(reported, err) }}})
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "hi"))

	var serverErr *ServerError
	require.ErrorAs(t, s.LastError(), &serverErr)
	assert.Equal(t, "tool timed out", serverErr.Message)
	assert.Equal(t, "ok", lastMessage(t, s).Content)
	assert.Len(t, reported, 1)
}

func TestSession_TransportErrorEndsTurn(t *testing.T) {
	fs := newFakeStreamer(
		reply{err: errors.New("connection refused")},
		reply{frames: []string{token("", "back"), doneFrame}},
	)
	s := New(fs, DefaultConfig())
	defer s.Close()

	err := s.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, err, s.LastError())
	assert.False(t, s.Loading())
	assert.Len(t, s.Messages(), 1)

	require.NoError(t, s.Send(context.Background(), "again"))
	assert.NoError(t, s.LastError())
	assert.Equal(t, "back", lastMessage(t, s).Content)
}

// =============================================================================
// CONCURRENCY
// =============================================================================

func TestSession_BusyWhileStreaming(t *testing.T) {
	gate := make(chan struct{})
	fs := newFakeStreamer(reply{gate: gate, frames: []string{token("", "A"), doneFrame}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(context.Background(), "first") }()

	require.Eventually(t, s.Loading, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, s.Send(context.Background(), "second"), ErrBusy)

	close(gate)
	require.NoError(t, <-errCh)
	assert.Equal(t, 1, fs.sendCount())
}

func TestSession_QueuedSendRunsAfterTurn(t *testing.T) {
	gate := make(chan struct{})
	fs := newFakeStreamer(
		reply{gate: gate, frames: []string{token("", "A"), doneFrame}},
		reply{frames: []string{token("", "B"), doneFrame}},
	)
	queued := make(chan *tasks.Task, 1)
	s := New(fs, Config{
		QueueSends: true,
		QueueSize:  2,
		Hooks:      Hooks{OnQueued: func(t *tasks.Task) { queued <- t }},
	})
	defer s.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(context.Background(), "first") }()

	require.Eventually(t, s.Loading, time.Second, 5*time.Millisecond)
	require.NoError(t, s.Send(context.Background(), "second"))
	task := <-queued
	assert.Equal(t, 1, s.Status().Queued)

	close(gate)
	require.NoError(t, <-errCh)

	log := s.Messages()
	require.Len(t, log, 4)
	assert.Equal(t, "first", log[0].Content)
	assert.Equal(t, "A", log[1].Content)
	assert.Equal(t, "second", log[2].Content)
	assert.Equal(t, "B", log[3].Content)
	assert.Equal(t, 2, fs.sendCount())
	assert.Equal(t, tasks.TaskStatusComplete, s.Queue().Get(task.ID).GetStatus())
}

func TestSession_AbortKeepsPartialContent(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{token("", "partial")}, hold: true})
	tokens := make(chan string, 4)
	s := New(fs, Config{Hooks: Hooks{OnToken: func(_ protocol.NodeKey, text string) { tokens <- text }}})
	defer s.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(context.Background(), "hi") }()

	select {
	case <-tokens:
	case <-time.After(time.Second):
		t.Fatal("no token received")
	}
	s.Abort()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrAborted)
	case <-time.After(time.Second):
		t.Fatal("send did not return after abort")
	}
	assert.NoError(t, s.LastError())
	assert.False(t, s.Loading())
	assert.Equal(t, "partial", lastMessage(t, s).Content)
}

func TestSession_AbortReleasesHeldText(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{token("", "partial_")}, hold: true})
	tokens := make(chan string, 4)
	s := New(fs, Config{Hooks: Hooks{OnToken: func(_ protocol.NodeKey, text string) { tokens <- text }}})
	defer s.Close()

	errCh := make(chan error, 1)
	go func() { errCh <- s.Send(context.Background(), "hi") }()

	select {
	case text := <-tokens:
		assert.Equal(t, "partial", text)
	case <-time.After(time.Second):
		t.Fatal("no token received")
	}
	s.Abort()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrAborted)
	case <-time.After(time.Second):
		t.Fatal("send did not return after abort")
	}
	assert.Equal(t, "partial_", lastMessage(t, s).Content)
}

func TestSession_ClosedRejectsSends(t *testing.T) {
	s := New(newFakeStreamer(), DefaultConfig())
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send(context.Background(), "hi"), ErrClosed)
	assert.NoError(t, s.Close())
}

// =============================================================================
// INTERRUPTS
// =============================================================================

func TestSession_SelectionInterruptAndResume(t *testing.T) {
	fs := newFakeStreamer(
		reply{frames: []string{
			token("search", "Looking up stations."),
			interrupt(selectionData),
			token("search", "never read"),
		}},
		reply{frames: []string{
			`{"type":"resume_start"}`,
			token("navigate", "Route set."),
			doneFrame,
		}},
	)
	var payload protocol.InterruptPayload
	s := New(fs, Config{Hooks: Hooks{OnInterrupt: func(p protocol.InterruptPayload) { payload = p }}})
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "take me to the station"))

	st := s.HITL()
	require.True(t, st.Waiting)
	assert.Equal(t, 1, st.Depth)
	assert.False(t, s.Loading())
	assert.Equal(t, assembler.StateInterrupted, s.Status().State)
	assert.Equal(t, "Looking up stations.", lastMessage(t, s).Content)
	assert.ErrorIs(t, s.Send(context.Background(), "other"), ErrAwaitingInput)

	sel, ok := payload.(*protocol.Selection)
	require.True(t, ok)
	choice, ok := sel.Find("2")
	require.True(t, ok)

	require.NoError(t, s.Resume(context.Background(), protocol.Choose(choice)))

	assert.False(t, s.HITL().Waiting)
	log := s.Messages()
	require.Len(t, log, 2)
	assert.Equal(t, "Looking up stations."+assembler.MergeSeparator+"Route set.", log[1].Content)
	assert.Equal(t, "search", log[1].Node)

	require.Equal(t, 1, fs.resumeCount())
	assert.Equal(t, s.ConversationID(), fs.resumes[0].ConversationID)
	body, err := json.Marshal(fs.resumes[0].ResumeValue)
	require.NoError(t, err)
	assert.JSONEq(t, `{"choice":"2","selected":{"id":"2","name":"Hongqiao"}}`, string(body))
}

func TestSession_ResumeMismatchKeepsWaiting(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{interrupt(selectionData)}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "go"))
	assert.ErrorIs(t, s.Resume(context.Background(), protocol.Confirm()), protocol.ErrResumeMismatch)
	assert.True(t, s.HITL().Waiting)

	unknown := protocol.Choose(protocol.Candidate{ID: "9", Name: "Elsewhere"})
	assert.ErrorIs(t, s.Resume(context.Background(), unknown), protocol.ErrResumeMismatch)
	assert.True(t, s.HITL().Waiting)
	assert.Equal(t, 0, fs.resumeCount())
}

func TestSession_ResumeWithoutInterrupt(t *testing.T) {
	s := New(newFakeStreamer(), DefaultConfig())
	defer s.Close()

	assert.ErrorIs(t, s.Resume(context.Background(), protocol.Confirm()), hitl.ErrNoPendingInterrupt)
}

func TestSession_CancelRecordsNotice(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{
		token("", "Checking route."),
		interrupt(confirmData),
	}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "navigate"))
	require.True(t, s.HITL().Waiting)

	require.NoError(t, s.Cancel(context.Background()))

	msg := lastMessage(t, s)
	assert.Equal(t, model.RoleAssistant, msg.Role)
	assert.Equal(t, CancelNotice, msg.Content)
	assert.False(t, s.HITL().Waiting)
	assert.Equal(t, 0, fs.resumeCount())
	assert.ErrorIs(t, s.Cancel(context.Background()), hitl.ErrNoPendingInterrupt)
}

func TestSession_RejectResumesWithCancel(t *testing.T) {
	fs := newFakeStreamer(
		reply{frames: []string{interrupt(confirmData)}},
		reply{frames: []string{token("", "Okay, not navigating."), doneFrame}},
	)
	s := New(fs, DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "navigate"))
	require.NoError(t, s.Resume(context.Background(), protocol.Reject()))

	body, err := json.Marshal(fs.resumes[0].ResumeValue)
	require.NoError(t, err)
	assert.JSONEq(t, `"cancel"`, string(body))
	assert.Equal(t, "Okay, not navigating.", lastMessage(t, s).Content)
}

func TestSession_MaxInterruptDepthAbortsTurn(t *testing.T) {
	fs := newFakeStreamer(
		reply{frames: []string{interrupt(confirmData)}},
		reply{frames: []string{interrupt(confirmData), doneFrame}},
	)
	s := New(fs, Config{MaxInterruptDepth: 1})
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "go"))
	require.True(t, s.HITL().Waiting)

	err := s.Resume(context.Background(), protocol.Confirm())
	assert.ErrorIs(t, err, ErrMaxInterruptDepth)
	assert.ErrorIs(t, s.LastError(), ErrMaxInterruptDepth)
	assert.False(t, s.HITL().Waiting)
	assert.False(t, s.Loading())
}

func TestSession_InvalidInterruptIsReported(t *testing.T) {
	fs := newFakeStreamer(reply{frames: []string{
		interrupt(`{"type":"selection","message":"m","candidates":[]}`),
		token("", "fallback"),
		doneFrame,
	}})
	s := New(fs, DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "go"))
	assert.ErrorIs(t, s.LastError(), protocol.ErrInvalidPayload)
	assert.False(t, s.HITL().Waiting)
	assert.Equal(t, "fallback", lastMessage(t, s).Content)
}

// =============================================================================
// PERSISTENCE
// =============================================================================

type memStore struct {
	mu    sync.Mutex
	saves int
	logs  map[string][]*model.Message
}

func (m *memStore) Save(_ context.Context, convID string, log []*model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logs == nil {
		m.logs = make(map[string][]*model.Message)
	}
	m.saves++
	m.logs[convID] = model.CloneLog(log)
	return nil
}

func (m *memStore) Load(_ context.Context, convID string) ([]*model.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	log, ok := m.logs[convID]
	if !ok {
		return nil, storage.ErrConversationNotFound
	}
	return model.CloneLog(log), nil
}

func TestSession_PersistsAfterTurn(t *testing.T) {
	store := &memStore{}
	fs := newFakeStreamer(reply{frames: []string{token("", "Hi"), token("", " there"), doneFrame}})
	s := New(fs, Config{Store: store})

	require.NoError(t, s.Send(context.Background(), "hello"))

	saved, err := store.Load(context.Background(), s.ConversationID())
	require.NoError(t, err)
	require.Len(t, saved, 2)
	assert.Equal(t, "Hi there", saved[1].Content)
	assert.NoError(t, s.SaveError())
	require.NoError(t, s.Close())
}

func TestSession_RestoreFromCache(t *testing.T) {
	cache, err := storage.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	defer cache.Close()

	fs := newFakeStreamer(reply{frames: []string{token("", "Hi there"), doneFrame}})
	first := New(fs, Config{Store: cache})
	require.NoError(t, first.Send(context.Background(), "hello"))
	convID := first.ConversationID()
	require.NoError(t, first.Close())

	second := New(newFakeStreamer(), Config{Store: cache})
	defer second.Close()
	require.NoError(t, second.Restore(context.Background(), convID))

	assert.Equal(t, convID, second.ConversationID())
	log := second.Messages()
	require.Len(t, log, 2)
	assert.Equal(t, "hello", log[0].Content)
	assert.Equal(t, "Hi there", log[1].Content)

	assert.ErrorIs(t, second.Restore(context.Background(), "missing"), storage.ErrConversationNotFound)
}

func TestSession_RestoreWithoutStore(t *testing.T) {
	s := New(newFakeStreamer(), DefaultConfig())
	defer s.Close()
	assert.ErrorIs(t, s.Restore(context.Background(), "c1"), ErrNoStore)
}

func TestSession_ResetAndLoadHistory(t *testing.T) {
	store := &memStore{}
	var changes int
	s := New(newFakeStreamer(), Config{Store: store, Hooks: Hooks{OnChange: func([]*model.Message) { changes++ }}})
	defer s.Close()

	history := []*model.Message{
		model.NewUserMessage("where am I?"),
		model.NewAssistantMessage("", "Pudong."),
	}
	require.NoError(t, s.LoadHistory("conv-9", history))
	assert.Equal(t, "conv-9", s.ConversationID())
	assert.Len(t, s.Messages(), 2)
	assert.Equal(t, 1, changes)

	require.NoError(t, s.Reset(""))
	assert.Empty(t, s.ConversationID())
	assert.Empty(t, s.Messages())
}

// =============================================================================
// HTTP
// =============================================================================

func TestSession_StreamsOverHTTP(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api"+stream.SendPath, func(w http.ResponseWriter, r *http.Request) {
		var req protocol.SendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range []string{
			`{"type":"start"}`,
			token("responder", "Echo: "+req.Message),
			doneFrame,
		} {
			fmt.Fprintf(w, "data: %s\n\n", frame)
			flusher.Flush()
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	s := New(stream.NewClient(srv.URL+"/api"), DefaultConfig())
	defer s.Close()

	require.NoError(t, s.Send(context.Background(), "ping"))
	msg := lastMessage(t, s)
	assert.Equal(t, "Echo: ping", msg.Content)
	assert.Equal(t, "responder", msg.Node)
}
