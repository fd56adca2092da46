// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// assembler.go - Node-keyed assembly of streamed assistant messages.

package assembler

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jeranaias/navstream/internal/metrics"
	"github.com/jeranaias/navstream/internal/model"
	"github.com/jeranaias/navstream/internal/protocol"
)

// =============================================================================
// STATE
// =============================================================================

// State is the per-turn assembly state.
type State int

const (
	StateIdle State = iota
	StateStreaming
	StateInterrupted
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStreaming:
		return "streaming"
	case StateInterrupted:
		return "interrupted"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrNotStreaming is returned by node writes outside the Streaming state.
var ErrNotStreaming = errors.New("assembler is not streaming")

// =============================================================================
// ASSEMBLER
// =============================================================================

// Assembler owns a message log and applies node-keyed writes to it. It is
// driven by a single goroutine; callers that share it must synchronize.
type Assembler struct {
	log   []*model.Message
	state State

	nodeIndex  map[protocol.NodeKey]int
	lastActive protocol.NodeKey
	hasActive  bool

	tracker  *metrics.Tracker
	clock    func() time.Time
	onChange func()
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithClock sets the clock used for message timestamps.
func WithClock(clock func() time.Time) Option {
	return func(a *Assembler) {
		if clock != nil {
			a.clock = clock
		}
	}
}

// WithOnChange registers a hook called after every log mutation.
func WithOnChange(fn func()) Option {
	return func(a *Assembler) { a.onChange = fn }
}

// New creates an assembler that refreshes message metrics from tracker.
// A nil tracker disables metrics.
func New(tracker *metrics.Tracker, opts ...Option) *Assembler {
	a := &Assembler{
		nodeIndex: make(map[protocol.NodeKey]int),
		tracker:   tracker,
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the current turn state.
func (a *Assembler) State() State {
	return a.state
}

// Len returns the number of log entries.
func (a *Assembler) Len() int {
	return len(a.log)
}

// Messages returns a deep copy of the log.
func (a *Assembler) Messages() []*model.Message {
	return model.CloneLog(a.log)
}

// Load replaces the log, for restoring a conversation between turns.
func (a *Assembler) Load(log []*model.Message) {
	a.log = model.CloneLog(log)
	a.resetIndex()
	a.state = StateIdle
	a.changed()
}

// Push appends a message that is not tied to a node, such as the user's
// input or a synthetic notice.
func (a *Assembler) Push(msg *model.Message) {
	a.log = append(a.log, msg.Clone())
	a.changed()
}

// =============================================================================
// TURN LIFECYCLE
// =============================================================================

// BeginTurn enters Streaming with an empty node index. It is called for
// every opened stream, including resumed ones.
func (a *Assembler) BeginTurn() {
	a.resetIndex()
	a.state = StateStreaming
}

// Suspend moves a streaming turn to Interrupted. Partial content stays in
// the log.
func (a *Assembler) Suspend() {
	if a.state == StateStreaming {
		a.state = StateInterrupted
	}
}

// Stop ends a turn that will not complete (abort or transport failure).
// The log is left as it is.
func (a *Assembler) Stop() {
	a.resetIndex()
	a.state = StateIdle
}

// LastActive returns the node most recently written this turn.
func (a *Assembler) LastActive() (protocol.NodeKey, bool) {
	return a.lastActive, a.hasActive
}

// Complete finalizes the turn and consolidates the log. Metrics are
// finalized on node when non-nil, otherwise on the last active node.
func (a *Assembler) Complete(node *protocol.NodeKey) error {
	if a.state != StateStreaming {
		return fmt.Errorf("%w: complete in %s state", ErrNotStreaming, a.state)
	}

	if a.tracker != nil {
		a.tracker.Finish()
	}

	target, ok := a.lastActive, a.hasActive
	if node != nil {
		target, ok = *node, true
	}
	if ok {
		if i, exists := a.nodeIndex[target]; exists && a.tracker != nil {
			a.log[i].Metrics = a.tracker.Snapshot()
		}
	}

	a.dropBlankNodes()
	a.log = Consolidate(a.log)
	a.resetIndex()
	a.state = StateCompleted
	a.changed()
	return nil
}

// =============================================================================
// NODE WRITES
// =============================================================================

// Ensure creates an entry for node with initial content unless one already
// exists this turn. It returns the entry's log index.
func (a *Assembler) Ensure(node protocol.NodeKey, initial string) (int, error) {
	if a.state != StateStreaming {
		return -1, ErrNotStreaming
	}
	if i, ok := a.nodeIndex[node]; ok {
		return i, nil
	}

	msg := model.NewAssistantMessage(node.String(), initial)
	msg.Timestamp = a.clock()
	if initial != "" && a.tracker != nil {
		a.tracker.ObserveContent()
	}
	if a.tracker != nil {
		msg.Metrics = a.tracker.Snapshot()
	}

	a.log = append(a.log, msg)
	i := len(a.log) - 1
	a.nodeIndex[node] = i
	a.markActive(node)
	a.changed()
	return i, nil
}

// Append adds fragment to node's entry, creating it if needed. Empty
// fragments are ignored.
func (a *Assembler) Append(node protocol.NodeKey, fragment string) error {
	if a.state != StateStreaming {
		return ErrNotStreaming
	}
	if fragment == "" {
		return nil
	}

	i, ok := a.nodeIndex[node]
	if !ok {
		_, err := a.Ensure(node, fragment)
		return err
	}

	if a.tracker != nil {
		a.tracker.ObserveContent()
	}
	msg := a.log[i]
	msg.Content += fragment
	a.touch(msg)
	a.markActive(node)
	a.changed()
	return nil
}

// Replace sets node's content verbatim, creating the entry if needed.
func (a *Assembler) Replace(node protocol.NodeKey, content string) error {
	if a.state != StateStreaming {
		return ErrNotStreaming
	}

	i, ok := a.nodeIndex[node]
	if !ok {
		_, err := a.Ensure(node, content)
		return err
	}

	if content != "" && a.tracker != nil {
		a.tracker.ObserveContent()
	}
	msg := a.log[i]
	msg.Content = content
	a.touch(msg)
	a.markActive(node)
	a.changed()
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (a *Assembler) touch(msg *model.Message) {
	msg.Timestamp = a.clock()
	if a.tracker != nil {
		msg.Metrics = a.tracker.Snapshot()
	}
}

func (a *Assembler) markActive(node protocol.NodeKey) {
	a.lastActive = node
	a.hasActive = true
}

func (a *Assembler) resetIndex() {
	a.nodeIndex = make(map[protocol.NodeKey]int)
	a.lastActive = ""
	a.hasActive = false
}

// dropBlankNodes removes this turn's node entries that hold only whitespace.
func (a *Assembler) dropBlankNodes() {
	var blank []int
	for _, i := range a.nodeIndex {
		if a.log[i].IsBlank() {
			blank = append(blank, i)
		}
	}
	if len(blank) == 0 {
		return
	}
	sort.Sort(sort.Reverse(sort.IntSlice(blank)))
	for _, i := range blank {
		a.log = append(a.log[:i], a.log[i+1:]...)
	}
}

func (a *Assembler) changed() {
	if a.onChange != nil {
		a.onChange()
	}
}
