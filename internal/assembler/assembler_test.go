// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package assembler

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/navstream/internal/metrics"
	"github.com/jeranaias/navstream/internal/model"
	"github.com/jeranaias/navstream/internal/protocol"
)

type stepClock struct {
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.now = c.now.Add(10 * time.Millisecond)
	return c.now
}

func newTestAssembler() (*Assembler, *metrics.Tracker) {
	clock := &stepClock{now: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
	tr := metrics.NewTracker(clock.Now)
	return New(tr, WithClock(clock.Now)), tr
}

func startTurn(a *Assembler, tr *metrics.Tracker) {
	tr.Start()
	a.BeginTurn()
}

// =============================================================================
// NODE WRITE TESTS
// =============================================================================

func TestAssembler_SingleNodeScenario(t *testing.T) {
	a, tr := newTestAssembler()
	startTurn(a, tr)

	_, err := a.Ensure("A", "")
	require.NoError(t, err)
	require.NoError(t, a.Append("A", "Hi"))
	require.NoError(t, a.Append("A", " there"))
	require.NoError(t, a.Complete(nil))

	log := a.Messages()
	require.Len(t, log, 1)
	assert.Equal(t, model.RoleAssistant, log[0].Role)
	assert.Equal(t, "A", log[0].Node)
	assert.Equal(t, "Hi there", log[0].Content)
	require.NotNil(t, log[0].Metrics)
	assert.NotNil(t, log[0].Metrics.FirstTokenLatency)
	assert.NotNil(t, log[0].Metrics.TotalLatency)
	assert.Equal(t, StateCompleted, a.State())
}

func TestAssembler_AppendConcatenatesInOrder(t *testing.T) {
	fragments := []string{"导", "航", "", " to ", "Pudong", "\n", "ok"}

	a, tr := newTestAssembler()
	startTurn(a, tr)
	for _, f := range fragments {
		require.NoError(t, a.Append(protocol.DefaultNode, f))
	}

	log := a.Messages()
	require.Len(t, log, 1)
	assert.Equal(t, strings.Join(fragments, ""), log[0].Content)
	assert.Equal(t, "", log[0].Node)
}

func TestAssembler_EnsureIsIdempotent(t *testing.T) {
	a, tr := newTestAssembler()
	startTurn(a, tr)

	first, err := a.Ensure("planner", "")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		idx, err := a.Ensure("planner", "ignored")
		require.NoError(t, err)
		assert.Equal(t, first, idx)
	}
	assert.Equal(t, 1, a.Len())
	assert.Equal(t, "", a.Messages()[0].Content)
}

func TestAssembler_NodesNeverMergeMidTurn(t *testing.T) {
	a, tr := newTestAssembler()
	startTurn(a, tr)

	require.NoError(t, a.Append("weather", "Sunny"))
	require.NoError(t, a.Append("navigation", "Route set"))
	require.NoError(t, a.Append("weather", ", 25C"))

	log := a.Messages()
	require.Len(t, log, 2)
	assert.Equal(t, "Sunny, 25C", log[0].Content)
	assert.Equal(t, "Route set", log[1].Content)

	node, ok := a.LastActive()
	assert.True(t, ok)
	assert.Equal(t, protocol.NodeKey("weather"), node)
}

func TestAssembler_ReplaceOverwrites(t *testing.T) {
	a, tr := newTestAssembler()
	startTurn(a, tr)

	require.NoError(t, a.Replace("summary", "draft"))
	require.NoError(t, a.Replace("summary", "final answer"))

	log := a.Messages()
	require.Len(t, log, 1)
	assert.Equal(t, "final answer", log[0].Content)
}

func TestAssembler_WritesRequireStreaming(t *testing.T) {
	a, _ := newTestAssembler()

	_, err := a.Ensure("A", "")
	assert.ErrorIs(t, err, ErrNotStreaming)
	assert.ErrorIs(t, a.Append("A", "x"), ErrNotStreaming)
	assert.ErrorIs(t, a.Replace("A", "x"), ErrNotStreaming)
	assert.ErrorIs(t, a.Complete(nil), ErrNotStreaming)

	a.BeginTurn()
	a.Suspend()
	assert.Equal(t, StateInterrupted, a.State())
	assert.ErrorIs(t, a.Append("A", "x"), ErrNotStreaming)
}

func TestAssembler_NodeIndexResetsEachTurn(t *testing.T) {
	a, tr := newTestAssembler()
	a.Push(model.NewUserMessage("one"))
	startTurn(a, tr)
	require.NoError(t, a.Append("A", "first"))
	require.NoError(t, a.Complete(nil))

	a.Push(model.NewUserMessage("two"))
	startTurn(a, tr)
	require.NoError(t, a.Append("A", "second"))
	require.NoError(t, a.Complete(nil))

	log := a.Messages()
	require.Len(t, log, 4)
	assert.Equal(t, "first", log[1].Content)
	assert.Equal(t, "second", log[3].Content)
}

// =============================================================================
// FINALIZATION TESTS
// =============================================================================

func TestAssembler_CompleteDropsBlankNodes(t *testing.T) {
	a, tr := newTestAssembler()
	a.Push(model.NewUserMessage("q"))
	startTurn(a, tr)

	_, err := a.Ensure("router", "")
	require.NoError(t, err)
	require.NoError(t, a.Append("thinker", "  \n "))
	require.NoError(t, a.Append("answer", "42"))
	require.NoError(t, a.Complete(nil))

	log := a.Messages()
	require.Len(t, log, 2)
	assert.Equal(t, model.RoleUser, log[0].Role)
	assert.Equal(t, "42", log[1].Content)
	for _, m := range log {
		if m.Role != model.RoleUser {
			assert.False(t, m.IsBlank())
		}
	}
}

func TestAssembler_CompleteFinalizesNamedNode(t *testing.T) {
	a, tr := newTestAssembler()
	startTurn(a, tr)

	require.NoError(t, a.Append("A", "a"))
	a.Push(model.NewSystemMessage("divider"))
	require.NoError(t, a.Append("B", "b"))

	named := protocol.NodeKey("A")
	require.NoError(t, a.Complete(&named))

	log := a.Messages()
	require.Len(t, log, 3)
	assert.NotNil(t, log[0].Metrics.TotalLatency, "named node gets total latency")
	assert.Nil(t, log[2].Metrics.TotalLatency, "other node keeps streaming metrics")
}

func TestAssembler_FirstTokenLatencyIsTurnLevel(t *testing.T) {
	a, tr := newTestAssembler()
	startTurn(a, tr)

	require.NoError(t, a.Append("A", "x"))
	require.NoError(t, a.Append("B", "y"))

	ttft, ok := tr.FirstTokenLatency()
	require.True(t, ok)
	log := a.Messages()
	assert.Equal(t, ttft, *log[0].Metrics.FirstTokenLatency)
	assert.Equal(t, ttft, *log[1].Metrics.FirstTokenLatency)
}

func TestAssembler_OnChangeCalledPerMutation(t *testing.T) {
	calls := 0
	a := New(nil, WithOnChange(func() { calls++ }))

	a.Push(model.NewUserMessage("hi"))
	a.BeginTurn()
	_, _ = a.Ensure("A", "")
	_ = a.Append("A", "x")
	_ = a.Append("A", "")
	_ = a.Replace("A", "y")
	_ = a.Complete(nil)

	assert.Equal(t, 5, calls)
}

func TestAssembler_MessagesAreCopies(t *testing.T) {
	a, tr := newTestAssembler()
	startTurn(a, tr)
	require.NoError(t, a.Append("A", "orig"))

	a.Messages()[0].Content = "mutated"
	assert.Equal(t, "orig", a.Messages()[0].Content)
}
