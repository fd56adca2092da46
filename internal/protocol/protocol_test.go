// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// FRAME TESTS
// =============================================================================

func TestParseFrame_Fields(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"token","node":"planner","content":"Hi"}`))
	require.NoError(t, err)

	assert.Equal(t, FrameToken, f.Type)
	assert.Equal(t, NodeKey("planner"), f.NodeKey())
	assert.True(t, f.HasNode())
	assert.Equal(t, "Hi", f.Content)
}

func TestParseFrame_DefaultNode(t *testing.T) {
	f, err := ParseFrame([]byte(`{"type":"token","content":"x"}`))
	require.NoError(t, err)

	assert.False(t, f.HasNode())
	assert.Equal(t, DefaultNode, f.NodeKey())
	assert.True(t, f.NodeKey().IsDefault())
	assert.Equal(t, "", f.NodeKey().String())
}

func TestParseFrame_Malformed(t *testing.T) {
	_, err := ParseFrame([]byte(`{"type":"token",`))
	assert.Error(t, err)
}

func TestFrameType_Known(t *testing.T) {
	for _, ft := range []FrameType{FrameStart, FrameNodeStart, FrameNodeEnd, FrameToken, FrameMessage,
		FrameToolStart, FrameToolEnd, FrameInterrupt, FrameWaitingInput, FrameDone, FrameError, FrameResumeStart} {
		assert.True(t, ft.Known(), "%s should be known", ft)
	}
	assert.False(t, FrameType("heartbeat").Known())
	assert.True(t, FrameDone.Terminal())
	assert.False(t, FrameToken.Terminal())
}

// =============================================================================
// INTERRUPT TESTS
// =============================================================================

func TestDecodeInterrupt_Variants(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		kind InterruptKind
	}{
		{
			name: "confirmation",
			raw:  `{"type":"confirmation","message":"Navigate to the airport?","tool_name":"set_destination","args":{"poi":"PVG"}}`,
			kind: KindConfirmation,
		},
		{
			name: "selection with numeric ids",
			raw:  `{"type":"selection","message":"Which one?","candidates":[{"id":1,"name":"A"},{"id":2,"name":"B","description":"second"}]}`,
			kind: KindSelection,
		},
		{
			name: "ask_params",
			raw:  `{"type":"ask_params","message":"Which city?","missing_params":["city"]}`,
			kind: KindAskParams,
		},
		{
			name: "save_memory",
			raw:  `{"type":"save_memory","message":"Remember this?","memories":[{"type":"profile","data":{"home":"Pudong"},"confidence":"high"}]}`,
			kind: KindSaveMemory,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p, err := DecodeInterrupt(json.RawMessage(tc.raw))
			require.NoError(t, err)
			assert.Equal(t, tc.kind, p.Kind())
			assert.NotEmpty(t, p.Prompt())
		})
	}
}

func TestDecodeInterrupt_SelectionCandidates(t *testing.T) {
	p, err := DecodeInterrupt(json.RawMessage(`{"type":"selection","message":"pick","candidates":[{"id":7,"name":"Seven"},{"id":"b","name":"Bee"}]}`))
	require.NoError(t, err)

	sel, ok := p.(*Selection)
	require.True(t, ok)
	require.Len(t, sel.Candidates, 2)
	assert.Equal(t, CandidateID("7"), sel.Candidates[0].ID)

	c, ok := sel.Find("b")
	require.True(t, ok)
	assert.Equal(t, "Bee", c.Name)

	c, ok = sel.Find("1")
	require.True(t, ok)
	assert.Equal(t, "Seven", c.Name)

	_, ok = sel.Find("zzz")
	assert.False(t, ok)
}

func TestDecodeInterrupt_SchemaViolations(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"missing message", `{"type":"confirmation"}`},
		{"empty candidates", `{"type":"selection","message":"m","candidates":[]}`},
		{"candidate without name", `{"type":"selection","message":"m","candidates":[{"id":"a"}]}`},
		{"missing params absent", `{"type":"ask_params","message":"m"}`},
		{"bad confidence", `{"type":"save_memory","message":"m","memories":[{"type":"profile","data":{},"confidence":"certain"}]}`},
		{"bad memory type", `{"type":"save_memory","message":"m","memories":[{"type":"pet","data":{},"confidence":"low"}]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeInterrupt(json.RawMessage(tc.raw))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPayload), "got %v", err)
		})
	}
}

func TestDecodeInterrupt_UnknownKind(t *testing.T) {
	_, err := DecodeInterrupt(json.RawMessage(`{"type":"vote","message":"m"}`))
	assert.ErrorIs(t, err, ErrUnknownInterrupt)

	_, err = DecodeInterrupt(nil)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestEncodeInterrupt_RoundTripsKind(t *testing.T) {
	raw, err := EncodeInterrupt(&AskParams{Message: "Which city?", MissingParams: []string{"city"}})
	require.NoError(t, err)

	p, err := DecodeInterrupt(raw)
	require.NoError(t, err)
	assert.Equal(t, KindAskParams, p.Kind())
}

// =============================================================================
// RESUME VALUE TESTS
// =============================================================================

func TestResumeValue_WireForms(t *testing.T) {
	tests := []struct {
		name  string
		value ResumeValue
		want  string
	}{
		{"confirm", Confirm(), `"confirm"`},
		{"reject", Reject(), `"cancel"`},
		{"choose", Choose(Candidate{ID: "a", Name: "A"}), `{"choice":"a","selected":{"id":"a","name":"A"}}`},
		{"params", ProvideParams(map[string]string{"city": "Shanghai"}), `{"params":{"city":"Shanghai"}}`},
		{"no memories", ConfirmMemories(nil), `{"memories":[]}`},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := json.Marshal(tc.value)
			require.NoError(t, err)
			assert.JSONEq(t, tc.want, string(got))
		})
	}
}

func TestResumeValue_Answers(t *testing.T) {
	sel := &Selection{Message: "m", Candidates: []Candidate{{ID: "a", Name: "A"}}}

	assert.NoError(t, Choose(sel.Candidates[0]).Answers(sel))
	assert.ErrorIs(t, Choose(Candidate{ID: "zz", Name: "Elsewhere"}).Answers(sel), ErrResumeMismatch)
	assert.NoError(t, Reject().Answers(sel))
	assert.ErrorIs(t, Confirm().Answers(sel), ErrResumeMismatch)
	assert.ErrorIs(t, Confirm().Answers(nil), ErrResumeMismatch)
}

func TestResumeRequest_JSON(t *testing.T) {
	body, err := json.Marshal(ResumeRequest{ConversationID: "c1", ResumeValue: Confirm()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"conversationId":"c1","resumeValue":"confirm"}`, string(body))
}
