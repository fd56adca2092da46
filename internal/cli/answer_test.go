// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/navstream/internal/protocol"
)

func wire(t *testing.T, v protocol.ResumeValue) string {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return string(b)
}

func TestParseAnswer_Confirmation(t *testing.T) {
	p := &protocol.Confirmation{Message: "Book the hotel?"}

	v, err := ParseAnswer(p, " Yes ")
	require.NoError(t, err)
	assert.Equal(t, `"confirm"`, wire(t, v))

	v, err = ParseAnswer(p, "n")
	require.NoError(t, err)
	assert.Equal(t, `"cancel"`, wire(t, v))

	_, err = ParseAnswer(p, "perhaps")
	var usage *UsageError
	assert.True(t, errors.As(err, &usage))
}

func TestParseAnswer_Selection(t *testing.T) {
	p := &protocol.Selection{
		Message: "Which airport?",
		Candidates: []protocol.Candidate{
			{ID: "PVG", Name: "Pudong"},
			{ID: "SHA", Name: "Hongqiao"},
		},
	}

	v, err := ParseAnswer(p, "2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"choice":"SHA","selected":{"id":"SHA","name":"Hongqiao"}}`, wire(t, v))

	v, err = ParseAnswer(p, "PVG")
	require.NoError(t, err)
	assert.JSONEq(t, `{"choice":"PVG","selected":{"id":"PVG","name":"Pudong"}}`, wire(t, v))

	_, err = ParseAnswer(p, "3")
	assert.Error(t, err)
}

func TestParseAnswer_AskParams(t *testing.T) {
	single := &protocol.AskParams{Message: "Where to?", MissingParams: []string{"city"}}
	v, err := ParseAnswer(single, "Shanghai")
	require.NoError(t, err)
	assert.JSONEq(t, `{"params":{"city":"Shanghai"}}`, wire(t, v))

	multi := &protocol.AskParams{Message: "Trip details?", MissingParams: []string{"from", "to"}}
	v, err = ParseAnswer(multi, "from=Beijing to=Shanghai")
	require.NoError(t, err)
	assert.JSONEq(t, `{"params":{"from":"Beijing","to":"Shanghai"}}`, wire(t, v))

	v, err = ParseAnswer(multi, "from=Beijing  to=New York")
	require.NoError(t, err)
	assert.JSONEq(t, `{"params":{"from":"Beijing","to":"New York"}}`, wire(t, v))

	_, err = ParseAnswer(multi, "from=Beijing")
	assert.Error(t, err, "every missing parameter needs a value")

	_, err = ParseAnswer(multi, "Beijing Shanghai")
	assert.Error(t, err)

	_, err = ParseAnswer(single, "")
	assert.Error(t, err)
}

func TestParseAnswer_SaveMemory(t *testing.T) {
	p := &protocol.SaveMemory{
		Message: "Remember these?",
		Memories: []protocol.Memory{
			{Type: protocol.MemoryProfile, Data: map[string]any{"home": "Shanghai"}, Confidence: protocol.ConfidenceHigh},
			{Type: protocol.MemoryRelationship, Data: map[string]any{"name": "Li"}, Confidence: protocol.ConfidenceLow},
		},
	}

	v, err := ParseAnswer(p, "all")
	require.NoError(t, err)
	assert.JSONEq(t, `{"memories":[
		{"type":"profile","data":{"home":"Shanghai"},"confidence":"high"},
		{"type":"relationship","data":{"name":"Li"},"confidence":"low"}]}`, wire(t, v))

	v, err = ParseAnswer(p, "none")
	require.NoError(t, err)
	assert.JSONEq(t, `{"memories":[]}`, wire(t, v))

	v, err = ParseAnswer(p, "2, 2")
	require.NoError(t, err)
	assert.JSONEq(t, `{"memories":[{"type":"relationship","data":{"name":"Li"},"confidence":"low"}]}`, wire(t, v))

	_, err = ParseAnswer(p, "1,5")
	assert.Error(t, err)
}

func TestParseAnswer_CancelWords(t *testing.T) {
	payloads := []protocol.InterruptPayload{
		&protocol.Confirmation{Message: "ok?"},
		&protocol.Selection{Message: "pick"},
		&protocol.AskParams{Message: "value?", MissingParams: []string{"x"}},
		&protocol.SaveMemory{Message: "save?"},
	}
	for _, p := range payloads {
		for _, word := range []string{"c", "Cancel", "/cancel"} {
			_, err := ParseAnswer(p, word)
			assert.ErrorIs(t, err, ErrCancelAnswer, "%s %q", p.Kind(), word)
		}
	}
}
