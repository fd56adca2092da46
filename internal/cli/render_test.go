// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/navstream/internal/config"
	"github.com/jeranaias/navstream/internal/model"
	"github.com/jeranaias/navstream/internal/protocol"
	"github.com/jeranaias/navstream/internal/storage"
)

func plainRenderer(showStats bool) *Renderer {
	ForceColorsEnabled(false)
	return NewRenderer(config.UIConfig{RenderMarkdown: false, ShowStats: showStats}, 80)
}

// =============================================================================
// RENDERER
// =============================================================================

func TestRenderer_Message(t *testing.T) {
	r := plainRenderer(true)
	assert.False(t, r.Markdown())

	ttft, total := 120*time.Millisecond, 2*time.Second
	msg := model.NewAssistantMessage("planner", "Take the metro.")
	msg.Metrics = &model.Metrics{FirstTokenLatency: &ttft, TotalLatency: &total}

	out := r.Message(msg)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[0], "(planner)")
	assert.Equal(t, "Take the metro.", lines[1])
	assert.Contains(t, lines[2], "TTFT")

	user := model.NewUserMessage("route?", model.ImageRef{Name: "map.png"})
	assert.Contains(t, r.Message(user), "[image: map.png]")
}

func TestRenderer_StatsHidden(t *testing.T) {
	r := plainRenderer(false)
	total := time.Second
	msg := model.NewAssistantMessage("", "ok")
	msg.Metrics = &model.Metrics{TotalLatency: &total}
	assert.Equal(t, "", r.Stats(msg))
}

func TestRenderer_Interrupt(t *testing.T) {
	r := plainRenderer(false)

	tests := []struct {
		name    string
		payload protocol.InterruptPayload
		want    []string
	}{
		{
			name: "confirmation",
			payload: &protocol.Confirmation{
				Message:  "Book it?",
				ToolName: "book_hotel",
				Args:     map[string]any{"nights": 2, "city": "Shanghai"},
			},
			want: []string{"Book it?", "book_hotel", `city="Shanghai" nights=2`, "[y]es  [n]o"},
		},
		{
			name: "selection",
			payload: &protocol.Selection{
				Message:    "Which one?",
				Candidates: []protocol.Candidate{{ID: "1", Name: "Pudong", Description: "east"}, {ID: "2", Name: "Hongqiao"}},
			},
			want: []string{" 1) Pudong - east", " 2) Hongqiao", "c to cancel"},
		},
		{
			name:    "ask params",
			payload: &protocol.AskParams{Message: "Need more", MissingParams: []string{"from", "to"}},
			want:    []string{"  - from", "  - to", "name=value"},
		},
		{
			name: "save memory",
			payload: &protocol.SaveMemory{
				Message:  "Remember?",
				Memories: []protocol.Memory{{Type: protocol.MemoryProfile, Data: map[string]any{"home": "Shanghai"}, Confidence: protocol.ConfidenceHigh}},
			},
			want: []string{` 1) profile (high) home="Shanghai"`, "1,3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := r.Interrupt(tt.payload)
			assert.True(t, strings.HasPrefix(out, "Input needed: "))
			for _, w := range tt.want {
				assert.Contains(t, out, w)
			}
		})
	}
}

func TestConversationTable(t *testing.T) {
	ForceColorsEnabled(false)

	assert.Equal(t, "No conversations.", ConversationTable(nil, "", 80))

	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.Local)
	rows := ConversationRows([]model.Conversation{
		{ID: "a", Title: "Trip to Shanghai", UpdatedAt: now, MessageCount: 4},
		{ID: "b", UpdatedAt: now, MessageCount: 0, IsArchived: true},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, "server", rows[0].Source)
	assert.Equal(t, model.DefaultTitle, rows[1].Title)
	assert.True(t, rows[1].Archived)

	out := ConversationTable(rows, "a", 80)
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "*  1  Trip to Shanghai"))
	assert.Contains(t, lines[0], "4 msgs")
	assert.True(t, strings.HasPrefix(lines[1], "   2  "), "rows align under the current marker")
}

func TestCacheRows(t *testing.T) {
	rows := CacheRows([]storage.Entry{{ID: "x", MessageCount: 2}})
	require.Len(t, rows, 1)
	assert.Equal(t, model.DefaultTitle, rows[0].Title)
	assert.Equal(t, "cache", rows[0].Source)
}

// =============================================================================
// TURN OUTPUT
// =============================================================================

func TestTurnText(t *testing.T) {
	user := model.NewUserMessage("hi")
	first := model.NewAssistantMessage("", "Let me check.")
	before := snapshot([]*model.Message{user, first})

	// A resumed turn merged into the previous assistant message.
	merged := *first
	merged.Content = "Let me check.\n\nFound it."
	assert.Equal(t, "Found it.", turnText(before, []*model.Message{user, &merged}))

	// New messages are joined like consolidation joins them.
	second := model.NewAssistantMessage("a", "One")
	third := model.NewAssistantMessage("b", "Two")
	assert.Equal(t, "One\n\nTwo", turnText(before, []*model.Message{user, first, second, third}))

	// Unchanged history contributes nothing.
	assert.Equal(t, "", turnText(before, []*model.Message{user, first}))
}

func TestTurnPrinter_Live(t *testing.T) {
	r := plainRenderer(false)
	var buf bytes.Buffer

	user := model.NewUserMessage("hi")
	p := newTurnPrinter(&buf, r, []*model.Message{user})

	reply := model.NewAssistantMessage("", "Hel")
	p.update([]*model.Message{user, reply})
	grown := *reply
	grown.Content = "Hello"
	p.update([]*model.Message{user, &grown})
	p.finish([]*model.Message{user, &grown})

	assert.Equal(t, "Assistant\nHello\n", buf.String())
}

func TestTurnPrinter_LiveRewrite(t *testing.T) {
	r := plainRenderer(false)
	var buf bytes.Buffer

	p := newTurnPrinter(&buf, r, nil)
	draft := model.NewAssistantMessage("", "draft")
	p.update([]*model.Message{draft})

	final := *draft
	final.Content = "Final answer."
	p.update([]*model.Message{&final})
	p.finish([]*model.Message{&final})

	assert.Equal(t, "Assistant\ndraft\nFinal answer.\n", buf.String())
}

func TestTurnPrinter_NothingNew(t *testing.T) {
	r := plainRenderer(false)
	var buf bytes.Buffer

	log := []*model.Message{model.NewUserMessage("hi")}
	p := newTurnPrinter(&buf, r, log)
	p.finish(log)
	assert.Equal(t, "", buf.String())
}
