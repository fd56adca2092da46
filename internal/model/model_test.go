// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"testing"
	"time"
)

// =============================================================================
// MESSAGE TESTS
// =============================================================================

func TestMessage_IsBlank(t *testing.T) {
	tests := []struct {
		content string
		want    bool
	}{
		{"", true},
		{"   \n\t", true},
		{"x", false},
		{"  hi  ", false},
	}

	for _, tc := range tests {
		m := NewAssistantMessage("", tc.content)
		if got := m.IsBlank(); got != tc.want {
			t.Errorf("IsBlank(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}

func TestMessage_CloneIsDeep(t *testing.T) {
	ttft := 120 * time.Millisecond
	orig := NewUserMessage("look", ImageRef{Name: "a.png", MimeType: "image/png", DataURL: "data:image/png;base64,AA=="})
	orig.Metrics = &Metrics{StartTime: time.Now(), FirstTokenLatency: &ttft}

	cp := orig.Clone()
	cp.Images[0].Name = "b.png"
	*cp.Metrics.FirstTokenLatency = time.Second

	if orig.Images[0].Name != "a.png" {
		t.Errorf("clone shares images slice")
	}
	if *orig.Metrics.FirstTokenLatency != ttft {
		t.Errorf("clone shares metrics")
	}
}

func TestMessage_IDsUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewSystemMessage("x").ID
		if !strings.HasPrefix(id, "msg_") {
			t.Fatalf("unexpected id format %q", id)
		}
		if seen[id] {
			t.Fatalf("duplicate id %q", id)
		}
		seen[id] = true
	}
}

func TestMessage_FormatStats(t *testing.T) {
	ttft := 234 * time.Millisecond
	total := 2500 * time.Millisecond
	m := NewAssistantMessage("planner", "done")
	m.Metrics = &Metrics{FirstTokenLatency: &ttft, TotalLatency: &total}

	if got, want := m.FormatStats(), "TTFT 234ms | 2.5s"; got != want {
		t.Errorf("FormatStats() = %q, want %q", got, want)
	}

	user := NewUserMessage("hi")
	user.Metrics = m.Metrics
	if got := user.FormatStats(); got != "" {
		t.Errorf("user FormatStats() = %q, want empty", got)
	}
}

// =============================================================================
// CONVERSATION TESTS
// =============================================================================

func TestConversation_DisplayTitle(t *testing.T) {
	tests := []struct {
		name string
		conv Conversation
		want string
	}{
		{"title wins", Conversation{Title: "Trip", Preview: "p"}, "Trip"},
		{"preview fallback", Conversation{Preview: "weather in Pudong"}, "weather in Pudong"},
		{"default", Conversation{}, DefaultTitle},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.conv.DisplayTitle(); got != tc.want {
				t.Errorf("DisplayTitle() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestTitleFromLog(t *testing.T) {
	log := []*Message{
		NewSystemMessage("sys"),
		NewUserMessage("  \n"),
		NewUserMessage("Navigate home\nplease"),
	}
	if got := TitleFromLog(log); got != "Navigate home" {
		t.Errorf("TitleFromLog() = %q", got)
	}
	if got := TitleFromLog(nil); got != DefaultTitle {
		t.Errorf("TitleFromLog(nil) = %q", got)
	}
}
