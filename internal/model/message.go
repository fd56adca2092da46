// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/navstream/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	case RoleSystem:
		return "System"
	default:
		return string(r)
	}
}

// =============================================================================
// METRICS
// =============================================================================

// Metrics holds the latency figures of the turn that produced a message.
// Latencies are nil until observed.
type Metrics struct {
	StartTime         time.Time      `json:"start_time" cbor:"1,keyasint"`
	FirstTokenLatency *time.Duration `json:"first_token_latency_ns,omitempty" cbor:"2,keyasint,omitempty"`
	TotalLatency      *time.Duration `json:"total_latency_ns,omitempty" cbor:"3,keyasint,omitempty"`
}

// Clone returns a deep copy of m.
func (m *Metrics) Clone() *Metrics {
	if m == nil {
		return nil
	}
	out := &Metrics{StartTime: m.StartTime}
	if m.FirstTokenLatency != nil {
		d := *m.FirstTokenLatency
		out.FirstTokenLatency = &d
	}
	if m.TotalLatency != nil {
		d := *m.TotalLatency
		out.TotalLatency = &d
	}
	return out
}

// String formats the metrics as "TTFT 234ms | 2.5s".
func (m *Metrics) String() string {
	if m == nil {
		return ""
	}
	var parts []string
	if m.FirstTokenLatency != nil {
		parts = append(parts, "TTFT "+formatDuration(*m.FirstTokenLatency))
	}
	if m.TotalLatency != nil {
		parts = append(parts, formatDuration(*m.TotalLatency))
	}
	return strings.Join(parts, " | ")
}

// =============================================================================
// IMAGE REFERENCES
// =============================================================================

// ImageRef is an image attached to a user message, encoded as a data URL.
type ImageRef struct {
	Name     string `json:"name" cbor:"1,keyasint"`
	MimeType string `json:"mime_type" cbor:"2,keyasint"`
	DataURL  string `json:"data_url" cbor:"3,keyasint"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single entry in a conversation log.
type Message struct {
	// Identity
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Timestamp time.Time `json:"timestamp"`

	// Content
	Content string `json:"content"`

	// Node is the reasoning node that produced an assistant message ("" for
	// the default node).
	Node string `json:"node,omitempty"`

	Images  []ImageRef `json:"images,omitempty"`
	Metrics *Metrics   `json:"metrics,omitempty"`
}

// NewMessage creates a new message with a generated ID.
func NewMessage(role Role, content string) *Message {
	return &Message{
		ID:        generateID(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string, images ...ImageRef) *Message {
	msg := NewMessage(RoleUser, content)
	if len(images) > 0 {
		msg.Images = append([]ImageRef(nil), images...)
	}
	return msg
}

// NewAssistantMessage creates a new assistant message for a node.
func NewAssistantMessage(node, content string) *Message {
	msg := NewMessage(RoleAssistant, content)
	msg.Node = node
	return msg
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) *Message {
	return NewMessage(RoleSystem, content)
}

// =============================================================================
// MESSAGE METHODS
// =============================================================================

// IsBlank reports whether the message has only whitespace content.
func (m *Message) IsBlank() bool {
	return strings.TrimSpace(m.Content) == ""
}

// Clone returns a deep copy of m.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	out := *m
	if m.Images != nil {
		out.Images = append([]ImageRef(nil), m.Images...)
	}
	out.Metrics = m.Metrics.Clone()
	return &out
}

// Preview returns a truncated preview of the message content.
func (m *Message) Preview(maxLen int) string {
	return util.TruncateRunes(strings.TrimSpace(m.Content), maxLen)
}

// FormatStats returns the formatted metrics of an assistant message.
func (m *Message) FormatStats() string {
	if m.Role != RoleAssistant {
		return ""
	}
	return m.Metrics.String()
}

// CloneLog deep-copies a message log.
func CloneLog(log []*Message) []*Message {
	out := make([]*Message, len(log))
	for i, m := range log {
		out[i] = m.Clone()
	}
	return out
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// generateID creates a unique message ID.
func generateID() string {
	return "msg_" + uuid.NewString()
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}
