// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"strings"
)

// =============================================================================
// NODE KEYS
// =============================================================================

// NodeKey identifies the logical reasoning stage that produced a frame.
// The backend may introduce new node names at any time, so keys are
// compared as opaque strings.
type NodeKey string

// DefaultNode is used for frames that carry no node.
const DefaultNode NodeKey = "__default__"

// NodeOf normalizes a raw node name, mapping empty names to DefaultNode.
func NodeOf(name string) NodeKey {
	name = strings.TrimSpace(name)
	if name == "" {
		return DefaultNode
	}
	return NodeKey(name)
}

// IsDefault reports whether k is the reserved default key.
func (k NodeKey) IsDefault() bool {
	return k == DefaultNode
}

// String returns the node name, or "" for the default node.
func (k NodeKey) String() string {
	if k == DefaultNode {
		return ""
	}
	return string(k)
}

// =============================================================================
// FRAME TYPES
// =============================================================================

// FrameType is the "type" discriminator of a stream frame.
type FrameType string

const (
	FrameStart        FrameType = "start"
	FrameNodeStart    FrameType = "node_start"
	FrameNodeEnd      FrameType = "node_end"
	FrameToken        FrameType = "token"
	FrameMessage      FrameType = "message"
	FrameToolStart    FrameType = "tool_start"
	FrameToolEnd      FrameType = "tool_end"
	FrameInterrupt    FrameType = "interrupt"
	FrameWaitingInput FrameType = "waiting_input"
	FrameDone         FrameType = "done"
	FrameError        FrameType = "error"
	FrameResumeStart  FrameType = "resume_start"
)

var knownFrameTypes = map[FrameType]bool{
	FrameStart:        true,
	FrameNodeStart:    true,
	FrameNodeEnd:      true,
	FrameToken:        true,
	FrameMessage:      true,
	FrameToolStart:    true,
	FrameToolEnd:      true,
	FrameInterrupt:    true,
	FrameWaitingInput: true,
	FrameDone:         true,
	FrameError:        true,
	FrameResumeStart:  true,
}

// Known reports whether t is part of the protocol. Unknown types are
// ignored by consumers rather than treated as errors.
func (t FrameType) Known() bool {
	return knownFrameTypes[t]
}

// Terminal reports whether t ends a turn.
func (t FrameType) Terminal() bool {
	return t == FrameDone
}

// =============================================================================
// FRAME
// =============================================================================

// Frame is one decoded event record from the stream.
type Frame struct {
	Type    FrameType       `json:"type"`
	Node    string          `json:"node,omitempty"`
	Content string          `json:"content,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NodeKey returns the frame's node, or DefaultNode when absent.
func (f Frame) NodeKey() NodeKey {
	return NodeOf(f.Node)
}

// HasNode reports whether the frame explicitly names a node.
func (f Frame) HasNode() bool {
	return strings.TrimSpace(f.Node) != ""
}

// ParseFrame decodes a single JSON frame body.
func ParseFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}
