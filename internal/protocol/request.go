// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

// SendRequest starts a new turn.
type SendRequest struct {
	Message        string   `json:"message"`
	ConversationID string   `json:"conversationId"`
	Images         []string `json:"images,omitempty"`
}

// ResumeRequest continues a turn paused by an interrupt.
type ResumeRequest struct {
	ConversationID string      `json:"conversationId"`
	ResumeValue    ResumeValue `json:"resumeValue"`
}
