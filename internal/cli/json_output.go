// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// json_output.go - Machine-readable output for --json.

package cli

import (
	"encoding/json"
	"io"
	"time"

	"github.com/jeranaias/navstream/internal/model"
)

// JSONResponse is the envelope for every --json command output.
type JSONResponse struct {
	Success   bool    `json:"success"`
	Data      any     `json:"data"`
	Error     *string `json:"error"`
	Timestamp string  `json:"timestamp"`
	Command   string  `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response to w with indentation.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// =============================================================================
// COMMAND DATA
// =============================================================================

// VersionData is returned by the version command.
type VersionData struct {
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version,omitempty"`
}

// ConversationData is one row of the list command.
type ConversationData struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	Archived     bool      `json:"archived"`
	Source       string    `json:"source"`
}

// AskData is returned by the ask command.
type AskData struct {
	ConversationID string           `json:"conversation_id"`
	Response       string           `json:"response"`
	Messages       []*model.Message `json:"messages"`
	Interrupted    bool             `json:"interrupted,omitempty"`
	FirstTokenMs   int64            `json:"first_token_ms,omitempty"`
	TotalMs        int64            `json:"total_ms,omitempty"`
}
