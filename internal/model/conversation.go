// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/jeranaias/navstream/internal/util"
)

// DefaultTitle is shown for conversations the backend has not titled yet.
const DefaultTitle = "New conversation"

// =============================================================================
// CONVERSATION TYPE
// =============================================================================

// Conversation is a row of the remote conversation store.
type Conversation struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id,omitempty"`
	Title        string    `json:"title"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	IsArchived   bool      `json:"is_archived"`
	Preview      string    `json:"preview,omitempty"`
}

// DisplayTitle returns the title, falling back to the preview and then
// DefaultTitle.
func (c *Conversation) DisplayTitle() string {
	if t := strings.TrimSpace(c.Title); t != "" {
		return t
	}
	if p := strings.TrimSpace(c.Preview); p != "" {
		return util.TruncateRunes(p, 40)
	}
	return DefaultTitle
}

// TitleFromLog derives a title from the first user message of a log.
func TitleFromLog(log []*Message) string {
	for _, m := range log {
		if m.Role == RoleUser && !m.IsBlank() {
			line := strings.SplitN(strings.TrimSpace(m.Content), "\n", 2)[0]
			return util.TruncateRunes(line, 50)
		}
	}
	return DefaultTitle
}
