// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package convstore

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/jeranaias/navstream/internal/model"
)

// timeLayouts are tried in order; the backend emits naive timestamps.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// Timestamp accepts RFC 3339 times and zone-less ISO times (read as local).
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		t.Time = time.Time{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timeLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.Local)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

type conversationRow struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	CreatedAt    Timestamp `json:"created_at"`
	UpdatedAt    Timestamp `json:"updated_at"`
	MessageCount int       `json:"message_count"`
	IsArchived   bool      `json:"is_archived"`
	Preview      *string   `json:"preview"`
}

func (r *conversationRow) toModel() *model.Conversation {
	c := &model.Conversation{
		ID:           r.ID,
		UserID:       r.UserID,
		Title:        r.Title,
		CreatedAt:    r.CreatedAt.Time,
		UpdatedAt:    r.UpdatedAt.Time,
		MessageCount: r.MessageCount,
		IsArchived:   r.IsArchived,
	}
	if r.Preview != nil {
		c.Preview = *r.Preview
	}
	return c
}

type messageRow struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp Timestamp `json:"timestamp"`
}

func (r *messageRow) toModel() *model.Message {
	m := model.NewMessage(model.Role(r.Role), r.Content)
	if !r.Timestamp.IsZero() {
		m.Timestamp = r.Timestamp.Time
	}
	return m
}
