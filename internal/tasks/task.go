// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tasks

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/navstream/internal/model"
	"github.com/jeranaias/navstream/internal/util"
)

// =============================================================================
// TASK STATUS
// =============================================================================

// TaskStatus represents the current state of a queued send.
type TaskStatus string

const (
	// TaskStatusQueued indicates the send is waiting for the current turn
	TaskStatusQueued TaskStatus = "Queued"

	// TaskStatusRunning indicates the send's turn is streaming
	TaskStatusRunning TaskStatus = "Running"

	// TaskStatusComplete indicates the turn finished
	TaskStatusComplete TaskStatus = "Complete"

	// TaskStatusFailed indicates the send could not be started
	TaskStatusFailed TaskStatus = "Failed"

	// TaskStatusCanceled indicates the send was dropped before it ran
	TaskStatusCanceled TaskStatus = "Canceled"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further transitions are allowed.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusComplete || s == TaskStatusFailed || s == TaskStatusCanceled
}

// =============================================================================
// TASK STRUCTURE
// =============================================================================

// Task is a user send waiting for its turn.
type Task struct {
	// ID is a unique identifier for this task
	ID string

	// ConversationID is the conversation the send was issued in
	ConversationID string

	// Text and Images are the send's payload
	Text   string
	Images []model.ImageRef

	Status    TaskStatus
	QueuedAt  time.Time
	StartTime time.Time
	EndTime   time.Time

	// Error is the error message if the send failed
	Error string

	mu sync.RWMutex
}

// NewTask creates a queued send.
func NewTask(convID, text string, images []model.ImageRef) *Task {
	return &Task{
		ID:             uuid.New().String(),
		ConversationID: convID,
		Text:           text,
		Images:         append([]model.ImageRef(nil), images...),
		Status:         TaskStatusQueued,
		QueuedAt:       time.Now(),
	}
}

// =============================================================================
// TASK METHODS
// =============================================================================

// SetStatus updates the task status.
// Valid transitions: Queued -> Running -> Complete/Failed, Queued -> Canceled
func (t *Task) SetStatus(status TaskStatus) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !isValidTransition(t.Status, status) {
		return fmt.Errorf("invalid status transition from %s to %s", t.Status, status)
	}
	t.Status = status
	switch status {
	case TaskStatusRunning:
		t.StartTime = time.Now()
	case TaskStatusComplete, TaskStatusFailed, TaskStatusCanceled:
		t.EndTime = time.Now()
	}
	return nil
}

func isValidTransition(from, to TaskStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case TaskStatusQueued:
		return to == TaskStatusRunning || to == TaskStatusCanceled
	case TaskStatusRunning:
		return to == TaskStatusComplete || to == TaskStatusFailed
	default:
		return false
	}
}

// GetStatus returns the current task status.
func (t *Task) GetStatus() TaskStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Status
}

// fail records err and marks the task failed.
func (t *Task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Error = err.Error()
	t.Status = TaskStatusFailed
	t.EndTime = time.Now()
}

// GetError returns the error message.
func (t *Task) GetError() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.Error
}

// Wait returns how long the task sat in the queue.
func (t *Task) Wait() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.StartTime.IsZero() {
		return time.Since(t.QueuedAt)
	}
	return t.StartTime.Sub(t.QueuedAt)
}

// Duration returns how long the task has been running or took to complete.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.StartTime.IsZero() {
		return 0
	}
	if t.EndTime.IsZero() {
		return time.Since(t.StartTime)
	}
	return t.EndTime.Sub(t.StartTime)
}

// IsComplete returns true if the task has finished.
func (t *Task) IsComplete() bool {
	return t.GetStatus().IsTerminal()
}

// Summary returns a one-line summary of the task.
func (t *Task) Summary() string {
	return fmt.Sprintf("[%s] %s - %s", t.ID[:8], util.TruncateRunes(t.Text, 40), t.GetStatus())
}

// Clone creates a copy of the task for reading.
func (t *Task) Clone() *Task {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return &Task{
		ID:             t.ID,
		ConversationID: t.ConversationID,
		Text:           t.Text,
		Images:         append([]model.ImageRef(nil), t.Images...),
		Status:         t.Status,
		QueuedAt:       t.QueuedAt,
		StartTime:      t.StartTime,
		EndTime:        t.EndTime,
		Error:          t.Error,
	}
}
