// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// queue.go - FIFO queue of sends waiting for the current turn.

package tasks

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Add when the queue holds maxQueueSize sends.
var ErrQueueFull = errors.New("send queue is full")

// =============================================================================
// TASK QUEUE
// =============================================================================

// Queue is a FIFO of sends with thread-safe operations.
type Queue struct {
	// tasks holds queued, running and recently finished tasks in arrival order
	tasks []*Task

	// maxHistory is the maximum number of finished tasks to keep
	maxHistory int

	// maxQueueSize is the maximum number of queued tasks allowed (0 = unlimited)
	maxQueueSize int

	mu sync.RWMutex

	// notifyChan sends notifications when tasks finish
	notifyChan chan TaskNotification

	logger *zap.Logger
}

// TaskNotification represents a notification about a task state change.
type TaskNotification struct {
	TaskID   string
	Text     string
	Status   TaskStatus
	Error    string
	Duration time.Duration
}

// =============================================================================
// QUEUE CREATION
// =============================================================================

// NewQueue creates a send queue.
// maxHistory: maximum number of finished tasks to keep (0 = unlimited)
// maxQueueSize: maximum number of queued tasks allowed (0 = unlimited)
func NewQueue(maxHistory, maxQueueSize int) *Queue {
	return &Queue{
		tasks:        make([]*Task, 0),
		maxHistory:   maxHistory,
		maxQueueSize: maxQueueSize,
		notifyChan:   make(chan TaskNotification, 100),
		logger:       zap.NewNop(),
	}
}

// SetLogger sets the logger used for dropped notifications.
func (q *Queue) SetLogger(logger *zap.Logger) {
	if logger == nil {
		return
	}
	q.mu.Lock()
	q.logger = logger
	q.mu.Unlock()
}

// =============================================================================
// TASK MANAGEMENT
// =============================================================================

// Add appends a task to the queue.
func (q *Queue) Add(task *Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.maxQueueSize > 0 {
		if n := q.queuedLocked(); n >= q.maxQueueSize {
			return fmt.Errorf("%w: %d queued (max: %d)", ErrQueueFull, n, q.maxQueueSize)
		}
	}
	if err := task.SetStatus(TaskStatusQueued); err != nil {
		return err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

// Next marks the oldest queued task running and returns it, or nil when
// nothing is queued.
func (q *Queue) Next() *Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, task := range q.tasks {
		if task.GetStatus() == TaskStatusQueued {
			_ = task.SetStatus(TaskStatusRunning)
			return task
		}
	}
	return nil
}

// Complete finishes a running task; a non-nil err marks it failed.
func (q *Queue) Complete(task *Task, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := TaskNotification{TaskID: task.ID, Text: task.Text}
	if err != nil {
		task.fail(err)
		n.Status = TaskStatusFailed
		n.Error = err.Error()
	} else {
		_ = task.SetStatus(TaskStatusComplete)
		n.Status = TaskStatusComplete
	}
	n.Duration = task.Duration()

	q.notify(n)
	q.cleanupLocked()
}

// Cancel drops a queued task by ID.
// Returns true if the task was still queued.
func (q *Queue) Cancel(id string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, task := range q.tasks {
		if task.ID == id && task.GetStatus() == TaskStatusQueued {
			_ = task.SetStatus(TaskStatusCanceled)
			q.notify(TaskNotification{TaskID: task.ID, Text: task.Text, Status: TaskStatusCanceled})
			q.cleanupLocked()
			return true
		}
	}
	return false
}

// CancelAll drops every queued task and returns how many were dropped.
func (q *Queue) CancelAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := 0
	for _, task := range q.tasks {
		if task.GetStatus() == TaskStatusQueued {
			_ = task.SetStatus(TaskStatusCanceled)
			n++
		}
	}
	q.cleanupLocked()
	return n
}

// =============================================================================
// QUEUE QUERIES
// =============================================================================

// Get retrieves a copy of a task by ID, or nil.
func (q *Queue) Get(id string) *Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, task := range q.tasks {
		if task.ID == id {
			return task.Clone()
		}
	}
	return nil
}

// Queued returns copies of the waiting tasks in order.
func (q *Queue) Queued() []*Task {
	q.mu.RLock()
	defer q.mu.RUnlock()

	result := make([]*Task, 0)
	for _, task := range q.tasks {
		if task.GetStatus() == TaskStatusQueued {
			result = append(result, task.Clone())
		}
	}
	return result
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.queuedLocked()
}

func (q *Queue) queuedLocked() int {
	n := 0
	for _, task := range q.tasks {
		if task.GetStatus() == TaskStatusQueued {
			n++
		}
	}
	return n
}

// Count returns the total number of tasks, finished ones included.
func (q *Queue) Count() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

// =============================================================================
// NOTIFICATIONS
// =============================================================================

// Notifications returns the channel of finished-task notifications.
func (q *Queue) Notifications() <-chan TaskNotification {
	return q.notifyChan
}

// notify sends a notification (must be called with lock held).
func (q *Queue) notify(n TaskNotification) {
	select {
	case q.notifyChan <- n:
	default:
		q.logger.Warn("notification channel full, dropping notification",
			zap.String("task_id", n.TaskID),
			zap.String("status", n.Status.String()))
	}
}

// =============================================================================
// CLEANUP
// =============================================================================

// cleanupLocked removes the oldest finished tasks beyond maxHistory.
// Must be called with lock held.
func (q *Queue) cleanupLocked() {
	if q.maxHistory <= 0 {
		return
	}

	finished := 0
	for _, task := range q.tasks {
		if task.IsComplete() {
			finished++
		}
	}
	if finished <= q.maxHistory {
		return
	}

	toRemove := finished - q.maxHistory
	kept := make([]*Task, 0, len(q.tasks)-toRemove)
	for _, task := range q.tasks {
		if task.IsComplete() && toRemove > 0 {
			toRemove--
			continue
		}
		kept = append(kept, task)
	}
	q.tasks = kept
}

// Summary returns a formatted summary of the queue.
func (q *Queue) Summary() string {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var running, queued, completed, failed int
	for _, task := range q.tasks {
		switch task.GetStatus() {
		case TaskStatusRunning:
			running++
		case TaskStatusQueued:
			queued++
		case TaskStatusComplete:
			completed++
		case TaskStatusFailed:
			failed++
		}
	}
	return fmt.Sprintf("Running: %d | Queued: %d | Completed: %d | Failed: %d",
		running, queued, completed, failed)
}
