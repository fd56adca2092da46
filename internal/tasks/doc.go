// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tasks queues user sends issued while a turn is still streaming.
//
// A session with queueing enabled adds each early send to a Queue instead of
// rejecting it, then drains the queue in order after the current turn ends.
//
// # Key Types
//
//   - Task: one queued send with its status and timing
//   - Queue: FIFO of tasks with a size bound and completion notifications
//
// # Usage
//
//	queue := tasks.NewQueue(20, 5)
//	if err := queue.Add(tasks.NewTask(convID, "next question", nil)); err != nil {
//	    return err // ErrQueueFull
//	}
//
//	for task := queue.Next(); task != nil; task = queue.Next() {
//	    err := send(task)
//	    queue.Complete(task, err)
//	}
package tasks
