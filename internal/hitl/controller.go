// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// controller.go - Pending interrupt state.

package hitl

import (
	"errors"
	"fmt"
	"sync"

	"github.com/jeranaias/navstream/internal/protocol"
)

// DefaultMaxDepth bounds nested interrupts per turn.
const DefaultMaxDepth = 8

var (
	// ErrNoPendingInterrupt is returned by resume or cancel while idle.
	ErrNoPendingInterrupt = errors.New("no pending interrupt")

	// ErrAlreadyWaiting is returned when an interrupt arrives while another
	// is still pending.
	ErrAlreadyWaiting = errors.New("interrupt already pending")

	// ErrMaxDepth is returned when a turn nests more interrupts than allowed.
	ErrMaxDepth = errors.New("maximum interrupt depth exceeded")
)

// State is a snapshot of the controller.
type State struct {
	Waiting bool
	Payload protocol.InterruptPayload
	Depth   int
}

// Controller holds the pending interrupt, if any. It is safe for concurrent
// use.
type Controller struct {
	mu       sync.Mutex
	pending  protocol.InterruptPayload
	depth    int
	maxDepth int
}

// NewController creates an idle controller. maxDepth <= 0 selects
// DefaultMaxDepth.
func NewController(maxDepth int) *Controller {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Controller{maxDepth: maxDepth}
}

// Enter records an interrupt and starts waiting.
func (c *Controller) Enter(p protocol.InterruptPayload) error {
	if p == nil {
		return fmt.Errorf("%w: nil payload", protocol.ErrInvalidPayload)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending != nil {
		return ErrAlreadyWaiting
	}
	if c.depth >= c.maxDepth {
		return fmt.Errorf("%w (%d)", ErrMaxDepth, c.maxDepth)
	}
	c.depth++
	c.pending = p
	return nil
}

// Take validates v against the pending interrupt and, if it answers it,
// clears the waiting state and returns the answered payload.
func (c *Controller) Take(v protocol.ResumeValue) (protocol.InterruptPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return nil, ErrNoPendingInterrupt
	}
	if err := v.Answers(c.pending); err != nil {
		return nil, err
	}
	p := c.pending
	c.pending = nil
	return p, nil
}

// Cancel clears the pending interrupt without answering it.
func (c *Controller) Cancel() (protocol.InterruptPayload, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return nil, ErrNoPendingInterrupt
	}
	p := c.pending
	c.pending = nil
	return p, nil
}

// Reset clears any pending interrupt and the nesting depth. Called at the
// start of every user turn.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = nil
	c.depth = 0
}

// Waiting reports whether an interrupt is pending.
func (c *Controller) Waiting() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending != nil
}

// Pending returns the pending interrupt.
func (c *Controller) Pending() (protocol.InterruptPayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending, c.pending != nil
}

// State returns a snapshot of the controller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Waiting: c.pending != nil,
		Payload: c.pending,
		Depth:   c.depth,
	}
}

// MaxDepth returns the configured nesting bound.
func (c *Controller) MaxDepth() int {
	return c.maxDepth
}
