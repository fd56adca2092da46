// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tracker.go - Turn latency bookkeeping.

package metrics

import (
	"time"

	"github.com/jeranaias/navstream/internal/model"
)

// Clock returns the current time.
type Clock func() time.Time

// =============================================================================
// TRACKER
// =============================================================================

// Tracker holds the timestamps of one turn. Start is called when the send
// is issued; resumes of the same turn keep the values already fixed.
type Tracker struct {
	clock Clock

	started    bool
	startTime  time.Time
	firstToken *time.Duration
	total      *time.Duration
}

// NewTracker creates a tracker using clock, or time.Now when nil.
func NewTracker(clock Clock) *Tracker {
	if clock == nil {
		clock = time.Now
	}
	return &Tracker{clock: clock}
}

// Start begins a new turn, discarding the previous turn's values.
func (t *Tracker) Start() {
	t.started = true
	t.startTime = t.clock()
	t.firstToken = nil
	t.total = nil
}

// Started reports whether a turn is being tracked.
func (t *Tracker) Started() bool {
	return t.started
}

// ObserveContent records visible output. Only the first call in a turn has
// an effect.
func (t *Tracker) ObserveContent() {
	if !t.started || t.firstToken != nil {
		return
	}
	d := t.clock().Sub(t.startTime)
	t.firstToken = &d
}

// Finish records the terminal frame. Only the first call in a turn has an
// effect.
func (t *Tracker) Finish() {
	if !t.started || t.total != nil {
		return
	}
	d := t.clock().Sub(t.startTime)
	t.total = &d
}

// Finished reports whether the total latency is fixed.
func (t *Tracker) Finished() bool {
	return t.total != nil
}

// FirstTokenLatency returns the time to first visible output, if observed.
func (t *Tracker) FirstTokenLatency() (time.Duration, bool) {
	if t.firstToken == nil {
		return 0, false
	}
	return *t.firstToken, true
}

// TotalLatency returns the total turn time, if finished.
func (t *Tracker) TotalLatency() (time.Duration, bool) {
	if t.total == nil {
		return 0, false
	}
	return *t.total, true
}

// Snapshot returns the current values as message metrics, or nil before
// Start.
func (t *Tracker) Snapshot() *model.Metrics {
	if !t.started {
		return nil
	}
	m := &model.Metrics{StartTime: t.startTime}
	if t.firstToken != nil {
		d := *t.firstToken
		m.FirstTokenLatency = &d
	}
	if t.total != nil {
		d := *t.total
		m.TotalLatency = &d
	}
	return m
}
