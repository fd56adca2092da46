// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrResumeMismatch indicates a resume value that does not answer the
// pending interrupt's kind.
var ErrResumeMismatch = errors.New("resume value does not match interrupt")

// ResumeValue is the user's decision for a pending interrupt. A zero Kind
// marks a value that answers any interrupt (the generic reject).
type ResumeValue struct {
	Kind  InterruptKind
	value any

	// choice is the candidate picked by a selection answer.
	choice CandidateID
}

// MarshalJSON encodes the wire form expected by the backend.
func (v ResumeValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.value)
}

// Value returns the raw value sent to the backend.
func (v ResumeValue) Value() any {
	return v.value
}

// Answers reports whether v is an acceptable reply to p.
func (v ResumeValue) Answers(p InterruptPayload) error {
	if p == nil {
		return fmt.Errorf("%w: no interrupt", ErrResumeMismatch)
	}
	if v.Kind != "" && v.Kind != p.Kind() {
		return fmt.Errorf("%w: %s answer for %s interrupt", ErrResumeMismatch, v.Kind, p.Kind())
	}
	if sel, ok := p.(*Selection); ok && v.Kind == KindSelection {
		for _, c := range sel.Candidates {
			if c.ID == v.choice {
				return nil
			}
		}
		return fmt.Errorf("%w: candidate %q not offered", ErrResumeMismatch, v.choice)
	}
	return nil
}

// Confirm accepts a confirmation interrupt.
func Confirm() ResumeValue {
	return ResumeValue{Kind: KindConfirmation, value: "confirm"}
}

// Reject declines any interrupt.
func Reject() ResumeValue {
	return ResumeValue{value: "cancel"}
}

// Choose answers a selection with the given candidate.
func Choose(c Candidate) ResumeValue {
	return ResumeValue{
		Kind: KindSelection,
		value: map[string]any{
			"choice":   c.ID,
			"selected": c,
		},
		choice: c.ID,
	}
}

// ProvideParams answers an ask_params interrupt.
func ProvideParams(params map[string]string) ResumeValue {
	if params == nil {
		params = map[string]string{}
	}
	return ResumeValue{
		Kind:  KindAskParams,
		value: map[string]any{"params": params},
	}
}

// ConfirmMemories answers a save_memory interrupt with the confirmed subset.
// An empty subset stores nothing.
func ConfirmMemories(memories []Memory) ResumeValue {
	if memories == nil {
		memories = []Memory{}
	}
	return ResumeValue{
		Kind:  KindSaveMemory,
		value: map[string]any{"memories": memories},
	}
}
