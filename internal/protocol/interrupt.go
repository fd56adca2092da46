// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrInvalidPayload indicates an interrupt payload that does not match
	// the schema for its kind.
	ErrInvalidPayload = errors.New("invalid interrupt payload")

	// ErrUnknownInterrupt indicates an interrupt whose type is not recognized.
	ErrUnknownInterrupt = errors.New("unknown interrupt type")
)

// PayloadError describes a schema violation in an interrupt payload.
type PayloadError struct {
	Kind    InterruptKind
	Details []string
}

func (e *PayloadError) Error() string {
	if len(e.Details) == 0 {
		return fmt.Sprintf("invalid %s payload", e.Kind)
	}
	return fmt.Sprintf("invalid %s payload: %s", e.Kind, strings.Join(e.Details, "; "))
}

// Is reports ErrInvalidPayload for any PayloadError.
func (e *PayloadError) Is(target error) bool {
	return target == ErrInvalidPayload
}

// =============================================================================
// INTERRUPT KINDS
// =============================================================================

// InterruptKind is the discriminator of an InterruptPayload.
type InterruptKind string

const (
	KindConfirmation InterruptKind = "confirmation"
	KindSelection    InterruptKind = "selection"
	KindAskParams    InterruptKind = "ask_params"
	KindSaveMemory   InterruptKind = "save_memory"
)

// InterruptPayload is the structured decision request carried by an
// interrupt frame. The concrete type is one of *Confirmation, *Selection,
// *AskParams or *SaveMemory.
type InterruptPayload interface {
	Kind() InterruptKind
	Prompt() string
	isInterrupt()
}

// Confirmation asks the user to accept or reject a pending action.
type Confirmation struct {
	Message  string         `json:"message"`
	Reason   string         `json:"reason,omitempty"`
	ToolName string         `json:"tool_name,omitempty"`
	Args     map[string]any `json:"args,omitempty"`
	Options  []string       `json:"options,omitempty"`
}

// CandidateID is a selection candidate identifier. The backend sends either
// strings or integers; both decode to the same textual form.
type CandidateID string

// UnmarshalJSON accepts a JSON string or number.
func (id *CandidateID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*id = CandidateID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("candidate id must be a string or number: %w", err)
	}
	*id = CandidateID(n.String())
	return nil
}

// Candidate is one option of a Selection.
type Candidate struct {
	ID          CandidateID    `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Raw         map[string]any `json:"raw,omitempty"`
}

// Selection asks the user to pick one of several candidates.
type Selection struct {
	Message    string      `json:"message"`
	ToolName   string      `json:"tool_name,omitempty"`
	Candidates []Candidate `json:"candidates"`
}

// Find returns the candidate with the given id.
func (s *Selection) Find(id string) (Candidate, bool) {
	for _, c := range s.Candidates {
		if string(c.ID) == id {
			return c, true
		}
	}
	// Allow 1-based positional answers from line-oriented UIs.
	if n, err := strconv.Atoi(id); err == nil && n >= 1 && n <= len(s.Candidates) {
		return s.Candidates[n-1], true
	}
	return Candidate{}, false
}

// AskParams asks the user for parameters the backend could not infer.
type AskParams struct {
	Message       string         `json:"message"`
	ToolName      string         `json:"tool_name,omitempty"`
	MissingParams []string       `json:"missing_params"`
	CurrentArgs   map[string]any `json:"current_args,omitempty"`
}

// MemoryType is the category of a detected memory.
type MemoryType string

const (
	MemoryProfile      MemoryType = "profile"
	MemoryRelationship MemoryType = "relationship"
)

// Confidence is the backend's certainty about a detected memory.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Memory is one fact the backend proposes to remember.
type Memory struct {
	Type       MemoryType     `json:"type"`
	Data       map[string]any `json:"data"`
	Confidence Confidence     `json:"confidence"`
}

// SaveMemory asks the user which detected memories may be stored.
type SaveMemory struct {
	Message  string   `json:"message"`
	Memories []Memory `json:"memories"`
}

func (*Confirmation) Kind() InterruptKind { return KindConfirmation }
func (*Selection) Kind() InterruptKind    { return KindSelection }
func (*AskParams) Kind() InterruptKind    { return KindAskParams }
func (*SaveMemory) Kind() InterruptKind   { return KindSaveMemory }

func (p *Confirmation) Prompt() string { return p.Message }
func (p *Selection) Prompt() string    { return p.Message }
func (p *AskParams) Prompt() string    { return p.Message }
func (p *SaveMemory) Prompt() string   { return p.Message }

func (*Confirmation) isInterrupt() {}
func (*Selection) isInterrupt()    {}
func (*AskParams) isInterrupt()    {}
func (*SaveMemory) isInterrupt()   {}

// =============================================================================
// DECODING
// =============================================================================

// DecodeInterrupt validates raw against the schema of its declared kind and
// decodes it into the matching concrete payload.
func DecodeInterrupt(raw json.RawMessage) (InterruptPayload, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidPayload)
	}

	var head struct {
		Type InterruptKind `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	var payload InterruptPayload
	switch head.Type {
	case KindConfirmation:
		payload = &Confirmation{}
	case KindSelection:
		payload = &Selection{}
	case KindAskParams:
		payload = &AskParams{}
	case KindSaveMemory:
		payload = &SaveMemory{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownInterrupt, head.Type)
	}

	if err := validatePayload(head.Type, raw); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return payload, nil
}

// EncodeInterrupt is the inverse of DecodeInterrupt.
func EncodeInterrupt(p InterruptPayload) (json.RawMessage, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode interrupt: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("failed to encode interrupt: %w", err)
	}
	fields["type"] = string(p.Kind())
	return json.Marshal(fields)
}

func validatePayload(kind InterruptKind, raw json.RawMessage) error {
	schema, ok := interruptSchemas[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownInterrupt, kind)
	}

	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return &PayloadError{Kind: kind, Details: details}
	}
	return nil
}
