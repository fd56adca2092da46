// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// answer.go - Parsing typed replies to interrupts.

package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jeranaias/navstream/internal/protocol"
)

// ErrCancelAnswer is returned for replies that dismiss the interrupt.
var ErrCancelAnswer = errors.New("interrupt dismissed")

// ParseAnswer converts a typed reply into the resume value for p.
// "c", "cancel" and "/cancel" return ErrCancelAnswer for every kind.
func ParseAnswer(p protocol.InterruptPayload, input string) (protocol.ResumeValue, error) {
	input = strings.TrimSpace(input)
	switch strings.ToLower(input) {
	case "c", "cancel", "/cancel":
		return protocol.ResumeValue{}, ErrCancelAnswer
	}

	switch p := p.(type) {
	case *protocol.Confirmation:
		ok, err := ParseBoolString(input)
		if err != nil {
			return protocol.ResumeValue{}, &UsageError{Reason: "answer yes or no"}
		}
		if ok {
			return protocol.Confirm(), nil
		}
		return protocol.Reject(), nil

	case *protocol.Selection:
		c, ok := p.Find(input)
		if !ok {
			return protocol.ResumeValue{}, &UsageError{
				Reason:  fmt.Sprintf("no option %q", input),
				Example: fmt.Sprintf("a number from 1 to %d", len(p.Candidates)),
			}
		}
		return protocol.Choose(c), nil

	case *protocol.AskParams:
		params, err := parseParams(p.MissingParams, input)
		if err != nil {
			return protocol.ResumeValue{}, err
		}
		return protocol.ProvideParams(params), nil

	case *protocol.SaveMemory:
		chosen, err := parseMemorySelection(p.Memories, input)
		if err != nil {
			return protocol.ResumeValue{}, err
		}
		return protocol.ConfirmMemories(chosen), nil

	default:
		return protocol.ResumeValue{}, fmt.Errorf("unsupported interrupt %T", p)
	}
}

// parseParams accepts "name=value" pairs, or a bare value when exactly one
// parameter is missing. A value runs until the next "name=" of a missing
// parameter, so values may contain spaces.
func parseParams(missing []string, input string) (map[string]string, error) {
	if input == "" {
		return nil, &UsageError{Reason: "no value given"}
	}
	if len(missing) == 1 && !strings.Contains(input, "=") {
		return map[string]string{missing[0]: input}, nil
	}

	wanted := make(map[string]bool, len(missing))
	for _, name := range missing {
		wanted[name] = true
	}

	params := make(map[string]string)
	var current string
	var value []string
	flush := func() {
		if current != "" {
			params[current] = strings.Join(value, " ")
		}
	}
	for _, field := range strings.Fields(input) {
		name, rest, ok := strings.Cut(field, "=")
		if ok && name != "" && (wanted[name] || current == "") {
			flush()
			current, value = name, nil
			if rest != "" {
				value = append(value, rest)
			}
			continue
		}
		if current == "" {
			return nil, &UsageError{Reason: fmt.Sprintf("expected name=value, got %q", field), Example: "city=Shanghai"}
		}
		value = append(value, field)
	}
	flush()
	for _, name := range missing {
		if _, ok := params[name]; !ok {
			return nil, &UsageError{Reason: "missing value for " + name}
		}
	}
	return params, nil
}

// parseMemorySelection accepts "all", "none" or 1-based indexes separated
// by commas or spaces.
func parseMemorySelection(memories []protocol.Memory, input string) ([]protocol.Memory, error) {
	switch strings.ToLower(input) {
	case "all", "a", "y", "yes":
		return append([]protocol.Memory(nil), memories...), nil
	case "", "none", "n", "no":
		return []protocol.Memory{}, nil
	}

	seen := make(map[int]bool)
	var chosen []protocol.Memory
	for _, field := range strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == ' ' }) {
		n, err := strconv.Atoi(field)
		if err != nil || n < 1 || n > len(memories) {
			return nil, &UsageError{
				Reason:  fmt.Sprintf("no memory %q", field),
				Example: fmt.Sprintf("numbers from 1 to %d, all or none", len(memories)),
			}
		}
		if !seen[n] {
			seen[n] = true
			chosen = append(chosen, memories[n-1])
		}
	}
	return chosen, nil
}
