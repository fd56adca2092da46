// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// filter.go - Hides detected-memory blocks from streamed text.
//
// Sentinels may be split across any number of fragments, so a fragment's
// tail that could begin a sentinel is held back until it is resolved.

package marker

import "strings"

const (
	// StartSentinel opens the hidden block.
	StartSentinel = "__DETECTED_MEMORIES__"

	// EndSentinel closes the hidden block.
	EndSentinel = "__END_DETECTED_MEMORIES__"
)

// =============================================================================
// FILTER
// =============================================================================

// Filter is a per-turn scanner that removes sentinel blocks from a sequence
// of text fragments. It is not safe for concurrent use.
type Filter struct {
	filtering bool

	// pending holds a fragment tail that may be the start of the sentinel
	// being searched for.
	pending string

	body   strings.Builder
	blocks []string
}

// NewFilter returns a filter in the pass-through state.
func NewFilter() *Filter {
	return &Filter{}
}

// Filtering reports whether the filter is inside a block.
func (f *Filter) Filtering() bool {
	return f.filtering
}

// Apply consumes one fragment and returns its user-visible part. Text that
// could still turn out to be a sentinel is held back until the next call
// or Drain.
func (f *Filter) Apply(fragment string) string {
	buf := f.pending + fragment
	f.pending = ""

	var out strings.Builder
	for buf != "" {
		if !f.filtering {
			if i := strings.Index(buf, StartSentinel); i >= 0 {
				out.WriteString(strings.TrimRight(buf[:i], " \t\r\n"))
				buf = buf[i+len(StartSentinel):]
				f.filtering = true
				f.body.Reset()
				continue
			}
			k := partialSuffix(buf, StartSentinel)
			out.WriteString(buf[:len(buf)-k])
			f.pending = buf[len(buf)-k:]
			break
		}

		if i := strings.Index(buf, EndSentinel); i >= 0 {
			f.body.WriteString(buf[:i])
			f.blocks = append(f.blocks, strings.TrimSpace(f.body.String()))
			f.body.Reset()
			buf = buf[i+len(EndSentinel):]
			f.filtering = false
			continue
		}
		k := partialSuffix(buf, EndSentinel)
		f.body.WriteString(buf[:len(buf)-k])
		f.pending = buf[len(buf)-k:]
		break
	}
	return out.String()
}

// Drain releases held-back text that can no longer complete a sentinel.
// Inside a block the held text is part of the block and is dropped.
func (f *Filter) Drain() string {
	held := f.pending
	f.pending = ""
	if f.filtering {
		f.body.WriteString(held)
		return ""
	}
	return held
}

// Blocks returns the bodies of the blocks closed so far this turn.
func (f *Filter) Blocks() []string {
	return append([]string(nil), f.blocks...)
}

// Reset returns the filter to pass-through, discarding any unclosed block.
func (f *Filter) Reset() {
	f.filtering = false
	f.pending = ""
	f.body.Reset()
	f.blocks = nil
}

// Strip removes every complete block from s in one pass. An unclosed block
// hides the rest of s.
func Strip(s string) string {
	f := NewFilter()
	return f.Apply(s) + f.Drain()
}

// partialSuffix returns the length of the longest proper prefix of sentinel
// that s ends with.
func partialSuffix(s, sentinel string) int {
	max := len(sentinel) - 1
	if len(s) < max {
		max = len(s)
	}
	for k := max; k > 0; k-- {
		if strings.HasSuffix(s, sentinel[:k]) {
			return k
		}
	}
	return 0
}
