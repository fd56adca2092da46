// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// turn.go - Tracking and printing the assistant output of one turn.

package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/jeranaias/navstream/internal/assembler"
	"github.com/jeranaias/navstream/internal/model"
)

// snapshot records assistant content by message ID.
func snapshot(log []*model.Message) map[string]string {
	out := make(map[string]string, len(log))
	for _, m := range log {
		if m.Role == model.RoleAssistant {
			out[m.ID] = m.Content
		}
	}
	return out
}

// turnText returns the assistant text added to log since before was taken.
// Messages merged into an earlier one contribute only the appended part.
func turnText(before map[string]string, log []*model.Message) string {
	var parts []string
	for _, m := range log {
		if m.Role != model.RoleAssistant {
			continue
		}
		part := m.Content
		if old, ok := before[m.ID]; ok {
			if !strings.HasPrefix(part, old) {
				continue
			}
			part = strings.TrimLeft(strings.TrimPrefix(part, old), "\n")
		}
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, assembler.MergeSeparator)
}

// lastAssistant returns the last assistant message of log, or nil.
func lastAssistant(log []*model.Message) *model.Message {
	for i := len(log) - 1; i >= 0; i-- {
		if log[i].Role == model.RoleAssistant {
			return log[i]
		}
	}
	return nil
}

// turnPrinter writes the assistant output of a turn. In live mode text is
// written as it grows; otherwise it is rendered once at the end.
type turnPrinter struct {
	mu       sync.Mutex
	w        io.Writer
	render   *Renderer
	before   map[string]string
	printed  string
	live     bool
	diverged bool
	header   bool
}

func newTurnPrinter(w io.Writer, render *Renderer, log []*model.Message) *turnPrinter {
	return &turnPrinter{
		w:      w,
		render: render,
		before: snapshot(log),
		live:   !render.Markdown(),
	}
}

// update is called with the log after every change.
func (p *turnPrinter) update(log []*model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.live || p.diverged {
		return
	}
	text := turnText(p.before, log)
	if !strings.HasPrefix(text, p.printed) {
		// A message frame rewrote streamed text; reconcile in finish.
		p.diverged = true
		return
	}
	if suffix := text[len(p.printed):]; suffix != "" {
		p.writeHeaderLocked(lastAssistant(log))
		fmt.Fprint(p.w, suffix)
		p.printed = text
	}
}

func (p *turnPrinter) writeHeaderLocked(msg *model.Message) {
	if p.header || msg == nil {
		return
	}
	p.header = true
	fmt.Fprintln(p.w, RoleLabel(msg))
}

// finish writes whatever the live output is missing, or the rendered text,
// followed by the stats line.
func (p *turnPrinter) finish(log []*model.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	text := turnText(p.before, log)
	last := lastAssistant(log)

	switch {
	case !p.live:
		if text == "" {
			return
		}
		p.writeHeaderLocked(last)
		fmt.Fprintln(p.w, p.render.renderMarkdown(text))

	case !p.diverged && strings.HasPrefix(text, p.printed):
		if text == "" {
			return
		}
		p.writeHeaderLocked(last)
		fmt.Fprintln(p.w, text[len(p.printed):])

	default:
		if p.printed != "" {
			fmt.Fprintln(p.w)
		}
		p.writeHeaderLocked(last)
		fmt.Fprintln(p.w, text)
	}
	p.printed = text

	if last != nil {
		if stats := p.render.Stats(last); stats != "" {
			fmt.Fprintln(p.w, stats)
		}
	}
}
