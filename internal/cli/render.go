// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// render.go - Terminal rendering of messages, interrupts and listings.

package cli

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/navstream/internal/config"
	"github.com/jeranaias/navstream/internal/model"
	"github.com/jeranaias/navstream/internal/protocol"
	"github.com/jeranaias/navstream/internal/storage"
	"github.com/jeranaias/navstream/internal/util"
)

// Renderer formats conversation content for the terminal. Markdown is
// rendered with glamour when enabled and stdout is a terminal.
type Renderer struct {
	md        *glamour.TermRenderer
	showStats bool
	width     int
}

// NewRenderer builds a renderer from the [ui] section.
func NewRenderer(ui config.UIConfig, width int) *Renderer {
	if width <= 0 {
		width = DefaultTerminalWidth
	}
	r := &Renderer{showStats: ui.ShowStats, width: width}
	if ui.RenderMarkdown && IsStdoutTTY() {
		r.md = newMarkdownRenderer(ui.Theme, width)
	}
	return r
}

func newMarkdownRenderer(theme string, width int) *glamour.TermRenderer {
	style := glamour.WithAutoStyle()
	if theme != "" && !strings.EqualFold(theme, "auto") {
		style = glamour.WithStandardStyle(strings.ToLower(theme))
	}
	wrap := width - 4
	if wrap < MinTerminalWidth {
		wrap = MinTerminalWidth
	}
	md, err := glamour.NewTermRenderer(style, glamour.WithWordWrap(wrap))
	if err != nil {
		return nil
	}
	return md
}

// Markdown reports whether markdown rendering is active.
func (r *Renderer) Markdown() bool {
	return r.md != nil
}

// renderMarkdown returns content unchanged when rendering fails.
func (r *Renderer) renderMarkdown(content string) string {
	if r.md == nil {
		return content
	}
	out, err := r.md.Render(content)
	if err != nil {
		return content
	}
	return strings.Trim(out, "\n")
}

// =============================================================================
// MESSAGES
// =============================================================================

// RoleLabel returns the styled header of a message.
func RoleLabel(msg *model.Message) string {
	switch msg.Role {
	case model.RoleUser:
		return RenderConditional(userLabelStyle, msg.Role.DisplayName())
	case model.RoleAssistant:
		label := RenderConditional(assistantLabelStyle, msg.Role.DisplayName())
		if msg.Node != "" {
			label += " " + RenderConditional(nodeStyle, "("+msg.Node+")")
		}
		return label
	default:
		return RenderConditional(DimStyle, msg.Role.DisplayName())
	}
}

// Message renders a complete message with its header and stats.
func (r *Renderer) Message(msg *model.Message) string {
	var b strings.Builder
	b.WriteString(RoleLabel(msg))
	b.WriteString("\n")

	body := msg.Content
	if msg.Role == model.RoleAssistant {
		body = r.renderMarkdown(body)
	}
	b.WriteString(body)

	for _, img := range msg.Images {
		b.WriteString("\n")
		b.WriteString(RenderConditional(DimStyle, "[image: "+img.Name+"]"))
	}

	if stats := r.Stats(msg); stats != "" {
		b.WriteString("\n")
		b.WriteString(stats)
	}
	return b.String()
}

// Stats renders the latency line of an assistant message, or "".
func (r *Renderer) Stats(msg *model.Message) string {
	if !r.showStats {
		return ""
	}
	stats := msg.FormatStats()
	if stats == "" {
		return ""
	}
	return RenderConditional(DimStyle, "  "+stats)
}

// History renders a whole log separated by blank lines.
func (r *Renderer) History(log []*model.Message) string {
	parts := make([]string, 0, len(log))
	for _, msg := range log {
		parts = append(parts, r.Message(msg))
	}
	return strings.Join(parts, "\n\n")
}

// =============================================================================
// INTERRUPTS
// =============================================================================

// Interrupt renders a pending interrupt with its answer options.
func (r *Renderer) Interrupt(p protocol.InterruptPayload) string {
	var b strings.Builder
	b.WriteString(RenderConditional(WarningStyle, "Input needed: "))
	b.WriteString(p.Prompt())

	switch p := p.(type) {
	case *protocol.Confirmation:
		if p.Reason != "" {
			b.WriteString("\n" + RenderConditional(DimStyle, p.Reason))
		}
		if p.ToolName != "" {
			b.WriteString("\n" + RenderLabel("Action", 10) + p.ToolName)
		}
		if len(p.Args) > 0 {
			b.WriteString("\n" + RenderLabel("Arguments", 10) + formatArgs(p.Args))
		}
		b.WriteString("\n" + RenderConditional(optionStyle, "[y]es  [n]o"))

	case *protocol.Selection:
		for i, c := range p.Candidates {
			line := fmt.Sprintf("%2d) %s", i+1, c.Name)
			if c.Description != "" {
				line += RenderConditional(DimStyle, " - "+c.Description)
			}
			b.WriteString("\n" + line)
		}
		b.WriteString("\n" + RenderConditional(optionStyle, "number to choose, c to cancel"))

	case *protocol.AskParams:
		for _, name := range p.MissingParams {
			b.WriteString("\n  - " + name)
		}
		if len(p.MissingParams) == 1 {
			b.WriteString("\n" + RenderConditional(optionStyle, "value, or c to cancel"))
		} else {
			b.WriteString("\n" + RenderConditional(optionStyle, "name=value pairs separated by spaces, or c to cancel"))
		}

	case *protocol.SaveMemory:
		for i, m := range p.Memories {
			b.WriteString(fmt.Sprintf("\n%2d) %s %s %s", i+1,
				m.Type,
				RenderConditional(DimStyle, "("+string(m.Confidence)+")"),
				formatArgs(m.Data)))
		}
		b.WriteString("\n" + RenderConditional(optionStyle, "all, none, or numbers like 1,3"))
	}

	if !ColorsEnabled() {
		return b.String()
	}
	width := r.width - 2
	if width < MinTerminalWidth {
		width = MinTerminalWidth
	}
	return interruptBoxStyle.MaxWidth(width).Render(b.String())
}

// formatArgs renders a map as compact JSON with sorted keys.
func formatArgs(m map[string]any) string {
	if len(m) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v, err := json.Marshal(m[k])
		if err != nil {
			v = []byte(fmt.Sprint(m[k]))
		}
		parts = append(parts, k+"="+string(v))
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// LISTINGS
// =============================================================================

// ConversationTable renders conversation rows, marking current.
func ConversationTable(rows []ConversationData, current string, width int) string {
	if len(rows) == 0 {
		return RenderConditional(DimStyle, "No conversations.")
	}
	if width <= 0 {
		width = DefaultTerminalWidth
	}

	titleWidth := width - 40
	if titleWidth < 16 {
		titleWidth = 16
	}

	var b strings.Builder
	for i, row := range rows {
		marker := "  "
		if row.ID == current {
			marker = RenderConditional(SuccessStyle, "* ")
		}
		title := util.PadWidth(row.Title, titleWidth)
		if row.Archived {
			title = RenderConditional(DimStyle, title)
		}
		fmt.Fprintf(&b, "%s%2d  %s  %4d msgs  %s",
			marker, i+1, title, row.MessageCount,
			RenderConditional(DimStyle, row.UpdatedAt.Local().Format("Jan 02 15:04")))
		if i < len(rows)-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// ConversationRows converts remote conversations for display.
func ConversationRows(convs []model.Conversation) []ConversationData {
	rows := make([]ConversationData, 0, len(convs))
	for i := range convs {
		c := &convs[i]
		rows = append(rows, ConversationData{
			ID:           c.ID,
			Title:        c.DisplayTitle(),
			UpdatedAt:    c.UpdatedAt,
			MessageCount: c.MessageCount,
			Archived:     c.IsArchived,
			Source:       "server",
		})
	}
	return rows
}

// CacheRows converts locally cached conversations for display.
func CacheRows(entries []storage.Entry) []ConversationData {
	rows := make([]ConversationData, 0, len(entries))
	for _, e := range entries {
		title := e.Title
		if title == "" {
			title = model.DefaultTitle
		}
		rows = append(rows, ConversationData{
			ID:           e.ID,
			Title:        title,
			UpdatedAt:    e.UpdatedAt,
			MessageCount: e.MessageCount,
			Source:       "cache",
		})
	}
	return rows
}
