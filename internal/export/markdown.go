// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/navstream/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports conversations to Markdown format.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export converts a document to Markdown.
func (e *MarkdownExporter) Export(doc *Document) ([]byte, error) {
	if err := doc.validate(); err != nil {
		return nil, err
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		fmt.Fprintf(&sb, "title: %s\n", escapeYAML(doc.Title))
		if doc.ConversationID != "" {
			fmt.Fprintf(&sb, "conversation: %s\n", escapeYAML(doc.ConversationID))
		}
		fmt.Fprintf(&sb, "messages: %d\n", len(doc.Messages))
		fmt.Fprintf(&sb, "exported: %s\n", doc.ExportedAt.Format(time.RFC3339))
		sb.WriteString("generator: navstream\n")
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(doc.Title))

	for i, msg := range doc.Messages {
		label := e.formatRoleLabel(msg)
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		for _, img := range msg.Images {
			fmt.Fprintf(&sb, "*Attached: %s (%s)*\n\n", escapeMarkdown(img.Name), img.MimeType)
		}

		if e.options.IncludeMetadata {
			if stats := msg.FormatStats(); stats != "" {
				fmt.Fprintf(&sb, "<sub>Stats: %s</sub>\n\n", stats)
			}
		}

		if i < len(doc.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from navstream on %s*\n", formatTimestamp(doc.ExportedAt))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// formatRoleLabel labels assistant messages with their node when one is set.
func (e *MarkdownExporter) formatRoleLabel(msg *model.Message) string {
	label := "[" + msg.Role.DisplayName() + "]"
	if msg.Role == model.RoleAssistant && msg.Node != "" {
		label += " `" + msg.Node + "`"
	}
	return label
}

// =============================================================================
// ESCAPING HELPERS
// =============================================================================

// escapeMarkdown escapes characters that break headings.
func escapeMarkdown(s string) string {
	s = strings.ReplaceAll(s, "#", "\\#")
	s = strings.ReplaceAll(s, "*", "\\*")
	s = strings.ReplaceAll(s, "_", "\\_")
	s = strings.ReplaceAll(s, "[", "\\[")
	s = strings.ReplaceAll(s, "]", "\\]")
	return s
}

// escapeYAML quotes values that contain YAML syntax.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#|>@`\"'[]{}!%&*\n\r\\") || strings.HasPrefix(s, " ") || strings.HasSuffix(s, " ") {
		s = strings.ReplaceAll(s, "\\", "\\\\")
		s = strings.ReplaceAll(s, "\"", "\\\"")
		s = strings.ReplaceAll(s, "\n", "\\n")
		s = strings.ReplaceAll(s, "\r", "\\r")
		return fmt.Sprintf("\"%s\"", s)
	}
	return s
}
