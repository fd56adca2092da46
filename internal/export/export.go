// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jeranaias/navstream/internal/model"
	"github.com/jeranaias/navstream/internal/util"
)

// ErrEmptyDocument is returned when exporting a log with no messages.
var ErrEmptyDocument = errors.New("conversation has no messages")

// =============================================================================
// DOCUMENT
// =============================================================================

// Document is a conversation log prepared for export.
type Document struct {
	ConversationID string           `json:"conversation_id"`
	Title          string           `json:"title"`
	ExportedAt     time.Time        `json:"exported_at"`
	Messages       []*model.Message `json:"messages"`
}

// NewDocument builds a Document from a log, deriving the title from the first
// user message.
func NewDocument(convID string, log []*model.Message) *Document {
	return &Document{
		ConversationID: convID,
		Title:          model.TitleFromLog(log),
		ExportedAt:     time.Now(),
		Messages:       model.CloneLog(log),
	}
}

func (d *Document) validate() error {
	if d == nil {
		return errors.New("document is nil")
	}
	if len(d.Messages) == 0 {
		return ErrEmptyDocument
	}
	return nil
}

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter defines the interface for conversation exporters.
type Exporter interface {
	// Export converts a document to the target format.
	Export(doc *Document) ([]byte, error)

	// FileExtension returns the file extension, e.g. ".md".
	FileExtension() string

	// MimeType returns the MIME type of the exported format.
	MimeType() string
}

// Options configures export behavior.
type Options struct {
	// OutputDir is where files are written. Default: current directory.
	OutputDir string

	// IncludeMetadata adds a frontmatter header and per-turn stats.
	IncludeMetadata bool

	// IncludeTimestamps adds per-message timestamps.
	IncludeTimestamps bool
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile exports a document with the given exporter and returns the path of
// the written file.
func ToFile(doc *Document, exporter Exporter, opts *Options) (string, error) {
	if opts == nil {
		opts = DefaultOptions()
	}

	content, err := exporter.Export(doc)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("conversation_%s_%s%s",
		sanitizeFilename(doc.Title),
		doc.ExportedAt.Format("20060102_150405"),
		exporter.FileExtension(),
	)

	dir := opts.OutputDir
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	outputPath := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(outputPath, content, 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return outputPath, nil
}

// ForFormat returns the exporter for a format name ("md", "markdown" or
// "json").
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in filenames.
func sanitizeFilename(s string) string {
	s = util.TruncateRunes(s, 50)
	s = strings.TrimSuffix(s, "...")

	var b strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			b.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			b.WriteRune('_')
		case r < 32 || r == 127:
			b.WriteRune('-')
		default:
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "conversation"
	}
	return b.String()
}

func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
