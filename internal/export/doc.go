// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes conversation logs to files.
//
// # Key Types
//
//   - Document: a titled message log ready for export
//   - Exporter: converts a Document to bytes in one format
//   - Options: metadata and output directory settings
//
// # Supported Formats
//
//   - Markdown: human-readable, with per-turn latency stats
//   - JSON: the complete log, including node names and metrics
//
// # Usage
//
//	doc := export.NewDocument(convID, messages)
//	path, err := export.ToFile(doc, export.NewMarkdownExporter(nil), nil)
package export
