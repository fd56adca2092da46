// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides small string and file helpers shared across navstream.
//
// # Key Functions
//
//   - TruncateRunes: UTF-8 safe truncation with ellipsis
//   - TruncateWidth / PadWidth: display-width aware column helpers (CJK safe)
//   - AtomicWriteFile: crash-safe file writing with fsync
//
// # Usage
//
//	title := util.TruncateWidth(conv.Title, 30)
//	err := util.AtomicWriteFile(path, data, 0600)
package util
