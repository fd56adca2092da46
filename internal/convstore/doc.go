// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package convstore is the client for the backend's conversation REST API.
//
// The server owns conversation rows (title, archive flag, message count); the
// client lists, renames, archives and deletes them, and fetches the
// server-side message history of a conversation.
//
// # Usage
//
//	store := convstore.New("http://localhost:8000/api")
//	convs, err := store.List(ctx, false)
//	conv, err := store.Rename(ctx, convs[0].ID, "Trip planning")
package convstore
