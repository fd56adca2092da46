// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the local message cache for navstream.
//
// The cache keeps a copy of each conversation's message log in SQLite so a
// conversation can be reopened offline. It is written after log mutations
// and read only when a conversation is restored between turns; the server
// remains the owner of conversation rows.
//
// # Key Types
//
//   - Cache: SQLite-backed store keyed by conversation id
//   - Entry: lightweight metadata for listing cached conversations
//
// # Usage
//
//	cache, err := storage.Open(path)
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
//
//	err = cache.Save(ctx, convID, messages)
//	restored, err := cache.Load(ctx, convID)
//
// # Storage Location
//
// The default database is ~/.navstream/cache.db.
package storage
