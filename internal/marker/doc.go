// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package marker strips the detected-memories block from streamed text.
//
// The backend embeds a structured payload between StartSentinel and
// EndSentinel inside ordinary token text. Filter removes the block, and the
// sentinels themselves, no matter how the stream splits them across
// fragments.
//
// # Usage
//
//	f := marker.NewFilter()
//	visible := f.Apply(token)   // may hold back a possible sentinel prefix
//	visible += f.Drain()        // at node switch or turn end
//	f.Reset()                   // at the next turn start
package marker
