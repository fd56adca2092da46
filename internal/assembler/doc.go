// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package assembler builds a message log from node-keyed stream output.
//
// Each turn keeps an index from node key to log position. Three writes act on
// it: Ensure creates a node's entry, Append extends it and Replace overwrites
// it. Different nodes always get different entries; only Consolidate merges
// adjacent assistant messages, once a turn completes.
//
// # Key Types
//
//   - Assembler: owns the log and the per-turn node index
//   - State: Idle, Streaming, Interrupted, Completed
//
// # Usage
//
//	asm := assembler.New(tracker)
//	asm.Push(model.NewUserMessage("hi"))
//	asm.BeginTurn()
//	asm.Ensure("planner", "")
//	asm.Append("planner", "Hello")
//	asm.Complete(nil)
//	log := asm.Messages()
package assembler
