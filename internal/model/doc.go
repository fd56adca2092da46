// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for conversations and messages.
//
// This package defines the core domain types shared by the streaming session,
// the local cache and the conversation store client.
//
// # Key Types
//
//   - Message: single log entry with role, content, timestamp, node and metrics
//   - Metrics: per-turn latency figures attached to assistant messages
//   - ImageRef: an encoded image attachment on a user message
//   - Conversation: a row of the remote conversation store
//   - Role: message role enumeration (user, assistant, system)
//
// # Usage
//
// Build log entries:
//
//	log := []*model.Message{
//	    model.NewUserMessage("Take me home"),
//	    model.NewAssistantMessage("planner", "Routing to home..."),
//	}
//	fmt.Println(log[1].FormatStats())
package model
