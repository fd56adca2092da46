// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package hitl tracks human-in-the-loop interrupts.
//
// A Controller is either idle or waiting for the user's decision on one
// interrupt payload. Waiting and the pending payload are stored as a single
// field, so one is never set without the other. Nested interrupts within a
// turn are counted and bounded by a maximum depth.
package hitl
