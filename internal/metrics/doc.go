// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics records turn-level latency: time to first visible output
// and total turn time. Values are fixed once observed.
package metrics
