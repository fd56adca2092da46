// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// consolidate.go - Post-turn cleanup of the message log.

package assembler

import "github.com/jeranaias/navstream/internal/model"

// MergeSeparator joins the contents of merged assistant messages.
const MergeSeparator = "\n\n"

// Consolidate drops blank non-user messages and merges each run of
// consecutive assistant messages into one. The merged message keeps the
// first message's identity and metrics and the last message's timestamp.
// Consolidate is idempotent and does not modify its input.
func Consolidate(log []*model.Message) []*model.Message {
	out := make([]*model.Message, 0, len(log))

	for _, msg := range log {
		if msg.Role != model.RoleUser && msg.IsBlank() {
			continue
		}

		if n := len(out); n > 0 && msg.Role == model.RoleAssistant && out[n-1].Role == model.RoleAssistant {
			prev := out[n-1]
			prev.Content += MergeSeparator + msg.Content
			prev.Timestamp = msg.Timestamp
			if prev.Metrics == nil {
				prev.Metrics = msg.Metrics.Clone()
			}
			continue
		}

		out = append(out, msg.Clone())
	}
	return out
}
