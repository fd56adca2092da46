// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package protocol defines the wire types exchanged with the chat backend.
//
// The backend streams Server-Sent Events whose "data:" lines carry one JSON
// Frame each. Frames are multiplexed across named reasoning nodes and may
// pause the turn with a human-in-the-loop interrupt.
//
// # Key Types
//
//   - Frame: one decoded event record ({type, node, content, message, data})
//   - NodeKey: opaque node identifier with a single reserved DefaultNode
//   - InterruptPayload: tagged union (Confirmation, Selection, AskParams, SaveMemory)
//   - ResumeValue: the user's answer to an interrupt
//   - SendRequest / ResumeRequest: outbound request bodies
//
// # Usage
//
// Decode an interrupt carried by a frame:
//
//	payload, err := protocol.DecodeInterrupt(frame.Data)
//	if err != nil {
//	    return err
//	}
//	if sel, ok := payload.(*protocol.Selection); ok {
//	    value := protocol.Choose(sel.Candidates[0])
//	    _ = value
//	}
package protocol
