// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session drives a conversation with the streaming backend.
//
// A Session owns one conversation's message log. Each turn opens a stream,
// passes token text through the memory marker filter and writes it into
// the node-keyed assembler. An interrupt frame pauses the turn until the
// caller answers it with Resume or dismisses it with Cancel.
//
// # Key Types
//
//   - Session: per-conversation state machine
//   - Streamer: opens send and resume streams (implemented by stream.Client)
//   - Store: persists logs (implemented by storage.Cache)
//   - Hooks: callbacks for log changes, tokens, interrupts and errors
//
// # Usage
//
//	s := session.New(client, session.Config{Store: cache, Logger: logger})
//	defer s.Close()
//
//	if err := s.Send(ctx, "take me to the airport"); err != nil {
//	    return err
//	}
//	if st := s.HITL(); st.Waiting {
//	    err = s.Resume(ctx, protocol.Confirm())
//	}
//
// Logs are saved in the background after every change and flushed when a
// turn ends.
package session
