// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream opens the backend's Server-Sent-Events responses and decodes
// them into protocol frames.
//
// # Key Types
//
//   - Decoder: turns raw byte chunks into frames, buffering partial lines
//   - Reader: pulls frames from an io.Reader one at a time
//   - Client: issues send and resume requests and returns a Stream
//   - StatusError: a non-success HTTP response
//
// Malformed frame bodies are logged and skipped; they never end a stream.
//
// # Usage
//
//	client := stream.NewClient("http://localhost:8000/api", stream.WithLogger(logger))
//	s, err := client.Send(ctx, protocol.SendRequest{Message: "hi", ConversationID: id})
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//	for {
//	    frame, err := s.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    ...
//	}
package stream
