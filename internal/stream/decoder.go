// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// decoder.go - SSE frame decoding across arbitrary read boundaries.

package stream

import (
	"bytes"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/jeranaias/navstream/internal/protocol"
)

// =============================================================================
// DECODER CONSTANTS
// =============================================================================

const (
	// MaxLineSize bounds a single buffered SSE line (1MB).
	MaxLineSize = 1024 * 1024

	// readChunkSize is the read size used by Reader.
	readChunkSize = 4 * 1024
)

var dataPrefix = []byte("data:")

// doneMarker is an end-of-stream sentinel some SSE servers emit.
var doneMarker = []byte("[DONE]")

// =============================================================================
// DECODER
// =============================================================================

// Decoder splits byte chunks into lines and parses "data:" lines as frames.
// An unterminated trailing line is kept and prepended to the next chunk.
type Decoder struct {
	partial []byte
	logger  *zap.Logger

	lines   int
	skipped int
}

// NewDecoder creates a decoder. A nil logger discards parse warnings.
func NewDecoder(logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{logger: logger}
}

// Feed decodes every complete line in chunk and returns the frames found,
// in order.
func (d *Decoder) Feed(chunk []byte) []protocol.Frame {
	if len(chunk) == 0 {
		return nil
	}

	buf := chunk
	if len(d.partial) > 0 {
		buf = append(d.partial, chunk...)
		d.partial = nil
	}

	var frames []protocol.Frame
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		if f, ok := d.decodeLine(buf[:i]); ok {
			frames = append(frames, f)
		}
		buf = buf[i+1:]
	}

	if len(buf) > MaxLineSize {
		d.skipped++
		d.logger.Warn("dropping oversized stream line", zap.Int("bytes", len(buf)))
		return frames
	}
	if len(buf) > 0 {
		d.partial = append([]byte(nil), buf...)
	}
	return frames
}

// Flush decodes a final unterminated line at end of stream.
func (d *Decoder) Flush() []protocol.Frame {
	if len(d.partial) == 0 {
		return nil
	}
	line := d.partial
	d.partial = nil
	if f, ok := d.decodeLine(line); ok {
		return []protocol.Frame{f}
	}
	return nil
}

// Skipped returns the number of malformed lines dropped so far.
func (d *Decoder) Skipped() int {
	return d.skipped
}

func (d *Decoder) decodeLine(line []byte) (protocol.Frame, bool) {
	d.lines++
	line = bytes.TrimRight(line, "\r")
	if !bytes.HasPrefix(line, dataPrefix) {
		// Blank keep-alives, comments, "event:" and "id:" fields.
		return protocol.Frame{}, false
	}

	payload := bytes.TrimSpace(line[len(dataPrefix):])
	if len(payload) == 0 || bytes.Equal(payload, doneMarker) {
		return protocol.Frame{}, false
	}

	f, err := protocol.ParseFrame(payload)
	if err != nil {
		d.skipped++
		d.logger.Warn("skipping malformed stream frame",
			zap.Int("line", d.lines),
			zap.Int("bytes", len(payload)),
			zap.Error(err))
		return protocol.Frame{}, false
	}
	return f, true
}

// =============================================================================
// READER
// =============================================================================

// Reader pulls frames from an io.Reader.
type Reader struct {
	r     io.Reader
	dec   *Decoder
	queue []protocol.Frame
	buf   []byte
	done  bool
}

// NewReader wraps r. A nil logger discards parse warnings.
func NewReader(r io.Reader, logger *zap.Logger) *Reader {
	return &Reader{
		r:   r,
		dec: NewDecoder(logger),
		buf: make([]byte, readChunkSize),
	}
}

// Next returns the next frame, io.EOF at a clean end of stream, or the
// underlying read error.
func (r *Reader) Next() (protocol.Frame, error) {
	for len(r.queue) == 0 {
		if r.done {
			return protocol.Frame{}, io.EOF
		}

		n, err := r.r.Read(r.buf)
		if n > 0 {
			r.queue = append(r.queue, r.dec.Feed(r.buf[:n])...)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				return protocol.Frame{}, err
			}
			r.done = true
			r.queue = append(r.queue, r.dec.Flush()...)
		}
	}

	f := r.queue[0]
	r.queue = r.queue[1:]
	return f, nil
}

// Skipped returns the number of malformed frames dropped so far.
func (r *Reader) Skipped() int {
	return r.dec.Skipped()
}
