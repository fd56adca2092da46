// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// client.go - HTTP transport for chat streams.
//
// RELIABILITY: Only the response headers are bounded; a stream body has no
// overall timeout.

package stream

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/navstream/internal/protocol"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// DefaultHeaderTimeout bounds the wait for response headers. The body
	// itself is bounded only by the request context.
	DefaultHeaderTimeout = 30 * time.Second

	// MaxErrorBodySize caps how much of an error response is read.
	MaxErrorBodySize = 64 * 1024

	// SendPath and ResumePath are relative to the base URL.
	SendPath   = "/chat/stream"
	ResumePath = "/chat/resume"

	userAgent = "navstream/0.1.0"
)

var (
	// ErrNoBody indicates a success response without a readable body.
	ErrNoBody = errors.New("stream body unavailable")

	// ErrNotConfigured indicates a client without a base URL.
	ErrNotConfigured = errors.New("stream client not configured: missing server URL")
)

// StatusError is a non-success HTTP response to a send or resume request.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Detail)
	}
	return fmt.Sprintf("server returned %d %s", e.Status, http.StatusText(e.Status))
}

// Temporary reports whether retrying the request later might succeed.
func (e *StatusError) Temporary() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// =============================================================================
// CLIENT
// =============================================================================

// Client opens streaming responses from the chat backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	headers    map[string]string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default streaming HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithHeaderTimeout bounds the wait for response headers. The body itself
// is only bounded by the request context.
func WithHeaderTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient = newStreamingHTTPClient(d)
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.headers[key] = value }
}

// NewClient creates a client for the backend at baseURL
// (for example "http://localhost:8000/api").
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: newStreamingHTTPClient(DefaultHeaderTimeout),
		logger:     zap.NewNop(),
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// newStreamingHTTPClient has no overall timeout; cancellation comes from the
// request context.
func newStreamingHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          20,
			MaxIdleConnsPerHost:   4,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: headerTimeout,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Send opens the stream for a new turn.
func (c *Client) Send(ctx context.Context, req protocol.SendRequest) (*Stream, error) {
	return c.open(ctx, SendPath, req)
}

// Resume opens the stream that continues an interrupted turn.
func (c *Client) Resume(ctx context.Context, req protocol.ResumeRequest) (*Stream, error) {
	return c.open(ctx, ResumePath, req)
}

func (c *Client) open(ctx context.Context, path string, body any) (*Stream, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("User-Agent", userAgent)
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	c.logger.Debug("stream opened",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrNoBody
	}

	return &Stream{
		body:   resp.Body,
		reader: NewReader(resp.Body, c.logger),
	}, nil
}

// statusError builds a StatusError, using the backend's {"detail": ...}
// body when present.
func statusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, MaxErrorBodySize))

	var apiErr struct {
		Detail  any    `json:"detail"`
		Message string `json:"message"`
	}
	detail := ""
	if err := json.Unmarshal(raw, &apiErr); err == nil {
		switch d := apiErr.Detail.(type) {
		case string:
			detail = d
		case nil:
			detail = apiErr.Message
		default:
			if b, err := json.Marshal(d); err == nil {
				detail = string(b)
			}
		}
	} else {
		detail = strings.TrimSpace(string(raw))
	}
	return &StatusError{Status: resp.StatusCode, Detail: detail}
}

// =============================================================================
// STREAM
// =============================================================================

// Stream is an open response body yielding frames.
type Stream struct {
	body   io.ReadCloser
	reader *Reader
}

// NewStream wraps an arbitrary body, for callers that obtain the response
// themselves.
func NewStream(body io.ReadCloser, logger *zap.Logger) *Stream {
	return &Stream{body: body, reader: NewReader(body, logger)}
}

// Next returns the next frame or io.EOF.
func (s *Stream) Next() (protocol.Frame, error) {
	return s.reader.Next()
}

// Skipped returns the number of malformed frames dropped so far.
func (s *Stream) Skipped() int {
	return s.reader.Skipped()
}

// Close releases the connection.
func (s *Stream) Close() error {
	return s.body.Close()
}
