// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// client.go - REST client for the backend's conversation store.

package convstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jeranaias/navstream/internal/model"
)

// =============================================================================
// CONSTANTS AND ERRORS
// =============================================================================

const (
	// DefaultTimeout is the timeout for a single REST call.
	DefaultTimeout = 15 * time.Second

	// DefaultUserID is the user the backend assigns when none is configured.
	DefaultUserID = "user_001"

	// MaxResponseSize caps response bodies.
	MaxResponseSize = 10 * 1024 * 1024

	// DefaultRate and DefaultBurst bound request throughput.
	DefaultRate  = rate.Limit(10)
	DefaultBurst = 20
)

// ErrNotFound matches APIErrors with status 404.
var ErrNotFound = errors.New("conversation not found")

// APIError is a non-success response from the conversation API.
type APIError struct {
	Status int
	Detail string
	Op     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: server returned %d: %s", e.Op, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s: server returned %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

// Is reports 404 responses as ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// =============================================================================
// CLIENT
// =============================================================================

// Client talks to the /conversations endpoints.
type Client struct {
	baseURL    string
	userID     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each REST call.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithUserID sets the user that owns created and listed conversations.
func WithUserID(id string) Option {
	return func(c *Client) {
		if id != "" {
			c.userID = id
		}
	}
}

// WithRateLimit replaces the request limiter.
func WithRateLimit(r rate.Limit, burst int) Option {
	return func(c *Client) { c.limiter = rate.NewLimiter(r, burst) }
}

// WithLogger sets the client's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		userID:  DefaultUserID,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
			},
		},
		limiter: rate.NewLimiter(DefaultRate, DefaultBurst),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserID returns the configured user id.
func (c *Client) UserID() string {
	return c.userID
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Create registers a new conversation. An empty title lets the server pick
// its default.
func (c *Client) Create(ctx context.Context, title string) (*model.Conversation, error) {
	body := map[string]any{"user_id": c.userID}
	if title != "" {
		body["title"] = title
	}
	var row conversationRow
	if err := c.do(ctx, "create conversation", http.MethodPost, "/conversations", nil, body, &row); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// List returns the user's conversations.
func (c *Client) List(ctx context.Context, includeArchived bool) ([]model.Conversation, error) {
	q := url.Values{}
	q.Set("user_id", c.userID)
	q.Set("include_archived", strconv.FormatBool(includeArchived))

	var rows []conversationRow
	if err := c.do(ctx, "list conversations", http.MethodGet, "/conversations", q, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]model.Conversation, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r.toModel())
	}
	return out, nil
}

// Get returns one conversation.
func (c *Client) Get(ctx context.Context, id string) (*model.Conversation, error) {
	var row conversationRow
	if err := c.do(ctx, "get conversation", http.MethodGet, conversationPath(id), nil, nil, &row); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// Rename sets a conversation's title.
func (c *Client) Rename(ctx context.Context, id, title string) (*model.Conversation, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, errors.New("title cannot be empty")
	}
	return c.update(ctx, "rename conversation", id, map[string]any{"title": title})
}

// Archive sets or clears a conversation's archive flag.
func (c *Client) Archive(ctx context.Context, id string, archived bool) (*model.Conversation, error) {
	return c.update(ctx, "archive conversation", id, map[string]any{"is_archived": archived})
}

func (c *Client) update(ctx context.Context, op, id string, body map[string]any) (*model.Conversation, error) {
	var row conversationRow
	if err := c.do(ctx, op, http.MethodPatch, conversationPath(id), nil, body, &row); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// Delete removes a conversation on the server.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, "delete conversation", http.MethodDelete, conversationPath(id), nil, nil, nil)
}

// Messages returns the server-side history of a conversation as user and
// assistant messages.
func (c *Client) Messages(ctx context.Context, id string) ([]*model.Message, error) {
	var rows []messageRow
	if err := c.do(ctx, "get messages", http.MethodGet, conversationPath(id)+"/messages", nil, nil, &rows); err != nil {
		return nil, err
	}
	out := make([]*model.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toModel())
	}
	return out, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

func conversationPath(id string) string {
	return "/conversations/" + url.PathEscape(id)
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("%s: server URL not configured", op)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit wait: %w", op, err)
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: failed to marshal request: %w", op, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return fmt.Errorf("%s: failed to create request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("conversation api call",
		zap.String("op", op),
		zap.String("method", method),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("%s: failed to read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Detail: detailOf(raw), Op: op}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: failed to decode response: %w", op, err)
	}
	return nil
}

// detailOf extracts FastAPI's {"detail": ...} from an error body.
func detailOf(raw []byte) string {
	var body struct {
		Detail any `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return strings.TrimSpace(string(raw))
	}
	switch d := body.Detail.(type) {
	case string:
		return d
	case nil:
		return ""
	default:
		b, _ := json.Marshal(d)
		return string(b)
	}
}
