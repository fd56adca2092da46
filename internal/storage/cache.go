// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cache.go - SQLite cache of conversation logs for offline restore.

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/jeranaias/navstream/internal/model"
)

// =============================================================================
// ERRORS
// =============================================================================

// ErrConversationNotFound is returned when a conversation is not cached.
// Use errors.Is(err, ErrConversationNotFound) to check for this error.
var ErrConversationNotFound = &CacheError{Message: "conversation not found"}

// ErrClosed is returned by operations on a closed cache.
var ErrClosed = &CacheError{Message: "cache closed"}

// CacheError represents a cache-related error.
type CacheError struct {
	Message string
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	return e.Message
}

// Is implements errors.Is support for comparing cache errors.
func (e *CacheError) Is(target error) bool {
	t, ok := target.(*CacheError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

// =============================================================================
// CACHE
// =============================================================================

// DefaultMaxConversations limits how many conversations are kept.
const DefaultMaxConversations = 200

// Entry is listing metadata for a cached conversation.
type Entry struct {
	ID           string
	Title        string
	UpdatedAt    time.Time
	MessageCount int
}

// Cache is a SQLite-backed message cache keyed by conversation id. It is
// safe for concurrent use.
type Cache struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	closed bool

	// MaxConversations limits stored conversations (0 = unlimited).
	MaxConversations int
}

// DefaultPath returns ~/.navstream/cache.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".navstream", "cache.db"), nil
}

// Open opens or creates the cache database at path.
func Open(path string) (*Cache, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("cache path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows one writer at a time.
	// RELIABILITY: One connection serializes writers; WAL keeps reads cheap.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if _, err := db.Exec(InitMetadata); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize metadata: %w", err)
	}

	return &Cache{
		db:               db,
		path:             path,
		MaxConversations: DefaultMaxConversations,
	}, nil
}

// Path returns the database file path.
func (c *Cache) Path() string {
	return c.path
}

// Close closes the database.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.db.Close()
}

func (c *Cache) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	return nil
}

// =============================================================================
// SAVE OPERATIONS
// =============================================================================

// Save replaces the cached log of a conversation.
func (c *Cache) Save(ctx context.Context, convID string, log []*model.Message) error {
	if convID == "" {
		return errors.New("conversation id cannot be empty")
	}
	if err := c.checkOpen(); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO conversations (id, title, updated_at, message_count) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, updated_at = excluded.updated_at,
			message_count = excluded.message_count`,
		convID, model.TitleFromLog(log), time.Now().UnixNano(), len(log))
	if err != nil {
		return fmt.Errorf("failed to upsert conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id = ?", convID); err != nil {
		return fmt.Errorf("failed to clear messages: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages (conversation_id, seq, id, role, node, content, timestamp, extra)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, m := range log {
		blob, err := encodeExtra(m)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, convID, i, m.ID, string(m.Role), m.Node, m.Content,
			m.Timestamp.UnixNano(), blob); err != nil {
			return fmt.Errorf("failed to insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}

	if c.MaxConversations > 0 {
		c.enforceLimit(ctx)
	}
	return nil
}

// enforceLimit removes the least recently updated conversations over the
// limit.
func (c *Cache) enforceLimit(ctx context.Context) {
	_, _ = c.db.ExecContext(ctx, `
		DELETE FROM conversations WHERE id IN (
			SELECT id FROM conversations ORDER BY updated_at DESC LIMIT -1 OFFSET ?
		)`, c.MaxConversations)
}

// =============================================================================
// LOAD OPERATIONS
// =============================================================================

// Load returns the cached log of a conversation.
func (c *Cache) Load(ctx context.Context, convID string) ([]*model.Message, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	var exists int
	err := c.db.QueryRowContext(ctx, "SELECT 1 FROM conversations WHERE id = ?", convID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up conversation: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, role, node, content, timestamp, extra
		FROM messages WHERE conversation_id = ? ORDER BY seq`, convID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var log []*model.Message
	for rows.Next() {
		var (
			m    model.Message
			role string
			ts   int64
			blob []byte
		)
		if err := rows.Scan(&m.ID, &role, &m.Node, &m.Content, &ts, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Role = model.Role(role)
		m.Timestamp = time.Unix(0, ts)
		if err := decodeExtra(blob, &m); err != nil {
			return nil, err
		}
		log = append(log, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return log, nil
}

// List returns cached conversations, most recently updated first.
func (c *Cache) List(ctx context.Context) ([]Entry, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, `
		SELECT id, title, updated_at, message_count FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e  Entry
			ts int64
		)
		if err := rows.Scan(&e.ID, &e.Title, &ts, &e.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		e.UpdatedAt = time.Unix(0, ts)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes a conversation and its messages.
func (c *Cache) Delete(ctx context.Context, convID string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	res, err := c.db.ExecContext(ctx, "DELETE FROM conversations WHERE id = ?", convID)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrConversationNotFound
	}
	return nil
}

// =============================================================================
// CURRENT CONVERSATION
// =============================================================================

// SetCurrent records the conversation the user last had open.
func (c *Cache) SetCurrent(ctx context.Context, convID string) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	_, err := c.db.ExecContext(ctx,
		"UPDATE metadata SET value = ? WHERE key = 'current_conversation'", convID)
	if err != nil {
		return fmt.Errorf("failed to set current conversation: %w", err)
	}
	return nil
}

// Current returns the conversation the user last had open, or "".
func (c *Cache) Current(ctx context.Context) (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}
	var id string
	err := c.db.QueryRowContext(ctx,
		"SELECT value FROM metadata WHERE key = 'current_conversation'").Scan(&id)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("failed to read current conversation: %w", err)
	}
	return id, nil
}
