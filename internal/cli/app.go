// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// app.go - Wiring shared by every command that talks to the backend.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/navstream/internal/config"
	"github.com/jeranaias/navstream/internal/convstore"
	"github.com/jeranaias/navstream/internal/logging"
	"github.com/jeranaias/navstream/internal/model"
	"github.com/jeranaias/navstream/internal/session"
	"github.com/jeranaias/navstream/internal/storage"
	"github.com/jeranaias/navstream/internal/stream"
)

// App holds the configured clients for one CLI invocation.
type App struct {
	Config     *config.Config
	ConfigPath string
	Log        *logging.Logger
	Cache      *storage.Cache // nil when disabled or unavailable
	Store      *convstore.Client
	Stream     *stream.Client
	Render     *Renderer
	Out        io.Writer
	Err        io.Writer
}

// LoadConfig loads the config named by args, or the default file, and
// applies command line overrides.
func LoadConfig(args Args) (*config.Config, string, error) {
	path := args.ConfigPath
	if path == "" {
		p, err := config.ConfigPath()
		if err != nil {
			return nil, "", err
		}
		path = p
	}

	var cfg *config.Config
	var err error
	if args.ConfigPath != "" {
		cfg, err = config.LoadFromPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, path, err
	}

	if args.ServerURL != "" {
		cfg.Server.BaseURL = args.ServerURL
	}
	if args.Verbose {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, path, err
	}
	config.SetGlobal(cfg)
	return cfg, path, nil
}

// NewApp loads configuration and builds the clients. A cache that cannot
// be opened is logged and skipped.
func NewApp(args Args) (*App, error) {
	cfg, path, err := LoadConfig(args)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, &CommandError{Command: "startup", Action: "logging", Err: err}
	}

	app := &App{
		Config:     cfg,
		ConfigPath: path,
		Log:        logger,
		Out:        os.Stdout,
		Err:        os.Stderr,
		Render:     NewRenderer(cfg.UI, GetTerminalWidth()),
	}

	app.Store = convstore.New(cfg.Server.BaseURL,
		convstore.WithUserID(cfg.Server.UserID),
		convstore.WithTimeout(cfg.Server.Timeout.Duration),
		convstore.WithLogger(logger.Named("convstore")),
	)
	app.Stream = stream.NewClient(cfg.Server.BaseURL,
		stream.WithHeaderTimeout(cfg.Server.Timeout.Duration),
		stream.WithLogger(logger.Named("stream")),
	)

	if cfg.Cache.Enabled {
		cachePath, err := cfg.CachePath()
		if err == nil {
			app.Cache, err = storage.Open(cachePath)
		}
		if err != nil {
			logger.Warn("local cache unavailable", zap.Error(err))
		} else {
			app.Cache.MaxConversations = cfg.Cache.MaxConversations
		}
	}

	logger.Debug("navstream starting",
		zap.String("server", cfg.Server.BaseURL),
		zap.Bool("cache", app.Cache != nil),
		zap.String("config", path))
	return app, nil
}

// NewSession creates a streaming session for convID ("" starts a new
// conversation on first send).
func (a *App) NewSession(convID string, hooks session.Hooks) *session.Session {
	cfg := session.DefaultConfig()
	cfg.ConversationID = convID
	cfg.MaxInterruptDepth = a.Config.Session.MaxInterruptDepth
	cfg.QueueSends = a.Config.Session.QueueSends
	cfg.QueueSize = a.Config.Session.QueueSize
	cfg.Logger = a.Log.Named("session")
	cfg.Hooks = hooks
	if a.Cache != nil {
		cfg.Store = a.Cache
	}
	return session.New(a.Stream, cfg)
}

// History fetches a conversation's messages from the server, falling back
// to the local cache when the server cannot be reached.
func (a *App) History(ctx context.Context, convID string) ([]*model.Message, string, error) {
	log, err := a.Store.Messages(ctx, convID)
	if err == nil {
		return log, "server", nil
	}
	if a.Cache == nil || errors.Is(err, convstore.ErrNotFound) {
		return nil, "", err
	}

	a.Log.Warn("server history unavailable, using local cache",
		zap.String("conversation_id", convID), zap.Error(err))
	cached, cacheErr := a.Cache.Load(ctx, convID)
	if cacheErr != nil {
		return nil, "", fmt.Errorf("%w (cache: %v)", err, cacheErr)
	}
	return cached, "cache", nil
}

// Conversations lists conversations from the server, falling back to the
// local cache.
func (a *App) Conversations(ctx context.Context, includeArchived bool) ([]ConversationData, error) {
	convs, err := a.Store.List(ctx, includeArchived)
	if err == nil {
		return ConversationRows(convs), nil
	}
	if a.Cache == nil {
		return nil, err
	}

	a.Log.Warn("server listing unavailable, using local cache", zap.Error(err))
	entries, cacheErr := a.Cache.List(ctx)
	if cacheErr != nil {
		return nil, fmt.Errorf("%w (cache: %v)", err, cacheErr)
	}
	return CacheRows(entries), nil
}

// RequestContext returns a context bounded by the configured REST timeout.
func (a *App) RequestContext(parent context.Context) (context.Context, context.CancelFunc) {
	timeout := a.Config.Server.Timeout.Duration
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	return context.WithTimeout(parent, timeout+5*time.Second)
}

// Close releases the cache and flushes the logger.
func (a *App) Close() error {
	var err error
	if a.Cache != nil {
		err = a.Cache.Close()
	}
	_ = a.Log.Sync()
	return err
}
