// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// persist.go - Background saving of the message log.

package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jeranaias/navstream/internal/model"
)

// Store persists conversation logs between runs.
type Store interface {
	Save(ctx context.Context, convID string, log []*model.Message) error
	Load(ctx context.Context, convID string) ([]*model.Message, error)
}

// DefaultSaveTimeout bounds a single background save.
// RELIABILITY: A stuck disk never blocks the streaming turn.
const DefaultSaveTimeout = 5 * time.Second

// =============================================================================
// PERSISTER
// =============================================================================

// persister saves the latest log snapshot in the background. Marks made
// while a save is running coalesce into one follow-up save.
type persister struct {
	store  Store
	logger *zap.Logger

	mu      sync.Mutex
	convID  string
	pending []*model.Message
	isDirty bool
	lastErr error

	kick    chan struct{}
	flushCh chan chan error
	cancel  context.CancelFunc
	done    chan struct{}
}

func newPersister(store Store, logger *zap.Logger) *persister {
	ctx, cancel := context.WithCancel(context.Background())
	p := &persister{
		store:   store,
		logger:  logger,
		kick:    make(chan struct{}, 1),
		flushCh: make(chan chan error),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go p.run(ctx)
	return p
}

// MarkDirty records a new snapshot to save.
func (p *persister) MarkDirty(convID string, log []*model.Message) {
	p.mu.Lock()
	p.convID = convID
	p.pending = log
	p.isDirty = true
	p.mu.Unlock()

	select {
	case p.kick <- struct{}{}:
	default:
	}
}

// Flush blocks until the latest snapshot has been written.
func (p *persister) Flush(ctx context.Context) error {
	reply := make(chan error, 1)
	select {
	case p.flushCh <- reply:
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close writes any pending snapshot and stops the goroutine.
func (p *persister) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultSaveTimeout)
	defer cancel()
	err := p.Flush(ctx)
	p.cancel()
	<-p.done
	return err
}

// LastError returns the error of the most recent save.
func (p *persister) LastError() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

func (p *persister) run(ctx context.Context) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.kick:
			p.save()
		case reply := <-p.flushCh:
			reply <- p.save()
		}
	}
}

func (p *persister) save() error {
	p.mu.Lock()
	if !p.isDirty || p.convID == "" {
		p.mu.Unlock()
		return nil
	}
	convID, log := p.convID, p.pending
	p.isDirty = false
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), DefaultSaveTimeout)
	defer cancel()
	err := p.store.Save(ctx, convID, log)

	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("failed to save conversation",
			zap.String("conversation_id", convID),
			zap.Error(err))
	}
	return err
}
