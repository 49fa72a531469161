package service

import (
	"context"
	"fmt"

	"tubesync/internal/domain"
)

// Runner drives the engine for one identity: it resolves the subscription
// list and runs a sync pass. It satisfies the scheduler's Syncer interface.
type Runner struct {
	engine   *SyncEngine
	feeds    FeedLister
	token    string
	identity string
}

func NewRunner(engine *SyncEngine, feeds FeedLister, token, identity string) *Runner {
	return &Runner{
		engine:   engine,
		feeds:    feeds,
		token:    token,
		identity: identity,
	}
}

func (r *Runner) Sync(ctx context.Context) (*domain.SyncReport, error) {
	feeds, err := r.feeds.Subscriptions(ctx, r.token)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	return r.engine.StartSync(ctx, feeds, r.token, r.identity)
}
