package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"tubesync/internal/domain"
)

// Source polls one upstream feed for its most recent item. Implemented by
// the youtube client.
type Source interface {
	LatestVideo(ctx context.Context, channelID, token string) (*domain.Video, error)
}

// FeedLister lists the feeds an identity is subscribed to.
type FeedLister interface {
	Subscriptions(ctx context.Context, token string) ([]domain.SubscriptionFeed, error)
}

// Store is the durable key-value store the engine persists notifications and
// watermarks to. Satisfied by every storage backend.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Publisher emits newly created notifications to interested consumers.
// Optional; publish failures are diagnostic, never fatal to a pass.
type Publisher interface {
	Publish(ctx context.Context, identity string, notification *domain.Notification) error
	Close() error
}
