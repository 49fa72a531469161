package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"tubesync/internal/domain"
)

// ReferenceFetcher fetches the category taxonomy from upstream.
type ReferenceFetcher interface {
	FetchCategories(ctx context.Context) ([]domain.Category, error)
}

// Reference caches the category taxonomy with absolute-time expiry. Data is
// fresh iff now - fetchedAt < ttl; once stale the next Get refetches. On
// fetch failure a fixed fallback set is returned and the cache stays stale,
// so the next Get retries instead of trusting the fallback as cached truth.
type Reference struct {
	fetcher  ReferenceFetcher
	ttl      time.Duration
	fallback []domain.Category
	now      func() time.Time
	logger   *slog.Logger

	group singleflight.Group

	mu        sync.Mutex
	entries   []domain.Category
	fetchedAt time.Time
}

func NewReference(fetcher ReferenceFetcher, ttl time.Duration, fallback []domain.Category, logger *slog.Logger) *Reference {
	return &Reference{
		fetcher:  fetcher,
		ttl:      ttl,
		fallback: fallback,
		now:      time.Now,
		logger:   logger.With("component", "reference_cache"),
	}
}

// WithClock replaces the cache's clock. Test hook.
func (r *Reference) WithClock(now func() time.Time) *Reference {
	r.now = now
	return r
}

// Get returns the cached entries when fresh, refetching otherwise. When the
// refetch fails, the fallback set is returned alongside the error so the
// caller still has usable data; the error is diagnostic. Cancellation is
// returned bare, with no fallback.
func (r *Reference) Get(ctx context.Context) ([]domain.Category, error) {
	r.mu.Lock()
	if r.fresh() {
		entries := append([]domain.Category(nil), r.entries...)
		r.mu.Unlock()
		return entries, nil
	}
	r.mu.Unlock()

	_, err, _ := r.group.Do("get", func() (any, error) {
		entries, err := r.fetcher.FetchCategories(ctx)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		r.mu.Lock()
		defer r.mu.Unlock()
		r.entries = entries
		r.fetchedAt = r.now()
		return nil, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		r.logger.Warn("category fetch failed, serving fallback", "error", err)
		return append([]domain.Category(nil), r.fallback...), err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Category(nil), r.entries...), nil
}

// Invalidate forces the next Get to refetch regardless of TTL.
func (r *Reference) Invalidate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fetchedAt = time.Time{}
}

// fresh reports whether the cached entries are within TTL. Callers hold mu.
func (r *Reference) fresh() bool {
	if len(r.entries) == 0 || r.fetchedAt.IsZero() {
		return false
	}
	return r.now().Sub(r.fetchedAt) < r.ttl
}
