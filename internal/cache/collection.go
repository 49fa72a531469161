// Package cache holds the client-side caches: the sliding-window paginated
// video collection, the TTL-bound category taxonomy and the keyed search
// suggestion cache. Each cache owns its state and hands out copies only.
package cache

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"tubesync/internal/domain"
)

// PageFetcher fetches one page of a cursor-paginated collection. An empty
// cursor means the first page.
type PageFetcher interface {
	FetchPage(ctx context.Context, cursor string) (domain.VideoPage, error)
}

// CollectionState is a snapshot of the collection cache, safe to hand to
// callers. Cursor is the server-issued continuation token; empty means the
// collection is exhausted (or the cache is cold).
type CollectionState struct {
	Videos []domain.Video
	Cursor string
}

// Collection caches a growable, cursor-paginated video list with a sliding
// window: at most maxWindow entries are retained, oldest evicted first.
// Concurrent fetches against the same cursor are coalesced, so the window
// and cursor invariants hold under re-entrant calls.
type Collection struct {
	fetcher   PageFetcher
	maxWindow int
	logger    *slog.Logger

	group singleflight.Group

	mu        sync.Mutex
	videos    []domain.Video
	cursor    string
	populated bool
}

func NewCollection(fetcher PageFetcher, maxWindow int, logger *slog.Logger) *Collection {
	return &Collection{
		fetcher:   fetcher,
		maxWindow: maxWindow,
		logger:    logger.With("component", "collection_cache"),
	}
}

// Load returns the cached state if populated, otherwise performs a cold
// fetch of the first page and installs it.
func (c *Collection) Load(ctx context.Context) (CollectionState, error) {
	c.mu.Lock()
	if c.populated {
		state := c.snapshot()
		c.mu.Unlock()
		return state, nil
	}
	c.mu.Unlock()

	_, err, _ := c.group.Do("load", func() (any, error) {
		page, err := c.fetcher.FetchPage(ctx, "")
		if err != nil {
			return nil, err
		}
		// A result arriving after cancellation must not be installed.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.populated {
			return nil, nil
		}
		c.videos = dedupe(page.Videos)
		c.cursor = page.NextPageToken
		c.populated = true
		c.evict()
		return nil, nil
	})
	if err != nil {
		return CollectionState{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(), nil
}

// FetchNextPage fetches the page at the stored cursor, appends its items in
// fetch order, applies FIFO eviction and installs the new cursor. Returns
// domain.ErrExhausted when there is no cursor. A failed or cancelled fetch
// leaves the cache exactly as it was.
func (c *Collection) FetchNextPage(ctx context.Context) (CollectionState, error) {
	c.mu.Lock()
	if !c.populated || c.cursor == "" {
		c.mu.Unlock()
		return CollectionState{}, domain.ErrExhausted
	}
	cursor := c.cursor
	c.mu.Unlock()

	_, err, _ := c.group.Do("page:"+cursor, func() (any, error) {
		page, err := c.fetcher.FetchPage(ctx, cursor)
		if err != nil {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		c.mu.Lock()
		defer c.mu.Unlock()
		if c.cursor != cursor {
			// Another caller already advanced past this cursor.
			return nil, nil
		}
		c.append(page.Videos)
		c.cursor = page.NextPageToken
		c.evict()
		return nil, nil
	})
	if err != nil {
		return CollectionState{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot(), nil
}

// Reset clears items and cursor; the next Load performs a cold fetch.
func (c *Collection) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.videos = nil
	c.cursor = ""
	c.populated = false
}

func (c *Collection) append(videos []domain.Video) {
	seen := make(map[string]bool, len(c.videos))
	for _, v := range c.videos {
		seen[v.ID] = true
	}
	for _, v := range videos {
		if seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		c.videos = append(c.videos, v)
	}
}

// evict keeps the maxWindow most-recently-fetched entries. Callers hold mu.
func (c *Collection) evict() {
	if c.maxWindow > 0 && len(c.videos) > c.maxWindow {
		evicted := len(c.videos) - c.maxWindow
		c.videos = append([]domain.Video(nil), c.videos[evicted:]...)
		c.logger.Debug("evicted oldest entries", "count", evicted, "window", c.maxWindow)
	}
}

func (c *Collection) snapshot() CollectionState {
	return CollectionState{
		Videos: append([]domain.Video(nil), c.videos...),
		Cursor: c.cursor,
	}
}

func dedupe(videos []domain.Video) []domain.Video {
	seen := make(map[string]bool, len(videos))
	out := videos[:0:0]
	for _, v := range videos {
		if seen[v.ID] {
			continue
		}
		seen[v.ID] = true
		out = append(out, v)
	}
	return out
}

// Filter is a pure projection over the caller's working copy of videos; it
// never touches cache state. Used for client-side category filtering.
func Filter(videos []domain.Video, pred func(domain.Video) bool) []domain.Video {
	var out []domain.Video
	for _, v := range videos {
		if pred(v) {
			out = append(out, v)
		}
	}
	return out
}

// ByCategory returns a predicate matching videos in the given category.
// The "all" category matches everything.
func ByCategory(categoryID string) func(domain.Video) bool {
	return func(v domain.Video) bool {
		return categoryID == "all" || v.CategoryID == categoryID
	}
}
