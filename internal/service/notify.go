package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tubesync/internal/domain"
	"tubesync/internal/storage/kv"
)

// SyncEngine performs watermark-based incremental notification sync: one
// request per subscribed feed, fanned out concurrently, joined on full
// settlement, merged against the persisted per-identity notification list.
//
// A pass moves Idle -> FetchingAll -> Merging -> Persisted -> Idle. The
// watermark is read once at pass start and frozen; after a successful pass
// it is advanced to the pass-start time, so items published mid-pass are
// picked up by the next pass instead of being skipped.
type SyncEngine struct {
	source    Source
	store     Store
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time

	// passMu serializes sync passes; fan-out happens inside one pass, but
	// no two passes mutate the same identity's keys concurrently.
	passMu sync.Mutex

	subMu       sync.Mutex
	subscribers []chan Event
}

func NewSyncEngine(source Source, store Store, publisher Publisher, logger *slog.Logger) *SyncEngine {
	return &SyncEngine{
		source:    source,
		store:     store,
		publisher: publisher,
		logger:    logger.With("component", "sync_engine"),
		now:       time.Now,
	}
}

// WithClock replaces the engine's clock. Test hook.
func (e *SyncEngine) WithClock(now func() time.Time) *SyncEngine {
	e.now = now
	return e
}

// Subscribe returns a channel of pass state transitions. Events are dropped
// rather than block a slow subscriber.
func (e *SyncEngine) Subscribe() <-chan Event {
	ch := make(chan Event, 8)
	e.subMu.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.subMu.Unlock()
	return ch
}

func (e *SyncEngine) emit(event Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

type feedResult struct {
	video *domain.Video
	err   error
}

// StartSync runs one sync pass for identity over feeds, using token as the
// opaque credential for every feed request. Individual feed failures are
// collected in the report; only a durable-store failure aborts the pass, in
// which case the watermark stays un-advanced and the next pass retries the
// same window.
func (e *SyncEngine) StartSync(ctx context.Context, feeds []domain.SubscriptionFeed, token, identity string) (*domain.SyncReport, error) {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	passStart := e.now()

	watermark, err := e.loadWatermark(ctx, identity)
	if err != nil {
		e.emit(Event{Type: EventError, Identity: identity, Err: err})
		return nil, err
	}

	existing, err := e.loadNotifications(ctx, identity)
	if err != nil {
		e.emit(Event{Type: EventError, Identity: identity, Err: err})
		return nil, err
	}

	e.emit(Event{Type: EventLoading, Identity: identity})
	e.logger.Info("starting sync pass",
		"identity", identity,
		"feeds", len(feeds),
		"watermark", watermark,
	)

	// Fan-out: one request per feed, each outcome isolated. Results are
	// indexed by feed position so merge order follows the static feed list,
	// not network completion order.
	results := make([]feedResult, len(feeds))
	var wg sync.WaitGroup
	for i, feed := range feeds {
		wg.Add(1)
		go func(i int, feed domain.SubscriptionFeed) {
			defer wg.Done()
			video, err := e.source.LatestVideo(ctx, feed.FeedID, token)
			results[i] = feedResult{video: video, err: err}
		}(i, feed)
	}
	wg.Wait()

	// A pass cancelled mid-fan-out must not apply results: no merge, no
	// persist, and the watermark stays where it was so the next pass
	// retries the same window.
	if err := ctx.Err(); err != nil {
		e.emit(Event{Type: EventError, Identity: identity, Err: err})
		return nil, err
	}

	// Merge. An item is new iff published strictly after the frozen
	// watermark. The ID check keeps a retried window (watermark persist
	// failure on a previous pass) from re-delivering duplicates.
	known := make(map[string]bool, len(existing))
	for _, n := range existing {
		known[n.ID] = true
	}

	var newRecords []domain.Notification
	var failures []domain.FeedFailure
	for i, feed := range feeds {
		res := results[i]
		if res.err != nil {
			// Cancellation is not a feed failure.
			if errors.Is(res.err, context.Canceled) || errors.Is(res.err, context.DeadlineExceeded) {
				continue
			}
			e.logger.Warn("feed poll failed", "feed_id", feed.FeedID, "error", res.err)
			failures = append(failures, domain.FeedFailure{FeedID: feed.FeedID, Err: res.err})
			continue
		}
		if res.video == nil || !res.video.PublishedAt.After(watermark) {
			continue
		}
		if known[res.video.ID] {
			continue
		}
		known[res.video.ID] = true
		newRecords = append(newRecords, domain.Notification{
			ID:          res.video.ID,
			Text:        fmt.Sprintf("New video from %s: %s", feed.DisplayName, res.video.Title),
			IsRead:      false,
			PublishedAt: res.video.PublishedAt,
		})
	}

	merged := append(newRecords, existing...)

	if err := e.saveNotifications(ctx, identity, merged); err != nil {
		e.emit(Event{Type: EventError, Identity: identity, Err: err})
		return nil, err
	}
	if err := e.saveWatermark(ctx, identity, passStart); err != nil {
		e.emit(Event{Type: EventError, Identity: identity, Err: err})
		return nil, err
	}

	if e.publisher != nil {
		for i := range newRecords {
			if err := e.publisher.Publish(ctx, identity, &newRecords[i]); err != nil {
				e.logger.Warn("publish notification failed", "id", newRecords[i].ID, "error", err)
			}
		}
	}

	report := &domain.SyncReport{
		Identity:      identity,
		Feeds:         len(feeds),
		New:           len(newRecords),
		Failed:        failures,
		Notifications: merged,
		Duration:      e.now().Sub(passStart),
	}

	e.emit(Event{
		Type:          EventLoaded,
		Identity:      identity,
		Notifications: merged,
		Failures:      failures,
	})
	e.logger.Info("sync pass completed",
		"identity", identity,
		"new", report.New,
		"failed", len(failures),
		"total", len(merged),
		"duration", report.Duration,
	)

	return report, nil
}

// Notifications returns identity's persisted notification list.
func (e *SyncEngine) Notifications(ctx context.Context, identity string) ([]domain.Notification, error) {
	return e.loadNotifications(ctx, identity)
}

// UnreadCount returns how many of identity's notifications are unread.
func (e *SyncEngine) UnreadCount(ctx context.Context, identity string) (int, error) {
	notifications, err := e.loadNotifications(ctx, identity)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range notifications {
		if !n.IsRead {
			count++
		}
	}
	return count, nil
}

// MarkRead flags one notification as read.
func (e *SyncEngine) MarkRead(ctx context.Context, identity, notificationID string) error {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	notifications, err := e.loadNotifications(ctx, identity)
	if err != nil {
		return err
	}
	for i := range notifications {
		if notifications[i].ID == notificationID {
			if notifications[i].IsRead {
				return nil
			}
			notifications[i].IsRead = true
			return e.saveNotifications(ctx, identity, notifications)
		}
	}
	return nil
}

// ClearAll empties identity's notification list. The watermark is untouched,
// so a later pass only yields items newer than the last successful pass.
func (e *SyncEngine) ClearAll(ctx context.Context, identity string) error {
	e.passMu.Lock()
	defer e.passMu.Unlock()

	key := kv.NotificationsKey(identity)
	if err := e.store.Remove(ctx, key); err != nil {
		return &domain.StoreError{Op: "remove", Key: key, Err: err}
	}
	return nil
}

func (e *SyncEngine) loadWatermark(ctx context.Context, identity string) (time.Time, error) {
	key := kv.LastCheckedKey(identity)
	value, ok, err := e.store.Get(ctx, key)
	if err != nil {
		return time.Time{}, &domain.StoreError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		// First pass for this identity: everything upstream is new.
		return time.Time{}, nil
	}
	watermark, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, &domain.StoreError{Op: "get", Key: key, Err: fmt.Errorf("parse watermark: %w", err)}
	}
	return watermark, nil
}

func (e *SyncEngine) saveWatermark(ctx context.Context, identity string, at time.Time) error {
	key := kv.LastCheckedKey(identity)
	if err := e.store.Set(ctx, key, at.UTC().Format(time.RFC3339Nano)); err != nil {
		return &domain.StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}

func (e *SyncEngine) loadNotifications(ctx context.Context, identity string) ([]domain.Notification, error) {
	key := kv.NotificationsKey(identity)
	value, ok, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, &domain.StoreError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return nil, nil
	}
	var notifications []domain.Notification
	if err := json.Unmarshal([]byte(value), &notifications); err != nil {
		return nil, &domain.StoreError{Op: "get", Key: key, Err: fmt.Errorf("decode notifications: %w", err)}
	}
	return notifications, nil
}

func (e *SyncEngine) saveNotifications(ctx context.Context, identity string, notifications []domain.Notification) error {
	key := kv.NotificationsKey(identity)
	if notifications == nil {
		notifications = []domain.Notification{}
	}
	value, err := json.Marshal(notifications)
	if err != nil {
		return &domain.StoreError{Op: "set", Key: key, Err: err}
	}
	if err := e.store.Set(ctx, key, string(value)); err != nil {
		return &domain.StoreError{Op: "set", Key: key, Err: err}
	}
	return nil
}
