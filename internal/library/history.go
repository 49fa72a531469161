// Package library holds the user's persisted collections: watch history and
// playlists. Both live behind the durable key-value seam.
package library

import (
	"context"
	"encoding/json"

	"tubesync/internal/domain"
	"tubesync/internal/storage/kv"
)

// History is the watch history: newest first, unique by video ID.
type History struct {
	store kv.Store
}

func NewHistory(store kv.Store) *History {
	return &History{store: store}
}

// Add records a watched video at the head of the history, removing any
// earlier entry with the same ID.
func (h *History) Add(ctx context.Context, video domain.Video) error {
	videos, err := h.List(ctx)
	if err != nil {
		return err
	}

	out := make([]domain.Video, 0, len(videos)+1)
	out = append(out, video)
	for _, v := range videos {
		if v.ID != video.ID {
			out = append(out, v)
		}
	}

	return h.save(ctx, out)
}

// List returns the history, newest first.
func (h *History) List(ctx context.Context) ([]domain.Video, error) {
	value, ok, err := h.store.Get(ctx, kv.HistoryKey)
	if err != nil {
		return nil, &domain.StoreError{Op: "get", Key: kv.HistoryKey, Err: err}
	}
	if !ok {
		return nil, nil
	}
	var videos []domain.Video
	if err := json.Unmarshal([]byte(value), &videos); err != nil {
		return nil, &domain.StoreError{Op: "get", Key: kv.HistoryKey, Err: err}
	}
	return videos, nil
}

// Clear empties the history.
func (h *History) Clear(ctx context.Context) error {
	if err := h.store.Remove(ctx, kv.HistoryKey); err != nil {
		return &domain.StoreError{Op: "remove", Key: kv.HistoryKey, Err: err}
	}
	return nil
}

func (h *History) save(ctx context.Context, videos []domain.Video) error {
	value, err := json.Marshal(videos)
	if err != nil {
		return &domain.StoreError{Op: "set", Key: kv.HistoryKey, Err: err}
	}
	if err := h.store.Set(ctx, kv.HistoryKey, string(value)); err != nil {
		return &domain.StoreError{Op: "set", Key: kv.HistoryKey, Err: err}
	}
	return nil
}
