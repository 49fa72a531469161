package library

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tubesync/internal/domain"
	"tubesync/internal/storage/kv"
)

// Playlist is a named, ordered collection of videos, unique by video ID.
type Playlist struct {
	ID     int64          `json:"id"`
	Name   string         `json:"name"`
	Videos []domain.Video `json:"videos"`
}

// Playlists manages the user's playlists behind the durable store.
type Playlists struct {
	store kv.Store
	now   func() time.Time
}

func NewPlaylists(store kv.Store) *Playlists {
	return &Playlists{store: store, now: time.Now}
}

// Create adds an empty playlist and returns it.
func (p *Playlists) Create(ctx context.Context, name string) (Playlist, error) {
	playlists, err := p.List(ctx)
	if err != nil {
		return Playlist{}, err
	}

	playlist := Playlist{
		ID:     p.now().UnixMilli(),
		Name:   name,
		Videos: []domain.Video{},
	}
	playlists = append(playlists, playlist)

	if err := p.save(ctx, playlists); err != nil {
		return Playlist{}, err
	}
	return playlist, nil
}

// AddVideo appends video to the playlist; adding an already-present video is
// a no-op.
func (p *Playlists) AddVideo(ctx context.Context, playlistID int64, video domain.Video) error {
	playlists, err := p.List(ctx)
	if err != nil {
		return err
	}

	for i := range playlists {
		if playlists[i].ID != playlistID {
			continue
		}
		for _, v := range playlists[i].Videos {
			if v.ID == video.ID {
				return nil
			}
		}
		playlists[i].Videos = append(playlists[i].Videos, video)
		return p.save(ctx, playlists)
	}
	return fmt.Errorf("playlist %d not found", playlistID)
}

// RemoveVideo removes a video from the playlist, if present.
func (p *Playlists) RemoveVideo(ctx context.Context, playlistID int64, videoID string) error {
	playlists, err := p.List(ctx)
	if err != nil {
		return err
	}

	for i := range playlists {
		if playlists[i].ID != playlistID {
			continue
		}
		kept := playlists[i].Videos[:0]
		for _, v := range playlists[i].Videos {
			if v.ID != videoID {
				kept = append(kept, v)
			}
		}
		playlists[i].Videos = kept
		return p.save(ctx, playlists)
	}
	return fmt.Errorf("playlist %d not found", playlistID)
}

// List returns all playlists.
func (p *Playlists) List(ctx context.Context) ([]Playlist, error) {
	value, ok, err := p.store.Get(ctx, kv.PlaylistsKey)
	if err != nil {
		return nil, &domain.StoreError{Op: "get", Key: kv.PlaylistsKey, Err: err}
	}
	if !ok {
		return nil, nil
	}
	var playlists []Playlist
	if err := json.Unmarshal([]byte(value), &playlists); err != nil {
		return nil, &domain.StoreError{Op: "get", Key: kv.PlaylistsKey, Err: err}
	}
	return playlists, nil
}

func (p *Playlists) save(ctx context.Context, playlists []Playlist) error {
	value, err := json.Marshal(playlists)
	if err != nil {
		return &domain.StoreError{Op: "set", Key: kv.PlaylistsKey, Err: err}
	}
	if err := p.store.Set(ctx, kv.PlaylistsKey, string(value)); err != nil {
		return &domain.StoreError{Op: "set", Key: kv.PlaylistsKey, Err: err}
	}
	return nil
}
