package service

import "tubesync/internal/domain"

// EventType marks a sync-pass state transition observable by a UI layer.
type EventType string

const (
	EventLoading EventType = "loading"
	EventLoaded  EventType = "loaded"
	EventError   EventType = "error"
)

// Event carries a state transition to subscribers. Loaded events hold the
// final merged notification list and the per-feed failure list.
type Event struct {
	Type          EventType
	Identity      string
	Notifications []domain.Notification
	Failures      []domain.FeedFailure
	Err           error
}
