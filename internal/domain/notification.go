package domain

import "time"

// Notification is one entry in an identity's persisted notification list.
type Notification struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	IsRead      bool      `json:"isRead"`
	PublishedAt time.Time `json:"publishedAt"`
}

// FeedFailure records a feed whose poll failed during a sync pass. Failures
// are reported as data; they never abort the pass.
type FeedFailure struct {
	FeedID string
	Err    error
}

// SyncReport summarizes one completed sync pass.
type SyncReport struct {
	Identity      string
	Feeds         int
	New           int
	Failed        []FeedFailure
	Notifications []Notification
	Duration      time.Duration
}
