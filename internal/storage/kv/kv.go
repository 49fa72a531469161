// Package kv defines the durable key-value seam shared by every component.
// All persistence in the module goes through this interface, so any backend
// (memory, sqlite, postgres, valkey) can be substituted.
package kv

import "context"

// Store is a durable string key-value store. Values are self-describing
// serialized structures; keys are opaque strings partitioned by namespace
// so no two components contend on the same key.
type Store interface {
	// Get returns the stored value and whether the key exists.
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
}

// Key namespaces. Per-identity keys carry the identity as a suffix.
const (
	HistoryKey   = "history"
	PlaylistsKey = "playlists"

	notificationsPrefix = "yt_notifications_"
	lastCheckedPrefix   = "yt_last_checked_"
)

// NotificationsKey returns the key holding identity's notification list.
func NotificationsKey(identity string) string {
	return notificationsPrefix + identity
}

// LastCheckedKey returns the key holding identity's sync watermark.
func LastCheckedKey(identity string) string {
	return lastCheckedPrefix + identity
}
