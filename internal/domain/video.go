package domain

import "time"

// Video is an item from the upstream catalog. The caches treat it as opaque
// beyond ID, which is the de-duplication key.
type Video struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	ChannelID    string    `json:"channelId"`
	ChannelTitle string    `json:"channelTitle"`
	CategoryID   string    `json:"categoryId"`
	ThumbnailURL string    `json:"thumbnailUrl"`
	PublishedAt  time.Time `json:"publishedAt"`
}

// VideoPage is one page of a cursor-paginated collection. An empty
// NextPageToken means the collection is exhausted.
type VideoPage struct {
	Videos        []Video `json:"videos"`
	NextPageToken string  `json:"nextPageToken"`
}

// Category is a reference-data entry from the category taxonomy.
type Category struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// SubscriptionFeed identifies one upstream channel to poll for new videos.
// Supplied by the caller; not owned by this module.
type SubscriptionFeed struct {
	FeedID          string `json:"feedId"`
	DisplayName     string `json:"displayName"`
	CredentialScope string `json:"credentialScope,omitempty"`
}
