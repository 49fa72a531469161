// Package youtube is the upstream API client: most-popular video pages, the
// category taxonomy, search suggestions and per-channel latest-video polls.
package youtube

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"tubesync/internal/domain"
)

// Categories the taxonomy endpoint returns that are not worth a filter
// button, plus the cap on how many buttons the taxonomy yields.
var excludedCategories = map[string]bool{
	"Nonprofits & Activism": true,
	"People & Blogs":        true,
}

const maxCategories = 10

// Config holds API client configuration.
type Config struct {
	BaseURL        string
	SuggestURL     string
	Key            string
	RegionCode     string
	PageSize       int
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type Client struct {
	httpClient     *http.Client
	baseURL        string
	suggestURL     string
	key            string
	regionCode     string
	pageSize       int
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.SuggestURL == "" {
		cfg.SuggestURL = "https://suggestqueries.google.com/complete/search"
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		suggestURL:     cfg.SuggestURL,
		key:            cfg.Key,
		regionCode:     cfg.RegionCode,
		pageSize:       cfg.PageSize,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "youtube"),
	}
}

// PopularVideos fetches one page of the most-popular chart. An empty
// pageToken fetches the first page.
func (c *Client) PopularVideos(ctx context.Context, pageToken string) (domain.VideoPage, error) {
	q := url.Values{}
	q.Set("part", "snippet,contentDetails,statistics")
	q.Set("chart", "mostPopular")
	q.Set("maxResults", fmt.Sprint(c.pageSize))
	q.Set("regionCode", c.regionCode)
	q.Set("key", c.key)
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var resp listResponse
	if err := c.getJSON(ctx, c.baseURL+"/videos?"+q.Encode(), "", &resp); err != nil {
		return domain.VideoPage{}, err
	}

	return domain.VideoPage{
		Videos:        c.transform(resp.Items),
		NextPageToken: resp.NextPageToken,
	}, nil
}

// Categories fetches the category taxonomy, shaped for the filter row: the
// "All" entry first, excluded categories dropped, capped at maxCategories.
func (c *Client) Categories(ctx context.Context) ([]domain.Category, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("regionCode", c.regionCode)
	q.Set("key", c.key)

	var resp listResponse
	if err := c.getJSON(ctx, c.baseURL+"/videoCategories?"+q.Encode(), "", &resp); err != nil {
		return nil, err
	}

	categories := []domain.Category{{ID: "all", Title: "All"}}
	for _, item := range resp.Items {
		if excludedCategories[item.Snippet.Title] {
			continue
		}
		categories = append(categories, domain.Category{
			ID:    item.ID.VideoID,
			Title: item.Snippet.Title,
		})
		if len(categories) == maxCategories+1 {
			break
		}
	}
	return categories, nil
}

// Suggestions fetches search suggestions for query. The endpoint answers
// with ["query", ["suggestion", ...]].
func (c *Client) Suggestions(ctx context.Context, query string) ([]string, error) {
	u := c.suggestURL + "?client=firefox&ds=yt&q=" + url.QueryEscape(query)

	var resp []json.RawMessage
	if err := c.getJSON(ctx, u, "", &resp); err != nil {
		return nil, err
	}

	var suggestions []string
	if len(resp) > 1 {
		if err := json.Unmarshal(resp[1], &suggestions); err != nil {
			return nil, &domain.FetchError{URL: u, Err: fmt.Errorf("decode suggestions: %w", err)}
		}
	}
	return suggestions, nil
}

// LatestVideo fetches the most recently published video of a channel using
// the caller's bearer token. Returns nil when the channel has no videos.
func (c *Client) LatestVideo(ctx context.Context, channelID, token string) (*domain.Video, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("channelId", channelID)
	q.Set("order", "date")
	q.Set("type", "video")
	q.Set("maxResults", "1")

	var resp listResponse
	if err := c.getJSON(ctx, c.baseURL+"/search?"+q.Encode(), token, &resp); err != nil {
		return nil, err
	}

	videos := c.transform(resp.Items)
	if len(videos) == 0 {
		return nil, nil
	}
	return &videos[0], nil
}

// Subscriptions lists the channels the credential's owner follows, as feeds
// to poll during notification sync.
func (c *Client) Subscriptions(ctx context.Context, token string) ([]domain.SubscriptionFeed, error) {
	q := url.Values{}
	q.Set("part", "snippet")
	q.Set("mine", "true")
	q.Set("maxResults", "25")

	var resp listResponse
	if err := c.getJSON(ctx, c.baseURL+"/subscriptions?"+q.Encode(), token, &resp); err != nil {
		return nil, err
	}

	feeds := make([]domain.SubscriptionFeed, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Snippet.ResourceID.ChannelID == "" {
			continue
		}
		feeds = append(feeds, domain.SubscriptionFeed{
			FeedID:      item.Snippet.ResourceID.ChannelID,
			DisplayName: item.Snippet.Title,
		})
	}
	return feeds, nil
}

func (c *Client) getJSON(ctx context.Context, url, token string, out any) error {
	var err error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		err = c.doRequest(ctx, url, token, out)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}

func (c *Client) doRequest(ctx context.Context, url, token string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tubesync/1.0")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &domain.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return &domain.FetchError{URL: url, Status: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.FetchError{URL: url, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func (c *Client) transform(items []listItem) []domain.Video {
	videos := make([]domain.Video, 0, len(items))

	for _, item := range items {
		if item.ID.VideoID == "" {
			continue
		}

		publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			c.logger.Warn("failed to parse publish date",
				"video_id", item.ID.VideoID,
				"published_at", item.Snippet.PublishedAt,
			)
			continue
		}

		thumbnail := item.Snippet.Thumbnails.High.URL
		if thumbnail == "" {
			thumbnail = item.Snippet.Thumbnails.Medium.URL
		}

		videos = append(videos, domain.Video{
			ID:           item.ID.VideoID,
			Title:        item.Snippet.Title,
			ChannelID:    item.Snippet.ChannelID,
			ChannelTitle: item.Snippet.ChannelTitle,
			CategoryID:   item.Snippet.CategoryID,
			ThumbnailURL: thumbnail,
			PublishedAt:  publishedAt,
		})
	}

	return videos
}
