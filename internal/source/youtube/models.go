package youtube

import "encoding/json"

// listResponse is the shared shape of the Data API v3 list endpoints.
type listResponse struct {
	NextPageToken string     `json:"nextPageToken"`
	Items         []listItem `json:"items"`
}

type listItem struct {
	ID      itemID  `json:"id"`
	Snippet snippet `json:"snippet"`
}

// itemID is either a plain string (videos endpoint) or an object holding
// videoId (search endpoint).
type itemID struct {
	VideoID string
}

func (id *itemID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &id.VideoID)
	}
	var obj struct {
		VideoID string `json:"videoId"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	id.VideoID = obj.VideoID
	return nil
}

type snippet struct {
	Title        string     `json:"title"`
	ChannelID    string     `json:"channelId"`
	ChannelTitle string     `json:"channelTitle"`
	CategoryID   string     `json:"categoryId"`
	PublishedAt  string     `json:"publishedAt"`
	Thumbnails   thumbnails `json:"thumbnails"`
	ResourceID   resourceID `json:"resourceId"`
}

// resourceID appears on subscription items and points at the channel.
type resourceID struct {
	ChannelID string `json:"channelId"`
}

type thumbnails struct {
	High   thumbnail `json:"high"`
	Medium thumbnail `json:"medium"`
}

type thumbnail struct {
	URL string `json:"url"`
}
