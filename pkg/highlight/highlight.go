// Package highlight contains the core domain types for the home run notifier.
package highlight

import "time"

// Playback is one encoded variant of a feed's video.
type Playback struct {
	Name string `json:"name"` // Variant name, e.g. "mp4Avc"
	URL  string `json:"url"`
}

// Feed is a delivery channel for a highlight's video.
type Feed struct {
	Type      string      `json:"type"` // Delivery-type tag, e.g. "CMS"
	Playbacks []*Playback `json:"playbacks"`
}

// Highlight is one matched media item returned by the search API.
type Highlight struct {
	ID          string  `json:"id"` // Upstream identifier, used as the dedup key
	Description string  `json:"description"`
	Feeds       []*Feed `json:"feeds"`
}

// Payload is the notification body sent to the webhook.
type Payload struct {
	Text string `json:"text"`
}

// Record is an archived notification.
type Record struct {
	SentAt      time.Time `json:"sent_at"`
	HighlightID string    `json:"highlight_id"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Text        string    `json:"text"`
}
