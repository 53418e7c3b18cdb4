package models

// Channel is a single playable entry parsed from an M3U playlist.
// StreamURL identifies the entry within one parse result; entries are not deduplicated.
type Channel struct {
	StreamURL string `json:"stream_url"`
	Title     string `json:"title"`
	LogoURL   string `json:"logo_url"`
}
