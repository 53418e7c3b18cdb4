package models

import "time"

// Source is a playlist URL whose last complete snapshot has been persisted.
type Source struct {
	ID           int64      `json:"id,omitempty"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	ChannelCount int        `json:"channel_count"`
	LastUpdated  *time.Time `json:"last_updated,omitempty"`
	CreatedAt    *time.Time `json:"created_at,omitempty"`
}
