package models

import "time"

// Snapshot is the published result of one playlist load. Observers always
// receive whole snapshots; a snapshot is never modified after publication.
type Snapshot struct {
	Generation uint64    `json:"generation"`
	SourceURL  string    `json:"source_url,omitempty"`
	Channels   []Channel `json:"channels"`
	// Complete is false for the cleared snapshot published before a new result fills in.
	Complete  bool      `json:"complete"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}
