package store

import (
	"context"
	"errors"

	"github.com/voyagen/mbient/internal/models"
)

// ErrNotFound is returned when a source does not exist.
var ErrNotFound = errors.New("not found")

// Store persists the last complete channel list of each playlist source.
type Store interface {
	// ReplaceChannels creates the source if needed and replaces all of its channels
	// with channels, preserving their order. Returns the source id.
	ReplaceChannels(ctx context.Context, sourceURL, name string, channels []models.Channel) (int64, error)
	// ListChannels returns the stored channels of a source in playlist order.
	ListChannels(ctx context.Context, sourceURL string) ([]models.Channel, error)
	// GetSourceByURL returns a single source by its playlist URL.
	GetSourceByURL(ctx context.Context, sourceURL string) (*models.Source, error)
	// ListSources returns all sources.
	ListSources(ctx context.Context) ([]models.Source, error)
}
