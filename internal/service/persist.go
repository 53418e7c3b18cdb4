package service

import (
	"context"
	"time"

	"github.com/voyagen/mbient/internal/logger"
	"github.com/voyagen/mbient/internal/models"
	"github.com/voyagen/mbient/internal/store"
)

// NameFunc resolves a display name for a playlist URL. It may return "".
type NameFunc func(sourceURL string) string

// PersistSnapshots returns an Observer that writes every complete snapshot to s.
// Cleared snapshots are skipped. Write errors are logged, never returned, so a
// database outage does not affect the published result.
func PersistSnapshots(s store.Store, name NameFunc, timeout time.Duration, log logger.Logger) Observer {
	return func(snap models.Snapshot) {
		if !snap.Complete || snap.SourceURL == "" {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		var n string
		if name != nil {
			n = name(snap.SourceURL)
		}
		id, err := s.ReplaceChannels(ctx, snap.SourceURL, n, snap.Channels)
		if err != nil {
			log.Errorf("persist[%d]: %s: %v", snap.Generation, snap.SourceURL, err)
			return
		}
		log.Debugf("persist[%d]: stored %d channels as source_id=%d", snap.Generation, len(snap.Channels), id)
	}
}
