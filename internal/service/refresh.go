package service

import (
	"context"
	"errors"
	"time"

	"github.com/voyagen/mbient/internal/cache"
	"github.com/voyagen/mbient/internal/logger"
)

// refreshPollTimeout bounds each blocking dequeue so the worker notices shutdown.
var refreshPollTimeout = 5 * time.Second

// Reload loads the current source again. It is a no-op when nothing has been loaded yet.
func (p *PlaylistIngestor) Reload(ctx context.Context) error {
	src := p.Snapshot().SourceURL
	if src == "" {
		return nil
	}
	return p.Load(ctx, src)
}

// RunRefreshWorker continuously dequeues refresh jobs from Redis and loads
// them through the ingestor. It stops when ctx is cancelled.
func RunRefreshWorker(ctx context.Context, rds *cache.Redis, p *PlaylistIngestor, log logger.Logger) {
	log.Logf("refresh worker started")
	for {
		select {
		case <-ctx.Done():
			log.Logf("refresh worker stopping")
			return
		default:
		}

		job, err := cache.Dequeue(ctx, rds, cache.RefreshQueue, refreshPollTimeout)
		if err != nil {
			log.Errorf("refresh worker: dequeue error: %v", err)
			time.Sleep(2 * time.Second)
			continue
		}
		if job == nil {
			continue // timeout, loop back to check ctx
		}

		log.Debugf("refresh worker: processing source=%q requested_at=%s", job.SourceURL, job.RequestedAt.Format(time.RFC3339))
		if err := p.Load(ctx, job.SourceURL); err != nil && !errors.Is(err, ErrSuperseded) {
			log.Warnf("refresh worker: load %s: %v", job.SourceURL, err)
		}
	}
}
