package service

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/mbient/internal/cache"
	"github.com/voyagen/mbient/internal/logger"
)

func TestRefreshWorkerLoadsQueuedJobs(t *testing.T) {
	refreshPollTimeout = time.Second
	t.Cleanup(func() { refreshPollTimeout = 5 * time.Second })

	mr := miniredis.RunT(t)
	rds, err := cache.New("redis://"+mr.Addr(), "mbient")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rds.Close() })

	f := newFakeFetcher()
	f.bodies["http://src/a.m3u"] = playlistA
	f.bodies["http://src/b.m3u"] = playlistB
	ing := newTestIngestor(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunRefreshWorker(ctx, rds, ing, logger.Nop())
	}()

	require.NoError(t, cache.Enqueue(ctx, rds, cache.RefreshQueue, cache.RefreshJob{SourceURL: "http://src/a.m3u"}))
	require.NoError(t, cache.Enqueue(ctx, rds, cache.RefreshQueue, cache.RefreshJob{SourceURL: "http://src/b.m3u"}))

	assert.Eventually(t, func() bool {
		return ing.Snapshot().SourceURL == "http://src/b.m3u"
	}, 5*time.Second, 20*time.Millisecond)
	f.mu.Lock()
	assert.Equal(t, []string{"http://src/a.m3u", "http://src/b.m3u"}, f.calls)
	f.mu.Unlock()
	assert.Len(t, ing.Snapshot().Channels, 2)

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("refresh worker did not stop")
	}
}

func TestRefreshWorkerSurvivesBadURL(t *testing.T) {
	refreshPollTimeout = time.Second
	t.Cleanup(func() { refreshPollTimeout = 5 * time.Second })

	mr := miniredis.RunT(t)
	rds, err := cache.New("redis://"+mr.Addr(), "mbient")
	require.NoError(t, err)
	t.Cleanup(func() { _ = rds.Close() })

	f := newFakeFetcher()
	f.bodies["http://src/a.m3u"] = playlistA
	ing := newTestIngestor(f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		RunRefreshWorker(ctx, rds, ing, logger.Nop())
	}()

	require.NoError(t, cache.Enqueue(ctx, rds, cache.RefreshQueue, cache.RefreshJob{SourceURL: "not a url"}))
	require.NoError(t, cache.Enqueue(ctx, rds, cache.RefreshQueue, cache.RefreshJob{SourceURL: "http://src/a.m3u"}))

	assert.Eventually(t, func() bool {
		return ing.Snapshot().SourceURL == "http://src/a.m3u"
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	<-done
}
