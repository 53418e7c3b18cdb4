package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voyagen/mbient/internal/fetcher"
	"github.com/voyagen/mbient/internal/logger"
	"github.com/voyagen/mbient/internal/models"
)

// fakeFetcher serves canned bodies. URLs listed in gates block until the gate is closed.
type fakeFetcher struct {
	mu     sync.Mutex
	bodies map[string]string
	errs   map[string]error
	gates  map[string]chan struct{}
	calls  []string
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		bodies: map[string]string{},
		errs:   map[string]error{},
		gates:  map[string]chan struct{}{},
	}
}

func (f *fakeFetcher) FetchText(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	gate := f.gates[url]
	body, ok := f.bodies[url]
	err := f.errs[url]
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(body), nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

const (
	playlistA = "#EXTINF:-1,Channel A\nhttp://stream/a.m3u8\n"
	playlistB = "#EXTINF:-1,Channel B1\nhttp://stream/b1.m3u8\n#EXTINF:-1,Channel B2\nhttp://stream/b2.m3u8\n"
)

func newTestIngestor(f fetcher.Fetcher) *PlaylistIngestor {
	return NewPlaylistIngestor(f, fetcher.Parser{FallbackHost: "cdn.example:80"}, WithLogger(logger.Nop()))
}

func TestLoadPublishesParsedChannels(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://src/a.m3u"] = playlistA
	ing := newTestIngestor(f)

	require.NoError(t, ing.Load(context.Background(), "http://src/a.m3u"))

	snap := ing.Snapshot()
	assert.True(t, snap.Complete)
	assert.Equal(t, "http://src/a.m3u", snap.SourceURL)
	assert.Equal(t, uint64(1), snap.Generation)
	assert.Equal(t, []models.Channel{
		{StreamURL: "http://stream/a.m3u8", Title: "Channel A", LogoURL: "http://cdn.example:80/Channel_A.png"},
	}, snap.Channels)
}

func TestLoadReplacesPreviousResult(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://src/a.m3u"] = playlistA
	f.bodies["http://src/b.m3u"] = playlistB
	ing := newTestIngestor(f)

	require.NoError(t, ing.Load(context.Background(), "http://src/a.m3u"))
	require.NoError(t, ing.Load(context.Background(), "http://src/b.m3u"))

	snap := ing.Snapshot()
	require.Len(t, snap.Channels, 2)
	assert.Equal(t, "Channel B1", snap.Channels[0].Title)
	assert.Equal(t, "Channel B2", snap.Channels[1].Title)
}

func TestLoadSameSourceTwiceDoesNotMerge(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://src/a.m3u"] = playlistA
	ing := newTestIngestor(f)

	require.NoError(t, ing.Load(context.Background(), "http://src/a.m3u"))
	require.NoError(t, ing.Load(context.Background(), "http://src/a.m3u"))

	assert.Len(t, ing.Snapshot().Channels, 1)
}

func TestLoadMalformedURL(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://src/a.m3u"] = playlistA
	ing := newTestIngestor(f)
	require.NoError(t, ing.Load(context.Background(), "http://src/a.m3u"))
	before := ing.Snapshot()

	for _, raw := range []string{"not a url", "", "/relative/path.m3u", "http://%zz"} {
		err := ing.Load(context.Background(), raw)
		assert.ErrorIs(t, err, ErrMalformedSourceURL, raw)
	}

	assert.Equal(t, 1, f.callCount(), "no fetch for malformed urls")
	assert.Equal(t, before, ing.Snapshot())
}

func TestLoadFetchFailureKeepsPreviousResult(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://src/a.m3u"] = playlistA
	f.errs["http://src/down.m3u"] = errors.New("connection refused")
	ing := newTestIngestor(f)
	require.NoError(t, ing.Load(context.Background(), "http://src/a.m3u"))
	before := ing.Snapshot()

	err := ing.Load(context.Background(), "http://src/down.m3u")

	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, before, ing.Snapshot())

	// Still usable afterwards.
	require.NoError(t, ing.Load(context.Background(), "http://src/a.m3u"))
}

func TestLoadInvalidUTF8IsFetchFailure(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://src/bin.m3u"] = "#EXTINF:-1,\xff\xfe\nhttp://s/x\n"
	ing := newTestIngestor(f)

	err := ing.Load(context.Background(), "http://src/bin.m3u")

	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Empty(t, ing.Snapshot().Channels)
	assert.Equal(t, uint64(0), ing.Snapshot().Generation)
}

func TestLoadEmptyPlaylist(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://src/a.m3u"] = playlistA
	f.bodies["http://src/empty.m3u"] = "#EXTM3U\n"
	ing := newTestIngestor(f)
	require.NoError(t, ing.Load(context.Background(), "http://src/a.m3u"))

	require.NoError(t, ing.Load(context.Background(), "http://src/empty.m3u"))

	snap := ing.Snapshot()
	assert.NotNil(t, snap.Channels)
	assert.Empty(t, snap.Channels)
}

func TestObserversSeeClearBeforeFill(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://src/a.m3u"] = playlistA
	f.bodies["http://src/b.m3u"] = playlistB
	ing := newTestIngestor(f)

	var got []models.Snapshot
	unsubscribe := ing.Subscribe(func(s models.Snapshot) { got = append(got, s) })

	require.NoError(t, ing.Load(context.Background(), "http://src/a.m3u"))
	require.NoError(t, ing.Load(context.Background(), "http://src/b.m3u"))

	require.Len(t, got, 4)
	assert.False(t, got[0].Complete)
	assert.Empty(t, got[0].Channels)
	assert.True(t, got[1].Complete)
	assert.Len(t, got[1].Channels, 1)
	assert.False(t, got[2].Complete)
	assert.Empty(t, got[2].Channels)
	assert.True(t, got[3].Complete)
	assert.Len(t, got[3].Channels, 2)

	unsubscribe()
	unsubscribe()
	require.NoError(t, ing.Load(context.Background(), "http://src/a.m3u"))
	assert.Len(t, got, 4)
}

func TestObserversCannotMutateResult(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://src/a.m3u"] = playlistA
	ing := newTestIngestor(f)
	ing.Subscribe(func(s models.Snapshot) {
		for i := range s.Channels {
			s.Channels[i].Title = "mutated"
		}
	})

	require.NoError(t, ing.Load(context.Background(), "http://src/a.m3u"))

	snap := ing.Snapshot()
	snap.Channels[0].StreamURL = "changed"
	assert.Equal(t, "Channel A", ing.Snapshot().Channels[0].Title)
	assert.Equal(t, "http://stream/a.m3u8", ing.Snapshot().Channels[0].StreamURL)
}

func TestNewerLoadWinsWhenOlderCompletesLast(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://src/a.m3u"] = playlistA
	f.bodies["http://src/b.m3u"] = playlistB
	gateA := make(chan struct{})
	f.gates["http://src/a.m3u"] = gateA
	ing := newTestIngestor(f)

	var published []models.Snapshot
	var pubMu sync.Mutex
	ing.Subscribe(func(s models.Snapshot) {
		pubMu.Lock()
		published = append(published, s)
		pubMu.Unlock()
	})

	errA := make(chan error, 1)
	go func() { errA <- ing.Load(context.Background(), "http://src/a.m3u") }()
	require.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, ing.Load(context.Background(), "http://src/b.m3u"))
	close(gateA)

	require.ErrorIs(t, <-errA, ErrSuperseded)

	snap := ing.Snapshot()
	assert.Equal(t, "http://src/b.m3u", snap.SourceURL)
	require.Len(t, snap.Channels, 2)

	pubMu.Lock()
	defer pubMu.Unlock()
	for _, s := range published {
		assert.Equal(t, "http://src/b.m3u", s.SourceURL, "stale load must not publish")
	}
}

func TestNewerLoadCancelsInFlightFetch(t *testing.T) {
	ctxSeen := make(chan context.Context, 1)
	blocking := fetcherFunc(func(ctx context.Context, url string) ([]byte, error) {
		if url == "http://src/slow.m3u" {
			ctxSeen <- ctx
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return []byte(playlistB), nil
	})
	ing := newTestIngestor(blocking)

	errSlow := make(chan error, 1)
	go func() { errSlow <- ing.Load(context.Background(), "http://src/slow.m3u") }()
	slowCtx := <-ctxSeen

	require.NoError(t, ing.Load(context.Background(), "http://src/b.m3u"))

	select {
	case <-slowCtx.Done():
	case <-time.After(time.Second):
		t.Fatal("in-flight fetch was not cancelled")
	}
	require.ErrorIs(t, <-errSlow, ErrSuperseded)
	assert.Equal(t, "http://src/b.m3u", ing.Snapshot().SourceURL)
}

func TestFailedNewerLoadStillSupersedesOlder(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://src/a.m3u"] = playlistA
	f.errs["http://src/down.m3u"] = errors.New("boom")
	gateA := make(chan struct{})
	f.gates["http://src/a.m3u"] = gateA
	ing := newTestIngestor(f)

	errA := make(chan error, 1)
	go func() { errA <- ing.Load(context.Background(), "http://src/a.m3u") }()
	require.Eventually(t, func() bool { return f.callCount() == 1 }, time.Second, time.Millisecond)

	require.ErrorIs(t, ing.Load(context.Background(), "http://src/down.m3u"), ErrFetchFailed)
	close(gateA)

	require.ErrorIs(t, <-errA, ErrSuperseded)
	assert.Empty(t, ing.Snapshot().Channels)
}

func TestConcurrentLoadsEndWithLastIssued(t *testing.T) {
	const n = 20
	entered := make(chan string)
	release := make(map[string]chan struct{}, n)
	urls := make([]string, n)
	for i := range n {
		urls[i] = fmt.Sprintf("http://src/%02d.m3u", i)
		release[urls[i]] = make(chan struct{})
	}
	f := fetcherFunc(func(_ context.Context, url string) ([]byte, error) {
		entered <- url
		<-release[url]
		return []byte("#EXTINF:-1,From " + url + "\n" + url + "/stream\n"), nil
	})
	ing := newTestIngestor(f)

	var published []uint64
	var pubMu sync.Mutex
	ing.Subscribe(func(s models.Snapshot) {
		if s.Complete {
			pubMu.Lock()
			published = append(published, s.Generation)
			pubMu.Unlock()
		}
	})

	errs := make([]error, n)
	var wg sync.WaitGroup
	for i, u := range urls {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = ing.Load(context.Background(), u)
		}()
		// Wait until this load has taken its generation before issuing the next one.
		require.Equal(t, u, <-entered)
	}

	// Newest first, so every older fetch completes after the winner.
	for i := n - 1; i >= 0; i-- {
		close(release[urls[i]])
	}
	wg.Wait()

	for i, err := range errs[:n-1] {
		assert.ErrorIs(t, err, ErrSuperseded, "load %d", i)
	}
	require.NoError(t, errs[n-1])

	snap := ing.Snapshot()
	assert.Equal(t, uint64(n), snap.Generation)
	assert.Equal(t, urls[n-1], snap.SourceURL)
	require.Len(t, snap.Channels, 1)
	assert.Equal(t, urls[n-1]+"/stream", snap.Channels[0].StreamURL)
	assert.Equal(t, []uint64{n}, published)
}

func TestLoadAcceptsLinesOverOneMegabyte(t *testing.T) {
	f := newFakeFetcher()
	f.bodies["http://src/long.m3u"] = "#EXTINF:-1,A\nhttp://s/a\n" +
		"#" + strings.Repeat("x", 2<<20) + "\n" +
		"#EXTINF:-1,B\nhttp://s/b\n"
	ing := newTestIngestor(f)

	require.NoError(t, ing.Load(context.Background(), "http://src/long.m3u"))

	snap := ing.Snapshot()
	require.Len(t, snap.Channels, 2)
	assert.Equal(t, "B", snap.Channels[1].Title)
}

func TestParseDoesNotPublish(t *testing.T) {
	ing := newTestIngestor(newFakeFetcher())

	got := ing.Parse(playlistB)

	assert.Len(t, got, 2)
	assert.Empty(t, ing.Snapshot().Channels)
}

type fetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (fn fetcherFunc) FetchText(ctx context.Context, url string) ([]byte, error) { return fn(ctx, url) }
