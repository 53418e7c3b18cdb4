package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueIsFIFO(t *testing.T) {
	r, mr := newTestRedis(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, Enqueue(ctx, r, RefreshQueue, RefreshJob{SourceURL: "http://src/1.m3u", RequestedAt: at}))
	require.NoError(t, Enqueue(ctx, r, RefreshQueue, RefreshJob{SourceURL: "http://src/2.m3u", RequestedAt: at}))
	assert.True(t, mr.Exists("mbient:jobs:refresh"))

	first, err := Dequeue(ctx, r, RefreshQueue, time.Second)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "http://src/1.m3u", first.SourceURL)
	assert.True(t, at.Equal(first.RequestedAt))

	second, err := Dequeue(ctx, r, RefreshQueue, time.Second)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, "http://src/2.m3u", second.SourceURL)
}

func TestDequeueTimesOutEmpty(t *testing.T) {
	r, _ := newTestRedis(t)

	job, err := Dequeue(context.Background(), r, RefreshQueue, time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestDequeueRejectsBadPayload(t *testing.T) {
	r, mr := newTestRedis(t)
	_, err := mr.Lpush(r.Key(RefreshQueue), "not json")
	require.NoError(t, err)

	_, err = Dequeue(context.Background(), r, RefreshQueue, time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue unmarshal")
}
