package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client), mr
}

func TestPushPop(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	in := DispatchPayload{
		CampaignID:   "camp-1",
		ContactID:    "contact-1",
		ScheduledFor: time.Now().Add(time.Minute).UTC().Truncate(time.Second),
	}
	require.NoError(t, q.Push(ctx, in))

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	out, err := q.Pop(ctx, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "camp-1", out.CampaignID)
	assert.Equal(t, "contact-1", out.ContactID)
	assert.True(t, in.ScheduledFor.Equal(out.ScheduledFor))
	assert.False(t, out.EnqueuedAt.IsZero(), "Push should stamp EnqueuedAt")
}

func TestPopOrdering(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Push(ctx, DispatchPayload{CampaignID: id}))
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx, time.Second)
		require.NoError(t, err)
		assert.Equal(t, want, got.CampaignID)
	}
}

func TestPopEmpty(t *testing.T) {
	q, _ := setupQueue(t)

	_, err := q.Pop(context.Background(), 50*time.Millisecond)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestHeartbeat(t *testing.T) {
	q, mr := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Heartbeat(ctx, "worker-1"))
	require.NoError(t, q.Heartbeat(ctx, "worker-2"))

	live, err := q.LiveWorkers(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"worker-1", "worker-2"}, live)

	// Expired heartbeats drop off.
	mr.FastForward(2 * heartbeatTTL)
	live, err = q.LiveWorkers(ctx)
	require.NoError(t, err)
	assert.Empty(t, live)
}

func TestControlStop(t *testing.T) {
	q, _ := setupQueue(t)
	ctx := context.Background()

	msgs, closeSub, err := q.SubscribeControl(ctx)
	require.NoError(t, err)
	defer closeSub()

	require.NoError(t, q.PublishStop(ctx))

	select {
	case msg := <-msgs:
		assert.Equal(t, StopSignal, msg)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stop signal")
	}
}
