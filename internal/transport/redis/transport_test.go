package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchsync/server/internal/domain"
)

func newTestTransport(t *testing.T) *Transport {
	t.Helper()

	s, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(s.Close)

	rc := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	t.Cleanup(func() { rc.Close() })

	return NewTransport(rc, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestPublishSubscribe(t *testing.T) {
	transport := newTestTransport(t)
	ctx := context.Background()

	received := make(chan domain.SyncEvent, 1)
	unsubscribe, err := transport.Subscribe(ctx, "room-1", func(ev domain.SyncEvent) {
		received <- ev
	})
	require.NoError(t, err)
	defer unsubscribe()

	sent := domain.SyncEvent{
		Kind:      domain.EventSeek,
		Position:  42,
		EmittedAt: 1_000,
		OriginID:  "A",
	}
	require.NoError(t, transport.Publish(ctx, "room-1", sent))

	select {
	case got := <-received:
		assert.Equal(t, sent, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}

func TestSubscribeIsRoomScoped(t *testing.T) {
	transport := newTestTransport(t)
	ctx := context.Background()

	room2 := make(chan domain.SyncEvent, 1)
	unsubscribe, err := transport.Subscribe(ctx, "room-2", func(ev domain.SyncEvent) {
		room2 <- ev
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, transport.Publish(ctx, "room-1", domain.SyncEvent{
		Kind:     domain.EventPlay,
		OriginID: "A",
	}))

	select {
	case ev := <-room2:
		t.Fatalf("received event for another room: %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestTargetedStateSurvivesTheWire(t *testing.T) {
	transport := newTestTransport(t)
	ctx := context.Background()

	received := make(chan domain.SyncEvent, 1)
	unsubscribe, err := transport.Subscribe(ctx, "room-1", func(ev domain.SyncEvent) {
		received <- ev
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, transport.Publish(ctx, "room-1", domain.SyncEvent{
		Kind:      domain.EventSyncState,
		EmittedAt: 1_000,
		OriginID:  "A",
		TargetID:  "B",
		State: &domain.PlaybackState{
			VideoURL:  "dQw4w9WgXcQ",
			IsPlaying: true,
			Position:  99.5,
			UpdatedAt: 1_000,
		},
	}))

	select {
	case got := <-received:
		require.NotNil(t, got.State)
		assert.Equal(t, "B", got.TargetID)
		assert.Equal(t, 99.5, got.State.Position)
		assert.True(t, got.State.IsPlaying)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published event")
	}
}
