package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchsync/server/internal/domain"
)

func TestPublishIsRoomScoped(t *testing.T) {
	transport := NewTransport()
	ctx := context.Background()

	var room1, room2 []domain.SyncEvent
	_, err := transport.Subscribe(ctx, "room-1", func(ev domain.SyncEvent) {
		room1 = append(room1, ev)
	})
	require.NoError(t, err)
	_, err = transport.Subscribe(ctx, "room-2", func(ev domain.SyncEvent) {
		room2 = append(room2, ev)
	})
	require.NoError(t, err)

	require.NoError(t, transport.Publish(ctx, "room-1", domain.SyncEvent{
		Kind:     domain.EventPlay,
		OriginID: "A",
	}))

	require.Len(t, room1, 1)
	assert.Equal(t, domain.EventPlay, room1[0].Kind)
	assert.Empty(t, room2, "events must not leak across rooms")
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	transport := NewTransport()
	ctx := context.Background()

	var seen int
	unsubscribe, err := transport.Subscribe(ctx, "room-1", func(domain.SyncEvent) {
		seen++
	})
	require.NoError(t, err)

	require.NoError(t, transport.Publish(ctx, "room-1", domain.SyncEvent{
		Kind:     domain.EventPlay,
		OriginID: "A",
	}))
	require.Equal(t, 1, seen)

	unsubscribe()

	require.NoError(t, transport.Publish(ctx, "room-1", domain.SyncEvent{
		Kind:     domain.EventPause,
		OriginID: "A",
	}))
	assert.Equal(t, 1, seen, "no delivery after unsubscribe")
}

func TestAllRoomSubscribersReceive(t *testing.T) {
	transport := NewTransport()
	ctx := context.Background()

	var a, b int
	_, err := transport.Subscribe(ctx, "room-1", func(domain.SyncEvent) { a++ })
	require.NoError(t, err)
	_, err = transport.Subscribe(ctx, "room-1", func(domain.SyncEvent) { b++ })
	require.NoError(t, err)

	require.NoError(t, transport.Publish(ctx, "room-1", domain.SyncEvent{
		Kind:     domain.EventSeek,
		Position: 42,
		OriginID: "A",
	}))

	assert.Equal(t, 1, a)
	assert.Equal(t, 1, b)
}
