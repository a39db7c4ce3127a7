package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/repository/playback"
)

func TestPlaybackState(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	rc := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	store := NewStore(rc, time.Hour)

	ctx := context.Background()

	_, err = store.GetPlaybackState(ctx, "room-1")
	assert.ErrorIs(t, err, playback.ErrNotFound)

	state := domain.PlaybackState{
		VideoURL:  "dQw4w9WgXcQ",
		IsPlaying: true,
		Position:  123.5,
		UpdatedAt: 1_000,
	}
	require.NoError(t, store.SetPlaybackState(ctx, "room-1", state))

	got, err := store.GetPlaybackState(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, state, got)

	// an older write must lose and leave the stored state untouched
	err = store.SetPlaybackState(ctx, "room-1", domain.PlaybackState{
		VideoURL:  "dQw4w9WgXcQ",
		IsPlaying: false,
		Position:  50,
		UpdatedAt: 500,
	})
	assert.ErrorIs(t, err, playback.ErrStaleState)

	got, err = store.GetPlaybackState(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, state, got, "stale write must not change the stored state")

	// a newer write wins
	newer := domain.PlaybackState{
		VideoURL:  "dQw4w9WgXcQ",
		IsPlaying: false,
		Position:  130,
		UpdatedAt: 2_000,
	}
	require.NoError(t, store.SetPlaybackState(ctx, "room-1", newer))

	got, err = store.GetPlaybackState(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, newer, got)

	require.NoError(t, store.RemovePlaybackState(ctx, "room-1"))
	assert.ErrorIs(t, store.RemovePlaybackState(ctx, "room-1"), playback.ErrNotFound)

	_, err = store.GetPlaybackState(ctx, "room-1")
	assert.ErrorIs(t, err, playback.ErrNotFound)
}

func TestPlaybackStateExpires(t *testing.T) {
	s, err := miniredis.Run()
	require.NoError(t, err)
	defer s.Close()

	rc := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	store := NewStore(rc, time.Hour)

	ctx := context.Background()

	require.NoError(t, store.SetPlaybackState(ctx, "room-1", domain.PlaybackState{
		VideoURL:  "dQw4w9WgXcQ",
		UpdatedAt: 1_000,
	}))

	s.FastForward(2 * time.Hour)

	_, err = store.GetPlaybackState(ctx, "room-1")
	assert.ErrorIs(t, err, playback.ErrNotFound)
}
