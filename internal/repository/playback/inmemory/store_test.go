package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/repository/playback"
)

func TestPlaybackState(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	_, err := store.GetPlaybackState(ctx, "room-1")
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

	err = store.SetPlaybackState(ctx, "room-1", domain.PlaybackState{
		Position:  50,
		UpdatedAt: 500,
	})
	assert.ErrorIs(t, err, playback.ErrStaleState)

	got, err = store.GetPlaybackState(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, state, got, "stale write must not change the stored state")

	newer := domain.PlaybackState{
		VideoURL:  "dQw4w9WgXcQ",
		Position:  130,
		UpdatedAt: 2_000,
	}
	require.NoError(t, store.SetPlaybackState(ctx, "room-1", newer))

	got, err = store.GetPlaybackState(ctx, "room-1")
	require.NoError(t, err)
	assert.Equal(t, newer, got)

	require.NoError(t, store.RemovePlaybackState(ctx, "room-1"))
	assert.ErrorIs(t, store.RemovePlaybackState(ctx, "room-1"), playback.ErrNotFound)
}
