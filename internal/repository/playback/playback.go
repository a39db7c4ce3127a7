// Package playback defines the last-writer-wins store of per-room playback
// state. Implementations must reject writes whose UpdatedAt is older than the
// stored one so stale out-of-order deliveries cannot regress state.
package playback

import (
	"context"
	"errors"

	"github.com/watchsync/server/internal/domain"
)

var (
	ErrNotFound   = errors.New("playback state not found")
	ErrStaleState = errors.New("stale playback state")
)

type Store interface {
	GetPlaybackState(ctx context.Context, roomID string) (domain.PlaybackState, error)
	SetPlaybackState(ctx context.Context, roomID string, state domain.PlaybackState) error
	RemovePlaybackState(ctx context.Context, roomID string) error
}
