package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/repository/playback"
)

// setIfNewerScript writes the playback hash only when the incoming updated_at
// is not older than the stored one. Returns 1 on write, 0 on stale reject.
const setIfNewerScript = `
	local stored = redis.call('HGET', KEYS[1], 'updated_at')
	if stored and tonumber(stored) > tonumber(ARGV[4]) then
		return 0
	end
	redis.call('HSET', KEYS[1],
		'video_url', ARGV[1],
		'is_playing', ARGV[2],
		'position', ARGV[3],
		'updated_at', ARGV[4]
	)
	return 1
`

type store struct {
	rc               *redis.Client
	setIfNewerScript string
	expireDuration   time.Duration
}

func NewStore(rc *redis.Client, expireDuration time.Duration) *store {
	return &store{
		rc:               rc,
		setIfNewerScript: rc.ScriptLoad(context.Background(), setIfNewerScript).Val(),
		expireDuration:   expireDuration,
	}
}

func (s *store) getPlaybackKey(roomID string) string {
	return "room:" + roomID + ":playback"
}

func (s *store) GetPlaybackState(ctx context.Context, roomID string) (domain.PlaybackState, error) {
	playbackKey := s.getPlaybackKey(roomID)
	fields, err := s.rc.HGetAll(ctx, playbackKey).Result()
	if err != nil {
		return domain.PlaybackState{}, fmt.Errorf("failed to get playback state: %w", err)
	}

	if len(fields) == 0 {
		return domain.PlaybackState{}, playback.ErrNotFound
	}

	s.rc.Expire(ctx, playbackKey, s.expireDuration)

	position, _ := strconv.ParseFloat(fields["position"], 64)
	updatedAt, _ := strconv.ParseInt(fields["updated_at"], 10, 64)

	return domain.PlaybackState{
		VideoURL:  fields["video_url"],
		IsPlaying: fields["is_playing"] == "1",
		Position:  position,
		UpdatedAt: updatedAt,
	}, nil
}

func (s *store) SetPlaybackState(ctx context.Context, roomID string, state domain.PlaybackState) error {
	playbackKey := s.getPlaybackKey(roomID)

	isPlaying := "0"
	if state.IsPlaying {
		isPlaying = "1"
	}

	res, err := s.rc.EvalSha(ctx, s.setIfNewerScript,
		[]string{playbackKey},
		state.VideoURL,
		isPlaying,
		strconv.FormatFloat(state.Position, 'f', -1, 64),
		strconv.FormatInt(state.UpdatedAt, 10),
	).Int()
	if err != nil {
		return fmt.Errorf("failed to set playback state: %w", err)
	}

	if res == 0 {
		return playback.ErrStaleState
	}

	s.rc.Expire(ctx, playbackKey, s.expireDuration)

	return nil
}

func (s *store) RemovePlaybackState(ctx context.Context, roomID string) error {
	res, err := s.rc.Del(ctx, s.getPlaybackKey(roomID)).Result()
	if err != nil {
		return fmt.Errorf("failed to remove playback state: %w", err)
	}

	if res == 0 {
		return playback.ErrNotFound
	}

	return nil
}
