package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/watchsync/server/internal/repository/room"
)

// connect sessions are short-lived: they only bridge the REST validation
// round-trip and the websocket upgrade
const sessionExpireDuration = 30 * time.Second

func (r repo) getCreateRoomSessionKey(connectToken string) string {
	return "create-room-session:" + connectToken
}

func (r repo) getJoinRoomSessionKey(connectToken string) string {
	return "join-room-session:" + connectToken
}

func (r repo) SetCreateRoomSession(ctx context.Context, params *room.SetCreateRoomSessionParams) error {
	pipe := r.rc.TxPipeline()

	session := room.CreateRoomSession{
		Username:        params.Username,
		Color:           params.Color,
		AvatarURL:       params.AvatarURL,
		InitialVideoURL: params.InitialVideoURL,
	}
	sessionKey := r.getCreateRoomSessionKey(params.ConnectToken)
	pipe.HSet(ctx, sessionKey, session)
	pipe.Expire(ctx, sessionKey, sessionExpireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set create room session: %w", err)
	}

	return nil
}

func (r repo) GetCreateRoomSession(ctx context.Context, connectToken string) (room.CreateRoomSession, error) {
	sessionKey := r.getCreateRoomSessionKey(connectToken)
	res, err := r.rc.Exists(ctx, sessionKey).Result()
	if err != nil {
		return room.CreateRoomSession{}, fmt.Errorf("failed to get create room session: %w", err)
	}
	if res == 0 {
		return room.CreateRoomSession{}, room.ErrSessionNotFound
	}

	var session room.CreateRoomSession
	if err := r.rc.HGetAll(ctx, sessionKey).Scan(&session); err != nil {
		return room.CreateRoomSession{}, fmt.Errorf("failed to get create room session: %w", err)
	}

	r.rc.Del(ctx, sessionKey)

	return session, nil
}

func (r repo) SetJoinRoomSession(ctx context.Context, params *room.SetJoinRoomSessionParams) error {
	pipe := r.rc.TxPipeline()

	session := room.JoinRoomSession{
		Username:  params.Username,
		Color:     params.Color,
		AvatarURL: params.AvatarURL,
		RoomID:    params.RoomID,
	}
	sessionKey := r.getJoinRoomSessionKey(params.ConnectToken)
	pipe.HSet(ctx, sessionKey, session)
	pipe.Expire(ctx, sessionKey, sessionExpireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set join room session: %w", err)
	}

	return nil
}

func (r repo) GetJoinRoomSession(ctx context.Context, connectToken string) (room.JoinRoomSession, error) {
	sessionKey := r.getJoinRoomSessionKey(connectToken)
	res, err := r.rc.Exists(ctx, sessionKey).Result()
	if err != nil {
		return room.JoinRoomSession{}, fmt.Errorf("failed to get join room session: %w", err)
	}
	if res == 0 {
		return room.JoinRoomSession{}, room.ErrSessionNotFound
	}

	var session room.JoinRoomSession
	if err := r.rc.HGetAll(ctx, sessionKey).Scan(&session); err != nil {
		return room.JoinRoomSession{}, fmt.Errorf("failed to get join room session: %w", err)
	}

	r.rc.Del(ctx, sessionKey)

	return session, nil
}
