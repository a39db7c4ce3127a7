package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/watchsync/server/internal/repository/room"
)

func (r repo) getMemberKey(roomID, memberID string) string {
	return "room:" + roomID + ":member:" + memberID
}

func (r repo) getMemberListKey(roomID string) string {
	return "room:" + roomID + ":memberlist"
}

func (r repo) getMemberRoomKey(memberID string) string {
	return "member:" + memberID + ":room"
}

func (r repo) SetMember(ctx context.Context, params *room.SetMemberParams) error {
	pipe := r.rc.TxPipeline()

	member := room.Member{
		Username:  params.Username,
		Color:     params.Color,
		AvatarURL: params.AvatarURL,
		IsAdmin:   params.IsAdmin,
		IsOnline:  params.IsOnline,
	}
	memberKey := r.getMemberKey(params.RoomID, params.MemberID)
	pipe.HSet(ctx, memberKey, member)
	pipe.Expire(ctx, memberKey, r.expireDuration)

	memberListKey := r.getMemberListKey(params.RoomID)
	r.addWithIncrement(ctx, pipe, memberListKey, params.MemberID)
	pipe.Expire(ctx, memberListKey, r.expireDuration)

	memberRoomKey := r.getMemberRoomKey(params.MemberID)
	pipe.Set(ctx, memberRoomKey, params.RoomID, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to set member: %w", err)
	}

	return nil
}

func (r repo) GetMember(ctx context.Context, roomID, memberID string) (room.Member, error) {
	memberKey := r.getMemberKey(roomID, memberID)
	res, err := r.rc.Exists(ctx, memberKey).Result()
	if err != nil {
		return room.Member{}, fmt.Errorf("failed to get member: %w", err)
	}
	if res == 0 {
		return room.Member{}, room.ErrMemberNotFound
	}

	var member room.Member
	if err := r.rc.HGetAll(ctx, memberKey).Scan(&member); err != nil {
		return room.Member{}, fmt.Errorf("failed to get member: %w", err)
	}

	r.rc.Expire(ctx, memberKey, r.expireDuration)

	return member, nil
}

func (r repo) GetMemberIDs(ctx context.Context, roomID string) ([]string, error) {
	memberListKey := r.getMemberListKey(roomID)
	memberIDs, err := r.rc.ZRange(ctx, memberListKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get member ids: %w", err)
	}

	r.rc.Expire(ctx, memberListKey, r.expireDuration)

	return memberIDs, nil
}

func (r repo) GetMemberRoomID(ctx context.Context, memberID string) (string, error) {
	roomID, err := r.rc.Get(ctx, r.getMemberRoomKey(memberID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", room.ErrMemberNotFound
		}
		return "", fmt.Errorf("failed to get member room id: %w", err)
	}

	return roomID, nil
}

func (r repo) IsMemberAdmin(ctx context.Context, roomID, memberID string) (bool, error) {
	isAdmin, err := r.rc.HGet(ctx, r.getMemberKey(roomID, memberID), "is_admin").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, room.ErrMemberNotFound
		}
		return false, fmt.Errorf("failed to check if member is admin: %w", err)
	}

	return isAdmin == "1", nil
}

func (r repo) UpdateMemberIsAdmin(ctx context.Context, roomID, memberID string, isAdmin bool) error {
	memberKey := r.getMemberKey(roomID, memberID)
	res, err := r.rc.Exists(ctx, memberKey).Result()
	if err != nil {
		return fmt.Errorf("failed to update member is admin: %w", err)
	}
	if res == 0 {
		return room.ErrMemberNotFound
	}

	if err := r.rc.HSet(ctx, memberKey, "is_admin", isAdmin).Err(); err != nil {
		return fmt.Errorf("failed to update member is admin: %w", err)
	}

	return nil
}

func (r repo) UpdateMemberIsOnline(ctx context.Context, roomID, memberID string, isOnline bool) error {
	memberKey := r.getMemberKey(roomID, memberID)
	res, err := r.rc.Exists(ctx, memberKey).Result()
	if err != nil {
		return fmt.Errorf("failed to update member is online: %w", err)
	}
	if res == 0 {
		return room.ErrMemberNotFound
	}

	if err := r.rc.HSet(ctx, memberKey, "is_online", isOnline).Err(); err != nil {
		return fmt.Errorf("failed to update member is online: %w", err)
	}

	return nil
}

func (r repo) RemoveMember(ctx context.Context, params *room.RemoveMemberParams) error {
	pipe := r.rc.TxPipeline()

	pipe.Del(ctx, r.getMemberKey(params.RoomID, params.MemberID))
	pipe.ZRem(ctx, r.getMemberListKey(params.RoomID), params.MemberID)
	pipe.Del(ctx, r.getMemberRoomKey(params.MemberID))

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	return nil
}
