package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/repository/connection"
	"github.com/watchsync/server/internal/repository/room"
)

const roomIDLength = 8

type CreateRoomCreateSessionParams struct {
	Username        string
	Color           string
	AvatarURL       string
	InitialVideoURL string
}

func (s *service) CreateRoomCreateSession(ctx context.Context, params *CreateRoomCreateSessionParams) (string, error) {
	connectToken := uuid.NewString()
	if err := s.roomRepo.SetCreateRoomSession(ctx, &room.SetCreateRoomSessionParams{
		ConnectToken:    connectToken,
		Username:        params.Username,
		Color:           params.Color,
		AvatarURL:       params.AvatarURL,
		InitialVideoURL: params.InitialVideoURL,
	}); err != nil {
		return "", fmt.Errorf("failed to set create room session: %w", err)
	}

	return connectToken, nil
}

type CreateRoomJoinSessionParams struct {
	Username  string
	Color     string
	AvatarURL string
	RoomID    string
}

func (s *service) CreateRoomJoinSession(ctx context.Context, params *CreateRoomJoinSessionParams) (string, error) {
	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, params.RoomID)
	if err != nil {
		return "", fmt.Errorf("failed to get member ids: %w", err)
	}
	if len(memberIDs) == 0 {
		return "", ErrRoomNotFound
	}
	if len(memberIDs) >= s.membersLimit {
		return "", ErrMembersLimitReached
	}

	connectToken := uuid.NewString()
	if err := s.roomRepo.SetJoinRoomSession(ctx, &room.SetJoinRoomSessionParams{
		ConnectToken: connectToken,
		Username:     params.Username,
		Color:        params.Color,
		AvatarURL:    params.AvatarURL,
		RoomID:       params.RoomID,
	}); err != nil {
		return "", fmt.Errorf("failed to set join room session: %w", err)
	}

	return connectToken, nil
}

type CreateRoomParams struct {
	ConnectToken string
	Conn         *websocket.Conn
}

type CreateRoomResponse struct {
	RoomID    string
	MemberID  string
	AuthToken string
	Playback  domain.PlaybackState
}

func (s *service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	session, err := s.roomRepo.GetCreateRoomSession(ctx, params.ConnectToken)
	if err != nil {
		if errors.Is(err, room.ErrSessionNotFound) {
			return CreateRoomResponse{}, ErrInvalidConnectToken
		}
		return CreateRoomResponse{}, fmt.Errorf("failed to get create room session: %w", err)
	}

	roomID := s.generator.GenerateRandomString(roomIDLength)
	memberID := uuid.NewString()

	if err := s.roomRepo.SetMember(ctx, &room.SetMemberParams{
		MemberID:  memberID,
		Username:  session.Username,
		Color:     session.Color,
		AvatarURL: session.AvatarURL,
		IsAdmin:   true,
		IsOnline:  true,
		RoomID:    roomID,
	}); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to set member: %w", err)
	}

	playbackState := domain.PlaybackState{
		VideoURL:  session.InitialVideoURL,
		IsPlaying: false,
		Position:  0,
		UpdatedAt: s.clock.Now().UnixMilli(),
	}
	if err := s.playbackStore.SetPlaybackState(ctx, roomID, playbackState); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to set playback state: %w", err)
	}

	if err := s.connRepo.Add(params.Conn, memberID); err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to add connection: %w", err)
	}

	authToken, err := s.generateAuthToken(memberID, roomID)
	if err != nil {
		return CreateRoomResponse{}, fmt.Errorf("failed to generate auth token: %w", err)
	}

	s.ensureRoomSubscription(ctx, roomID)

	return CreateRoomResponse{
		RoomID:    roomID,
		MemberID:  memberID,
		AuthToken: authToken,
		Playback:  playbackState,
	}, nil
}

type JoinRoomParams struct {
	ConnectToken string
	Conn         *websocket.Conn
}

type JoinRoomResponse struct {
	RoomID       string
	AuthToken    string
	JoinedMember domain.Member
	MemberList   []domain.Member
	Playback     domain.PlaybackState
	Queue        []domain.QueueEntry
	Conns        []*websocket.Conn
}

// JoinRoom admits a new member. The response carries the room's current
// playback snapshot: the joiner's client uses it as the initial sync, so every
// join triggers a snapshot pull no matter how many broadcast events it missed.
func (s *service) JoinRoom(ctx context.Context, params *JoinRoomParams) (JoinRoomResponse, error) {
	session, err := s.roomRepo.GetJoinRoomSession(ctx, params.ConnectToken)
	if err != nil {
		if errors.Is(err, room.ErrSessionNotFound) {
			return JoinRoomResponse{}, ErrInvalidConnectToken
		}
		return JoinRoomResponse{}, fmt.Errorf("failed to get join room session: %w", err)
	}

	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, session.RoomID)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get member ids: %w", err)
	}
	if len(memberIDs) == 0 {
		return JoinRoomResponse{}, ErrRoomNotFound
	}
	if len(memberIDs) >= s.membersLimit {
		return JoinRoomResponse{}, ErrMembersLimitReached
	}

	memberID := uuid.NewString()
	if err := s.roomRepo.SetMember(ctx, &room.SetMemberParams{
		MemberID:  memberID,
		Username:  session.Username,
		Color:     session.Color,
		AvatarURL: session.AvatarURL,
		IsAdmin:   false,
		IsOnline:  true,
		RoomID:    session.RoomID,
	}); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to set member: %w", err)
	}

	if err := s.connRepo.Add(params.Conn, memberID); err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to add connection: %w", err)
	}

	authToken, err := s.generateAuthToken(memberID, session.RoomID)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to generate auth token: %w", err)
	}

	playbackState, err := s.playbackStore.GetPlaybackState(ctx, session.RoomID)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get playback state: %w", err)
	}

	memberList, err := s.getMemberList(ctx, session.RoomID)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get member list: %w", err)
	}

	queue, err := s.getQueue(ctx, session.RoomID)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get queue: %w", err)
	}

	conns, err := s.getConnsByRoomID(ctx, session.RoomID, memberID)
	if err != nil {
		return JoinRoomResponse{}, fmt.Errorf("failed to get conns: %w", err)
	}

	s.ensureRoomSubscription(ctx, session.RoomID)

	return JoinRoomResponse{
		RoomID:    session.RoomID,
		AuthToken: authToken,
		JoinedMember: domain.Member{
			ID:        memberID,
			Username:  session.Username,
			Color:     session.Color,
			AvatarURL: session.AvatarURL,
			IsAdmin:   false,
			IsOnline:  true,
		},
		MemberList: memberList,
		Playback:   playbackState,
		Queue:      queue,
		Conns:      conns,
	}, nil
}

type RejoinRoomParams struct {
	AuthToken string
	Conn      *websocket.Conn
}

type RejoinRoomResponse struct {
	RoomID     string
	MemberID   string
	MemberList []domain.Member
	Playback   domain.PlaybackState
	Queue      []domain.QueueEntry
	Conns      []*websocket.Conn
}

// RejoinRoom reconnects a member using the auth token issued on the original
// join, reclaiming their identity and admin status.
func (s *service) RejoinRoom(ctx context.Context, params *RejoinRoomParams) (RejoinRoomResponse, error) {
	claims, err := s.parseAuthToken(params.AuthToken)
	if err != nil {
		return RejoinRoomResponse{}, ErrInvalidAuthToken
	}

	if _, err := s.roomRepo.GetMember(ctx, claims.RoomID, claims.MemberID); err != nil {
		if errors.Is(err, room.ErrMemberNotFound) {
			return RejoinRoomResponse{}, ErrMemberNotFound
		}
		return RejoinRoomResponse{}, fmt.Errorf("failed to get member: %w", err)
	}

	if err := s.connRepo.Add(params.Conn, claims.MemberID); err != nil {
		return RejoinRoomResponse{}, fmt.Errorf("failed to add connection: %w", err)
	}

	if err := s.roomRepo.UpdateMemberIsOnline(ctx, claims.RoomID, claims.MemberID, true); err != nil {
		return RejoinRoomResponse{}, fmt.Errorf("failed to update member is online: %w", err)
	}

	playbackState, err := s.playbackStore.GetPlaybackState(ctx, claims.RoomID)
	if err != nil {
		return RejoinRoomResponse{}, fmt.Errorf("failed to get playback state: %w", err)
	}

	memberList, err := s.getMemberList(ctx, claims.RoomID)
	if err != nil {
		return RejoinRoomResponse{}, fmt.Errorf("failed to get member list: %w", err)
	}

	queue, err := s.getQueue(ctx, claims.RoomID)
	if err != nil {
		return RejoinRoomResponse{}, fmt.Errorf("failed to get queue: %w", err)
	}

	conns, err := s.getConnsByRoomID(ctx, claims.RoomID, claims.MemberID)
	if err != nil {
		return RejoinRoomResponse{}, fmt.Errorf("failed to get conns: %w", err)
	}

	s.ensureRoomSubscription(ctx, claims.RoomID)

	return RejoinRoomResponse{
		RoomID:     claims.RoomID,
		MemberID:   claims.MemberID,
		MemberList: memberList,
		Playback:   playbackState,
		Queue:      queue,
		Conns:      conns,
	}, nil
}

type DisconnectMemberResponse struct {
	RoomID     string
	MemberID   string
	MemberList []domain.Member
	Conns      []*websocket.Conn
}

// DisconnectMember handles a dropped websocket. The member stays in the room
// (they may rejoin with their auth token); only the online flag changes.
// Room state itself expires via key TTLs once everyone is gone.
func (s *service) DisconnectMember(ctx context.Context, conn *websocket.Conn) (DisconnectMemberResponse, error) {
	memberID, err := s.connRepo.RemoveByConn(conn)
	if err != nil {
		if errors.Is(err, connection.ErrNotFound) {
			return DisconnectMemberResponse{}, ErrMemberNotFound
		}
		return DisconnectMemberResponse{}, fmt.Errorf("failed to remove connection: %w", err)
	}

	roomID, err := s.roomRepo.GetMemberRoomID(ctx, memberID)
	if err != nil {
		return DisconnectMemberResponse{}, fmt.Errorf("failed to get member room id: %w", err)
	}

	if err := s.roomRepo.UpdateMemberIsOnline(ctx, roomID, memberID, false); err != nil {
		return DisconnectMemberResponse{}, fmt.Errorf("failed to update member is online: %w", err)
	}

	memberList, err := s.getMemberList(ctx, roomID)
	if err != nil {
		return DisconnectMemberResponse{}, fmt.Errorf("failed to get member list: %w", err)
	}

	conns, err := s.getConnsByRoomID(ctx, roomID, memberID)
	if err != nil {
		return DisconnectMemberResponse{}, fmt.Errorf("failed to get conns: %w", err)
	}

	s.releaseRoomSubscription(ctx, roomID)

	return DisconnectMemberResponse{
		RoomID:     roomID,
		MemberID:   memberID,
		MemberList: memberList,
		Conns:      conns,
	}, nil
}
