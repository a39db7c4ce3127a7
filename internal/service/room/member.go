package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/repository/connection"
	"github.com/watchsync/server/internal/repository/room"
)

type RemoveMemberParams struct {
	RemovedMemberID string
	SenderID        string
	RoomID          string
}

type RemoveMemberResponse struct {
	RemovedMemberID string
	// RemovedConn is nil when the member is connected to another instance
	RemovedConn *websocket.Conn
	MemberList  []domain.Member
	Conns       []*websocket.Conn
}

// RemoveMember kicks a member out of the room. Unlike a disconnect, the
// member record is deleted entirely, so their auth token no longer lets them
// rejoin.
func (s *service) RemoveMember(ctx context.Context, params *RemoveMemberParams) (RemoveMemberResponse, error) {
	if err := s.checkIfMemberAdmin(ctx, params.RoomID, params.SenderID); err != nil {
		return RemoveMemberResponse{}, err
	}
	if params.RemovedMemberID == params.SenderID {
		return RemoveMemberResponse{}, ErrPermissionDenied
	}

	if _, err := s.roomRepo.GetMember(ctx, params.RoomID, params.RemovedMemberID); err != nil {
		if errors.Is(err, room.ErrMemberNotFound) {
			return RemoveMemberResponse{}, ErrMemberNotFound
		}
		return RemoveMemberResponse{}, fmt.Errorf("failed to get member: %w", err)
	}

	if err := s.roomRepo.RemoveMember(ctx, &room.RemoveMemberParams{
		MemberID: params.RemovedMemberID,
		RoomID:   params.RoomID,
	}); err != nil {
		return RemoveMemberResponse{}, fmt.Errorf("failed to remove member: %w", err)
	}

	removedConn, err := s.connRepo.GetConn(params.RemovedMemberID)
	if err == nil {
		if err := s.connRepo.RemoveByMemberID(params.RemovedMemberID); err != nil && !errors.Is(err, connection.ErrNotFound) {
			return RemoveMemberResponse{}, fmt.Errorf("failed to remove connection: %w", err)
		}
	}

	memberList, err := s.getMemberList(ctx, params.RoomID)
	if err != nil {
		return RemoveMemberResponse{}, fmt.Errorf("failed to get member list: %w", err)
	}

	conns, err := s.getConnsByRoomID(ctx, params.RoomID, params.SenderID)
	if err != nil {
		return RemoveMemberResponse{}, fmt.Errorf("failed to get conns: %w", err)
	}

	return RemoveMemberResponse{
		RemovedMemberID: params.RemovedMemberID,
		RemovedConn:     removedConn,
		MemberList:      memberList,
		Conns:           conns,
	}, nil
}

type PromoteMemberParams struct {
	PromotedMemberID string
	SenderID         string
	RoomID           string
}

type PromoteMemberResponse struct {
	PromotedMember domain.Member
	// PromotedConn is nil when the member is connected to another instance
	PromotedConn *websocket.Conn
	MemberList   []domain.Member
	Conns        []*websocket.Conn
}

// PromoteMember grants a member the admin flag, letting them drive the player
// and manage the queue.
func (s *service) PromoteMember(ctx context.Context, params *PromoteMemberParams) (PromoteMemberResponse, error) {
	if err := s.checkIfMemberAdmin(ctx, params.RoomID, params.SenderID); err != nil {
		return PromoteMemberResponse{}, err
	}

	member, err := s.roomRepo.GetMember(ctx, params.RoomID, params.PromotedMemberID)
	if err != nil {
		if errors.Is(err, room.ErrMemberNotFound) {
			return PromoteMemberResponse{}, ErrMemberNotFound
		}
		return PromoteMemberResponse{}, fmt.Errorf("failed to get member: %w", err)
	}

	if member.IsAdmin {
		return PromoteMemberResponse{}, ErrMemberAlreadyAdmin
	}

	if err := s.roomRepo.UpdateMemberIsAdmin(ctx, params.RoomID, params.PromotedMemberID, true); err != nil {
		return PromoteMemberResponse{}, fmt.Errorf("failed to update member is admin: %w", err)
	}

	memberList, err := s.getMemberList(ctx, params.RoomID)
	if err != nil {
		return PromoteMemberResponse{}, fmt.Errorf("failed to get member list: %w", err)
	}

	conns, err := s.getConnsByRoomID(ctx, params.RoomID, params.SenderID)
	if err != nil {
		return PromoteMemberResponse{}, fmt.Errorf("failed to get conns: %w", err)
	}

	promotedConn, _ := s.connRepo.GetConn(params.PromotedMemberID)

	return PromoteMemberResponse{
		PromotedMember: domain.Member{
			ID:        params.PromotedMemberID,
			Username:  member.Username,
			Color:     member.Color,
			AvatarURL: member.AvatarURL,
			IsAdmin:   true,
			IsOnline:  member.IsOnline,
		},
		PromotedConn: promotedConn,
		MemberList:   memberList,
		Conns:        conns,
	}, nil
}
