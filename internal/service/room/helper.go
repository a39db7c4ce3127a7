package room

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/repository/room"
)

func (s *service) checkIfMemberAdmin(ctx context.Context, roomID, memberID string) error {
	isAdmin, err := s.roomRepo.IsMemberAdmin(ctx, roomID, memberID)
	if err != nil {
		return fmt.Errorf("failed to check if member is admin: %w", err)
	}

	if !isAdmin {
		return ErrPermissionDenied
	}

	return nil
}

// getConnsByRoomID returns the websocket connections of every member of the
// room connected to this instance, except excludeMemberID when non-empty.
func (s *service) getConnsByRoomID(ctx context.Context, roomID, excludeMemberID string) ([]*websocket.Conn, error) {
	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member ids: %w", err)
	}

	conns := make([]*websocket.Conn, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		if memberID == excludeMemberID {
			continue
		}

		conn, err := s.connRepo.GetConn(memberID)
		if err != nil {
			// member is connected to another instance
			continue
		}

		conns = append(conns, conn)
	}

	return conns, nil
}

func (s *service) getMemberList(ctx context.Context, roomID string) ([]domain.Member, error) {
	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get member ids: %w", err)
	}

	members := make([]domain.Member, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		member, err := s.roomRepo.GetMember(ctx, roomID, memberID)
		if err != nil {
			return nil, fmt.Errorf("failed to get member: %w", err)
		}

		members = append(members, domain.Member{
			ID:        memberID,
			Username:  member.Username,
			Color:     member.Color,
			AvatarURL: member.AvatarURL,
			IsAdmin:   member.IsAdmin,
			IsOnline:  member.IsOnline,
		})
	}

	return members, nil
}

func (s *service) getQueue(ctx context.Context, roomID string) ([]domain.QueueEntry, error) {
	entryIDs, err := s.roomRepo.GetQueueEntryIDs(ctx, roomID)
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry ids: %w", err)
	}

	queue := make([]domain.QueueEntry, 0, len(entryIDs))
	for _, entryID := range entryIDs {
		entry, err := s.roomRepo.GetQueueEntry(ctx, &room.GetQueueEntryParams{
			EntryID: entryID,
			RoomID:  roomID,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get queue entry: %w", err)
		}

		queue = append(queue, domain.QueueEntry{
			ID:        entryID,
			URL:       entry.URL,
			AddedByID: entry.AddedByID,
		})
	}

	return queue, nil
}
