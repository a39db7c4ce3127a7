package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/repository/playback"
	"github.com/watchsync/server/internal/repository/room"
)

type AddVideoParams struct {
	SenderID string
	RoomID   string
	VideoURL string
}

type AddVideoResponse struct {
	AddedEntry domain.QueueEntry
	Queue      []domain.QueueEntry
	Conns      []*websocket.Conn
}

func (s *service) AddVideo(ctx context.Context, params *AddVideoParams) (AddVideoResponse, error) {
	queueLength, err := s.roomRepo.GetQueueLength(ctx, params.RoomID)
	if err != nil {
		return AddVideoResponse{}, fmt.Errorf("failed to get queue length: %w", err)
	}
	if queueLength >= s.queueLimit {
		return AddVideoResponse{}, ErrQueueLimitReached
	}

	entryID := uuid.NewString()
	if err := s.roomRepo.AddQueueEntry(ctx, &room.AddQueueEntryParams{
		EntryID:   entryID,
		URL:       params.VideoURL,
		AddedByID: params.SenderID,
		RoomID:    params.RoomID,
	}); err != nil {
		return AddVideoResponse{}, fmt.Errorf("failed to add queue entry: %w", err)
	}

	queue, err := s.getQueue(ctx, params.RoomID)
	if err != nil {
		return AddVideoResponse{}, fmt.Errorf("failed to get queue: %w", err)
	}

	conns, err := s.getConnsByRoomID(ctx, params.RoomID, params.SenderID)
	if err != nil {
		return AddVideoResponse{}, fmt.Errorf("failed to get conns: %w", err)
	}

	return AddVideoResponse{
		AddedEntry: domain.QueueEntry{
			ID:        entryID,
			URL:       params.VideoURL,
			AddedByID: params.SenderID,
		},
		Queue: queue,
		Conns: conns,
	}, nil
}

type RemoveVideoParams struct {
	SenderID string
	RoomID   string
	EntryID  string
}

type RemoveVideoResponse struct {
	RemovedEntryID string
	Queue          []domain.QueueEntry
	Conns          []*websocket.Conn
}

func (s *service) RemoveVideo(ctx context.Context, params *RemoveVideoParams) (RemoveVideoResponse, error) {
	if err := s.checkIfMemberAdmin(ctx, params.RoomID, params.SenderID); err != nil {
		return RemoveVideoResponse{}, err
	}

	if err := s.roomRepo.RemoveQueueEntry(ctx, &room.RemoveQueueEntryParams{
		EntryID: params.EntryID,
		RoomID:  params.RoomID,
	}); err != nil {
		if errors.Is(err, room.ErrQueueEntryNotFound) {
			return RemoveVideoResponse{}, err
		}
		return RemoveVideoResponse{}, fmt.Errorf("failed to remove queue entry: %w", err)
	}

	queue, err := s.getQueue(ctx, params.RoomID)
	if err != nil {
		return RemoveVideoResponse{}, fmt.Errorf("failed to get queue: %w", err)
	}

	conns, err := s.getConnsByRoomID(ctx, params.RoomID, params.SenderID)
	if err != nil {
		return RemoveVideoResponse{}, fmt.Errorf("failed to get conns: %w", err)
	}

	return RemoveVideoResponse{
		RemovedEntryID: params.EntryID,
		Queue:          queue,
		Conns:          conns,
	}, nil
}

type SelectVideoParams struct {
	SenderID  string
	RoomID    string
	EntryID   string
	UpdatedAt int64
}

type SelectVideoResponse struct {
	Playback domain.PlaybackState
	Event    domain.SyncEvent
	Queue    []domain.QueueEntry
	Conns    []*websocket.Conn
}

// SelectVideo moves a queue entry into the player: the entry leaves the
// queue and the room's playback state resets to it, paused at zero.
func (s *service) SelectVideo(ctx context.Context, params *SelectVideoParams) (SelectVideoResponse, error) {
	if err := s.checkIfMemberAdmin(ctx, params.RoomID, params.SenderID); err != nil {
		return SelectVideoResponse{}, err
	}

	entry, err := s.roomRepo.GetQueueEntry(ctx, &room.GetQueueEntryParams{
		EntryID: params.EntryID,
		RoomID:  params.RoomID,
	})
	if err != nil {
		if errors.Is(err, room.ErrQueueEntryNotFound) {
			return SelectVideoResponse{}, err
		}
		return SelectVideoResponse{}, fmt.Errorf("failed to get queue entry: %w", err)
	}

	if err := s.roomRepo.RemoveQueueEntry(ctx, &room.RemoveQueueEntryParams{
		EntryID: params.EntryID,
		RoomID:  params.RoomID,
	}); err != nil {
		return SelectVideoResponse{}, fmt.Errorf("failed to remove queue entry: %w", err)
	}

	state := domain.PlaybackState{
		VideoURL:  entry.URL,
		IsPlaying: false,
		Position:  0,
		UpdatedAt: params.UpdatedAt,
	}
	if err := s.playbackStore.SetPlaybackState(ctx, params.RoomID, state); err != nil {
		if !errors.Is(err, playback.ErrStaleState) {
			return SelectVideoResponse{}, fmt.Errorf("failed to set playback state: %w", err)
		}
	}

	ev := domain.SyncEvent{
		Kind:      domain.EventSelect,
		Position:  0,
		EmittedAt: params.UpdatedAt,
		OriginID:  params.SenderID,
		VideoURL:  entry.URL,
	}

	queue, err := s.getQueue(ctx, params.RoomID)
	if err != nil {
		return SelectVideoResponse{}, fmt.Errorf("failed to get queue: %w", err)
	}

	conns, err := s.getConnsByRoomID(ctx, params.RoomID, params.SenderID)
	if err != nil {
		return SelectVideoResponse{}, fmt.Errorf("failed to get conns: %w", err)
	}

	s.publishEvent(ctx, params.RoomID, ev)

	return SelectVideoResponse{
		Playback: state,
		Event:    ev,
		Queue:    queue,
		Conns:    conns,
	}, nil
}
