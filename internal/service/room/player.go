package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/repository/playback"
)

type UpdatePlayerStateParams struct {
	Kind      domain.EventKind
	IsPlaying bool
	Position  float64
	UpdatedAt int64
	SenderID  string
	RoomID    string
}

type UpdatePlayerStateResponse struct {
	Playback domain.PlaybackState
	Event    domain.SyncEvent
	Conns    []*websocket.Conn
	// Stale reports that a newer state was already stored; the update was
	// dropped and nothing should be broadcast. Expected under concurrent
	// writers, not an error.
	Stale bool
}

// UpdatePlayerState applies a member's play/pause/seek intent to the room's
// authoritative state. Last writer wins: a write carrying an UpdatedAt older
// than the stored one is silently dropped.
func (s *service) UpdatePlayerState(ctx context.Context, params *UpdatePlayerStateParams) (UpdatePlayerStateResponse, error) {
	if err := s.checkIfMemberAdmin(ctx, params.RoomID, params.SenderID); err != nil {
		return UpdatePlayerStateResponse{}, err
	}

	current, err := s.playbackStore.GetPlaybackState(ctx, params.RoomID)
	if err != nil && !errors.Is(err, playback.ErrNotFound) {
		return UpdatePlayerStateResponse{}, fmt.Errorf("failed to get playback state: %w", err)
	}

	state := domain.PlaybackState{
		VideoURL:  current.VideoURL,
		IsPlaying: params.IsPlaying,
		Position:  params.Position,
		UpdatedAt: params.UpdatedAt,
	}
	if err := s.playbackStore.SetPlaybackState(ctx, params.RoomID, state); err != nil {
		if errors.Is(err, playback.ErrStaleState) {
			return UpdatePlayerStateResponse{Stale: true}, nil
		}
		return UpdatePlayerStateResponse{}, fmt.Errorf("failed to set playback state: %w", err)
	}

	ev := domain.SyncEvent{
		Kind:      params.Kind,
		Position:  params.Position,
		EmittedAt: params.UpdatedAt,
		OriginID:  params.SenderID,
	}

	conns, err := s.getConnsByRoomID(ctx, params.RoomID, params.SenderID)
	if err != nil {
		return UpdatePlayerStateResponse{}, fmt.Errorf("failed to get conns: %w", err)
	}

	s.publishEvent(ctx, params.RoomID, ev)

	return UpdatePlayerStateResponse{
		Playback: state,
		Event:    ev,
		Conns:    conns,
	}, nil
}

type SyncStateResponse struct {
	Playback domain.PlaybackState
	Queue    []domain.QueueEntry
	Members  []domain.Member
}

// SyncState returns the room's current snapshot. Clients call it on join and
// whenever they suspect they missed events; the system heals through these
// pulls rather than guaranteed delivery.
func (s *service) SyncState(ctx context.Context, roomID string) (SyncStateResponse, error) {
	playbackState, err := s.playbackStore.GetPlaybackState(ctx, roomID)
	if err != nil {
		if errors.Is(err, playback.ErrNotFound) {
			return SyncStateResponse{}, ErrRoomNotFound
		}
		return SyncStateResponse{}, fmt.Errorf("failed to get playback state: %w", err)
	}

	queue, err := s.getQueue(ctx, roomID)
	if err != nil {
		return SyncStateResponse{}, fmt.Errorf("failed to get queue: %w", err)
	}

	members, err := s.getMemberList(ctx, roomID)
	if err != nil {
		return SyncStateResponse{}, fmt.Errorf("failed to get member list: %w", err)
	}

	return SyncStateResponse{
		Playback: playbackState,
		Queue:    queue,
		Members:  members,
	}, nil
}
