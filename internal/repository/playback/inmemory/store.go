package inmemory

import (
	"context"
	"sync"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/repository/playback"
)

type store struct {
	states map[string]domain.PlaybackState
	mu     sync.RWMutex
}

func NewStore() *store {
	return &store{states: make(map[string]domain.PlaybackState)}
}

func (s *store) GetPlaybackState(_ context.Context, roomID string) (domain.PlaybackState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.states[roomID]
	if !ok {
		return domain.PlaybackState{}, playback.ErrNotFound
	}

	return state, nil
}

func (s *store) SetPlaybackState(_ context.Context, roomID string, state domain.PlaybackState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.states[roomID]; ok && stored.UpdatedAt > state.UpdatedAt {
		return playback.ErrStaleState
	}

	s.states[roomID] = state

	return nil
}

func (s *store) RemovePlaybackState(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[roomID]; !ok {
		return playback.ErrNotFound
	}

	delete(s.states, roomID)

	return nil
}
