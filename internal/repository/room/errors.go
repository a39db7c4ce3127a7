package room

import "errors"

var (
	ErrMemberNotFound     = errors.New("member not found")
	ErrRoomNotFound       = errors.New("room not found")
	ErrSessionNotFound    = errors.New("session not found")
	ErrQueueEntryNotFound = errors.New("queue entry not found")
	ErrQueueLimitReached  = errors.New("queue limit reached")
)
