package redis

import (
	"context"
	"fmt"

	"github.com/watchsync/server/internal/repository/room"
)

func (r repo) getQueueKey(roomID string) string {
	return "room:" + roomID + ":queue"
}

func (r repo) getQueueEntryKey(roomID, entryID string) string {
	return "room:" + roomID + ":queue:" + entryID
}

func (r repo) AddQueueEntry(ctx context.Context, params *room.AddQueueEntryParams) error {
	pipe := r.rc.TxPipeline()

	entry := room.QueueEntry{
		URL:       params.URL,
		AddedByID: params.AddedByID,
	}
	entryKey := r.getQueueEntryKey(params.RoomID, params.EntryID)
	pipe.HSet(ctx, entryKey, entry)
	pipe.Expire(ctx, entryKey, r.expireDuration)

	queueKey := r.getQueueKey(params.RoomID)
	r.addWithIncrement(ctx, pipe, queueKey, params.EntryID)
	pipe.Expire(ctx, queueKey, r.expireDuration)

	if err := r.executePipe(ctx, pipe); err != nil {
		return fmt.Errorf("failed to add queue entry: %w", err)
	}

	return nil
}

func (r repo) GetQueueEntry(ctx context.Context, params *room.GetQueueEntryParams) (room.QueueEntry, error) {
	entryKey := r.getQueueEntryKey(params.RoomID, params.EntryID)
	res, err := r.rc.Exists(ctx, entryKey).Result()
	if err != nil {
		return room.QueueEntry{}, fmt.Errorf("failed to get queue entry: %w", err)
	}
	if res == 0 {
		return room.QueueEntry{}, room.ErrQueueEntryNotFound
	}

	var entry room.QueueEntry
	if err := r.rc.HGetAll(ctx, entryKey).Scan(&entry); err != nil {
		return room.QueueEntry{}, fmt.Errorf("failed to get queue entry: %w", err)
	}

	return entry, nil
}

func (r repo) GetQueueEntryIDs(ctx context.Context, roomID string) ([]string, error) {
	queueKey := r.getQueueKey(roomID)
	entryIDs, err := r.rc.ZRange(ctx, queueKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get queue entry ids: %w", err)
	}

	r.rc.Expire(ctx, queueKey, r.expireDuration)

	return entryIDs, nil
}

func (r repo) GetQueueLength(ctx context.Context, roomID string) (int, error) {
	length, err := r.rc.ZCard(ctx, r.getQueueKey(roomID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue length: %w", err)
	}

	return int(length), nil
}

func (r repo) RemoveQueueEntry(ctx context.Context, params *room.RemoveQueueEntryParams) error {
	res, err := r.rc.ZRem(ctx, r.getQueueKey(params.RoomID), params.EntryID).Result()
	if err != nil {
		return fmt.Errorf("failed to remove queue entry: %w", err)
	}
	if res == 0 {
		return room.ErrQueueEntryNotFound
	}

	if err := r.rc.Del(ctx, r.getQueueEntryKey(params.RoomID, params.EntryID)).Err(); err != nil {
		return fmt.Errorf("failed to remove queue entry: %w", err)
	}

	return nil
}
