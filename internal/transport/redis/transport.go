// Package redis provides the shared-store transport binding: sync events
// travel through redis pub/sub channels scoped per room, so every server
// instance and headless client subscribed to a room converges on the same
// event stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/watchsync/server/internal/domain"
)

type Transport struct {
	rc     *redis.Client
	logger *slog.Logger
}

func NewTransport(rc *redis.Client, logger *slog.Logger) *Transport {
	return &Transport{
		rc:     rc,
		logger: logger,
	}
}

func (t *Transport) getChannel(roomID string) string {
	return "room:" + roomID + ":events"
}

func (t *Transport) Publish(ctx context.Context, roomID string, ev domain.SyncEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}

	if err := t.rc.Publish(ctx, t.getChannel(roomID), payload).Err(); err != nil {
		return fmt.Errorf("failed to publish sync event: %w", err)
	}

	return nil
}

func (t *Transport) Subscribe(ctx context.Context, roomID string, handler func(domain.SyncEvent)) (func(), error) {
	pubsub := t.rc.Subscribe(ctx, t.getChannel(roomID))

	// force the subscription to be established before returning so a caller
	// never misses events published right after Subscribe
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to room channel: %w", err)
	}

	go func() {
		for msg := range pubsub.Channel() {
			var ev domain.SyncEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				t.logger.Warn("dropping malformed sync event", "room_id", roomID, "error", err)
				continue
			}

			handler(ev)
		}
	}()

	unsubscribe := func() {
		pubsub.Close()
	}

	return unsubscribe, nil
}
