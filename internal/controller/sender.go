package controller

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/domain"
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (c *controller) sendToConn(conn *websocket.Conn, output *Output) error {
	if err := conn.WriteJSON(output); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}

func (c *controller) broadcast(ctx context.Context, conns []*websocket.Conn, output *Output) error {
	for _, conn := range conns {
		if err := c.sendToConn(conn, output); err != nil {
			// one dead conn must not silence the rest of the room
			c.logger.InfoContext(ctx, "failed to send to conn", "error", err)
		}
	}

	return nil
}

func outputForEvent(ev domain.SyncEvent) *Output {
	switch ev.Kind {
	case domain.EventPlay, domain.EventPause, domain.EventSeek:
		return &Output{
			Type:    "PLAYER_STATE_UPDATED",
			Payload: ev,
		}
	case domain.EventSelect:
		return &Output{
			Type:    "VIDEO_SELECTED",
			Payload: ev,
		}
	default:
		return nil
	}
}
