package controller

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/service/room"
)

type EmptyInput struct{}

func (c *controller) createRoom(w http.ResponseWriter, r *http.Request) {
	connectToken := r.URL.Query().Get("connect-token")
	if connectToken == "" {
		http.Error(w, "connect-token was not provided", http.StatusBadRequest)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	resp, err := c.roomService.CreateRoom(r.Context(), &room.CreateRoomParams{
		ConnectToken: connectToken,
		Conn:         conn,
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to create room", "error", err)
		c.sendToConn(conn, &Output{Type: "ERROR", Payload: map[string]string{"message": "failed to create room"}})
		conn.Close()
		return
	}

	c.sendToConn(conn, &Output{
		Type: "ROOM_CREATED",
		Payload: map[string]any{
			"room_id":    resp.RoomID,
			"member_id":  resp.MemberID,
			"auth_token": resp.AuthToken,
			"playback":   resp.Playback,
		},
	})

	c.serveConn(r.Context(), conn, resp.RoomID, resp.MemberID)
}

func (c *controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	connectToken := r.URL.Query().Get("connect-token")
	if connectToken == "" {
		http.Error(w, "connect-token was not provided", http.StatusBadRequest)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	resp, err := c.roomService.JoinRoom(r.Context(), &room.JoinRoomParams{
		ConnectToken: connectToken,
		Conn:         conn,
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to join room", "error", err)
		c.sendToConn(conn, &Output{Type: "ERROR", Payload: map[string]string{"message": "failed to join room"}})
		conn.Close()
		return
	}

	// the joiner's initial sync snapshot travels with the join response, so
	// a late joiner converges without waiting for the next broadcast event
	c.sendToConn(conn, &Output{
		Type: "ROOM_JOINED",
		Payload: map[string]any{
			"room_id":     resp.RoomID,
			"member_id":   resp.JoinedMember.ID,
			"auth_token":  resp.AuthToken,
			"member_list": resp.MemberList,
			"playback":    resp.Playback,
			"queue":       resp.Queue,
		},
	})

	c.broadcast(r.Context(), resp.Conns, &Output{
		Type: "MEMBER_JOINED",
		Payload: map[string]any{
			"joined_member": resp.JoinedMember,
			"member_list":   resp.MemberList,
		},
	})

	c.serveConn(r.Context(), conn, resp.RoomID, resp.JoinedMember.ID)
}

func (c *controller) rejoinRoom(w http.ResponseWriter, r *http.Request) {
	authToken := r.URL.Query().Get("auth-token")
	if authToken == "" {
		http.Error(w, "auth-token was not provided", http.StatusBadRequest)
		return
	}

	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to upgrade connection", "error", err)
		return
	}

	resp, err := c.roomService.RejoinRoom(r.Context(), &room.RejoinRoomParams{
		AuthToken: authToken,
		Conn:      conn,
	})
	if err != nil {
		c.logger.InfoContext(r.Context(), "failed to rejoin room", "error", err)
		c.sendToConn(conn, &Output{Type: "ERROR", Payload: map[string]string{"message": "failed to rejoin room"}})
		conn.Close()
		return
	}

	c.sendToConn(conn, &Output{
		Type: "ROOM_JOINED",
		Payload: map[string]any{
			"room_id":     resp.RoomID,
			"member_id":   resp.MemberID,
			"member_list": resp.MemberList,
			"playback":    resp.Playback,
			"queue":       resp.Queue,
		},
	})

	c.broadcast(r.Context(), resp.Conns, &Output{
		Type: "MEMBER_JOINED",
		Payload: map[string]any{
			"member_list": resp.MemberList,
		},
	})

	c.serveConn(r.Context(), conn, resp.RoomID, resp.MemberID)
}

func (c *controller) serveConn(ctx context.Context, conn *websocket.Conn, roomID, memberID string) {
	ctx = c.withRoomSession(ctx, roomID, memberID)

	if err := c.getWSRouter().ServeConn(ctx, conn); err != nil {
		c.logger.DebugContext(ctx, "websocket connection closed", "error", err)
	}

	resp, err := c.roomService.DisconnectMember(ctx, conn)
	if err != nil {
		if !errors.Is(err, room.ErrMemberNotFound) {
			c.logger.InfoContext(ctx, "failed to disconnect member", "error", err)
		}
		return
	}

	c.broadcast(ctx, resp.Conns, &Output{
		Type: "MEMBER_LEFT",
		Payload: map[string]any{
			"member_id":   resp.MemberID,
			"member_list": resp.MemberList,
		},
	})
}

func (c *controller) handleAlive(_ context.Context, _ *websocket.Conn, _ EmptyInput) error {
	return nil
}

type RemoveMemberInput struct {
	MemberID string `json:"member_id"`
}

func (c *controller) handleRemoveMember(ctx context.Context, conn *websocket.Conn, input RemoveMemberInput) error {
	resp, err := c.roomService.RemoveMember(ctx, &room.RemoveMemberParams{
		RemovedMemberID: input.MemberID,
		SenderID:        c.getMemberIDFromCtx(ctx),
		RoomID:          c.getRoomIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	if resp.RemovedConn != nil {
		resp.RemovedConn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(4001, "removed from room"))
		resp.RemovedConn.Close()
	}

	return c.broadcast(ctx, resp.Conns, &Output{
		Type: "MEMBER_REMOVED",
		Payload: map[string]any{
			"removed_member_id": resp.RemovedMemberID,
			"member_list":       resp.MemberList,
		},
	})
}

type PromoteMemberInput struct {
	MemberID string `json:"member_id"`
}

func (c *controller) handlePromoteMember(ctx context.Context, conn *websocket.Conn, input PromoteMemberInput) error {
	resp, err := c.roomService.PromoteMember(ctx, &room.PromoteMemberParams{
		PromotedMemberID: input.MemberID,
		SenderID:         c.getMemberIDFromCtx(ctx),
		RoomID:           c.getRoomIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to promote member: %w", err)
	}

	if resp.PromotedConn != nil {
		c.sendToConn(resp.PromotedConn, &Output{
			Type: "IS_ADMIN_UPDATED",
			Payload: map[string]any{
				"is_admin": resp.PromotedMember.IsAdmin,
			},
		})
	}

	return c.broadcast(ctx, resp.Conns, &Output{
		Type: "MEMBER_PROMOTED",
		Payload: map[string]any{
			"promoted_member": resp.PromotedMember,
			"member_list":     resp.MemberList,
		},
	})
}

type UpdatePlayerStateInput struct {
	Kind      string  `json:"kind"`
	IsPlaying bool    `json:"is_playing"`
	Position  float64 `json:"position"`
	UpdatedAt int64   `json:"updated_at"`
}

func (c *controller) handleUpdatePlayerState(ctx context.Context, conn *websocket.Conn, input UpdatePlayerStateInput) error {
	kind := domain.EventKind(input.Kind)
	switch kind {
	case domain.EventPlay, domain.EventPause, domain.EventSeek:
	default:
		return fmt.Errorf("invalid player state kind %q", input.Kind)
	}

	resp, err := c.roomService.UpdatePlayerState(ctx, &room.UpdatePlayerStateParams{
		Kind:      kind,
		IsPlaying: input.IsPlaying,
		Position:  input.Position,
		UpdatedAt: input.UpdatedAt,
		SenderID:  c.getMemberIDFromCtx(ctx),
		RoomID:    c.getRoomIDFromCtx(ctx),
	})
	if err != nil {
		return fmt.Errorf("failed to update player state: %w", err)
	}

	// a stale update lost the write race; the sender self-corrects on the
	// winner's broadcast, so nothing goes out for this one
	if resp.Stale {
		return nil
	}

	return c.broadcast(ctx, resp.Conns, &Output{
		Type:    "PLAYER_STATE_UPDATED",
		Payload: resp.Event,
	})
}

func (c *controller) handleSyncRequest(ctx context.Context, conn *websocket.Conn, _ EmptyInput) error {
	resp, err := c.roomService.SyncState(ctx, c.getRoomIDFromCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to sync state: %w", err)
	}

	return c.sendToConn(conn, &Output{
		Type: "SYNC_STATE",
		Payload: map[string]any{
			"playback":    resp.Playback,
			"queue":       resp.Queue,
			"member_list": resp.Members,
		},
	})
}

type AddVideoInput struct {
	VideoURL string `json:"video_url"`
}

func (c *controller) handleAddVideo(ctx context.Context, conn *websocket.Conn, input AddVideoInput) error {
	resp, err := c.roomService.AddVideo(ctx, &room.AddVideoParams{
		SenderID: c.getMemberIDFromCtx(ctx),
		RoomID:   c.getRoomIDFromCtx(ctx),
		VideoURL: input.VideoURL,
	})
	if err != nil {
		return fmt.Errorf("failed to add video: %w", err)
	}

	output := &Output{
		Type: "VIDEO_ADDED",
		Payload: map[string]any{
			"added_entry": resp.AddedEntry,
			"queue":       resp.Queue,
		},
	}
	if err := c.sendToConn(conn, output); err != nil {
		return err
	}

	return c.broadcast(ctx, resp.Conns, output)
}

type RemoveVideoInput struct {
	EntryID string `json:"entry_id"`
}

func (c *controller) handleRemoveVideo(ctx context.Context, conn *websocket.Conn, input RemoveVideoInput) error {
	resp, err := c.roomService.RemoveVideo(ctx, &room.RemoveVideoParams{
		SenderID: c.getMemberIDFromCtx(ctx),
		RoomID:   c.getRoomIDFromCtx(ctx),
		EntryID:  input.EntryID,
	})
	if err != nil {
		return fmt.Errorf("failed to remove video: %w", err)
	}

	output := &Output{
		Type: "VIDEO_REMOVED",
		Payload: map[string]any{
			"removed_entry_id": resp.RemovedEntryID,
			"queue":            resp.Queue,
		},
	}
	if err := c.sendToConn(conn, output); err != nil {
		return err
	}

	return c.broadcast(ctx, resp.Conns, output)
}

type SelectVideoInput struct {
	EntryID   string `json:"entry_id"`
	UpdatedAt int64  `json:"updated_at"`
}

func (c *controller) handleSelectVideo(ctx context.Context, conn *websocket.Conn, input SelectVideoInput) error {
	resp, err := c.roomService.SelectVideo(ctx, &room.SelectVideoParams{
		SenderID:  c.getMemberIDFromCtx(ctx),
		RoomID:    c.getRoomIDFromCtx(ctx),
		EntryID:   input.EntryID,
		UpdatedAt: input.UpdatedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to select video: %w", err)
	}

	output := &Output{
		Type: "VIDEO_SELECTED",
		Payload: map[string]any{
			"event":    resp.Event,
			"playback": resp.Playback,
			"queue":    resp.Queue,
		},
	}
	if err := c.sendToConn(conn, output); err != nil {
		return err
	}

	return c.broadcast(ctx, resp.Conns, output)
}
