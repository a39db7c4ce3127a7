package controller

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/service/room"
	"github.com/watchsync/server/pkg/validator"
)

type iRoomService interface {
	CreateRoomCreateSession(context.Context, *room.CreateRoomCreateSessionParams) (string, error)
	CreateRoomJoinSession(context.Context, *room.CreateRoomJoinSessionParams) (string, error)
	CreateRoom(context.Context, *room.CreateRoomParams) (room.CreateRoomResponse, error)
	JoinRoom(context.Context, *room.JoinRoomParams) (room.JoinRoomResponse, error)
	RejoinRoom(context.Context, *room.RejoinRoomParams) (room.RejoinRoomResponse, error)
	DisconnectMember(context.Context, *websocket.Conn) (room.DisconnectMemberResponse, error)
	RemoveMember(context.Context, *room.RemoveMemberParams) (room.RemoveMemberResponse, error)
	PromoteMember(context.Context, *room.PromoteMemberParams) (room.PromoteMemberResponse, error)
	UpdatePlayerState(context.Context, *room.UpdatePlayerStateParams) (room.UpdatePlayerStateResponse, error)
	SyncState(ctx context.Context, roomID string) (room.SyncStateResponse, error)
	AddVideo(context.Context, *room.AddVideoParams) (room.AddVideoResponse, error)
	RemoveVideo(context.Context, *room.RemoveVideoParams) (room.RemoveVideoResponse, error)
	SelectVideo(context.Context, *room.SelectVideoParams) (room.SelectVideoResponse, error)
	SetRemoteEventHandler(room.RemoteEventHandler)
}

type controller struct {
	roomService iRoomService
	upgrader    websocket.Upgrader
	validate    *validator.Validator
	logger      *slog.Logger
}

func NewController(roomService iRoomService, logger *slog.Logger) *controller {
	c := &controller{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		roomService: roomService,
		validate:    validator.New(),
		logger:      logger,
	}

	roomService.SetRemoteEventHandler(c.relayRemoteEvent)

	return c
}

// relayRemoteEvent forwards an event published by another server instance to
// the members connected here.
func (c *controller) relayRemoteEvent(ev domain.SyncEvent, conns []*websocket.Conn) {
	output := outputForEvent(ev)
	if output == nil {
		return
	}

	if err := c.broadcast(context.Background(), conns, output); err != nil {
		c.logger.Warn("failed to relay remote event", "kind", ev.Kind, "error", err)
	}
}

func (c *controller) generateTimeBasedID() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36)
}
