package room

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/repository/playback"
	"github.com/watchsync/server/internal/repository/room"
	"github.com/watchsync/server/pkg/randstr"
)

var (
	ErrPermissionDenied    = errors.New("permission denied")
	ErrMemberNotFound      = errors.New("member not found")
	ErrMemberAlreadyAdmin  = errors.New("member is already admin")
	ErrRoomNotFound        = errors.New("room not found")
	ErrMembersLimitReached = errors.New("members limit reached")
	ErrQueueLimitReached   = errors.New("queue limit reached")
	ErrInvalidAuthToken    = errors.New("invalid auth token")
	ErrInvalidConnectToken = errors.New("invalid connect token")
)

type iRoomRepo interface {
	// sessions
	SetCreateRoomSession(context.Context, *room.SetCreateRoomSessionParams) error
	GetCreateRoomSession(context.Context, string) (room.CreateRoomSession, error)
	SetJoinRoomSession(context.Context, *room.SetJoinRoomSessionParams) error
	GetJoinRoomSession(context.Context, string) (room.JoinRoomSession, error)
	// member
	SetMember(context.Context, *room.SetMemberParams) error
	RemoveMember(context.Context, *room.RemoveMemberParams) error
	GetMember(ctx context.Context, roomID, memberID string) (room.Member, error)
	GetMemberIDs(context.Context, string) ([]string, error)
	GetMemberRoomID(context.Context, string) (string, error)
	IsMemberAdmin(ctx context.Context, roomID, memberID string) (bool, error)
	UpdateMemberIsAdmin(ctx context.Context, roomID, memberID string, isAdmin bool) error
	UpdateMemberIsOnline(ctx context.Context, roomID, memberID string, isOnline bool) error
	// queue
	AddQueueEntry(context.Context, *room.AddQueueEntryParams) error
	GetQueueEntry(context.Context, *room.GetQueueEntryParams) (room.QueueEntry, error)
	GetQueueEntryIDs(context.Context, string) ([]string, error)
	GetQueueLength(context.Context, string) (int, error)
	RemoveQueueEntry(context.Context, *room.RemoveQueueEntryParams) error
}

type iConnRepo interface {
	Add(*websocket.Conn, string) error
	RemoveByMemberID(string) error
	RemoveByConn(*websocket.Conn) (string, error)
	GetConn(string) (*websocket.Conn, error)
	GetMemberID(*websocket.Conn) (string, error)
}

// iTransport fans playback events out to other server instances serving the
// same room. Optional: a single-instance deployment passes nil.
type iTransport interface {
	Publish(ctx context.Context, roomID string, ev domain.SyncEvent) error
	Subscribe(ctx context.Context, roomID string, handler func(domain.SyncEvent)) (func(), error)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

// RemoteEventHandler receives events published by other server instances so
// the controller can relay them to the given locally connected members.
type RemoteEventHandler func(ev domain.SyncEvent, conns []*websocket.Conn)

type Config struct {
	Secret       string
	MembersLimit int
	QueueLimit   int
}

type service struct {
	roomRepo      iRoomRepo
	playbackStore playback.Store
	connRepo      iConnRepo
	transport     iTransport
	generator     iGenerator
	clock         clockwork.Clock
	logger        *slog.Logger
	secret        string
	membersLimit  int
	queueLimit    int
	instanceID    string

	onRemoteEvent RemoteEventHandler

	subsMu sync.Mutex
	subs   map[string]func()
}

type NewServiceParams struct {
	RoomRepo      iRoomRepo
	PlaybackStore playback.Store
	ConnRepo      iConnRepo
	Transport     iTransport
	Clock         clockwork.Clock
	Logger        *slog.Logger
}

func NewService(params *NewServiceParams, cfg *Config) *service {
	clock := params.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	letterBytes := []byte("abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

	return &service{
		roomRepo:      params.RoomRepo,
		playbackStore: params.PlaybackStore,
		connRepo:      params.ConnRepo,
		transport:     params.Transport,
		generator:     randstr.New(letterBytes),
		clock:         clock,
		logger:        logger,
		secret:        cfg.Secret,
		membersLimit:  cfg.MembersLimit,
		queueLimit:    cfg.QueueLimit,
		instanceID:    uuid.NewString(),
		subs:          make(map[string]func()),
	}
}

// SetRemoteEventHandler registers the callback invoked for events published
// by other server instances serving the same room.
func (s *service) SetRemoteEventHandler(handler RemoteEventHandler) {
	s.onRemoteEvent = handler
}

// ensureRoomSubscription starts relaying cross-instance events for the room
// the first time one of its members connects to this instance.
func (s *service) ensureRoomSubscription(ctx context.Context, roomID string) {
	if s.transport == nil {
		return
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if _, ok := s.subs[roomID]; ok {
		return
	}

	unsubscribe, err := s.transport.Subscribe(ctx, roomID, func(ev domain.SyncEvent) {
		if ev.OriginID == s.instanceID || s.onRemoteEvent == nil {
			return
		}

		conns, err := s.getConnsByRoomID(context.Background(), roomID, "")
		if err != nil || len(conns) == 0 {
			return
		}

		s.onRemoteEvent(ev, conns)
	})
	if err != nil {
		s.logger.Warn("failed to subscribe to room events", "room_id", roomID, "error", err)
		return
	}

	s.subs[roomID] = unsubscribe
}

// releaseRoomSubscription drops the cross-instance relay once no member of
// the room is connected to this instance anymore.
func (s *service) releaseRoomSubscription(ctx context.Context, roomID string) {
	memberIDs, err := s.roomRepo.GetMemberIDs(ctx, roomID)
	if err != nil {
		return
	}

	for _, memberID := range memberIDs {
		if _, err := s.connRepo.GetConn(memberID); err == nil {
			return
		}
	}

	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	if unsubscribe, ok := s.subs[roomID]; ok {
		unsubscribe()
		delete(s.subs, roomID)
	}
}

func (s *service) publishEvent(ctx context.Context, roomID string, ev domain.SyncEvent) {
	if s.transport == nil {
		return
	}

	ev.OriginID = s.instanceID
	if err := s.transport.Publish(ctx, roomID, ev); err != nil {
		s.logger.Warn("failed to publish room event", "room_id", roomID, "kind", ev.Kind, "error", err)
	}
}
