// Package syncer implements the playback convergence protocol a client
// session runs to agree with the rest of its room on what video is playing,
// at what position, playing or paused. The session consumes a room-scoped
// transport and an optional last-writer-wins playback store, and surfaces
// player directives through callbacks.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/repository/playback"
)

var (
	ErrAlreadyJoined = errors.New("session already joined")
	ErrClosed        = errors.New("session closed")
)

// Transport is a bidirectional pub/sub channel scoped to a room. Delivery is
// best effort and may include the publisher's own events; the session filters
// those by origin id.
type Transport interface {
	Publish(ctx context.Context, roomID string, ev domain.SyncEvent) error
	Subscribe(ctx context.Context, roomID string, handler func(domain.SyncEvent)) (func(), error)
}

// Directives are the callbacks the session uses to drive the embedded player.
// Any of them may be nil; a missed seek is then held as the pending seek
// target until TakePendingSeek is called.
type Directives struct {
	OnSeek           func(position float64)
	OnPlayingChanged func(isPlaying bool)
	OnVideoChanged   func(videoURL string)
}

type State int

const (
	StateUninitialized State = iota
	StateAwaitingInitialSync
	StateSynced
)

const (
	DefaultSuppressWindow       = 100 * time.Millisecond
	DefaultSeekDebounce         = 500 * time.Millisecond
	DefaultConvergenceThreshold = 2.0 // seconds
	DefaultJoinTimeout          = 3 * time.Second
)

type Config struct {
	// SuppressWindow is how long after a locally-emitted action inbound
	// events are ignored, so the echo of that action cannot be
	// misinterpreted as a remote command.
	SuppressWindow time.Duration
	// SeekDebounce drops local seeks that follow a previous one too
	// closely, e.g. while drag-scrubbing.
	SeekDebounce time.Duration
	// ConvergenceThreshold is the position drift, in seconds, below which
	// no corrective seek is issued.
	ConvergenceThreshold float64
	// JoinTimeout bounds the initial snapshot pull; on expiry the session
	// becomes synced with local-only defaults.
	JoinTimeout time.Duration
	// ExtrapolateOnJoin advances a playing snapshot's position by the time
	// elapsed since it was written, so a late joiner lands near the live
	// position instead of where the state was last persisted.
	ExtrapolateOnJoin bool
}

func DefaultConfig() *Config {
	return &Config{
		SuppressWindow:       DefaultSuppressWindow,
		SeekDebounce:         DefaultSeekDebounce,
		ConvergenceThreshold: DefaultConvergenceThreshold,
		JoinTimeout:          DefaultJoinTimeout,
		ExtrapolateOnJoin:    true,
	}
}

type Params struct {
	RoomID     string
	OriginID   string // generated when empty
	Transport  Transport
	Store      playback.Store // optional under a broadcast-only transport
	Directives Directives
	Config     *Config         // nil means defaults
	Clock      clockwork.Clock // nil means the real clock
	Logger     *slog.Logger    // nil means slog.Default()
}

type Session struct {
	roomID     string
	originID   string
	transport  Transport
	store      playback.Store
	directives Directives
	cfg        Config
	clock      clockwork.Clock
	logger     *slog.Logger

	snapshotCh chan domain.PlaybackState

	mu             sync.Mutex
	state          State
	closed         bool
	videoURL       string
	isPlaying      bool
	localPosition  float64
	suppressUntil  time.Time
	lastSeekEmit   time.Time
	hasInitialSync bool
	needsUnmute    bool
	pendingSeek    *float64
	unsubscribe    func()
}

func NewSession(params *Params) *Session {
	cfg := params.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}

	clock := params.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}

	originID := params.OriginID
	if originID == "" {
		originID = uuid.NewString()
	}

	return &Session{
		roomID:     params.RoomID,
		originID:   originID,
		transport:  params.Transport,
		store:      params.Store,
		directives: params.Directives,
		cfg:        *cfg,
		clock:      clock,
		logger:     logger,
		snapshotCh: make(chan domain.PlaybackState, 1),
	}
}

func (s *Session) OriginID() string {
	return s.originID
}

// Join subscribes to the room and pulls the current playback state. On the
// first snapshot the local player is directed to the room's video, position
// and playing flag; if no snapshot arrives within the join timeout the
// session becomes synced with local-only defaults. Transport or store
// unavailability is not fatal: local playback control keeps working and the
// session self-heals on the next received event.
func (s *Session) Join(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.state != StateUninitialized {
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	s.state = StateAwaitingInitialSync
	s.mu.Unlock()

	if s.transport != nil {
		unsubscribe, err := s.transport.Subscribe(ctx, s.roomID, s.handleRemote)
		if err != nil {
			s.logger.Warn("failed to subscribe to room, continuing local-only", "room_id", s.roomID, "error", err)
		} else {
			s.mu.Lock()
			s.unsubscribe = unsubscribe
			s.mu.Unlock()
		}
	}

	snapshot, ok := s.pullSnapshot(ctx)

	s.mu.Lock()
	var run []func()
	if ok && !s.hasInitialSync {
		run = s.applyInitialSnapshotLocked(snapshot)
	} else if !s.hasInitialSync {
		// an answer racing the timeout may already be parked in the channel
		select {
		case snapshot := <-s.snapshotCh:
			run = s.applyInitialSnapshotLocked(snapshot)
		default:
			// no snapshot in time: synced with defaults, a late targeted
			// snapshot can still land as the initial one
			s.state = StateSynced
		}
	}
	s.mu.Unlock()

	for _, directive := range run {
		directive()
	}

	return nil
}

func (s *Session) pullSnapshot(ctx context.Context) (domain.PlaybackState, bool) {
	if s.store != nil {
		getCtx, cancel := context.WithTimeout(ctx, s.cfg.JoinTimeout)
		defer cancel()

		snapshot, err := s.store.GetPlaybackState(getCtx, s.roomID)
		if err != nil {
			if !errors.Is(err, playback.ErrNotFound) {
				s.logger.Warn("failed to pull playback snapshot", "room_id", s.roomID, "error", err)
			}
			return domain.PlaybackState{}, false
		}

		return snapshot, true
	}

	if s.transport == nil {
		return domain.PlaybackState{}, false
	}

	// broadcast-only binding: ask the room and wait for a peer to answer
	if err := s.transport.Publish(ctx, s.roomID, domain.SyncEvent{
		Kind:      domain.EventSyncRequest,
		EmittedAt: s.clock.Now().UnixMilli(),
		OriginID:  s.originID,
	}); err != nil {
		s.logger.Warn("failed to publish sync request", "room_id", s.roomID, "error", err)
		return domain.PlaybackState{}, false
	}

	select {
	case snapshot := <-s.snapshotCh:
		return snapshot, true
	case <-s.clock.After(s.cfg.JoinTimeout):
		return domain.PlaybackState{}, false
	case <-ctx.Done():
		return domain.PlaybackState{}, false
	}
}

// applyInitialSnapshotLocked reconciles the session with the first snapshot
// received on join and returns the player directives to run after unlocking.
// A playing snapshot arms the one-time unmute gate: browsers block unmuted
// autoplay without a user gesture, so the player is told to start muted and
// the UI surfaces an unmute affordance once.
func (s *Session) applyInitialSnapshotLocked(snapshot domain.PlaybackState) []func() {
	position := snapshot.Position
	if s.cfg.ExtrapolateOnJoin {
		position = snapshot.PositionAt(s.clock.Now().UnixMilli())
	}

	s.videoURL = snapshot.VideoURL
	s.isPlaying = snapshot.IsPlaying
	s.localPosition = position
	s.needsUnmute = snapshot.IsPlaying
	s.hasInitialSync = true
	s.state = StateSynced

	var run []func()
	if snapshot.VideoURL != "" && s.directives.OnVideoChanged != nil {
		url := snapshot.VideoURL
		run = append(run, func() { s.directives.OnVideoChanged(url) })
	}
	run = append(run, s.seekDirectiveLocked(position))
	if s.directives.OnPlayingChanged != nil {
		isPlaying := snapshot.IsPlaying
		run = append(run, func() { s.directives.OnPlayingChanged(isPlaying) })
	}

	return run
}

func (s *Session) seekDirectiveLocked(position float64) func() {
	if s.directives.OnSeek == nil {
		target := position
		s.pendingSeek = &target
		return func() {}
	}

	return func() { s.directives.OnSeek(position) }
}

// Play marks the local intent as playing and propagates it to the room. The
// local player is never blocked on the propagation: broadcast and persistence
// failures degrade to local-only playback.
func (s *Session) Play(ctx context.Context, position float64) error {
	return s.emit(ctx, domain.EventPlay, position, "")
}

// Pause marks the local intent as paused and propagates it to the room.
func (s *Session) Pause(ctx context.Context, position float64) error {
	return s.emit(ctx, domain.EventPause, position, "")
}

// Seek propagates a local seek. Seeks within the debounce window of the
// previous emitted seek update the tracked position but emit nothing.
func (s *Session) Seek(ctx context.Context, position float64) error {
	return s.emit(ctx, domain.EventSeek, position, "")
}

// SelectVideo switches the room to a new video, resetting position to zero
// and pausing until someone presses play.
func (s *Session) SelectVideo(ctx context.Context, videoURL string) error {
	return s.emit(ctx, domain.EventSelect, 0, videoURL)
}

func (s *Session) emit(ctx context.Context, kind domain.EventKind, position float64, videoURL string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	now := s.clock.Now()

	// the local intent always applies, even when sync is down or the
	// session has not finished its initial sync yet
	switch kind {
	case domain.EventPlay:
		s.isPlaying = true
		s.localPosition = position
	case domain.EventPause:
		s.isPlaying = false
		s.localPosition = position
	case domain.EventSeek:
		s.localPosition = position
		if now.Sub(s.lastSeekEmit) < s.cfg.SeekDebounce {
			s.mu.Unlock()
			return nil
		}
		s.lastSeekEmit = now
	case domain.EventSelect:
		s.videoURL = videoURL
		s.isPlaying = false
		s.localPosition = 0
	}

	synced := s.state == StateSynced
	if synced {
		s.suppressUntil = now.Add(s.cfg.SuppressWindow)
	}

	ev := domain.SyncEvent{
		Kind:      kind,
		Position:  s.localPosition,
		EmittedAt: now.UnixMilli(),
		OriginID:  s.originID,
		VideoURL:  videoURL,
	}
	state := domain.PlaybackState{
		VideoURL:  s.videoURL,
		IsPlaying: s.isPlaying,
		Position:  s.localPosition,
		UpdatedAt: now.UnixMilli(),
	}
	s.mu.Unlock()

	if !synced {
		return nil
	}

	if s.transport != nil {
		if err := s.transport.Publish(ctx, s.roomID, ev); err != nil {
			s.logger.Warn("failed to publish sync event", "room_id", s.roomID, "kind", kind, "error", err)
		}
	}

	if s.store != nil {
		if err := s.store.SetPlaybackState(ctx, s.roomID, state); err != nil {
			// losing a concurrent write race is steady-state, not an error
			if errors.Is(err, playback.ErrStaleState) {
				return nil
			}
			return fmt.Errorf("failed to persist playback state: %w", err)
		}
	}

	return nil
}

// handleRemote reconciles an inbound event with the local session. Events
// from this session's own origin, events addressed to someone else, and any
// event arriving inside the suppression window are no-ops.
func (s *Session) handleRemote(ev domain.SyncEvent) {
	if err := ev.Validate(); err != nil {
		s.logger.Warn("dropping malformed sync event", "room_id", s.roomID, "error", err)
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}

	if ev.TargetID != "" && ev.TargetID != s.originID {
		s.mu.Unlock()
		return
	}
	if ev.OriginID == s.originID {
		s.mu.Unlock()
		return
	}
	if s.clock.Now().Before(s.suppressUntil) {
		s.mu.Unlock()
		return
	}

	if ev.Kind == domain.EventSyncState {
		s.handleSyncStateLocked(ev)
		return
	}

	if s.state != StateSynced {
		// snapshots end this state and carry the net effect of anything
		// missed, so events are dropped here, not buffered
		s.mu.Unlock()
		return
	}

	var run []func()
	var reply *domain.SyncEvent

	switch ev.Kind {
	case domain.EventPlay:
		s.isPlaying = true
		if s.directives.OnPlayingChanged != nil {
			run = append(run, func() { s.directives.OnPlayingChanged(true) })
		}
		if math.Abs(ev.Position-s.localPosition) > s.cfg.ConvergenceThreshold {
			s.localPosition = ev.Position
			run = append(run, s.seekDirectiveLocked(ev.Position))
		}
	case domain.EventPause:
		s.isPlaying = false
		// the position at pause time is authoritative from the event, but
		// small drift needs no corrective seek on a paused player
		s.localPosition = ev.Position
		if s.directives.OnPlayingChanged != nil {
			run = append(run, func() { s.directives.OnPlayingChanged(false) })
		}
	case domain.EventSeek:
		s.localPosition = ev.Position
		run = append(run, s.seekDirectiveLocked(ev.Position))
	case domain.EventSelect:
		s.videoURL = ev.VideoURL
		s.isPlaying = false
		s.localPosition = 0
		if s.directives.OnVideoChanged != nil {
			url := ev.VideoURL
			run = append(run, func() { s.directives.OnVideoChanged(url) })
		}
		if s.directives.OnPlayingChanged != nil {
			run = append(run, func() { s.directives.OnPlayingChanged(false) })
		}
	case domain.EventSyncRequest:
		// only meaningful under a broadcast-only transport; with a shared
		// store, joiners read the snapshot themselves
		if s.store == nil && s.videoURL != "" {
			reply = &domain.SyncEvent{
				Kind:      domain.EventSyncState,
				EmittedAt: s.clock.Now().UnixMilli(),
				OriginID:  s.originID,
				TargetID:  ev.OriginID,
				State: &domain.PlaybackState{
					VideoURL:  s.videoURL,
					IsPlaying: s.isPlaying,
					Position:  s.localPosition,
					UpdatedAt: s.clock.Now().UnixMilli(),
				},
			}
		}
	}
	s.mu.Unlock()

	for _, directive := range run {
		directive()
	}

	if reply != nil && s.transport != nil {
		if err := s.transport.Publish(context.Background(), s.roomID, *reply); err != nil {
			s.logger.Warn("failed to answer sync request", "room_id", s.roomID, "error", err)
		}
	}
}

// handleSyncStateLocked consumes a targeted snapshot answer. Only the first
// snapshot of the session's lifetime applies; later ones are ignored so the
// mute-on-join behavior never repeats. Must be entered with the lock held;
// releases it.
func (s *Session) handleSyncStateLocked(ev domain.SyncEvent) {
	if ev.TargetID != s.originID || s.hasInitialSync {
		s.mu.Unlock()
		return
	}

	if s.state == StateAwaitingInitialSync {
		s.mu.Unlock()
		select {
		case s.snapshotCh <- *ev.State:
		default:
		}
		return
	}

	// the join wait already timed out; land the snapshot directly
	run := s.applyInitialSnapshotLocked(*ev.State)
	s.mu.Unlock()

	for _, directive := range run {
		directive()
	}
}

// SetLocalPosition records the local player's progress. The tracked position
// is what inbound play events are compared against when deciding whether a
// corrective seek is needed.
func (s *Session) SetLocalPosition(position float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localPosition = position
}

func (s *Session) Position() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localPosition
}

func (s *Session) IsPlaying() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isPlaying
}

func (s *Session) VideoURL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.videoURL
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// NeedsUnmute reports whether the player was started muted to satisfy the
// autoplay policy and is waiting for a user gesture to unmute.
func (s *Session) NeedsUnmute() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.needsUnmute
}

// Unmute clears the autoplay gate; the UI calls it on the next user gesture.
func (s *Session) Unmute() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.needsUnmute = false
}

// TakePendingSeek returns and clears the seek target accumulated while no
// OnSeek directive callback was wired.
func (s *Session) TakePendingSeek() (float64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingSeek == nil {
		return 0, false
	}

	target := *s.pendingSeek
	s.pendingSeek = nil

	return target, true
}

// Close unsubscribes from the transport and discards the session. Safe to
// call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}
