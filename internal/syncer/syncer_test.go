package syncer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/watchsync/server/internal/domain"
	"github.com/watchsync/server/internal/repository/playback"
	"github.com/watchsync/server/internal/repository/playback/inmemory"
	transportInmemory "github.com/watchsync/server/internal/transport/inmemory"
)

type directiveRecorder struct {
	mu      sync.Mutex
	seeks   []float64
	playing []bool
	videos  []string
}

func (r *directiveRecorder) directives() Directives {
	return Directives{
		OnSeek: func(position float64) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.seeks = append(r.seeks, position)
		},
		OnPlayingChanged: func(isPlaying bool) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.playing = append(r.playing, isPlaying)
		},
		OnVideoChanged: func(videoURL string) {
			r.mu.Lock()
			defer r.mu.Unlock()
			r.videos = append(r.videos, videoURL)
		},
	}
}

func (r *directiveRecorder) seekCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seeks)
}

func (r *directiveRecorder) lastSeek() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seeks[len(r.seeks)-1]
}

func (r *directiveRecorder) playingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.playing)
}

func TestEchoSuppression(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := transportInmemory.NewTransport()
	store := inmemory.NewStore()
	rec := &directiveRecorder{}

	session := NewSession(&Params{
		RoomID:     "room-1",
		OriginID:   "origin-a",
		Transport:  transport,
		Store:      store,
		Directives: rec.directives(),
		Clock:      clock,
	})
	require.NoError(t, session.Join(context.Background()))
	require.Equal(t, StateSynced, session.State())

	// the in-process transport echoes every publish back to the publisher;
	// the session's own play must not produce a directive
	require.NoError(t, session.Play(context.Background(), 10))
	assert.Equal(t, 0, rec.seekCount(), "no seek directive for own echo")
	assert.Equal(t, 0, rec.playingCount(), "no playing directive for own echo")
	assert.True(t, session.IsPlaying())

	// a foreign event arriving inside the suppression window is ignored too
	transport.Publish(context.Background(), "room-1", domain.SyncEvent{
		Kind:      domain.EventPause,
		Position:  10,
		EmittedAt: clock.Now().UnixMilli(),
		OriginID:  "origin-b",
	})
	assert.True(t, session.IsPlaying(), "event inside suppression window must be ignored")

	// once the window expires the same event applies
	clock.Advance(150 * time.Millisecond)
	transport.Publish(context.Background(), "room-1", domain.SyncEvent{
		Kind:      domain.EventPause,
		Position:  10,
		EmittedAt: clock.Now().UnixMilli(),
		OriginID:  "origin-b",
	})
	assert.False(t, session.IsPlaying())
	assert.Equal(t, []bool{false}, rec.playing)
}

func TestConvergenceTolerance(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := transportInmemory.NewTransport()
	store := inmemory.NewStore()
	rec := &directiveRecorder{}

	session := NewSession(&Params{
		RoomID:     "room-1",
		OriginID:   "origin-a",
		Transport:  transport,
		Store:      store,
		Directives: rec.directives(),
		Clock:      clock,
	})
	require.NoError(t, session.Join(context.Background()))
	session.SetLocalPosition(50)

	// drift at the threshold: playing flag changes, no corrective seek
	transport.Publish(context.Background(), "room-1", domain.SyncEvent{
		Kind:      domain.EventPlay,
		Position:  52,
		EmittedAt: clock.Now().UnixMilli(),
		OriginID:  "origin-b",
	})
	assert.Equal(t, 0, rec.seekCount())
	assert.Equal(t, []bool{true}, rec.playing)
	assert.Equal(t, 50.0, session.Position(), "tolerated drift keeps the local position")

	// drift beyond the threshold: corrective seek
	transport.Publish(context.Background(), "room-1", domain.SyncEvent{
		Kind:      domain.EventPlay,
		Position:  55,
		EmittedAt: clock.Now().UnixMilli(),
		OriginID:  "origin-b",
	})
	require.Equal(t, 1, rec.seekCount())
	assert.Equal(t, 55.0, rec.lastSeek())
	assert.Equal(t, 55.0, session.Position())
}

func TestSeekDebounce(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := transportInmemory.NewTransport()
	store := inmemory.NewStore()

	var mu sync.Mutex
	var seen []domain.SyncEvent
	_, err := transport.Subscribe(context.Background(), "room-1", func(ev domain.SyncEvent) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev)
	})
	require.NoError(t, err)

	session := NewSession(&Params{
		RoomID:    "room-1",
		OriginID:  "origin-a",
		Transport: transport,
		Store:     store,
		Clock:     clock,
	})
	require.NoError(t, session.Join(context.Background()))

	require.NoError(t, session.Seek(context.Background(), 10))
	clock.Advance(100 * time.Millisecond)
	require.NoError(t, session.Seek(context.Background(), 20))

	mu.Lock()
	assert.Len(t, seen, 1, "second seek within the debounce window must not emit")
	mu.Unlock()
	assert.Equal(t, 20.0, session.Position(), "dropped seek still tracks the position")

	clock.Advance(500 * time.Millisecond)
	require.NoError(t, session.Seek(context.Background(), 30))

	mu.Lock()
	require.Len(t, seen, 2)
	assert.Equal(t, domain.EventSeek, seen[1].Kind)
	assert.Equal(t, 30.0, seen[1].Position)
	mu.Unlock()
}

func TestLateJoinSnapshot(t *testing.T) {
	t.Run("playing snapshot arms the unmute gate", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		store := inmemory.NewStore()
		rec := &directiveRecorder{}

		require.NoError(t, store.SetPlaybackState(context.Background(), "room-1", domain.PlaybackState{
			VideoURL:  "dQw4w9WgXcQ",
			IsPlaying: true,
			Position:  100,
			UpdatedAt: clock.Now().UnixMilli(),
		}))

		session := NewSession(&Params{
			RoomID:     "room-1",
			Transport:  transportInmemory.NewTransport(),
			Store:      store,
			Directives: rec.directives(),
			Clock:      clock,
		})
		require.NoError(t, session.Join(context.Background()))

		assert.Equal(t, StateSynced, session.State())
		assert.True(t, session.NeedsUnmute())
		assert.Equal(t, []string{"dQw4w9WgXcQ"}, rec.videos)
		assert.Equal(t, []bool{true}, rec.playing)

		session.Unmute()
		assert.False(t, session.NeedsUnmute())
	})

	t.Run("paused snapshot does not", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		store := inmemory.NewStore()

		require.NoError(t, store.SetPlaybackState(context.Background(), "room-1", domain.PlaybackState{
			VideoURL:  "dQw4w9WgXcQ",
			IsPlaying: false,
			Position:  100,
			UpdatedAt: clock.Now().UnixMilli(),
		}))

		session := NewSession(&Params{
			RoomID:    "room-1",
			Transport: transportInmemory.NewTransport(),
			Store:     store,
			Clock:     clock,
		})
		require.NoError(t, session.Join(context.Background()))

		assert.Equal(t, StateSynced, session.State())
		assert.False(t, session.NeedsUnmute())
	})
}

func TestLateJoinExtrapolation(t *testing.T) {
	seed := func(t *testing.T, clock clockwork.Clock) playback.Store {
		t.Helper()
		store := inmemory.NewStore()
		require.NoError(t, store.SetPlaybackState(context.Background(), "room-1", domain.PlaybackState{
			VideoURL:  "dQw4w9WgXcQ",
			IsPlaying: true,
			Position:  100,
			UpdatedAt: clock.Now().UnixMilli() - 10_000,
		}))
		return store
	}

	t.Run("enabled lands near the live position", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		rec := &directiveRecorder{}

		session := NewSession(&Params{
			RoomID:     "room-1",
			Transport:  transportInmemory.NewTransport(),
			Store:      seed(t, clock),
			Directives: rec.directives(),
			Clock:      clock,
		})
		require.NoError(t, session.Join(context.Background()))

		require.Equal(t, 1, rec.seekCount())
		assert.InDelta(t, 110.0, rec.lastSeek(), 0.01)
	})

	t.Run("disabled lands where the state was written", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		rec := &directiveRecorder{}

		cfg := DefaultConfig()
		cfg.ExtrapolateOnJoin = false

		session := NewSession(&Params{
			RoomID:     "room-1",
			Transport:  transportInmemory.NewTransport(),
			Store:      seed(t, clock),
			Directives: rec.directives(),
			Config:     cfg,
			Clock:      clock,
		})
		require.NoError(t, session.Join(context.Background()))

		require.Equal(t, 1, rec.seekCount())
		assert.Equal(t, 100.0, rec.lastSeek())
	})
}

func TestJoinTimeoutFallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := transportInmemory.NewTransport()

	// broadcast-only binding with nobody to answer the sync request
	session := NewSession(&Params{
		RoomID:    "room-1",
		OriginID:  "origin-a",
		Transport: transport,
		Clock:     clock,
	})

	done := make(chan error, 1)
	go func() {
		done <- session.Join(context.Background())
	}()

	clock.BlockUntil(1)

	// remote events arriving before the initial sync are dropped, not buffered
	transport.Publish(context.Background(), "room-1", domain.SyncEvent{
		Kind:      domain.EventPlay,
		Position:  33,
		EmittedAt: clock.Now().UnixMilli(),
		OriginID:  "origin-b",
	})

	clock.Advance(DefaultJoinTimeout)
	require.NoError(t, <-done)

	assert.Equal(t, StateSynced, session.State())
	assert.False(t, session.IsPlaying())
	assert.Equal(t, 0.0, session.Position())
	assert.False(t, session.NeedsUnmute())
}

func TestSnapshotRacingJoinTimeout(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := transportInmemory.NewTransport()
	rec := &directiveRecorder{}

	session := NewSession(&Params{
		RoomID:     "room-1",
		OriginID:   "B",
		Transport:  transport,
		Directives: rec.directives(),
		Clock:      clock,
	})

	done := make(chan error, 1)
	go func() {
		done <- session.Join(context.Background())
	}()
	clock.BlockUntil(1)

	// fire the timeout and answer in the same instant: whichever side wins
	// the race, the peer's state must end up applied, not the defaults
	clock.Advance(DefaultJoinTimeout)
	transport.Publish(context.Background(), "room-1", domain.SyncEvent{
		Kind:      domain.EventSyncState,
		EmittedAt: clock.Now().UnixMilli(),
		OriginID:  "A",
		TargetID:  "B",
		State: &domain.PlaybackState{
			VideoURL:  "dQw4w9WgXcQ",
			IsPlaying: true,
			Position:  30,
			UpdatedAt: clock.Now().UnixMilli(),
		},
	})
	require.NoError(t, <-done)

	assert.Equal(t, StateSynced, session.State())
	assert.Equal(t, "dQw4w9WgXcQ", session.VideoURL())
	assert.True(t, session.IsPlaying())
	assert.InDelta(t, 30.0, session.Position(), 0.01)
	assert.True(t, session.NeedsUnmute())
}

func TestSeekPropagatesBetweenSessions(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := transportInmemory.NewTransport()
	store := inmemory.NewStore()
	recB := &directiveRecorder{}

	sessionA := NewSession(&Params{
		RoomID:    "room-1",
		OriginID:  "A",
		Transport: transport,
		Store:     store,
		Clock:     clock,
	})
	require.NoError(t, sessionA.Join(context.Background()))

	sessionB := NewSession(&Params{
		RoomID:     "room-1",
		OriginID:   "B",
		Transport:  transport,
		Store:      store,
		Directives: recB.directives(),
		Clock:      clock,
	})
	require.NoError(t, sessionB.Join(context.Background()))

	require.NoError(t, sessionA.Seek(context.Background(), 42))

	require.Equal(t, 1, recB.seekCount())
	assert.Equal(t, 42.0, recB.lastSeek())
	assert.Equal(t, 42.0, sessionB.Position())
	assert.Equal(t, 42.0, sessionA.Position())

	// the seek was persisted with A's timestamp, so a later joiner sees it
	state, err := store.GetPlaybackState(context.Background(), "room-1")
	require.NoError(t, err)
	assert.Equal(t, 42.0, state.Position)
}

func TestRemoteSelectSwitchesVideo(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := transportInmemory.NewTransport()
	store := inmemory.NewStore()
	rec := &directiveRecorder{}

	session := NewSession(&Params{
		RoomID:     "room-1",
		OriginID:   "A",
		Transport:  transport,
		Store:      store,
		Directives: rec.directives(),
		Clock:      clock,
	})
	require.NoError(t, session.Join(context.Background()))
	require.NoError(t, session.Play(context.Background(), 30))
	clock.Advance(150 * time.Millisecond)

	transport.Publish(context.Background(), "room-1", domain.SyncEvent{
		Kind:      domain.EventSelect,
		EmittedAt: clock.Now().UnixMilli(),
		OriginID:  "B",
		VideoURL:  "9bZkp7q19f0",
	})

	assert.Equal(t, "9bZkp7q19f0", session.VideoURL())
	assert.False(t, session.IsPlaying())
	assert.Equal(t, 0.0, session.Position())
	assert.Equal(t, []string{"9bZkp7q19f0"}, rec.videos)
}

func TestMalformedEventDropped(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := transportInmemory.NewTransport()
	store := inmemory.NewStore()
	rec := &directiveRecorder{}

	session := NewSession(&Params{
		RoomID:     "room-1",
		OriginID:   "A",
		Transport:  transport,
		Store:      store,
		Directives: rec.directives(),
		Clock:      clock,
	})
	require.NoError(t, session.Join(context.Background()))

	transport.Publish(context.Background(), "room-1", domain.SyncEvent{
		Kind:     "explode",
		OriginID: "B",
	})
	transport.Publish(context.Background(), "room-1", domain.SyncEvent{
		Kind:      domain.EventSeek,
		Position:  -5,
		EmittedAt: clock.Now().UnixMilli(),
		OriginID:  "B",
	})
	transport.Publish(context.Background(), "room-1", domain.SyncEvent{
		Kind:      domain.EventPlay,
		EmittedAt: clock.Now().UnixMilli(),
	})

	assert.Equal(t, 0, rec.seekCount())
	assert.Equal(t, 0, rec.playingCount())
	assert.False(t, session.IsPlaying())
}

func TestSyncRequestAnsweredByPeer(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := transportInmemory.NewTransport()

	sessionA := NewSession(&Params{
		RoomID:    "room-1",
		OriginID:  "A",
		Transport: transport,
		Clock:     clock,
	})

	doneA := make(chan error, 1)
	go func() {
		doneA <- sessionA.Join(context.Background())
	}()
	clock.BlockUntil(1)
	clock.Advance(DefaultJoinTimeout)
	require.NoError(t, <-doneA)

	require.NoError(t, sessionA.SelectVideo(context.Background(), "dQw4w9WgXcQ"))
	clock.Advance(150 * time.Millisecond)
	require.NoError(t, sessionA.Play(context.Background(), 7))
	clock.Advance(150 * time.Millisecond)

	recB := &directiveRecorder{}
	sessionB := NewSession(&Params{
		RoomID:     "room-1",
		OriginID:   "B",
		Transport:  transport,
		Directives: recB.directives(),
		Clock:      clock,
	})
	require.NoError(t, sessionB.Join(context.Background()))

	assert.Equal(t, StateSynced, sessionB.State())
	assert.Equal(t, "dQw4w9WgXcQ", sessionB.VideoURL())
	assert.True(t, sessionB.IsPlaying())
	assert.True(t, sessionB.NeedsUnmute())
	assert.InDelta(t, 7.0, sessionB.Position(), 0.01)

	// A must never answer its own request
	assert.Equal(t, "dQw4w9WgXcQ", sessionA.VideoURL())
}

func TestLocalControlWithoutTransport(t *testing.T) {
	clock := clockwork.NewFakeClock()

	session := NewSession(&Params{
		RoomID: "room-1",
		Clock:  clock,
	})
	require.NoError(t, session.Join(context.Background()))
	require.Equal(t, StateSynced, session.State())

	// sync being down never blocks local playback control
	require.NoError(t, session.Play(context.Background(), 5))
	assert.True(t, session.IsPlaying())
	require.NoError(t, session.Pause(context.Background(), 6))
	assert.False(t, session.IsPlaying())
	assert.Equal(t, 6.0, session.Position())
}

func TestCloseStopsProcessing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := transportInmemory.NewTransport()
	store := inmemory.NewStore()
	rec := &directiveRecorder{}

	session := NewSession(&Params{
		RoomID:     "room-1",
		OriginID:   "A",
		Transport:  transport,
		Store:      store,
		Directives: rec.directives(),
		Clock:      clock,
	})
	require.NoError(t, session.Join(context.Background()))

	session.Close()
	session.Close()

	transport.Publish(context.Background(), "room-1", domain.SyncEvent{
		Kind:      domain.EventSeek,
		Position:  42,
		EmittedAt: clock.Now().UnixMilli(),
		OriginID:  "B",
	})
	assert.Equal(t, 0, rec.seekCount())

	assert.ErrorIs(t, session.Play(context.Background(), 1), ErrClosed)
}

func TestPendingSeekWithoutCallback(t *testing.T) {
	clock := clockwork.NewFakeClock()
	transport := transportInmemory.NewTransport()
	store := inmemory.NewStore()

	session := NewSession(&Params{
		RoomID:    "room-1",
		OriginID:  "A",
		Transport: transport,
		Store:     store,
		Clock:     clock,
	})
	require.NoError(t, session.Join(context.Background()))

	transport.Publish(context.Background(), "room-1", domain.SyncEvent{
		Kind:      domain.EventSeek,
		Position:  42,
		EmittedAt: clock.Now().UnixMilli(),
		OriginID:  "B",
	})

	target, ok := session.TakePendingSeek()
	require.True(t, ok)
	assert.Equal(t, 42.0, target)

	_, ok = session.TakePendingSeek()
	assert.False(t, ok)
}
