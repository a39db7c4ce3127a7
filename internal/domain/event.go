package domain

import "fmt"

type EventKind string

const (
	EventPlay        EventKind = "play"
	EventPause       EventKind = "pause"
	EventSeek        EventKind = "seek"
	EventSelect      EventKind = "select"
	EventSyncRequest EventKind = "sync_request"
	EventSyncState   EventKind = "sync_state"
)

// SyncEvent is a transient broadcast message carrying a playback intent.
// OriginID identifies the session that produced it so receivers can suppress
// their own echo. TargetID, when set, addresses the event to a single session
// (used to answer sync requests under a pure-broadcast transport).
type SyncEvent struct {
	Kind      EventKind      `json:"kind"`
	Position  float64        `json:"position"`
	EmittedAt int64          `json:"emitted_at"`
	OriginID  string         `json:"origin_id"`
	VideoURL  string         `json:"video_url,omitempty"`
	TargetID  string         `json:"target_id,omitempty"`
	State     *PlaybackState `json:"state,omitempty"`
}

func (e SyncEvent) Validate() error {
	switch e.Kind {
	case EventPlay, EventPause, EventSeek, EventSelect, EventSyncRequest, EventSyncState:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}

	if e.OriginID == "" {
		return fmt.Errorf("event %q has empty origin id", e.Kind)
	}
	if e.Position < 0 {
		return fmt.Errorf("event %q has negative position %f", e.Kind, e.Position)
	}
	if e.Kind == EventSelect && e.VideoURL == "" {
		return fmt.Errorf("select event has empty video url")
	}
	if e.Kind == EventSyncState && e.State == nil {
		return fmt.Errorf("sync_state event has no state")
	}

	return nil
}
