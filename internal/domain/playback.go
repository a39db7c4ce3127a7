package domain

// PlaybackState is the authoritative, last-writer-wins description of what a
// room is playing. UpdatedAt is unix milliseconds at the moment the state was
// produced; a write with an older UpdatedAt than the stored one must not win.
type PlaybackState struct {
	VideoURL  string  `json:"video_url"`
	IsPlaying bool    `json:"is_playing"`
	Position  float64 `json:"position"`
	UpdatedAt int64   `json:"updated_at"`
}

// PositionAt returns the playback position extrapolated to now (unix ms).
// While paused the stored position is returned as is.
func (s PlaybackState) PositionAt(now int64) float64 {
	if !s.IsPlaying || now <= s.UpdatedAt {
		return s.Position
	}

	return s.Position + float64(now-s.UpdatedAt)/1000
}
