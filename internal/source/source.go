// Package source defines the normalized playback snapshot model and the
// adapter contract every music source implements.
package source

import "context"

// Snapshot is one normalized observation of playback state at a point in
// time. It is constructed fresh on every poll and never mutated afterwards.
// Duration and Progress are milliseconds; a zero Duration means the source
// does not know the track length.
type Snapshot struct {
	Playing  bool   `json:"playing"`
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	AlbumArt string `json:"albumArt,omitempty"`
	Duration int64  `json:"duration"`
	Progress int64  `json:"progress"`
	Source   string `json:"source"`
	Error    string `json:"error,omitempty"`
}

// NoTrackKey is the track key of a snapshot with no title. A snapshot
// without a title means "nothing playing" regardless of its other fields.
const NoTrackKey = "none"

// TrackKey derives the identity key used for change detection. Two
// snapshots describe the same track iff their keys match exactly.
func (s Snapshot) TrackKey() string {
	if s.Title == "" {
		return NoTrackKey
	}
	return s.Title + "\x00" + s.Artist
}

// HasTrack reports whether the snapshot describes an actual track.
func (s Snapshot) HasTrack() bool {
	return s.Title != "" && s.Error == ""
}

// IsPlaying reports the effective play state. An errored snapshot is never
// playing, whatever the adapter put in the Playing field.
func (s Snapshot) IsPlaying() bool {
	return s.Error == "" && s.Playing
}

// Clamped returns a copy with Progress forced into [0, Duration]. When the
// duration is unknown only the lower bound applies.
func (s Snapshot) Clamped() Snapshot {
	if s.Progress < 0 {
		s.Progress = 0
	}
	if s.Duration > 0 && s.Progress > s.Duration {
		s.Progress = s.Duration
	}
	return s
}

// ErrorSnapshot builds the canonical "source failed" snapshot. The engine
// treats it as a normal observation, not as exceptional control flow.
func ErrorSnapshot(src, msg string) Snapshot {
	return Snapshot{Source: src, Error: msg}
}

// IdleSnapshot builds a "nothing playing" snapshot for a healthy source.
func IdleSnapshot(src string) Snapshot {
	return Snapshot{Source: src}
}

// Source is the adapter contract. Current returns the present playback
// state or an error snapshot; it must respect ctx cancellation. A returned
// Go error signals a misbehaving adapter and is treated by the poll loop as
// a transient miss, not a state change — well-behaved adapters report their
// failures inside the snapshot instead.
type Source interface {
	// Name identifies the adapter in snapshots and logs.
	Name() string

	// Current returns the current playback state. It must not be invoked
	// concurrently with itself.
	Current(ctx context.Context) (Snapshot, error)
}
