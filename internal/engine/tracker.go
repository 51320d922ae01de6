// Package engine contains the playback-state synchronization core: the
// poll loop that samples a source, the tracker that classifies which
// transitions are worth telling observers about, and the engine that wires
// the two to a broadcast publisher.
package engine

import (
	"time"

	"github.com/ensui-dev/MusicCompanionWidget/internal/source"
)

// Tracker decides, for each fresh snapshot, whether the change since the
// previous one is significant: a new track, a play/pause flip, a user seek,
// or the very first observation. Routine restating of the same state is
// not significant.
//
// The comparison state is updated on every observation regardless of the
// outcome; only broadcasting is gated on significance.
//
// Tracker is not safe for concurrent use; the poll loop is its only caller.
type Tracker struct {
	pollInterval  time.Duration
	tolerance     time.Duration
	seekThreshold time.Duration

	observed     bool
	lastKey      string
	lastPlaying  bool
	lastProgress int64
}

// NewTracker creates a tracker. pollInterval is the fixed poll period,
// tolerance absorbs polling jitter when predicting the next progress value,
// and seekThreshold is the drift beyond which a jump counts as a user seek.
// The three are coupled: seekThreshold must exceed both pollInterval and
// tolerance or jitter alone would register as seeks.
func NewTracker(pollInterval, tolerance, seekThreshold time.Duration) *Tracker {
	return &Tracker{
		pollInterval:  pollInterval,
		tolerance:     tolerance,
		seekThreshold: seekThreshold,
	}
}

// Observe folds a snapshot into the comparison state and reports whether
// the transition is significant.
func (t *Tracker) Observe(snap source.Snapshot) bool {
	key := snap.TrackKey()
	playing := snap.IsPlaying()
	progress := snap.Clamped().Progress

	first := !t.observed
	newTrack := !first && key != t.lastKey
	playFlip := !first && t.lastPlaying != playing

	seek := false
	if !first && !newTrack {
		expected := t.lastProgress
		if t.lastPlaying {
			expected += (t.pollInterval + t.tolerance).Milliseconds()
		}
		drift := progress - expected
		if drift < 0 {
			drift = -drift
		}
		seek = drift > t.seekThreshold.Milliseconds()
	}

	t.observed = true
	t.lastKey = key
	t.lastPlaying = playing
	t.lastProgress = progress

	return first || newTrack || playFlip || seek
}
