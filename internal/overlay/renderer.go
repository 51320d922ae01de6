// Package overlay implements the observer side: a WebSocket client that
// receives significant playback updates and a renderer that extrapolates a
// continuously advancing position between them.
package overlay

import (
	"sync"
	"time"

	"github.com/ensui-dev/MusicCompanionWidget/internal/hub"
	"github.com/ensui-dev/MusicCompanionWidget/internal/source"
)

// Renderer turns sparse pushed snapshots into a smooth position readout.
// It keeps a baseline (progress value + the wall-clock instant that value
// was true) and recomputes the displayed position from that baseline on
// every call, so timer jitter can never accumulate into drift.
//
// By default every received push re-baselines, which is correct because
// the server only pushes significant changes. Setting ResyncThreshold
// enables the defensive variant: a push that matches the renderer's own
// estimate within the threshold keeps the existing baseline.
type Renderer struct {
	// ResyncThreshold, when positive, suppresses re-baselining for pushes
	// whose progress is within this much of the current estimate. Zero
	// means always re-baseline. Set before the first Apply.
	ResyncThreshold time.Duration

	mu             sync.Mutex
	snap           *source.Snapshot
	playing        bool
	progressAtSync int64
	syncedAt       time.Time
}

// NewRenderer creates a renderer in the "nothing received yet" state.
func NewRenderer() *Renderer {
	return &Renderer{}
}

// Apply ingests a pushed wire message at wall-clock time now.
func (r *Renderer) Apply(msg hub.Message, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := msg.Data
	if snap == nil {
		idle := source.Snapshot{}
		snap = &idle
	}

	if r.keepBaseline(snap, now) {
		r.snap = snap
		return
	}

	r.snap = snap
	r.playing = snap.IsPlaying()
	r.progressAtSync = snap.Clamped().Progress
	r.syncedAt = now
}

// keepBaseline reports whether the drift gate allows the old baseline to
// survive this push. Must be called with r.mu held.
func (r *Renderer) keepBaseline(snap *source.Snapshot, now time.Time) bool {
	if r.ResyncThreshold <= 0 || r.snap == nil {
		return false
	}
	if snap.TrackKey() != r.snap.TrackKey() || snap.IsPlaying() != r.playing {
		return false
	}
	drift := snap.Clamped().Progress - r.positionLocked(now)
	if drift < 0 {
		drift = -drift
	}
	return drift <= r.ResyncThreshold.Milliseconds()
}

// Position returns the extrapolated progress in milliseconds at time now.
// Before the first push it is zero.
func (r *Renderer) Position(now time.Time) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.positionLocked(now)
}

func (r *Renderer) positionLocked(now time.Time) int64 {
	if r.snap == nil {
		return 0
	}

	pos := r.progressAtSync
	if r.playing {
		pos += now.Sub(r.syncedAt).Milliseconds()
	}

	if pos < 0 {
		pos = 0
	}
	if d := r.snap.Duration; d > 0 && pos > d {
		pos = d
	}
	return pos
}

// Snapshot returns the most recently received snapshot, or nil before the
// first push (and after a "nothing playing" push it returns the idle
// snapshot, not nil).
func (r *Renderer) Snapshot() *source.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.snap == nil {
		return nil
	}
	snap := *r.snap
	return &snap
}

// Playing reports the current playing flag.
func (r *Renderer) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}
