package engine

import (
	"testing"
	"time"

	"github.com/ensui-dev/MusicCompanionWidget/internal/source"
)

func newTestTracker() *Tracker {
	return NewTracker(1*time.Second, 500*time.Millisecond, 2500*time.Millisecond)
}

func playingSnap(title, artist string, progress int64) source.Snapshot {
	return source.Snapshot{
		Playing:  true,
		Title:    title,
		Artist:   artist,
		Duration: 200000,
		Progress: progress,
		Source:   "test",
	}
}

func TestFirstObservationAlwaysSignificant(t *testing.T) {
	tests := []struct {
		name string
		snap source.Snapshot
	}{
		{"playing track", playingSnap("A", "X", 0)},
		{"paused track", source.Snapshot{Title: "A", Artist: "X"}},
		{"idle", source.Snapshot{}},
		{"errored", source.ErrorSnapshot("test", "boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !newTestTracker().Observe(tt.snap) {
				t.Error("first observation must be significant")
			}
		})
	}
}

func TestIdempotentRepoll(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(playingSnap("A", "X", 10000))

	// Progress advanced by roughly one poll interval: routine restating.
	if tr.Observe(playingSnap("A", "X", 11000)) {
		t.Error("in-tolerance progress advance should not be significant")
	}
	if tr.Observe(playingSnap("A", "X", 12100)) {
		t.Error("in-tolerance progress advance should not be significant")
	}
}

func TestSeekDetectionBoundary(t *testing.T) {
	// Prior state {track=T, playing=true, progress=10000}, interval 1000ms,
	// tolerance 500ms, threshold 2500ms.
	tests := []struct {
		name        string
		progress    int64
		significant bool
	}{
		{"forward seek", 20000, true},
		{"normal advance", 11200, false},
		{"backward seek", 2000, true},
		{"exactly at expected", 11500, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTracker()
			tr.Observe(playingSnap("T", "X", 10000))
			if got := tr.Observe(playingSnap("T", "X", tt.progress)); got != tt.significant {
				t.Errorf("progress %d: significant = %v, want %v", tt.progress, got, tt.significant)
			}
		})
	}
}

func TestSeekNotDetectedWhilePaused(t *testing.T) {
	tr := newTestTracker()
	paused := playingSnap("T", "X", 10000)
	paused.Playing = false

	tr.Observe(paused)
	// Same paused position restated: nothing happened.
	if tr.Observe(paused) {
		t.Error("unchanged paused state should not be significant")
	}
	// Position jumped while paused: that is a seek.
	jumped := paused
	jumped.Progress = 60000
	if !tr.Observe(jumped) {
		t.Error("position jump while paused should be significant")
	}
}

func TestTrackChangeAlwaysSignificant(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(playingSnap("T1", "X", 150000))

	// New track, wildly different progress and same playing flag.
	if !tr.Observe(playingSnap("T2", "X", 0)) {
		t.Error("track change must be significant")
	}
}

func TestSameTitleDifferentArtistIsNewTrack(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(playingSnap("Hurt", "Nine Inch Nails", 5000))
	if !tr.Observe(playingSnap("Hurt", "Johnny Cash", 5000)) {
		t.Error("artist change must be a track change")
	}
}

func TestPlayPauseTransitionAlwaysSignificant(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(playingSnap("T", "X", 30000))

	paused := playingSnap("T", "X", 30000)
	paused.Playing = false
	if !tr.Observe(paused) {
		t.Error("pause must be significant")
	}
	if !tr.Observe(playingSnap("T", "X", 30000)) {
		t.Error("resume must be significant")
	}
}

func TestErroredSnapshotTreatedAsNotPlaying(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(playingSnap("T", "X", 1000))

	// Error snapshot claims playing=true but must count as idle/not playing.
	bad := source.Snapshot{Playing: true, Error: "adapter exploded", Source: "test"}
	if !tr.Observe(bad) {
		t.Error("transition into errored/idle state must be significant")
	}
	if tr.Observe(bad) {
		t.Error("staying in the errored state must not re-broadcast")
	}
}

func TestEnterIdleOnceNotPerPoll(t *testing.T) {
	tr := newTestTracker()
	tr.Observe(playingSnap("T", "X", 1000))

	idle := source.Snapshot{Source: "test"}
	significant := 0
	for i := 0; i < 3; i++ {
		if tr.Observe(idle) {
			significant++
		}
	}
	if significant != 1 {
		t.Errorf("idle transition broadcast %d times, want exactly 1", significant)
	}
}

func TestUnknownDurationStillClassified(t *testing.T) {
	tr := newTestTracker()
	s := playingSnap("Stream", "Radio", 10000)
	s.Duration = 0
	tr.Observe(s)

	ahead := s
	ahead.Progress = 11000
	if tr.Observe(ahead) {
		t.Error("normal advance with unknown duration should not be significant")
	}

	seek := s
	seek.Progress = 90000
	if !tr.Observe(seek) {
		t.Error("seek with unknown duration must still be detected")
	}
}

func TestScenarioFirstPollThenQuietSecond(t *testing.T) {
	tr := newTestTracker()

	first := source.Snapshot{Title: "A", Artist: "X", Playing: true, Progress: 0, Duration: 200000, Source: "test"}
	if !tr.Observe(first) {
		t.Fatal("t=0: first observation must broadcast")
	}

	second := first
	second.Progress = 1000
	if tr.Observe(second) {
		t.Error("t=1000: in-tolerance advance must not broadcast")
	}
}
