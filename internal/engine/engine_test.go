package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/ensui-dev/MusicCompanionWidget/internal/hub"
	"github.com/ensui-dev/MusicCompanionWidget/internal/source"
)

// fakePublisher records what the engine pushes into it.
type fakePublisher struct {
	mu        sync.Mutex
	published []hub.Message
	current   []hub.Message
}

func (f *fakePublisher) SetCurrent(msg hub.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = append(f.current, msg)
}

func (f *fakePublisher) Publish(msg hub.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
}

func (f *fakePublisher) publishedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakePublisher) lastPublished() hub.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published[len(f.published)-1]
}

func testConfig() Config {
	return Config{
		PollInterval:  time.Second,
		PollTimeout:   5 * time.Second,
		Tolerance:     500 * time.Millisecond,
		SeekThreshold: 2500 * time.Millisecond,
	}
}

func newTestEngine(pub Publisher) *Engine {
	// The poller is not exercised in these tests; updates are fed by hand.
	return New(testConfig(), nil, pub, zerolog.Nop())
}

func TestHandleFirstObservationPublishes(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEngine(pub)

	e.handle(Update{Snapshot: source.Snapshot{
		Playing: true, Title: "A", Artist: "X", Duration: 200000, Source: "test",
	}})

	if pub.publishedCount() != 1 {
		t.Fatalf("published %d messages, want 1", pub.publishedCount())
	}
	if got := e.Current(); got == nil || got.Title != "A" {
		t.Errorf("Current() = %+v", got)
	}
}

func TestHandleQuietRepollUpdatesCurrentOnly(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEngine(pub)

	first := source.Snapshot{Playing: true, Title: "A", Artist: "X", Progress: 0, Duration: 200000, Source: "test"}
	e.handle(Update{Snapshot: first})

	second := first
	second.Progress = 1000
	e.handle(Update{Snapshot: second})

	if pub.publishedCount() != 1 {
		t.Errorf("published %d messages, want 1 (second poll within tolerance)", pub.publishedCount())
	}
	// Greeting state still advanced on the quiet poll.
	if len(pub.current) != 2 {
		t.Errorf("SetCurrent called %d times, want 2", len(pub.current))
	}
	if got := e.Current(); got == nil || got.Progress != 1000 {
		t.Errorf("Current() = %+v, want progress 1000", got)
	}
}

func TestHandleSourceErrorsBroadcastOnce(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEngine(pub)

	e.handle(Update{Snapshot: source.Snapshot{Playing: true, Title: "A", Artist: "X", Source: "test"}})
	before := pub.publishedCount()

	for i := 0; i < 3; i++ {
		e.handle(Update{Snapshot: source.ErrorSnapshot("test", "player gone")})
	}

	if got := pub.publishedCount() - before; got != 1 {
		t.Errorf("idle transition published %d times, want exactly 1", got)
	}
	last := pub.lastPublished()
	if last.Data == nil || last.Data.Error != "player gone" {
		t.Errorf("last published = %+v", last.Data)
	}
}

func TestHandleTransientMissChangesNothing(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEngine(pub)

	e.handle(Update{Snapshot: source.Snapshot{Playing: true, Title: "A", Artist: "X", Source: "test"}})
	current := e.Current()

	e.handle(Update{Err: context.DeadlineExceeded})

	if pub.publishedCount() != 1 {
		t.Errorf("transient miss must not publish, got %d", pub.publishedCount())
	}
	if got := e.Current(); got == nil || got.Title != current.Title {
		t.Errorf("transient miss must not clear current snapshot, got %+v", got)
	}
}

func TestHandlePauseAndSeekPublish(t *testing.T) {
	pub := &fakePublisher{}
	e := newTestEngine(pub)

	playing := source.Snapshot{Playing: true, Title: "A", Artist: "X", Progress: 10000, Duration: 200000, Source: "test"}
	e.handle(Update{Snapshot: playing})

	paused := playing
	paused.Playing = false
	e.handle(Update{Snapshot: paused})
	if pub.publishedCount() != 2 {
		t.Errorf("pause should publish, count = %d", pub.publishedCount())
	}

	seeked := paused
	seeked.Progress = 60000
	e.handle(Update{Snapshot: seeked})
	if pub.publishedCount() != 3 {
		t.Errorf("seek should publish, count = %d", pub.publishedCount())
	}
}

// fakeSource serves canned snapshots, one per poll.
type fakeSource struct {
	mu    sync.Mutex
	snaps []source.Snapshot
	i     int
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Current(ctx context.Context) (source.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snap := f.snaps[f.i]
	if f.i < len(f.snaps)-1 {
		f.i++
	}
	return snap, nil
}

func TestRunPollsAndPublishes(t *testing.T) {
	src := &fakeSource{snaps: []source.Snapshot{
		{Playing: true, Title: "A", Artist: "X", Progress: 0, Duration: 200000, Source: "fake"},
	}}
	pub := &fakePublisher{}

	cfg := testConfig()
	cfg.PollInterval = 10 * time.Millisecond
	e := New(cfg, src, pub, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for pub.publishedCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	<-done

	if pub.publishedCount() != 1 {
		t.Errorf("published %d messages, want 1 (first observation only)", pub.publishedCount())
	}
	if got := e.Current(); got == nil || got.Title != "A" {
		t.Errorf("Current() = %+v", got)
	}
}
