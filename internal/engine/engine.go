package engine

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ensui-dev/MusicCompanionWidget/internal/hub"
	"github.com/ensui-dev/MusicCompanionWidget/internal/source"
)

// Publisher is the broadcast side the engine pushes into. SetCurrent runs
// on every poll so late observers are greeted with fresh state; Publish
// only on significant transitions.
type Publisher interface {
	SetCurrent(msg hub.Message)
	Publish(msg hub.Message)
}

// Config holds the engine timing constants. Interval, tolerance and seek
// threshold are coupled; Validate on the config package enforces their
// ordering before an engine is built.
type Config struct {
	PollInterval  time.Duration
	PollTimeout   time.Duration
	Tolerance     time.Duration
	SeekThreshold time.Duration
}

// Engine wires the poll loop to the significance tracker and the
// publisher. It is the single writer of both the comparison state and the
// current known snapshot.
type Engine struct {
	cfg     Config
	poller  *Poller
	tracker *Tracker
	pub     Publisher
	logger  zerolog.Logger

	mu      sync.RWMutex
	current *source.Snapshot
}

// New creates an engine polling src and broadcasting through pub.
func New(cfg Config, src source.Source, pub Publisher, logger zerolog.Logger) *Engine {
	return &Engine{
		cfg:     cfg,
		poller:  NewPoller(src, cfg.PollInterval, cfg.PollTimeout, logger),
		tracker: NewTracker(cfg.PollInterval, cfg.Tolerance, cfg.SeekThreshold),
		pub:     pub,
		logger:  logger.With().Str("component", "engine").Logger(),
	}
}

// Run blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	updates := make(chan Update, 10)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := e.poller.Run(ctx, updates); err != nil && err != context.Canceled {
			e.logger.Error().Err(err).Msg("Poller error")
		}
	}()

	e.consume(ctx, updates)
	wg.Wait()
	return nil
}

// Current returns the last known snapshot, or nil before the first poll
// completes.
func (e *Engine) Current() *source.Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.current == nil {
		return nil
	}
	snap := *e.current
	return &snap
}

func (e *Engine) consume(ctx context.Context, updates <-chan Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case upd := <-updates:
			e.handle(upd)
		}
	}
}

// handle runs one poll result through the tracker and publishes when the
// transition is significant. A transient poll miss changes nothing and is
// retried on the next tick.
func (e *Engine) handle(upd Update) {
	if upd.Err != nil {
		e.logger.Debug().Err(upd.Err).Msg("Transient poll miss")
		return
	}

	snap := upd.Snapshot

	e.mu.Lock()
	e.current = &snap
	e.mu.Unlock()

	significant := e.tracker.Observe(snap)
	msg := hub.TrackMessage(snap)
	e.pub.SetCurrent(msg)

	if !significant {
		return
	}

	if snap.HasTrack() {
		e.logger.Info().
			Str("title", snap.Title).
			Str("artist", snap.Artist).
			Bool("playing", snap.IsPlaying()).
			Int64("progress", snap.Progress).
			Msg("Playback state changed")
	} else if snap.Error != "" {
		e.logger.Warn().Str("error", snap.Error).Msg("Source unavailable")
	} else {
		e.logger.Info().Msg("Nothing playing")
	}

	e.pub.Publish(msg)
}
