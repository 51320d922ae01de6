package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/ensui-dev/MusicCompanionWidget/internal/source"
)

// Update is one poll result handed to the engine.
type Update struct {
	Snapshot source.Snapshot
	Err      error // misbehaving adapter; treated as a transient miss
}

// Poller drives the active source at a fixed interval. Polls are strictly
// serialized: each one runs to completion or timeout before the next tick
// is considered.
type Poller struct {
	src      source.Source
	interval time.Duration
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a poller. timeout bounds every individual poll so a
// stuck adapter cannot stall future ticks.
func NewPoller(src source.Source, interval, timeout time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		src:      src,
		interval: interval,
		timeout:  timeout,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Run polls until ctx is cancelled, sending results to updates. The first
// poll happens immediately rather than one interval in.
func (p *Poller) Run(ctx context.Context, updates chan<- Update) error {
	p.logger.Info().
		Str("source", p.src.Name()).
		Dur("interval", p.interval).
		Msg("Starting poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx, updates)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Poller stopped")
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx, updates)
		}
	}
}

// poll queries the source once and forwards the result. A timeout becomes
// an error snapshot (a real state: the source is unusable); any other Go
// error from the adapter is a contract violation forwarded as Err.
func (p *Poller) poll(ctx context.Context, updates chan<- Update) {
	pctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	snap, err := p.src.Current(pctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			snap = source.ErrorSnapshot(p.src.Name(), "poll timed out")
		} else {
			p.logger.Debug().Err(err).Msg("Poll failed")
			select {
			case updates <- Update{Err: err}:
			case <-ctx.Done():
			}
			return
		}
	}

	select {
	case updates <- Update{Snapshot: snap}:
	case <-ctx.Done():
	}
}
