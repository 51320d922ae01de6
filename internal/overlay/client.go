package overlay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/ensui-dev/MusicCompanionWidget/internal/hub"
)

const (
	reconnectBase = time.Second
	reconnectMax  = 16 * time.Second
)

// Client subscribes to a companion server over WebSocket and feeds every
// received message into a Renderer. It reconnects with exponential backoff
// so the observer survives server restarts.
type Client struct {
	url      string
	renderer *Renderer
	onUpdate func()
	logger   zerolog.Logger
}

// NewClient creates a client for the given ws:// or wss:// URL. onUpdate,
// if non-nil, is invoked after each applied message (used by TUIs to force
// a redraw); it runs on the read goroutine and must not block.
func NewClient(url string, renderer *Renderer, onUpdate func(), logger zerolog.Logger) *Client {
	return &Client{
		url:      url,
		renderer: renderer,
		onUpdate: onUpdate,
		logger:   logger.With().Str("component", "observer").Logger(),
	}
}

// Run connects and consumes messages until ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	backoff := reconnectBase

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		connected, err := c.consume(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that was established resets the backoff so the next
		// blip retries promptly; repeated dial failures keep growing it.
		backoff = nextBackoff(backoff, connected)

		c.logger.Warn().Err(err).Dur("retry_in", backoff).Msg("Connection lost")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// nextBackoff returns the delay before the next connection attempt.
func nextBackoff(cur time.Duration, connected bool) time.Duration {
	if connected {
		return reconnectBase
	}
	next := cur * 2
	if next > reconnectMax {
		next = reconnectMax
	}
	return next
}

// consume runs one connection to completion. The bool reports whether the
// dial succeeded.
func (c *Client) consume(ctx context.Context) (bool, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return false, err
	}
	defer ws.Close()

	c.logger.Info().Str("url", c.url).Msg("Connected")

	// Unblock ReadMessage when the context dies.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			return true, err
		}

		var msg hub.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Debug().Err(err).Msg("Discarding malformed message")
			continue
		}
		if msg.Type != hub.MessageTypeTrack {
			continue
		}

		c.renderer.Apply(msg, time.Now())
		if c.onUpdate != nil {
			c.onUpdate()
		}
	}
}
