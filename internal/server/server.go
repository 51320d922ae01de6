// Package server exposes the HTTP surface: the embedded overlay page, the
// WebSocket endpoint observers subscribe on, and a couple of JSON routes.
package server

import (
	"context"
	"embed"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ensui-dev/MusicCompanionWidget/internal/hub"
	"github.com/ensui-dev/MusicCompanionWidget/internal/source"
)

//go:embed web
var webFS embed.FS

// TrackStore provides the last known snapshot. The engine implements it.
type TrackStore interface {
	Current() *source.Snapshot
}

// Server hosts the overlay page and the observer WebSocket endpoint.
type Server struct {
	echo   *echo.Echo
	hub    *hub.Hub
	store  TrackStore
	logger zerolog.Logger
}

// New builds the server and its routes.
func New(h *hub.Hub, store TrackStore, logger zerolog.Logger) *Server {
	s := &Server{
		echo:   echo.New(),
		hub:    h,
		store:  store,
		logger: logger.With().Str("component", "server").Logger(),
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true

	s.echo.GET("/", s.handleOverlay)
	s.echo.GET("/ws", s.handleWS)
	s.echo.GET("/api/track", s.handleTrack)
	s.echo.GET("/healthz", s.handleHealthz)

	return s
}

// Start listens on addr and blocks until Shutdown or a listener error.
func (s *Server) Start(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("Starting HTTP server")
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the HTTP handler, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleOverlay(c echo.Context) error {
	page, err := webFS.ReadFile("web/overlay.html")
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "overlay page missing")
	}
	return c.HTMLBlob(http.StatusOK, page)
}

func (s *Server) handleWS(c echo.Context) error {
	return s.hub.Handle(c.Response(), c.Request())
}

// handleTrack returns the same wire message observers receive, for
// clients that prefer plain polling over a socket.
func (s *Server) handleTrack(c echo.Context) error {
	snap := s.store.Current()
	if snap == nil {
		return c.JSON(http.StatusOK, hub.Message{Type: hub.MessageTypeTrack})
	}
	return c.JSON(http.StatusOK, hub.TrackMessage(*snap))
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"observers": s.hub.Count(),
		"time":      time.Now().UTC().Format(time.RFC3339),
	})
}
