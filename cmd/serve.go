package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ensui-dev/MusicCompanionWidget/internal/config"
	"github.com/ensui-dev/MusicCompanionWidget/internal/engine"
	"github.com/ensui-dev/MusicCompanionWidget/internal/hub"
	"github.com/ensui-dev/MusicCompanionWidget/internal/server"
	"github.com/ensui-dev/MusicCompanionWidget/internal/source"
)

var (
	serveListenAddr string
	serveSource     string
	serveLogFile    string
	serveLogLevel   string
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the overlay server",
	Long: `Run the overlay server that keeps OBS browser sources in sync.

The server will:
- Poll the configured music source once per second
- Broadcast meaningful changes (new track, play/pause, seeks) to every
  connected WebSocket observer
- Greet each new observer with the current state immediately
- Serve the built-in overlay page at / for use as an OBS browser source
- Handle graceful shutdown on SIGINT/SIGTERM

Sources: "mpris" polls the first MPRIS player on the D-Bus session bus
(configurable via mpris.player); "spotify" polls the Spotify Web API and
needs spotify.access_token in the config or MCW_SPOTIFY_ACCESS_TOKEN.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveListenAddr, "listen", "", "Listen address (default from config, :8090)")
	serveCmd.Flags().StringVar(&serveSource, "source", "", "Music source: mpris or spotify (default from config)")
	serveCmd.Flags().StringVar(&serveLogFile, "log-file", "", "Log file path (default: stderr)")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if serveListenAddr != "" {
		cfg.ListenAddr = serveListenAddr
	}
	if serveSource != "" {
		cfg.Source = serveSource
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger := setupLogger(serveLogFile, serveLogLevel)

	logger.Info().
		Str("version", version).
		Str("source", cfg.Source).
		Str("listen", cfg.ListenAddr).
		Msg("Starting mcw server")

	src, err := buildSource(cfg)
	if err != nil {
		return err
	}
	if closer, ok := src.(io.Closer); ok {
		defer closer.Close()
	}

	h := hub.New(logger)
	eng := engine.New(engine.Config{
		PollInterval:  cfg.PollInterval(),
		PollTimeout:   cfg.PollTimeout(),
		Tolerance:     cfg.Tolerance(),
		SeekThreshold: cfg.SeekThreshold(),
	}, src, h, logger)
	srv := server.New(h, eng, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle first signal gracefully, second signal forces exit
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info().Msg("Shutdown signal received, initiating graceful shutdown")
		cancel()

		<-sigChan
		logger.Warn().Msg("Second shutdown signal received, forcing exit")
		os.Exit(1)
	}()

	engineDone := make(chan struct{})
	go func() {
		defer close(engineDone)
		if err := eng.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Engine error")
		}
	}()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start(cfg.ListenAddr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		cancel()
		if err != nil {
			<-engineDone
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Error during HTTP shutdown")
	}
	h.Close()
	<-engineDone

	logger.Info().Msg("Server stopped")
	return nil
}

// buildSource constructs the configured adapter.
func buildSource(cfg *config.Config) (source.Source, error) {
	switch cfg.Source {
	case "mpris":
		return source.NewMPRISSource(cfg.MPRIS.Player), nil
	case "spotify":
		if cfg.Spotify.AccessToken == "" {
			return nil, fmt.Errorf("spotify source requires spotify.access_token (or MCW_SPOTIFY_ACCESS_TOKEN)")
		}
		return source.NewSpotifySource(source.StaticToken(cfg.Spotify.AccessToken)), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

// setupLogger creates a logger with the specified configuration
func setupLogger(logFile, logLevel string) zerolog.Logger {
	level := zerolog.InfoLevel
	switch logLevel {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	var output *os.File
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
			output = os.Stderr
		} else {
			output = f
		}
	} else {
		output = os.Stderr
	}

	logger := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	// Use pretty console output if logging to stderr
	if output == os.Stderr {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	return logger
}
