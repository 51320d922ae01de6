package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcw",
	Short: "Now-playing overlay server for OBS",
	Long: `mcw keeps OBS browser-source overlays in sync with your music.

It polls a local (MPRIS) or cloud (Spotify) music source, detects
meaningful playback changes - new track, play/pause, user seeks - and
pushes them to every connected overlay over WebSocket. Overlays
extrapolate a smooth progress position between pushes.

Run 'mcw serve' to start the server, add http://localhost:8090/ as an
OBS browser source, or use 'mcw watch' for a terminal view.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
