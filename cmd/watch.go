package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ensui-dev/MusicCompanionWidget/internal/config"
	"github.com/ensui-dev/MusicCompanionWidget/internal/overlay"
)

var watchURL string

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Terminal view of a running overlay server",
	Long: `Connect to a running mcw server over WebSocket and display the
current track in the terminal.

The display advances smoothly between server pushes: the position is
extrapolated locally from the last received update, exactly like the
browser overlay does. Reconnects automatically if the server restarts.

Press 'q' to quit.`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringVar(&watchURL, "url", "ws://localhost:8090/ws", "WebSocket URL of the mcw server")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	renderer := overlay.NewRenderer()

	app := tview.NewApplication()

	nowPlaying := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	nowPlaying.SetBorder(true).
		SetTitle(" Now Playing ").
		SetTitleAlign(tview.AlignLeft)

	progress := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter)
	progress.SetBorder(true)

	status := tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]Press 'q' to quit[-]")

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(nowPlaying, 0, 3, false).
		AddItem(progress, 3, 1, false).
		AddItem(status, 1, 1, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Rune() {
		case 'q', 'Q':
			app.Stop()
			return nil
		}
		return event
	})

	// Change detection caches
	var lastNowPlaying string
	var lastProgress string
	var lastBarWidth int

	updateDisplay := func() {
		snap := renderer.Snapshot()
		position := renderer.Position(time.Now())

		app.QueueUpdateDraw(func() {
			var npText string
			var progText string

			switch {
			case snap == nil:
				npText = "\n\n[gray]Waiting for server...[-]"
			case snap.Error != "":
				npText = fmt.Sprintf("\n\n[red]Source unavailable[-]\n[gray]%s[-]", tview.Escape(snap.Error))
			case !snap.HasTrack():
				npText = "\n\n[gray]No track playing[-]"
			default:
				var sb strings.Builder
				sb.WriteString("\n")
				sb.WriteString(fmt.Sprintf("[white::b]%s[-:-:-]\n", tview.Escape(snap.Title)))
				sb.WriteString(fmt.Sprintf("[yellow]%s[-]\n", tview.Escape(snap.Artist)))
				sb.WriteString(fmt.Sprintf("[gray]%s[-]", tview.Escape(snap.Album)))

				stateIcon := "[green]▶[-]"
				if !renderer.Playing() {
					stateIcon = "[yellow]⏸[-]"
				}
				sb.WriteString(fmt.Sprintf("\n\n%s", stateIcon))
				npText = sb.String()

				// Cache the bar width to avoid flicker before layout settles
				_, _, width, _ := progress.GetInnerRect()
				barWidth := width - 14
				if barWidth > 0 {
					lastBarWidth = barWidth
				}
				if lastBarWidth < 10 {
					lastBarWidth = 10
				}
				bar := buildProgressBar(position, snap.Duration, lastBarWidth)
				progText = fmt.Sprintf("%s %s %s",
					formatMillis(position), bar, formatMillis(snap.Duration))
			}

			if npText != lastNowPlaying {
				lastNowPlaying = npText
				nowPlaying.SetText(npText)
			}
			if progText != lastProgress {
				lastProgress = progText
				progress.SetText(progText)
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := overlay.NewClient(watchURL, renderer, updateDisplay, zerolog.Nop())
	go func() {
		if err := client.Run(ctx); err != nil && err != context.Canceled {
			app.Stop()
		}
	}()

	// Render tick, independent of message arrival: the position keeps
	// advancing between pushes.
	go func() {
		ticker := time.NewTicker(cfg.RenderTick())
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				updateDisplay()
			}
		}
	}()

	if err := app.SetRoot(flex, true).Run(); err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	return nil
}

// buildProgressBar creates a text-based progress bar
func buildProgressBar(position, duration int64, width int) string {
	if duration <= 0 || width <= 0 {
		return strings.Repeat("-", width)
	}

	ratio := float64(position) / float64(duration)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < 0 {
		ratio = 0
	}

	filled := int(ratio * float64(width))
	empty := width - filled

	return "[green]" + strings.Repeat("█", filled) + "[-]" +
		"[gray]" + strings.Repeat("░", empty) + "[-]"
}

// formatMillis formats a millisecond position as MM:SS
func formatMillis(ms int64) string {
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
