package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/justestif/go-castor/internal/audio"
	"github.com/justestif/go-castor/internal/playback"
	"github.com/justestif/go-castor/internal/tui"
)

type tuiOptions struct {
	relayURL string
	direct   bool
	repeat   bool
	logFile  string
}

func newTUICmd(root *rootOptions) *cobra.Command {
	opts := &tuiOptions{}

	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Search tracks and play previews in the terminal",
		Long: `Search the Spotify catalog from the terminal and play 30 second previews.

Previews are fetched through the in-process relay by default. Use
--relay-url to go through a running 'castor serve', or --direct to
fetch previews from the CDN without the relay.

Only one preview plays at a time. Press enter to play or pause the
selected track and ctrl+c to quit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.direct && opts.relayURL != "" {
				return fmt.Errorf("--direct and --relay-url are mutually exclusive")
			}

			// Logs would corrupt the terminal UI, so they go to a file or nowhere.
			logOutput := io.Discard
			if opts.logFile != "" {
				if err := os.MkdirAll(filepath.Dir(opts.logFile), 0o755); err != nil {
					return fmt.Errorf("creating log directory: %w", err)
				}
				f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
				if err != nil {
					return fmt.Errorf("opening log file: %w", err)
				}
				defer f.Close()
				logOutput = f
			}

			a, err := newApp(root, logOutput)
			if err != nil {
				return err
			}
			defer a.Close()

			audioOpts := []audio.Option{audio.WithLogger(a.logger.With().Str("component", "audio").Logger())}
			var resolver playback.Resolver
			switch {
			case opts.relayURL != "":
				resolver = playback.ProxyResolver{BaseURL: opts.relayURL}
			case opts.direct:
				resolver = playback.DirectResolver{}
			default:
				resolver = playback.DirectResolver{}
				audioOpts = append(audioOpts, audio.WithOpener(a.relay))
			}

			model := tui.New(cmd.Context(), tui.Config{
				Pipeline:  a.newPipeline(),
				NewHandle: audio.Factory(audioOpts...),
				Resolver:  resolver,
				Debounce:  a.cfg.Search.Debounce,
				Repeat:    opts.repeat,
				Logger:    a.logger,
			})
			defer model.Close()

			p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			if _, err := p.Run(); err != nil && cmd.Context().Err() == nil {
				return fmt.Errorf("running TUI: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.relayURL, "relay-url", "", "Base URL of a running castor server to fetch previews through")
	cmd.Flags().BoolVar(&opts.direct, "direct", false, "Fetch previews directly from the CDN")
	cmd.Flags().BoolVar(&opts.repeat, "repeat", false, "Restart a preview when it ends")
	cmd.Flags().StringVar(&opts.logFile, "log-file", "", "Write logs to this file (default: discard)")
	return cmd
}
