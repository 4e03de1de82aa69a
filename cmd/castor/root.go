package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version = "dev"
	commit  = "unknown"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "castor",
		Short: "Spotify credential broker, preview relay and terminal player",
		Long: `castor brokers bearer credentials for the Spotify Web API, relays
30 second audio previews from the Spotify preview CDN, and offers a
terminal search box with single-track preview playback.

Configuration is read from castor.yaml, a .env file and CASTOR_*
environment variables. SPOTIFY_ID and SPOTIFY_SECRET are also accepted.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file path (default: ./castor.yaml or the user config dir)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log level (debug, info, warn, error)")

	cmd.AddCommand(
		newServeCmd(opts),
		newTokenCmd(opts),
		newTUICmd(opts),
	)

	return cmd
}
