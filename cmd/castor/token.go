package main

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token",
		Short: "Print the resolved Spotify credential as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root, os.Stderr)
			if err != nil {
				return err
			}
			defer a.Close()

			cred, err := a.broker.Resolve(cmd.Context())
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"access_token": cred.Value,
				"token_type":   cred.Kind,
				"expires_in":   cred.ExpiresIn(time.Now()),
				"source":       cred.Source,
			})
		},
	}
}
