package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/justestif/go-castor/internal/web"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the HTTP server exposing:

  GET  /credential           current bearer credential
  GET  /preview?url=         audio preview relay
  GET  /api/search?q=&seq=   tiered track search
  GET  /api/new-releases, /api/categories, /api/playlists?q=
  POST /auth/register, /auth/login, /auth/logout
  GET  /auth/me

The server shuts down gracefully on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(root, os.Stdout)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			accounts, closeAccounts, err := a.newAccounts(ctx)
			if err != nil {
				return err
			}
			defer closeAccounts()

			cfg := web.ServerConfig{
				Addr:         a.cfg.Server.Addr,
				ReadTimeout:  a.cfg.Server.ReadTimeout,
				WriteTimeout: a.cfg.Server.WriteTimeout,
			}
			if addr != "" {
				cfg.Addr = addr
			}

			server := web.NewServer(cfg, web.Dependencies{
				Credentials: a.broker,
				Relay:       a.relay,
				Search:      a.newPipeline(),
				Catalog:     a.catalog,
				Accounts:    accounts,
				Logger:      a.logger,
			})
			return server.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")
	return cmd
}
