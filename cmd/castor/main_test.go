package main

import (
	"testing"

	"github.com/justestif/go-castor/internal/config"
)

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"serve", "token", "tui"} {
		t.Run(name, func(t *testing.T) {
			cmd, _, err := root.Find([]string{name})
			if err != nil {
				t.Fatalf("Find(%q) error = %v", name, err)
			}
			if cmd.Name() != name {
				t.Errorf("Find(%q) = %q", name, cmd.Name())
			}
		})
	}
}

func TestTUICmd_Flags(t *testing.T) {
	cmd := newTUICmd(&rootOptions{})

	for _, flag := range []string{"relay-url", "direct", "repeat", "log-file"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("tui is missing --%s", flag)
		}
	}
}

func TestNewChain(t *testing.T) {
	tests := []struct {
		name          string
		spotify       config.SpotifyConfig
		wantStatic    bool
		wantExchanges []string
		wantFallback  bool
	}{
		{
			name:          "anonymous only",
			spotify:       config.SpotifyConfig{Anonymous: true},
			wantExchanges: []string{"anonymous_session"},
		},
		{
			name: "everything configured",
			spotify: config.SpotifyConfig{
				AccessToken:   "override",
				ClientID:      "id",
				ClientSecret:  "secret",
				FallbackToken: "fallback",
				Anonymous:     true,
			},
			wantStatic:    true,
			wantExchanges: []string{"client_credentials", "anonymous_session"},
			wantFallback:  true,
		},
		{
			name:    "nothing configured",
			spotify: config.SpotifyConfig{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := newChain(&config.Config{Spotify: tt.spotify})

			if (chain.Static != nil) != tt.wantStatic {
				t.Errorf("Static set = %v, want %v", chain.Static != nil, tt.wantStatic)
			}
			if (chain.LastResort != nil) != tt.wantFallback {
				t.Errorf("LastResort set = %v, want %v", chain.LastResort != nil, tt.wantFallback)
			}
			if len(chain.Exchanges) != len(tt.wantExchanges) {
				t.Fatalf("len(Exchanges) = %d, want %d", len(chain.Exchanges), len(tt.wantExchanges))
			}
			for i, s := range chain.Exchanges {
				if s.Name() != tt.wantExchanges[i] {
					t.Errorf("Exchanges[%d] = %q, want %q", i, s.Name(), tt.wantExchanges[i])
				}
			}
		})
	}
}
