// Package config loads castor configuration from defaults, an optional config
// file, a .env file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix     = "CASTOR"
	configName    = "castor"
	configDirName = "castor"

	// DefaultPreviewPrefix is the only upstream the preview relay accepts by default.
	DefaultPreviewPrefix = "https://p.scdn.co/mp3-preview/"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Spotify  SpotifyConfig
	Relay    RelayConfig
	Search   SearchConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Cache    CacheConfig
	Log      LogConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SpotifyConfig holds catalog credentials and the credential fallbacks.
type SpotifyConfig struct {
	ClientID      string
	ClientSecret  string
	AccessToken   string // operator override, served as-is
	FallbackToken string // last resort when every other source fails
	Market        string
	Anonymous     bool // enable the anonymous web-player exchange
}

// RelayConfig holds preview relay settings.
type RelayConfig struct {
	AllowedPrefixes []string
	MaxAge          time.Duration
	RatePerSecond   float64
	Burst           int
}

// SearchConfig holds search pipeline settings.
type SearchConfig struct {
	Debounce     time.Duration
	Limit        int
	PopularQuery string
}

// DatabaseConfig holds the account database location. Empty means in-memory.
type DatabaseConfig struct {
	URL string
}

// AuthConfig holds session token settings.
type AuthConfig struct {
	JWTSecret  string
	SessionTTL time.Duration
}

// CacheConfig holds credential cache settings.
type CacheConfig struct {
	SnapshotPath string
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration. If path is empty, a castor.{yaml,toml,json} file is
// looked up in the working directory and the user config directory; a missing
// file is not an error. A .env file in the working directory is loaded first
// and never overrides variables already set.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	bindEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configDirName))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config file: %w", err)
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:         v.GetString("server.addr"),
			ReadTimeout:  v.GetDuration("server.read_timeout"),
			WriteTimeout: v.GetDuration("server.write_timeout"),
		},
		Spotify: SpotifyConfig{
			ClientID:      v.GetString("spotify.client_id"),
			ClientSecret:  v.GetString("spotify.client_secret"),
			AccessToken:   v.GetString("spotify.access_token"),
			FallbackToken: v.GetString("spotify.fallback_token"),
			Market:        v.GetString("spotify.market"),
			Anonymous:     v.GetBool("spotify.anonymous"),
		},
		Relay: RelayConfig{
			AllowedPrefixes: stringList(v, "relay.allowed_prefixes"),
			MaxAge:          v.GetDuration("relay.max_age"),
			RatePerSecond:   v.GetFloat64("relay.rate_per_second"),
			Burst:           v.GetInt("relay.burst"),
		},
		Search: SearchConfig{
			Debounce:     v.GetDuration("search.debounce"),
			Limit:        v.GetInt("search.limit"),
			PopularQuery: v.GetString("search.popular_query"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Auth: AuthConfig{
			JWTSecret:  v.GetString("auth.jwt_secret"),
			SessionTTL: v.GetDuration("auth.session_ttl"),
		},
		Cache: CacheConfig{
			SnapshotPath: v.GetString("cache.snapshot_path"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "127.0.0.1:8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("spotify.market", "ES")
	v.SetDefault("spotify.anonymous", true)

	v.SetDefault("relay.allowed_prefixes", DefaultPreviewPrefix)
	v.SetDefault("relay.max_age", time.Hour)
	v.SetDefault("relay.rate_per_second", 20.0)
	v.SetDefault("relay.burst", 10)

	v.SetDefault("search.debounce", 500*time.Millisecond)
	v.SetDefault("search.limit", 6)
	v.SetDefault("search.popular_query", "top 50 españa")

	v.SetDefault("auth.session_ttl", 7*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// bindEnv maps every key to CASTOR_<SECTION>_<KEY>. The Spotify credentials
// also accept the unprefixed names used by the Spotify tooling.
func bindEnv(v *viper.Viper) {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("spotify.client_id", "CASTOR_SPOTIFY_CLIENT_ID", "SPOTIFY_ID", "SPOTIFY_CLIENT_ID")
	_ = v.BindEnv("spotify.client_secret", "CASTOR_SPOTIFY_CLIENT_SECRET", "SPOTIFY_SECRET", "SPOTIFY_CLIENT_SECRET")
	_ = v.BindEnv("spotify.access_token", "CASTOR_SPOTIFY_ACCESS_TOKEN", "SPOTIFY_ACCESS_TOKEN")
	_ = v.BindEnv("database.url", "CASTOR_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("auth.jwt_secret", "CASTOR_AUTH_JWT_SECRET", "JWT_SECRET")
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Addr == "" {
		problems = append(problems, "server.addr is required")
	}
	if (c.Spotify.ClientID == "") != (c.Spotify.ClientSecret == "") {
		problems = append(problems, "spotify.client_id and spotify.client_secret must be set together")
	}
	if len(c.Relay.AllowedPrefixes) == 0 {
		problems = append(problems, "relay.allowed_prefixes must not be empty")
	}
	for _, p := range c.Relay.AllowedPrefixes {
		if !strings.HasPrefix(p, "https://") {
			problems = append(problems, fmt.Sprintf("relay prefix %q must use https", p))
		}
	}
	if c.Relay.RatePerSecond <= 0 {
		problems = append(problems, "relay.rate_per_second must be positive")
	}
	if c.Search.Debounce <= 0 {
		problems = append(problems, "search.debounce must be positive")
	}
	if c.Search.Limit < 1 || c.Search.Limit > 50 {
		problems = append(problems, "search.limit must be between 1 and 50")
	}
	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < 16 {
		problems = append(problems, "auth.jwt_secret must be at least 16 characters")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		problems = append(problems, "log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		problems = append(problems, "log.format must be one of: json, text")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// stringList accepts either a list from a config file or a comma separated
// string from the environment.
func stringList(v *viper.Viper, key string) []string {
	switch val := v.Get(key).(type) {
	case []string:
		return splitList(strings.Join(val, ","))
	case []any:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, fmt.Sprint(item))
		}
		return splitList(strings.Join(parts, ","))
	default:
		return splitList(v.GetString(key))
	}
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
