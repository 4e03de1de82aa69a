package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/go-castor/internal/account"
	"github.com/justestif/go-castor/internal/catalog"
	"github.com/justestif/go-castor/internal/config"
	"github.com/justestif/go-castor/internal/credential"
	"github.com/justestif/go-castor/internal/db"
	"github.com/justestif/go-castor/internal/logging"
	"github.com/justestif/go-castor/internal/relay"
	"github.com/justestif/go-castor/internal/search"
)

const sessionSweepInterval = time.Hour

// app holds the components shared by every subcommand.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	cache   *credential.Cache
	broker  *credential.Broker
	catalog *catalog.Client
	relay   *relay.Relay
}

func newApp(opts *rootOptions, logOutput io.Writer) (*app, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	level := cfg.Log.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger := logging.New(logging.Config{Level: level, Format: cfg.Log.Format, Output: logOutput})
	logging.SetGlobal(logger)

	a := &app{cfg: cfg, logger: logger}
	a.cache, err = newCache(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.broker = credential.NewBroker(a.cache, newChain(cfg), credential.WithLogger(logger.With().Str("component", "broker").Logger()))
	a.catalog = catalog.New(
		catalog.WithMarket(cfg.Spotify.Market),
		catalog.WithLogger(logger.With().Str("component", "catalog").Logger()),
	)
	a.relay = relay.New(
		relay.WithPrefixes(cfg.Relay.AllowedPrefixes...),
		relay.WithMaxAge(cfg.Relay.MaxAge),
		relay.WithRateLimit(cfg.Relay.RatePerSecond, cfg.Relay.Burst),
		relay.WithLogger(logger.With().Str("component", "relay").Logger()),
	)
	return a, nil
}

func newCache(cfg *config.Config, logger zerolog.Logger) (*credential.Cache, error) {
	opts := []credential.CacheOption{credential.WithCacheLogger(logger)}

	switch cfg.Cache.SnapshotPath {
	case "":
	case "default":
		store, err := credential.DefaultFileStore()
		if err != nil {
			return nil, fmt.Errorf("locating credential snapshot: %w", err)
		}
		opts = append(opts, credential.WithSnapshot(store))
	default:
		opts = append(opts, credential.WithSnapshot(credential.NewFileStore(cfg.Cache.SnapshotPath)))
	}

	return credential.NewCache(opts...), nil
}

// newChain orders the credential sources: operator override, client
// credentials exchange, anonymous web-player session, configured fallback.
func newChain(cfg *config.Config) credential.Chain {
	var chain credential.Chain
	if cfg.Spotify.AccessToken != "" {
		chain.Static = credential.NewStatic(cfg.Spotify.AccessToken)
	}
	if cfg.Spotify.ClientID != "" {
		chain.Exchanges = append(chain.Exchanges, credential.NewClientCredentials(cfg.Spotify.ClientID, cfg.Spotify.ClientSecret))
	}
	if cfg.Spotify.Anonymous {
		chain.Exchanges = append(chain.Exchanges, credential.NewAnonymousSession())
	}
	if cfg.Spotify.FallbackToken != "" {
		chain.LastResort = credential.NewLastResort(cfg.Spotify.FallbackToken)
	}
	return chain
}

func (a *app) newPipeline() *search.Pipeline {
	return search.New(a.catalog, a.broker,
		search.WithLimit(a.cfg.Search.Limit),
		search.WithPopularQuery(a.cfg.Search.PopularQuery),
		search.WithLogger(a.logger.With().Str("component", "search").Logger()),
	)
}

// newAccounts returns the account service and a cleanup function. Accounts
// live in memory unless a database URL is configured.
func (a *app) newAccounts(ctx context.Context) (*account.Service, func(), error) {
	secret := []byte(a.cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		generated, err := randomSecret()
		if err != nil {
			return nil, nil, err
		}
		secret = generated
		a.logger.Warn().Msg("auth.jwt_secret not set; sessions will not survive a restart")
	}

	opts := []account.Option{
		account.WithSessionTTL(a.cfg.Auth.SessionTTL),
		account.WithLogger(a.logger.With().Str("component", "account").Logger()),
	}

	if a.cfg.Database.URL == "" {
		store := account.NewMemoryStore()
		svc, err := account.NewService(store.Users(), store.Sessions(), secret, opts...)
		if err != nil {
			return nil, nil, err
		}
		a.logger.Info().Msg("using in-memory account store")
		return svc, func() {}, nil
	}

	database, err := db.Open(ctx, a.cfg.Database.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := database.Bootstrap(ctx); err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("bootstrapping schema: %w", err)
	}

	svc, err := account.NewService(database.Users(), database.Sessions(), secret, opts...)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go a.sweepSessions(sweepCtx, database.Sessions())

	cleanup := func() {
		stopSweep()
		if err := database.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing database")
		}
	}
	return svc, cleanup, nil
}

// sweepSessions deletes expired login sessions periodically.
func (a *app) sweepSessions(ctx context.Context, sessions *db.SessionRepository) {
	ticker := time.NewTicker(sessionSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := sessions.DeleteExpired(ctx)
			if err != nil {
				a.logger.Warn().Err(err).Msg("deleting expired sessions")
				continue
			}
			if n > 0 {
				a.logger.Info().Int64("count", n).Msg("deleted expired sessions")
			}
		}
	}
}

func (a *app) Close() {
	a.cache.Close()
}

func randomSecret() ([]byte, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("generating signing secret: %w", err)
	}
	return []byte(hex.EncodeToString(b)), nil
}
