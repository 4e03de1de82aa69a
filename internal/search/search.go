// Package search runs debounced queries against the catalog through a
// tiered set of credentials and gates results by query sequence.
package search

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/justestif/go-castor/internal/catalog"
	"github.com/justestif/go-castor/internal/credential"
	"github.com/justestif/go-castor/internal/debounce"
)

const (
	// DefaultLimit is the number of tracks requested per search.
	DefaultLimit = 6

	// DefaultPopularQuery is searched when the query is blank or nothing else matched.
	DefaultPopularQuery = "top 50 españa"

	// DefaultTierTimeout bounds each tier's catalog call.
	DefaultTierTimeout = 8 * time.Second
)

// Tier identifies which credential and query produced an outcome.
type Tier string

const (
	TierAuthenticated Tier = "authenticated"
	TierPublic        Tier = "public"
	TierPopular       Tier = "popular"
	TierNone          Tier = "none"
)

// Searcher is the catalog capability the pipeline needs.
type Searcher interface {
	SearchTracks(ctx context.Context, cred credential.Credential, query string, limit int) ([]catalog.Track, error)
}

// Authorizer supplies credentials: Resolve for the full chain and Fallback
// for the public default only.
type Authorizer interface {
	Resolve(ctx context.Context) (credential.Credential, error)
	Fallback(ctx context.Context) (credential.Credential, error)
}

// Outcome is the result of one query.
type Outcome struct {
	Sequence uint64          `json:"sequence"`
	Query    string          `json:"query"`
	Tier     Tier            `json:"tier"`
	Tracks   []catalog.Track `json:"tracks"`
}

// Pipeline executes searches.
type Pipeline struct {
	searcher     Searcher
	auth         Authorizer
	limit        int
	popularQuery string
	tierTimeout  time.Duration
	logger       zerolog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLimit sets the number of tracks requested.
func WithLimit(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.limit = n
		}
	}
}

// WithPopularQuery sets the query used by the popular tier.
func WithPopularQuery(q string) Option {
	return func(p *Pipeline) {
		if strings.TrimSpace(q) != "" {
			p.popularQuery = q
		}
	}
}

// WithTierTimeout bounds each tier's catalog call.
func WithTierTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.tierTimeout = d
		}
	}
}

// WithLogger sets the pipeline logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// New creates a Pipeline.
func New(searcher Searcher, auth Authorizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		searcher:     searcher,
		auth:         auth,
		limit:        DefaultLimit,
		popularQuery: DefaultPopularQuery,
		tierTimeout:  DefaultTierTimeout,
		logger:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Search runs q through the tiers until one yields tracks:
// the resolved credential, then the public fallback credential, then the
// popular query with either. A blank query goes straight to the popular tier.
// Catalog and credential failures degrade to the next tier; total failure is
// an empty outcome. The only error returned is ctx's.
func (p *Pipeline) Search(ctx context.Context, q debounce.Query) (Outcome, error) {
	out := Outcome{Sequence: q.Sequence, Query: q.Text, Tier: TierNone, Tracks: []catalog.Track{}}
	text := strings.TrimSpace(q.Text)

	authed, authErr := p.auth.Resolve(ctx)
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if authErr != nil {
		p.logger.Warn().Err(authErr).Msg("no credential from broker")
	}

	var public credential.Credential
	var publicErr error
	publicLoaded := false
	publicCred := func() (credential.Credential, error) {
		if !publicLoaded {
			public, publicErr = p.auth.Fallback(ctx)
			publicLoaded = true
		}
		return public, publicErr
	}

	if text != "" {
		if authErr == nil {
			if tracks := p.try(ctx, authed, text, TierAuthenticated); len(tracks) > 0 {
				out.Tier, out.Tracks = TierAuthenticated, tracks
				return out, nil
			}
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}

		if cred, err := publicCred(); err == nil && (authErr != nil || cred.Value != authed.Value) {
			if tracks := p.try(ctx, cred, text, TierPublic); len(tracks) > 0 {
				out.Tier, out.Tracks = TierPublic, tracks
				return out, nil
			}
		}
		if err := ctx.Err(); err != nil {
			return out, err
		}
	}

	if authErr == nil {
		if tracks := p.try(ctx, authed, p.popularQuery, TierPopular); len(tracks) > 0 {
			out.Tier, out.Tracks = TierPopular, tracks
			return out, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	if cred, err := publicCred(); err == nil && (authErr != nil || cred.Value != authed.Value) {
		if tracks := p.try(ctx, cred, p.popularQuery, TierPopular); len(tracks) > 0 {
			out.Tier, out.Tracks = TierPopular, tracks
			return out, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}

	p.logger.Warn().Str("query", q.Text).Uint64("sequence", q.Sequence).Msg("all search tiers came back empty")
	return out, nil
}

// try runs one catalog search bounded by the tier timeout. Errors are logged
// and reported as no tracks.
func (p *Pipeline) try(ctx context.Context, cred credential.Credential, query string, tier Tier) []catalog.Track {
	ctx, cancel := context.WithTimeout(ctx, p.tierTimeout)
	defer cancel()

	tracks, err := p.searcher.SearchTracks(ctx, cred, query, p.limit)
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("tier", string(tier)).
			Str("source", cred.Source).
			Msg("search tier failed")
		return nil
	}
	return tracks
}
