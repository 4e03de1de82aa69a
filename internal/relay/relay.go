// Package relay implements a same-origin proxy for short audio previews.
// It only ever contacts URLs under an allow-listed prefix.
package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultPrefix is the only upstream location previews are fetched from.
	DefaultPrefix = "https://p.scdn.co/mp3-preview/"

	// UserAgent is sent upstream; the preview host rejects default client agents.
	UserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

	// MaxPayloadBytes caps a single relayed preview.
	MaxPayloadBytes = 10 << 20

	// DefaultTimeout bounds a single upstream fetch.
	DefaultTimeout = 15 * time.Second

	// DefaultMaxAge is advertised to downstream caches.
	DefaultMaxAge = time.Hour
)

var (
	// ErrInvalidTarget is returned for a missing URL or one outside the allow-list.
	ErrInvalidTarget = errors.New("invalid preview url")

	// ErrPayloadTooLarge is returned when the upstream body exceeds MaxPayloadBytes.
	ErrPayloadTooLarge = errors.New("preview payload too large")
)

// UpstreamError reports a non-2xx upstream response.
type UpstreamError struct {
	Status int
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Status)
}

// Payload is a fetched preview.
type Payload struct {
	Body []byte
}

// Relay fetches previews from allow-listed upstream URLs.
type Relay struct {
	prefixes   []string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxAge     time.Duration
	maxBytes   int64
	logger     zerolog.Logger
}

// Option configures a Relay.
type Option func(*Relay)

// WithPrefixes replaces the allow-listed URL prefixes.
func WithPrefixes(prefixes ...string) Option {
	return func(r *Relay) {
		if len(prefixes) > 0 {
			r.prefixes = prefixes
		}
	}
}

// WithHTTPClient sets the client used for upstream fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Relay) {
		r.httpClient = client
	}
}

// WithRateLimit throttles upstream fetches across all callers.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(r *Relay) {
		if perSecond > 0 {
			r.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

// WithMaxAge sets the Cache-Control max-age of relayed previews.
func WithMaxAge(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.maxAge = d
		}
	}
}

// WithMaxBytes overrides MaxPayloadBytes.
func WithMaxBytes(n int64) Option {
	return func(r *Relay) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// WithLogger sets the relay logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Relay) {
		r.logger = logger
	}
}

// New creates a Relay.
func New(opts ...Option) *Relay {
	r := &Relay{
		prefixes:   []string{DefaultPrefix},
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Inf, 0),
		maxAge:     DefaultMaxAge,
		maxBytes:   MaxPayloadBytes,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate checks raw against the allow-list without any network access.
func (r *Relay) Validate(raw string) error {
	if raw == "" {
		return fmt.Errorf("%w: missing url", ErrInvalidTarget)
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTarget, raw)
	}
	for _, prefix := range r.prefixes {
		if strings.HasPrefix(raw, prefix) {
			return nil
		}
	}
	return fmt.Errorf("%w: %q is not an allowed preview location", ErrInvalidTarget, raw)
}

// Fetch validates raw and retrieves the preview body.
func (r *Relay) Fetch(ctx context.Context, raw string) (*Payload, error) {
	if err := r.Validate(raw); err != nil {
		return nil, err
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for upstream slot: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", UserAgent)

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching preview: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, r.maxBytes))
		return nil, &UpstreamError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading preview: %w", err)
	}
	if int64(len(body)) > r.maxBytes {
		return nil, ErrPayloadTooLarge
	}

	r.logger.Debug().
		Str("url", raw).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("preview fetched")

	return &Payload{Body: body}, nil
}

// Open fetches raw and returns its body as a stream.
func (r *Relay) Open(ctx context.Context, raw string) (io.ReadCloser, error) {
	payload, err := r.Fetch(ctx, raw)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(payload.Body)), nil
}
