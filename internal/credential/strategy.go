package credential

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// AnonymousTokenURL is the web player endpoint that hands out short-lived
	// anonymous credentials.
	AnonymousTokenURL = "https://open.spotify.com/get_access_token?reason=transport&productType=web_player"

	// BrowserUserAgent is sent where the upstream rejects default client headers.
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Strategy attempts to produce a credential. Implementations return
// ErrUnavailable (possibly wrapped) when they cannot.
type Strategy interface {
	Name() string
	Acquire(ctx context.Context) (Credential, error)
}

// Static serves an operator-supplied credential.
type Static struct {
	value string
	now   func() time.Time
}

// NewStatic returns a Static strategy. An empty value makes it unavailable.
func NewStatic(value string) *Static {
	return &Static{value: value, now: time.Now}
}

// Name implements Strategy.
func (s *Static) Name() string { return "static" }

// Acquire implements Strategy.
func (s *Static) Acquire(context.Context) (Credential, error) {
	if s.value == "" {
		return Credential{}, ErrUnavailable
	}
	return Issue(s.value, DefaultLifetime, s.now(), s.Name()), nil
}

// LastResort serves a configured fallback credential once everything else has failed.
type LastResort struct {
	Static
}

// NewLastResort returns a LastResort strategy. An empty value makes it unavailable.
func NewLastResort(value string) *LastResort {
	return &LastResort{Static: Static{value: value, now: time.Now}}
}

// Name implements Strategy.
func (s *LastResort) Name() string { return "last_resort" }

// Acquire implements Strategy.
func (s *LastResort) Acquire(context.Context) (Credential, error) {
	if s.value == "" {
		return Credential{}, ErrUnavailable
	}
	return Issue(s.value, DefaultLifetime, s.now(), s.Name()), nil
}

// ClientCredentials exchanges a client id and secret for an app credential
// using the OAuth2 client credentials grant.
type ClientCredentials struct {
	config     clientcredentials.Config
	httpClient *http.Client
	now        func() time.Time
}

// ClientCredentialsOption configures a ClientCredentials strategy.
type ClientCredentialsOption func(*ClientCredentials)

// WithTokenURL overrides the token endpoint.
func WithTokenURL(url string) ClientCredentialsOption {
	return func(c *ClientCredentials) {
		c.config.TokenURL = url
	}
}

// WithExchangeHTTPClient sets the HTTP client used for the exchange.
func WithExchangeHTTPClient(client *http.Client) ClientCredentialsOption {
	return func(c *ClientCredentials) {
		c.httpClient = client
	}
}

// NewClientCredentials creates a client credentials strategy. Missing id or
// secret make the strategy unavailable rather than failing construction.
func NewClientCredentials(clientID, clientSecret string, opts ...ClientCredentialsOption) *ClientCredentials {
	c := &ClientCredentials{
		config: clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     spotifyauth.TokenURL,
		},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements Strategy.
func (c *ClientCredentials) Name() string { return "client_credentials" }

// Acquire implements Strategy.
func (c *ClientCredentials) Acquire(ctx context.Context) (Credential, error) {
	if c.config.ClientID == "" || c.config.ClientSecret == "" {
		return Credential{}, ErrUnavailable
	}

	issuedAt := c.now()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)

	token, err := c.config.Token(ctx)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: exchanging client credentials: %v", ErrUnavailable, err)
	}
	if token.AccessToken == "" {
		return Credential{}, fmt.Errorf("%w: empty access token", ErrUnavailable)
	}

	lifetime := DefaultLifetime
	if !token.Expiry.IsZero() {
		lifetime = token.Expiry.Sub(issuedAt)
	}

	return Issue(token.AccessToken, lifetime, issuedAt, c.Name()), nil
}

// AnonymousSession obtains the short-lived credential the public web player uses.
type AnonymousSession struct {
	url        string
	httpClient *http.Client
	now        func() time.Time
}

// AnonymousOption configures an AnonymousSession strategy.
type AnonymousOption func(*AnonymousSession)

// WithAnonymousURL overrides the anonymous token endpoint.
func WithAnonymousURL(url string) AnonymousOption {
	return func(a *AnonymousSession) {
		a.url = url
	}
}

// WithAnonymousHTTPClient sets the HTTP client used for the exchange.
func WithAnonymousHTTPClient(client *http.Client) AnonymousOption {
	return func(a *AnonymousSession) {
		a.httpClient = client
	}
}

// NewAnonymousSession creates an anonymous session strategy.
func NewAnonymousSession(opts ...AnonymousOption) *AnonymousSession {
	a := &AnonymousSession{
		url:        AnonymousTokenURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// anonymousTokenResponse is the JSON response of the web player token endpoint.
type anonymousTokenResponse struct {
	AccessToken                      string `json:"accessToken"`
	AccessTokenExpirationTimestampMs int64  `json:"accessTokenExpirationTimestampMs"`
	IsAnonymous                      bool   `json:"isAnonymous"`
}

// Name implements Strategy.
func (a *AnonymousSession) Name() string { return "anonymous_session" }

// Acquire implements Strategy.
func (a *AnonymousSession) Acquire(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: creating request: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Language", "es")
	req.Header.Set("User-Agent", BrowserUserAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: executing request: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return Credential{}, fmt.Errorf("%w: anonymous token endpoint returned %s", ErrUnavailable, resp.Status)
	}

	var body anonymousTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Credential{}, fmt.Errorf("%w: parsing response: %v", ErrUnavailable, err)
	}
	if body.AccessToken == "" {
		return Credential{}, fmt.Errorf("%w: empty access token", ErrUnavailable)
	}

	issuedAt := a.now()
	lifetime := DefaultLifetime
	if body.AccessTokenExpirationTimestampMs > 0 {
		lifetime = time.UnixMilli(body.AccessTokenExpirationTimestampMs).Sub(issuedAt)
	}

	return Issue(body.AccessToken, lifetime, issuedAt, a.Name()), nil
}

var (
	_ Strategy = (*Static)(nil)
	_ Strategy = (*LastResort)(nil)
	_ Strategy = (*ClientCredentials)(nil)
	_ Strategy = (*AnonymousSession)(nil)
)
