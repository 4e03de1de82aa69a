// Package catalog provides a wrapper around the Spotify Web API that
// authorizes every call with a caller-supplied bearer credential.
package catalog

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"

	"github.com/justestif/go-castor/internal/credential"
)

// DefaultMarket is the market used for searches and browse listings.
const DefaultMarket = "ES"

// Client wraps the Spotify API with convenience methods. It holds no
// credential of its own; each call builds an API client around the one passed in.
type Client struct {
	httpClient *http.Client
	baseURL    string
	market     string
	logger     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the base HTTP client used for API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithBaseURL overrides the API base URL. The URL must end with a slash.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		c.baseURL = url
	}
}

// WithMarket sets the market code sent with searches.
func WithMarket(market string) Option {
	return func(c *Client) {
		if market != "" {
			c.market = market
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a new catalog client.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		market:     DefaultMarket,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Market returns the configured market code.
func (c *Client) Market() string {
	return c.market
}

// api returns a Spotify client authorized with cred.
func (c *Client) api(ctx context.Context, cred credential.Credential) *spotify.Client {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: cred.Value,
		TokenType:   cred.Kind,
	}))

	var opts []spotify.ClientOption
	if c.baseURL != "" {
		opts = append(opts, spotify.WithBaseURL(c.baseURL))
	}
	return spotify.New(httpClient, opts...)
}
