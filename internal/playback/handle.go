package playback

import (
	"context"
	"net/url"
	"strings"
	"time"
)

// Handle is a single platform audio output.
//
// Implementations deliver events to subscribers from their own goroutines
// and never synchronously from inside a Handle method.
type Handle interface {
	// Load prepares the source at url for playback.
	Load(ctx context.Context, url string) error
	Play() error
	Pause()
	Seek(pos time.Duration) error
	// Subscribe registers fn for events and returns a function that detaches it.
	Subscribe(fn func(Event)) (unsubscribe func())
	// Close releases the output. The handle is unusable afterwards.
	Close() error
}

// Resolver maps a track's preview locator to the URL a Handle loads.
type Resolver interface {
	Resolve(previewURL string) string
}

// DirectResolver plays the upstream URL as is.
type DirectResolver struct{}

// Resolve implements Resolver.
func (DirectResolver) Resolve(previewURL string) string {
	return previewURL
}

// ProxyResolver routes previews through a relay's /preview endpoint.
type ProxyResolver struct {
	BaseURL string
}

// Resolve implements Resolver.
func (r ProxyResolver) Resolve(previewURL string) string {
	return strings.TrimRight(r.BaseURL, "/") + "/preview?url=" + url.QueryEscape(previewURL)
}
