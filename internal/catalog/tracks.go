package catalog

import (
	"context"
	"fmt"
	"time"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-castor/internal/credential"
)

// SearchTracks searches the catalog for tracks matching query.
func (c *Client) SearchTracks(ctx context.Context, cred credential.Credential, query string, limit int) ([]Track, error) {
	result, err := c.api(ctx, cred).Search(ctx, query, spotify.SearchTypeTrack,
		spotify.Market(c.market), spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("searching tracks: %w", err)
	}
	if result.Tracks == nil {
		return nil, nil
	}

	tracks := make([]Track, 0, len(result.Tracks.Tracks))
	for _, t := range result.Tracks.Tracks {
		if t.ID == "" {
			continue
		}
		tracks = append(tracks, convertTrack(t))
	}

	c.logger.Debug().Str("query", query).Int("count", len(tracks)).Msg("track search")
	return tracks, nil
}

// convertTrack converts a Spotify FullTrack to a Track.
func convertTrack(t spotify.FullTrack) Track {
	artists := make([]string, len(t.Artists))
	for i, a := range t.Artists {
		artists[i] = a.Name
	}

	return Track{
		ID:         t.ID.String(),
		Title:      t.Name,
		Artists:    artists,
		Album:      t.Album.Name,
		DurationMs: int(t.Duration),
		ImageURL:   firstImage(t.Album.Images),
		PreviewURL: t.PreviewURL,
		Popularity: int(t.Popularity),
		URI:        string(t.URI),
	}
}

// firstImage returns the URL of the first (largest) image, if any.
func firstImage(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	return images[0].URL
}

// FormatDuration formats a duration in milliseconds as m:ss.
func FormatDuration(ms int) string {
	if ms < 0 {
		ms = 0
	}
	d := time.Duration(ms) * time.Millisecond
	minutes := int(d / time.Minute)
	seconds := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}
