package catalog

import (
	"context"
	"fmt"

	"github.com/zmb3/spotify/v2"

	"github.com/justestif/go-castor/internal/credential"
)

// SearchPlaylists searches the catalog for public playlists matching query.
func (c *Client) SearchPlaylists(ctx context.Context, cred credential.Credential, query string, limit int) ([]Playlist, error) {
	result, err := c.api(ctx, cred).Search(ctx, query, spotify.SearchTypePlaylist,
		spotify.Market(c.market), spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("searching playlists: %w", err)
	}
	if result.Playlists == nil {
		return nil, nil
	}

	return playlistsFrom(result.Playlists.Playlists), nil
}

// FeaturedPlaylists returns the editorially featured playlists for the
// configured market.
func (c *Client) FeaturedPlaylists(ctx context.Context, cred credential.Credential, limit int) ([]Playlist, error) {
	_, page, err := c.api(ctx, cred).FeaturedPlaylists(ctx, spotify.Country(c.market), spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetching featured playlists: %w", err)
	}
	return playlistsFrom(page.Playlists), nil
}

func playlistsFrom(items []spotify.SimplePlaylist) []Playlist {
	playlists := make([]Playlist, 0, len(items))
	for _, p := range items {
		// Deleted playlists come back as null entries.
		if p.ID == "" {
			continue
		}
		playlists = append(playlists, Playlist{
			ID:          p.ID.String(),
			Name:        p.Name,
			Description: p.Description,
			Owner:       p.Owner.DisplayName,
			ImageURL:    firstImage(p.Images),
			URI:         string(p.URI),
		})
	}
	return playlists
}

// NewReleases returns the latest album releases for the configured market.
func (c *Client) NewReleases(ctx context.Context, cred credential.Credential, limit int) ([]Album, error) {
	page, err := c.api(ctx, cred).NewReleases(ctx, spotify.Country(c.market), spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetching new releases: %w", err)
	}

	albums := make([]Album, 0, len(page.Albums))
	for _, a := range page.Albums {
		artists := make([]string, len(a.Artists))
		for i, artist := range a.Artists {
			artists[i] = artist.Name
		}
		albums = append(albums, Album{
			ID:          a.ID.String(),
			Name:        a.Name,
			Artists:     artists,
			ReleaseDate: a.ReleaseDate,
			ImageURL:    firstImage(a.Images),
			URI:         string(a.URI),
		})
	}
	return albums, nil
}

// Categories returns the browse categories for the configured market.
func (c *Client) Categories(ctx context.Context, cred credential.Credential, limit int) ([]Category, error) {
	page, err := c.api(ctx, cred).GetCategories(ctx, spotify.Country(c.market), spotify.Limit(limit))
	if err != nil {
		return nil, fmt.Errorf("fetching categories: %w", err)
	}

	categories := make([]Category, 0, len(page.Categories))
	for _, cat := range page.Categories {
		categories = append(categories, Category{
			ID:      cat.ID,
			Name:    cat.Name,
			IconURL: firstImage(cat.Icons),
		})
	}
	return categories, nil
}

// Category looks up a single browse category by id.
func (c *Client) Category(ctx context.Context, cred credential.Credential, id string) (Category, error) {
	cat, err := c.api(ctx, cred).GetCategory(ctx, id, spotify.Country(c.market))
	if err != nil {
		return Category{}, fmt.Errorf("fetching category %s: %w", id, err)
	}
	return Category{
		ID:      cat.ID,
		Name:    cat.Name,
		IconURL: firstImage(cat.Icons),
	}, nil
}
