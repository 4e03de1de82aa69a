package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/justestif/go-castor/internal/catalog"
	"github.com/justestif/go-castor/internal/credential"
)

const (
	// popularPlaylistQuery is the last search tier of every playlist shelf.
	popularPlaylistQuery = "top 50"
	viralPlaylistQuery   = "viral hits 2024"

	featuredSource = "featured"
	noSource       = "none"
)

// categoryNames names well-known categories when the catalog lookup fails.
var categoryNames = map[string]string{
	"pop":         "Pop",
	"rock":        "Rock",
	"latin":       "Latino",
	"latino":      "Latino",
	"hiphop":      "Hip Hop",
	"electronic":  "Electrónica",
	"indie":       "Indie",
	"jazz":        "Jazz",
	"classical":   "Clásica",
	"metal":       "Metal",
	"soul":        "Soul",
	"country":     "Country",
	"dance":       "Dance",
	"alternative": "Alternativa",
	"rnb":         "R&B",
	"folk":        "Folk",
	"romance":     "Romance",
	"toplists":    "Top Listas",
	"mood":        "Estado de ánimo",
	"decades":     "Décadas",
	"focus":       "Concentración",
	"chill":       "Relajación",
}

// playlistTier is one way of filling a playlist shelf.
type playlistTier struct {
	source string
	fetch  func(ctx context.Context, cred credential.Credential, limit int) ([]catalog.Playlist, error)
}

type shelfResponse struct {
	Category  *catalog.Category  `json:"category,omitempty"`
	Source    string             `json:"source"`
	Playlists []catalog.Playlist `json:"playlists"`
}

// CategoryPlaylists fills a category page (GET /api/categories/{id}/playlists).
// Tiers: "<name> playlist 2024", then "<name> music", then "top 50".
func (h *Handlers) CategoryPlaylists(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	browse(h, w, r, func(ctx context.Context, cred credential.Credential, limit int) (any, error) {
		category := h.category(ctx, cred, id)
		source, playlists, err := h.firstPlaylists(ctx, cred, limit, []playlistTier{
			h.searchTier(category.Name + " playlist 2024"),
			h.searchTier(category.Name + " music"),
			h.searchTier(popularPlaylistQuery),
		})
		return shelfResponse{Category: &category, Source: source, Playlists: nonNil(playlists)}, err
	})
}

// FeaturedPlaylists fills the featured shelf (GET /api/featured-playlists).
// Tiers: "viral hits 2024", then "top 50", then the editorial featured list.
func (h *Handlers) FeaturedPlaylists(w http.ResponseWriter, r *http.Request) {
	browse(h, w, r, func(ctx context.Context, cred credential.Credential, limit int) (any, error) {
		source, playlists, err := h.firstPlaylists(ctx, cred, limit, []playlistTier{
			h.searchTier(viralPlaylistQuery),
			h.searchTier(popularPlaylistQuery),
			{source: featuredSource, fetch: h.catalog.FeaturedPlaylists},
		})
		return shelfResponse{Source: source, Playlists: nonNil(playlists)}, err
	})
}

func (h *Handlers) searchTier(query string) playlistTier {
	return playlistTier{
		source: query,
		fetch: func(ctx context.Context, cred credential.Credential, limit int) ([]catalog.Playlist, error) {
			return h.catalog.SearchPlaylists(ctx, cred, query, limit)
		},
	}
}

// firstPlaylists runs tiers in order and returns the first non-empty result
// with its source. A failing tier degrades to the next one; an error is
// returned only when every tier failed.
func (h *Handlers) firstPlaylists(ctx context.Context, cred credential.Credential, limit int, tiers []playlistTier) (string, []catalog.Playlist, error) {
	var errs []error
	for _, tier := range tiers {
		playlists, err := tier.fetch(ctx, cred, limit)
		if err != nil {
			h.logger.Warn().Err(err).Str("source", tier.source).Msg("playlist tier failed")
			errs = append(errs, err)
		} else if len(playlists) > 0 {
			return tier.source, playlists, nil
		}
		if err := ctx.Err(); err != nil {
			return noSource, nil, err
		}
	}
	if len(errs) == len(tiers) {
		return noSource, nil, errors.Join(errs...)
	}
	return noSource, nil, nil
}

// category looks id up in the catalog, falling back to a known name and
// finally to the id itself.
func (h *Handlers) category(ctx context.Context, cred credential.Credential, id string) catalog.Category {
	category, err := h.catalog.Category(ctx, cred, id)
	if err == nil && category.Name != "" {
		return category
	}
	if err != nil {
		h.logger.Debug().Err(err).Str("category", id).Msg("category lookup failed")
	}
	name, ok := categoryNames[strings.ToLower(id)]
	if !ok {
		name = id
	}
	return catalog.Category{ID: id, Name: name}
}
