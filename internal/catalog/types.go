package catalog

// Track is a playable catalog entry as shown in a result list.
type Track struct {
	ID         string   `json:"id"`
	Title      string   `json:"title"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album"`
	DurationMs int      `json:"duration_ms"`
	ImageURL   string   `json:"image_url,omitempty"`
	PreviewURL string   `json:"preview_url,omitempty"`
	Popularity int      `json:"popularity"`
	URI        string   `json:"uri"`
}

// HasPreview reports whether the track carries a preview locator.
func (t Track) HasPreview() bool {
	return t.PreviewURL != ""
}

// Playlist is a public playlist returned by playlist search.
type Playlist struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	URI         string `json:"uri"`
}

// Album is a newly released album.
type Album struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Artists     []string `json:"artists"`
	ReleaseDate string   `json:"release_date,omitempty"`
	ImageURL    string   `json:"image_url,omitempty"`
	URI         string   `json:"uri"`
}

// Category is a browse category.
type Category struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IconURL string `json:"icon_url,omitempty"`
}
