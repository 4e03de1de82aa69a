package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/list"

	"github.com/justestif/go-castor/internal/catalog"
	"github.com/justestif/go-castor/internal/playback"
)

var _ list.Item = trackItem{}

// trackItem wraps [catalog.Track] with its playback session to implement [list.Item].
type trackItem struct {
	track   catalog.Track
	session playback.Session
}

func (i trackItem) FilterValue() string { return i.track.Title }

func (i trackItem) Title() string {
	switch i.session.State {
	case playback.Playing:
		return "▶ " + i.track.Title
	case playback.Paused:
		return "❚❚ " + i.track.Title
	case playback.Loading:
		return "… " + i.track.Title
	default:
		return i.track.Title
	}
}

func (i trackItem) Description() string {
	parts := []string{strings.Join(i.track.Artists, ", ")}
	if i.track.Album != "" {
		parts = append(parts, i.track.Album)
	}
	if i.track.DurationMs > 0 {
		parts = append(parts, catalog.FormatDuration(i.track.DurationMs))
	}

	switch {
	case !i.track.HasPreview():
		parts = append(parts, "no preview")
	case i.session.State == playback.Errored:
		parts = append(parts, i.session.Err.String())
	case i.session.State == playback.Playing || i.session.State == playback.Paused:
		parts = append(parts, fmt.Sprintf("%3.0f%%", i.session.Progress))
	}
	return strings.Join(parts, " • ")
}
