package tui

import "github.com/charmbracelet/lipgloss"

var styles = newPalette("#1DB954", "#04B575", "#FF5F5F", "#FFA500", "#626262")

type palette struct {
	title   lipgloss.Style
	playing lipgloss.Style
	err     lipgloss.Style
	warn    lipgloss.Style
	muted   lipgloss.Style
}

func newPalette(title, ok, err, warn, muted string) *palette {
	return &palette{
		title:   newBold(title).MarginBottom(1),
		playing: newBold(ok),
		err:     newBold(err),
		warn:    newStyle(warn),
		muted:   newStyle(muted).Italic(true),
	}
}

func newStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func newBold(fg string) lipgloss.Style {
	return newStyle(fg).Bold(true)
}
