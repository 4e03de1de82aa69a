// Package tui is the terminal front end: a search box feeding the debouncer
// and search pipeline, a result list, and preview playback through the
// single-active playback controller.
package tui
