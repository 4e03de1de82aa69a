// Package playback coordinates preview playback so that at most one track
// plays at a time.
package playback

import (
	"errors"
	"time"
)

// State is the lifecycle state of a track's playback session.
type State int

const (
	Idle State = iota
	Loading
	Playing
	Paused
	Ended
	Errored
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Ended:
		return "ended"
	case Errored:
		return "errored"
	default:
		return "unknown"
	}
}

// ErrorKind classifies a playback failure for display.
type ErrorKind int

const (
	ErrorNone ErrorKind = iota
	ErrorPermissionDenied
	ErrorUnsupportedFormat
	ErrorNoPreviewAvailable
	ErrorGeneric
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorNone:
		return ""
	case ErrorPermissionDenied:
		return "permission denied"
	case ErrorUnsupportedFormat:
		return "unsupported format"
	case ErrorNoPreviewAvailable:
		return "no preview available"
	default:
		return "playback failed"
	}
}

var (
	// ErrNoPreviewAvailable is returned for a track without a preview locator.
	ErrNoPreviewAvailable = errors.New("no preview available")

	// ErrPermissionDenied is returned by a handle when the platform refuses output.
	ErrPermissionDenied = errors.New("audio output not permitted")

	// ErrUnsupportedFormat is returned by a handle that cannot decode the source.
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrClosed is returned after the controller has been closed.
	ErrClosed = errors.New("playback controller closed")
)

// classify maps an error to the kind shown to the user.
func classify(err error) ErrorKind {
	switch {
	case err == nil:
		return ErrorNone
	case errors.Is(err, ErrNoPreviewAvailable):
		return ErrorNoPreviewAvailable
	case errors.Is(err, ErrPermissionDenied):
		return ErrorPermissionDenied
	case errors.Is(err, ErrUnsupportedFormat):
		return ErrorUnsupportedFormat
	default:
		return ErrorGeneric
	}
}

// Session is a snapshot of one track's playback.
type Session struct {
	TrackID  string    `json:"track_id"`
	State    State     `json:"state"`
	Progress float64   `json:"progress"`
	Err      ErrorKind `json:"error,omitempty"`
}

// EventType identifies a signal from an audio handle.
type EventType int

const (
	EventCanPlay EventType = iota
	EventTimeUpdate
	EventEnded
	EventError
)

// Event is a signal from an audio handle.
type Event struct {
	Type        EventType
	CurrentTime time.Duration
	Duration    time.Duration
	Err         error
}

// progressPercent returns current/duration as a percentage clamped to [0, 100].
func progressPercent(current, duration time.Duration) float64 {
	if duration <= 0 {
		return 0
	}
	p := float64(current) / float64(duration) * 100
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
