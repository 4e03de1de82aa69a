package playback

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/justestif/go-castor/internal/catalog"
)

// Controller owns the single audio handle and the per-track sessions.
// At most one session is Playing at any time.
type Controller struct {
	newHandle func() Handle
	resolver  Resolver
	logger    zerolog.Logger
	onChange  func(Session)

	mu          sync.Mutex
	handle      Handle
	unsubscribe func()
	current     string
	gen         uint64
	sessions    map[string]*Session
	repeat      bool
	closed      bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Controller) {
		c.logger = logger
	}
}

// WithRepeat sets the initial repeat flag.
func WithRepeat(repeat bool) Option {
	return func(c *Controller) {
		c.repeat = repeat
	}
}

// OnChange registers fn to receive a snapshot whenever a session changes.
// fn is called without internal locks held and may be called from any goroutine.
func OnChange(fn func(Session)) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

// New creates a Controller. newHandle is called once per track load; a nil
// resolver plays upstream URLs directly.
func New(newHandle func() Handle, resolver Resolver, opts ...Option) *Controller {
	if resolver == nil {
		resolver = DirectResolver{}
	}
	c := &Controller{
		newHandle: newHandle,
		resolver:  resolver,
		logger:    zerolog.Nop(),
		onChange:  func(Session) {},
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestPlay starts playback of track, pausing whichever track is playing.
// A track without a preview goes straight to Errored. A later request
// supersedes this one; its load outcome is then discarded.
func (c *Controller) RequestPlay(ctx context.Context, track catalog.Track) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	var changed []Session
	if !track.HasPreview() {
		s := c.session(track.ID)
		s.State, s.Progress, s.Err = Errored, 0, ErrorNoPreviewAvailable
		changed = append(changed, *s)
		c.mu.Unlock()
		c.notify(changed)
		return ErrNoPreviewAvailable
	}

	changed = append(changed, c.releaseLocked()...)

	c.gen++
	gen := c.gen
	s := c.session(track.ID)
	s.State, s.Progress, s.Err = Loading, 0, ErrorNone
	changed = append(changed, *s)

	h := c.newHandle()
	c.handle = h
	c.current = track.ID
	c.unsubscribe = h.Subscribe(func(ev Event) {
		c.handleEvent(gen, track.ID, ev)
	})
	c.mu.Unlock()
	c.notify(changed)

	source := c.resolver.Resolve(track.PreviewURL)
	c.logger.Debug().Str("track_id", track.ID).Str("source", source).Msg("loading preview")

	err := h.Load(ctx, source)
	if err == nil {
		err = h.Play()
	}
	if err == nil {
		return nil
	}

	c.mu.Lock()
	if c.gen != gen || c.closed {
		c.mu.Unlock()
		return nil
	}
	s = c.session(track.ID)
	s.State, s.Progress, s.Err = Errored, 0, classify(err)
	snapshot := *s
	c.mu.Unlock()

	c.logger.Warn().Err(err).Str("track_id", track.ID).Str("kind", snapshot.Err.String()).Msg("preview playback failed")
	c.notify([]Session{snapshot})
	return fmt.Errorf("playing %s: %w", track.ID, err)
}

// Toggle pauses track if it is playing, resumes it if it is paused on the
// current handle, and otherwise requests playback.
func (c *Controller) Toggle(ctx context.Context, track catalog.Track) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}

	s, ok := c.sessions[track.ID]
	onHandle := ok && c.current == track.ID && c.handle != nil
	switch {
	case onHandle && s.State == Playing:
		c.handle.Pause()
		s.State = Paused
		snapshot := *s
		c.mu.Unlock()
		c.notify([]Session{snapshot})
		return nil

	case onHandle && s.State == Paused:
		if err := c.handle.Play(); err != nil {
			s.State, s.Err = Errored, classify(err)
			snapshot := *s
			c.mu.Unlock()
			c.notify([]Session{snapshot})
			return fmt.Errorf("resuming %s: %w", track.ID, err)
		}
		s.State = Playing
		snapshot := *s
		c.mu.Unlock()
		c.notify([]Session{snapshot})
		return nil
	}
	c.mu.Unlock()

	return c.RequestPlay(ctx, track)
}

// Pause pauses trackID if it is playing.
func (c *Controller) Pause(trackID string) {
	c.mu.Lock()
	s, ok := c.sessions[trackID]
	if !ok || c.closed || c.current != trackID || s.State != Playing {
		c.mu.Unlock()
		return
	}
	c.handle.Pause()
	s.State = Paused
	snapshot := *s
	c.mu.Unlock()

	c.notify([]Session{snapshot})
}

// SetRepeat sets whether an ended track restarts immediately.
func (c *Controller) SetRepeat(repeat bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repeat = repeat
}

// Session returns the session for trackID. Unknown tracks are Idle.
func (c *Controller) Session(trackID string) Session {
	c.mu.Lock()
	defer c.mu.Unlock()

	if s, ok := c.sessions[trackID]; ok {
		return *s
	}
	return Session{TrackID: trackID, State: Idle}
}

// Playing returns the playing session, if any.
func (c *Controller) Playing() (Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range c.sessions {
		if s.State == Playing {
			return *s, true
		}
	}
	return Session{}, false
}

// Close releases the audio handle and rejects further requests.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.gen++

	h, unsubscribe := c.handle, c.unsubscribe
	c.handle, c.unsubscribe, c.current = nil, nil, ""
	for _, s := range c.sessions {
		if s.State == Playing || s.State == Loading {
			s.State, s.Progress = Idle, 0
		}
	}
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if h != nil {
		if err := h.Close(); err != nil {
			return fmt.Errorf("closing audio handle: %w", err)
		}
	}
	return nil
}

// session returns the session for id, creating it. c.mu must be held.
func (c *Controller) session(id string) *Session {
	s, ok := c.sessions[id]
	if !ok {
		s = &Session{TrackID: id, State: Idle}
		c.sessions[id] = s
	}
	return s
}

// releaseLocked detaches and closes the current handle, moving its session
// out of any active state. c.mu must be held.
func (c *Controller) releaseLocked() []Session {
	if c.handle == nil {
		return nil
	}

	var changed []Session
	if s, ok := c.sessions[c.current]; ok {
		switch s.State {
		case Playing:
			c.handle.Pause()
			s.State = Paused
			changed = append(changed, *s)
		case Loading, Ended:
			s.State, s.Progress = Idle, 0
			changed = append(changed, *s)
		}
	}

	if c.unsubscribe != nil {
		c.unsubscribe()
	}
	if err := c.handle.Close(); err != nil {
		c.logger.Warn().Err(err).Str("track_id", c.current).Msg("closing audio handle")
	}
	c.handle, c.unsubscribe, c.current = nil, nil, ""
	return changed
}

// handleEvent applies a handle event if it belongs to the current generation.
func (c *Controller) handleEvent(gen uint64, trackID string, ev Event) {
	c.mu.Lock()
	if gen != c.gen || c.closed {
		c.mu.Unlock()
		return
	}
	s := c.session(trackID)

	var changed []Session
	switch ev.Type {
	case EventCanPlay:
		if s.State == Loading {
			s.State = Playing
			changed = append(changed, *s)
		}

	case EventTimeUpdate:
		if s.State == Playing || s.State == Paused {
			s.Progress = progressPercent(ev.CurrentTime, ev.Duration)
			changed = append(changed, *s)
		}

	case EventEnded:
		s.State, s.Progress = Ended, 0
		changed = append(changed, *s)
		if c.repeat && c.handle != nil {
			err := c.handle.Seek(0)
			if err == nil {
				err = c.handle.Play()
			}
			if err != nil {
				s.State, s.Err = Errored, classify(err)
			} else {
				s.State = Playing
			}
			changed = append(changed, *s)
		}

	case EventError:
		if s.State == Loading || s.State == Playing {
			s.State, s.Progress, s.Err = Errored, 0, classify(ev.Err)
			changed = append(changed, *s)
			c.logger.Warn().Err(ev.Err).Str("track_id", trackID).Msg("audio handle reported error")
		}
	}
	c.mu.Unlock()

	c.notify(changed)
}

func (c *Controller) notify(changed []Session) {
	for _, s := range changed {
		c.onChange(s)
	}
}
