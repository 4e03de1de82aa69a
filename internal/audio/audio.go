// Package audio implements playback.Handle on top of beep, decoding mp3
// previews and playing them through the system speaker.
package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/speaker"
	"github.com/rs/zerolog"

	"github.com/justestif/go-castor/internal/playback"
)

const (
	// DefaultVolume is the linear gain applied to previews.
	DefaultVolume = 0.7

	// SpeakerBufferSize is the speaker latency.
	SpeakerBufferSize = 100 * time.Millisecond

	// ProgressInterval is how often time updates are reported while playing.
	ProgressInterval = 250 * time.Millisecond

	// MaxSourceBytes caps a loaded preview.
	MaxSourceBytes = 10 << 20

	speakerSampleRate = beep.SampleRate(44100)
)

var (
	speakerOnce sync.Once
	speakerErr  error
)

// initSpeaker initializes the process-wide speaker once.
func initSpeaker() error {
	speakerOnce.Do(func() {
		speakerErr = speaker.Init(speakerSampleRate, speakerSampleRate.N(SpeakerBufferSize))
	})
	if speakerErr != nil {
		return fmt.Errorf("%w: %v", playback.ErrPermissionDenied, speakerErr)
	}
	return nil
}

// Opener opens a preview source by URL.
type Opener interface {
	Open(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPOpener opens sources with a plain GET.
type HTTPOpener struct {
	Client *http.Client
}

// Open implements Opener.
func (o HTTPOpener) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	client := o.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching preview: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("fetching preview: unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

// memorySource makes a fully buffered preview seekable for the decoder.
type memorySource struct {
	*bytes.Reader
}

func (memorySource) Close() error { return nil }

// Handle plays one preview at a time through the speaker.
type Handle struct {
	opener Opener
	gain   float64
	logger zerolog.Logger

	mu        sync.Mutex
	streamer  beep.StreamSeekCloser
	format    beep.Format
	ctrl      *beep.Ctrl
	ended     bool
	announced bool
	closed    bool
	subs      map[int]func(playback.Event)
	nextSub   int
	stop      chan struct{}
}

// Option configures a Handle.
type Option func(*Handle)

// WithOpener sets how sources are opened.
func WithOpener(opener Opener) Option {
	return func(h *Handle) {
		h.opener = opener
	}
}

// WithVolume sets the linear gain in (0, 1].
func WithVolume(gain float64) Option {
	return func(h *Handle) {
		if gain > 0 && gain <= 1 {
			h.gain = gain
		}
	}
}

// WithLogger sets the handle logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handle) {
		h.logger = logger
	}
}

// NewHandle creates an idle Handle.
func NewHandle(opts ...Option) *Handle {
	h := &Handle{
		opener: HTTPOpener{},
		gain:   DefaultVolume,
		logger: zerolog.Nop(),
		subs:   make(map[int]func(playback.Event)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Factory returns a constructor suitable for playback.New.
func Factory(opts ...Option) func() playback.Handle {
	return func() playback.Handle {
		return NewHandle(opts...)
	}
}

// Load fetches and decodes the preview at url.
func (h *Handle) Load(ctx context.Context, url string) error {
	rc, err := h.opener.Open(ctx, url)
	if err != nil {
		return err
	}
	data, err := io.ReadAll(io.LimitReader(rc, MaxSourceBytes))
	rc.Close()
	if err != nil {
		return fmt.Errorf("reading preview: %w", err)
	}

	streamer, format, err := mp3.Decode(memorySource{bytes.NewReader(data)})
	if err != nil {
		return fmt.Errorf("%w: %v", playback.ErrUnsupportedFormat, err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		streamer.Close()
		return errors.New("audio handle closed")
	}
	h.streamer, h.format = streamer, format
	return nil
}

// Play starts or resumes playback. After the stream has ended, Play starts
// it again from the current position.
func (h *Handle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errors.New("audio handle closed")
	}
	if h.streamer == nil {
		return errors.New("audio handle has no source loaded")
	}

	if h.ctrl != nil && !h.ended {
		speaker.Lock()
		h.ctrl.Paused = false
		speaker.Unlock()
		return nil
	}

	if err := initSpeaker(); err != nil {
		return err
	}

	var source beep.Streamer = h.streamer
	if h.format.SampleRate != speakerSampleRate {
		source = beep.Resample(4, h.format.SampleRate, speakerSampleRate, h.streamer)
	}

	h.ctrl = &beep.Ctrl{
		Streamer: &effects.Volume{
			Streamer: beep.Seq(source, beep.Callback(h.onEnded)),
			Base:     2,
			Volume:   math.Log2(h.gain),
		},
	}
	h.ended = false
	speaker.Play(h.ctrl)

	if h.stop == nil {
		h.stop = make(chan struct{})
		go h.reportProgress(h.stop)
	}
	if !h.announced {
		h.announced = true
		go h.emit(playback.Event{Type: playback.EventCanPlay})
	}
	return nil
}

// Pause pauses playback.
func (h *Handle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.ctrl == nil {
		return
	}
	speaker.Lock()
	h.ctrl.Paused = true
	speaker.Unlock()
}

// Seek moves the playback position.
func (h *Handle) Seek(pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.streamer == nil {
		return errors.New("audio handle has no source loaded")
	}

	n := h.format.SampleRate.N(pos)
	n = max(0, min(n, h.streamer.Len()))

	speaker.Lock()
	err := h.streamer.Seek(n)
	speaker.Unlock()
	if err != nil {
		return fmt.Errorf("seeking: %w", err)
	}
	return nil
}

// Subscribe implements playback.Handle.
func (h *Handle) Subscribe(fn func(playback.Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSub
	h.nextSub++
	h.subs[id] = fn

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// Close stops playback and releases the decoded stream.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil
	}
	h.closed = true

	if h.stop != nil {
		close(h.stop)
		h.stop = nil
	}
	if h.ctrl != nil {
		speaker.Lock()
		h.ctrl.Paused = true
		h.ctrl.Streamer = nil
		speaker.Unlock()
	}
	clear(h.subs)

	if h.streamer != nil {
		if err := h.streamer.Close(); err != nil {
			return fmt.Errorf("closing stream: %w", err)
		}
	}
	return nil
}

// onEnded runs on the speaker goroutine with the speaker locked.
func (h *Handle) onEnded() {
	go func() {
		h.mu.Lock()
		h.ended = true
		h.mu.Unlock()
		h.emit(playback.Event{Type: playback.EventEnded})
	}()
}

// reportProgress emits time updates while the stream is playing.
func (h *Handle) reportProgress(stop <-chan struct{}) {
	ticker := time.NewTicker(ProgressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.mu.Lock()
			if h.ctrl == nil || h.ended || h.streamer == nil {
				h.mu.Unlock()
				continue
			}
			speaker.Lock()
			paused := h.ctrl.Paused
			pos, length := h.streamer.Position(), h.streamer.Len()
			speaker.Unlock()
			rate := h.format.SampleRate
			h.mu.Unlock()

			if paused {
				continue
			}
			h.emit(playback.Event{
				Type:        playback.EventTimeUpdate,
				CurrentTime: rate.D(pos),
				Duration:    rate.D(length),
			})
		}
	}
}

// emit delivers ev to every subscriber without holding h.mu.
func (h *Handle) emit(ev playback.Event) {
	h.mu.Lock()
	subs := make([]func(playback.Event), 0, len(h.subs))
	for _, fn := range h.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(ev)
	}
}

var _ playback.Handle = (*Handle)(nil)
