package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/justestif/go-castor/internal/catalog"
)

// fakeHandle records calls and lets tests emit events.
type fakeHandle struct {
	mu         sync.Mutex
	loadErr    error
	playErr    error
	loadGate   chan struct{}
	loaded     string
	plays      int
	pauses     int
	seeks      []time.Duration
	subscriber func(Event)
	closed     bool
}

func (h *fakeHandle) Load(ctx context.Context, url string) error {
	if h.loadGate != nil {
		<-h.loadGate
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.loaded = url
	return h.loadErr
}

func (h *fakeHandle) Play() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.plays++
	return h.playErr
}

func (h *fakeHandle) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pauses++
}

func (h *fakeHandle) Seek(pos time.Duration) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seeks = append(h.seeks, pos)
	return nil
}

func (h *fakeHandle) Subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscriber = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.subscriber = nil
	}
}

func (h *fakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	return nil
}

func (h *fakeHandle) emit(ev Event) {
	h.mu.Lock()
	fn := h.subscriber
	h.mu.Unlock()
	if fn != nil {
		fn(ev)
	}
}

func (h *fakeHandle) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// handleFactory hands out fakeHandles and remembers them in order.
type handleFactory struct {
	mu      sync.Mutex
	handles []*fakeHandle
	prepare func(*fakeHandle)
}

func (f *handleFactory) New() Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	h := &fakeHandle{}
	if f.prepare != nil {
		f.prepare(h)
	}
	f.handles = append(f.handles, h)
	return h
}

func (f *handleFactory) get(i int) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[i]
}

func track(id string) catalog.Track {
	return catalog.Track{ID: id, Title: id, PreviewURL: "https://p.scdn.co/mp3-preview/" + id}
}

func countPlaying(c *Controller, ids ...string) int {
	n := 0
	for _, id := range ids {
		if c.Session(id).State == Playing {
			n++
		}
	}
	return n
}

func TestController_PlayLifecycle(t *testing.T) {
	factory := &handleFactory{}
	var changes []Session
	var mu sync.Mutex
	c := New(factory.New, ProxyResolver{BaseURL: "http://127.0.0.1:8080/"}, OnChange(func(s Session) {
		mu.Lock()
		changes = append(changes, s)
		mu.Unlock()
	}))
	defer c.Close()

	ctx := context.Background()
	a := track("a")

	if err := c.RequestPlay(ctx, a); err != nil {
		t.Fatalf("RequestPlay() error = %v", err)
	}
	if got := c.Session("a").State; got != Loading {
		t.Fatalf("state = %v, want loading", got)
	}

	h := factory.get(0)
	want := "http://127.0.0.1:8080/preview?url=https%3A%2F%2Fp.scdn.co%2Fmp3-preview%2Fa"
	if h.loaded != want {
		t.Errorf("loaded = %q, want %q", h.loaded, want)
	}

	h.emit(Event{Type: EventCanPlay})
	if got := c.Session("a").State; got != Playing {
		t.Fatalf("state = %v, want playing", got)
	}

	h.emit(Event{Type: EventTimeUpdate, CurrentTime: 15 * time.Second, Duration: 30 * time.Second})
	if got := c.Session("a").Progress; got != 50 {
		t.Errorf("progress = %v, want 50", got)
	}

	if err := c.Toggle(ctx, a); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if got := c.Session("a").State; got != Paused {
		t.Errorf("state after toggle = %v, want paused", got)
	}

	if err := c.Toggle(ctx, a); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	if got := c.Session("a").State; got != Playing {
		t.Errorf("state after second toggle = %v, want playing", got)
	}
	if len(factory.handles) != 1 {
		t.Errorf("resume created a new handle")
	}

	h.emit(Event{Type: EventEnded})
	s := c.Session("a")
	if s.State != Ended || s.Progress != 0 {
		t.Errorf("after end = %+v, want ended with progress 0", s)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) == 0 {
		t.Error("OnChange never called")
	}
}

func TestController_SingleActivePlayback(t *testing.T) {
	factory := &handleFactory{}
	c := New(factory.New, DirectResolver{})
	defer c.Close()

	ctx := context.Background()
	if err := c.RequestPlay(ctx, track("a")); err != nil {
		t.Fatal(err)
	}
	factory.get(0).emit(Event{Type: EventCanPlay})

	if err := c.RequestPlay(ctx, track("b")); err != nil {
		t.Fatal(err)
	}
	if got := c.Session("a").State; got != Paused {
		t.Errorf("a = %v, want paused", got)
	}
	if factory.get(0).pauses != 1 {
		t.Errorf("a paused %d times, want 1", factory.get(0).pauses)
	}
	if !factory.get(0).isClosed() {
		t.Error("previous handle not released")
	}

	factory.get(1).emit(Event{Type: EventCanPlay})
	if n := countPlaying(c, "a", "b"); n != 1 {
		t.Errorf("%d sessions playing, want 1", n)
	}
	if s, ok := c.Playing(); !ok || s.TrackID != "b" {
		t.Errorf("Playing() = %+v, %v; want b", s, ok)
	}
}

func TestController_NoPreviewShortCircuits(t *testing.T) {
	factory := &handleFactory{}
	var states []State
	c := New(factory.New, nil, OnChange(func(s Session) { states = append(states, s.State) }))
	defer c.Close()

	err := c.RequestPlay(context.Background(), catalog.Track{ID: "silent"})
	if !errors.Is(err, ErrNoPreviewAvailable) {
		t.Fatalf("RequestPlay() error = %v, want ErrNoPreviewAvailable", err)
	}

	s := c.Session("silent")
	if s.State != Errored || s.Err != ErrorNoPreviewAvailable {
		t.Errorf("session = %+v, want errored/no preview", s)
	}
	for _, st := range states {
		if st == Loading {
			t.Error("session passed through loading")
		}
	}
	if len(factory.handles) != 0 {
		t.Error("handle created for track without preview")
	}
}

func TestController_SupersededLoadDiscarded(t *testing.T) {
	gate := make(chan struct{})
	factory := &handleFactory{}
	factory.prepare = func(h *fakeHandle) {
		if len(factory.handles) == 0 {
			h.loadGate = gate
			h.loadErr = errors.New("network went away")
		}
	}
	c := New(factory.New, nil)
	defer c.Close()

	ctx := context.Background()
	done := make(chan error, 1)
	go func() { done <- c.RequestPlay(ctx, track("slow")) }()

	// Wait for the first handle to be created.
	deadline := time.Now().Add(time.Second)
	for {
		factory.mu.Lock()
		n := len(factory.handles)
		factory.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first request never created a handle")
		}
		time.Sleep(time.Millisecond)
	}

	first := factory.get(0)
	if err := c.RequestPlay(ctx, track("fast")); err != nil {
		t.Fatal(err)
	}
	factory.get(1).emit(Event{Type: EventCanPlay})

	// Late events and failures from the superseded load change nothing.
	first.emit(Event{Type: EventCanPlay})
	close(gate)
	if err := <-done; err != nil {
		t.Errorf("superseded RequestPlay() error = %v, want nil", err)
	}

	if got := c.Session("slow").State; got != Idle {
		t.Errorf("slow = %v, want idle", got)
	}
	if got := c.Session("fast").State; got != Playing {
		t.Errorf("fast = %v, want playing", got)
	}
}

func TestController_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name    string
		loadErr error
		playErr error
		want    ErrorKind
	}{
		{"permission", nil, ErrPermissionDenied, ErrorPermissionDenied},
		{"wrapped format", wrap(ErrUnsupportedFormat), nil, ErrorUnsupportedFormat},
		{"generic", errors.New("boom"), nil, ErrorGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			factory := &handleFactory{prepare: func(h *fakeHandle) {
				h.loadErr = tt.loadErr
				h.playErr = tt.playErr
			}}
			c := New(factory.New, nil)
			defer c.Close()

			if err := c.RequestPlay(context.Background(), track("x")); err == nil {
				t.Fatal("RequestPlay() error = nil, want error")
			}
			s := c.Session("x")
			if s.State != Errored || s.Err != tt.want {
				t.Errorf("session = %+v, want errored/%v", s, tt.want)
			}

			// A failed track does not block another.
			factory.prepare = nil
			if err := c.RequestPlay(context.Background(), track("y")); err != nil {
				t.Errorf("RequestPlay(y) error = %v", err)
			}
		})
	}
}

func wrap(err error) error {
	return errors.Join(errors.New("decoding preview"), err)
}

func TestController_HandleErrorEvent(t *testing.T) {
	factory := &handleFactory{}
	c := New(factory.New, nil)
	defer c.Close()

	if err := c.RequestPlay(context.Background(), track("a")); err != nil {
		t.Fatal(err)
	}
	h := factory.get(0)
	h.emit(Event{Type: EventCanPlay})
	h.emit(Event{Type: EventError, Err: ErrUnsupportedFormat})

	s := c.Session("a")
	if s.State != Errored || s.Err != ErrorUnsupportedFormat {
		t.Errorf("session = %+v, want errored/unsupported", s)
	}
}

func TestController_Repeat(t *testing.T) {
	factory := &handleFactory{}
	c := New(factory.New, nil, WithRepeat(true))
	defer c.Close()

	if err := c.RequestPlay(context.Background(), track("a")); err != nil {
		t.Fatal(err)
	}
	h := factory.get(0)
	h.emit(Event{Type: EventCanPlay})
	h.emit(Event{Type: EventTimeUpdate, CurrentTime: 29 * time.Second, Duration: 30 * time.Second})
	h.emit(Event{Type: EventEnded})

	s := c.Session("a")
	if s.State != Playing || s.Progress != 0 {
		t.Errorf("session = %+v, want playing from 0", s)
	}
	if len(h.seeks) != 1 || h.seeks[0] != 0 {
		t.Errorf("seeks = %v, want [0]", h.seeks)
	}

	c.SetRepeat(false)
	h.emit(Event{Type: EventEnded})
	if got := c.Session("a").State; got != Ended {
		t.Errorf("state = %v, want ended", got)
	}
}

func TestController_Close(t *testing.T) {
	factory := &handleFactory{}
	c := New(factory.New, nil)

	if err := c.RequestPlay(context.Background(), track("a")); err != nil {
		t.Fatal(err)
	}
	h := factory.get(0)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !h.isClosed() {
		t.Error("Close did not release the handle")
	}

	h.emit(Event{Type: EventCanPlay})
	if got := c.Session("a").State; got != Idle {
		t.Errorf("state after close = %v, want idle", got)
	}

	if err := c.RequestPlay(context.Background(), track("b")); !errors.Is(err, ErrClosed) {
		t.Errorf("RequestPlay() after Close error = %v, want ErrClosed", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		current, duration time.Duration
		want              float64
	}{
		{15 * time.Second, 30 * time.Second, 50},
		{0, 30 * time.Second, 0},
		{31 * time.Second, 30 * time.Second, 100},
		{-time.Second, 30 * time.Second, 0},
		{10 * time.Second, 0, 0},
	}

	for _, tt := range tests {
		if got := progressPercent(tt.current, tt.duration); got != tt.want {
			t.Errorf("progressPercent(%v, %v) = %v, want %v", tt.current, tt.duration, got, tt.want)
		}
	}
}
