package audio

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/justestif/go-castor/internal/playback"
)

type stringOpener string

func (s stringOpener) Open(context.Context, string) (io.ReadCloser, error) {
	return io.NopCloser(strings.NewReader(string(s))), nil
}

func TestHandle_LoadRejectsNonMP3(t *testing.T) {
	h := NewHandle(WithOpener(stringOpener("<html>not audio</html>")))
	defer h.Close()

	err := h.Load(context.Background(), "https://p.scdn.co/mp3-preview/x")
	if !errors.Is(err, playback.ErrUnsupportedFormat) {
		t.Errorf("Load() error = %v, want ErrUnsupportedFormat", err)
	}
}

func TestHandle_PlayWithoutSource(t *testing.T) {
	h := NewHandle()
	defer h.Close()

	if err := h.Play(); err == nil {
		t.Error("Play() error = nil, want error without a loaded source")
	}
	if err := h.Seek(0); err == nil {
		t.Error("Seek() error = nil, want error without a loaded source")
	}
}

func TestHandle_SubscribeDetach(t *testing.T) {
	h := NewHandle()
	defer h.Close()

	var got []playback.EventType
	unsubscribe := h.Subscribe(func(ev playback.Event) { got = append(got, ev.Type) })

	h.emit(playback.Event{Type: playback.EventCanPlay})
	unsubscribe()
	h.emit(playback.Event{Type: playback.EventEnded})

	if len(got) != 1 || got[0] != playback.EventCanPlay {
		t.Errorf("events = %v, want [CanPlay]", got)
	}
}

func TestHTTPOpener(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("bytes"))
	}))
	defer server.Close()

	opener := HTTPOpener{Client: server.Client()}

	rc, err := opener.Open(context.Background(), server.URL+"/ok")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "bytes" {
		t.Errorf("body = %q, want bytes", body)
	}

	if _, err := opener.Open(context.Background(), server.URL+"/missing"); err == nil {
		t.Error("Open() error = nil, want error for 404")
	}
}
