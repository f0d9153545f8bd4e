package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alvarorichard/Gostream/internal/models"
)

const playlistFixture = "#EXTM3U\n#EXT-X-VERSION:3\n#EXT-X-STREAM-INF:BANDWIDTH=800000\nlow/index.m3u8\n"

func newTestProber(handler http.HandlerFunc) (*Prober, string, func()) {
	srv := httptest.NewServer(handler)
	p := NewProber()
	p.SetHTTPClient(srv.Client())
	return p, srv.URL, srv.Close
}

func TestCheckWorkingPlaylist(t *testing.T) {
	var gotReferer, gotOrigin string
	p, base, cleanup := newTestProber(func(w http.ResponseWriter, r *http.Request) {
		gotReferer = r.Header.Get("Referer")
		gotOrigin = r.Header.Get("Origin")
		_, _ = w.Write([]byte(playlistFixture))
	})
	defer cleanup()

	got := p.Check(context.Background(), base+"/live/stream.m3u8", "https://gateway.example/")
	assert.Equal(t, models.AvailabilityWorking, got)
	assert.Equal(t, "https://gateway.example/", gotReferer)
	assert.Equal(t, "https://gateway.example", gotOrigin)
}

func TestCheckNotFoundIsDown(t *testing.T) {
	p, base, cleanup := newTestProber(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	defer cleanup()

	got := p.Check(context.Background(), base+"/live/stream.m3u8", "")
	assert.Equal(t, models.AvailabilityDown, got)
}

func TestCheckEmptyBodyIsDown(t *testing.T) {
	p, base, cleanup := newTestProber(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	defer cleanup()

	got := p.Check(context.Background(), base+"/live/stream.m3u8", "")
	assert.Equal(t, models.AvailabilityDown, got)
}

func TestCheckHTMLErrorPageIsDown(t *testing.T) {
	p, base, cleanup := newTestProber(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>stream offline</body></html>"))
	})
	defer cleanup()

	got := p.Check(context.Background(), base+"/live/stream.m3u8", "")
	assert.Equal(t, models.AvailabilityDown, got)
}

func TestCheckMP4AcceptsAnyBody(t *testing.T) {
	p, base, cleanup := newTestProber(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte{0x00, 0x00, 0x00, 0x18, 'f', 't', 'y', 'p'})
	})
	defer cleanup()

	got := p.Check(context.Background(), base+"/video/movie.mp4", "")
	assert.Equal(t, models.AvailabilityWorking, got)
}

func TestCheckUnreachableHostIsDown(t *testing.T) {
	p := NewProber()
	p.SetHTTPClient(&http.Client{})

	got := p.Check(context.Background(), "http://127.0.0.1:1/stream.m3u8", "")
	assert.Equal(t, models.AvailabilityDown, got)
}
