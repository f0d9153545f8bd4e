package scraper

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/Gostream/internal/codec"
	"github.com/alvarorichard/Gostream/internal/models"
)

// encodeReversedHex builds a fixture payload in the dominant provider
// format: hex-encode, add 1 to every character code, reverse.
func encodeReversedHex(plain string) string {
	encoded := hex.EncodeToString([]byte(plain))
	var b strings.Builder
	for i := len(encoded) - 1; i >= 0; i-- {
		b.WriteByte(encoded[i] + 1)
	}
	return b.String()
}

func newTestWalker(srv *httptest.Server) *Walker {
	w := NewWalkerWithClient(srv.Client())
	w.limiter = nil
	w.sleep = func(context.Context, time.Duration) {}
	return w
}

func TestWalkNeverExceedsMaxHops(t *testing.T) {
	var fetches int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fetches++
		// Every page points at another hop, forever.
		fmt.Fprintf(w, `<iframe src="//%s/rcp/loop-%d"></iframe>`, r.Host, fetches)
	}))
	defer srv.Close()

	walker := newTestWalker(srv)
	extractors := []HopExtractor{
		NewIframeExtractor("loop", rcpRe, srv.URL, models.PayloadIframe),
	}

	const maxHops = 4
	_, trace, err := walker.Walk(context.Background(), models.Hop{URL: srv.URL + "/start"}, maxHops, extractors)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrDecode)
	assert.Equal(t, maxHops, fetches)
	assert.Len(t, trace, maxHops)
}

func TestWalkEndToEndChain(t *testing.T) {
	// Hop 1 returns an iframe reference, hop 2 a hidden-div payload in
	// reversed-hex format whose decoded URL carries a server placeholder.
	payload := encodeReversedHex("https://{v1}/premium123/index.m3u8")

	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/embed/movie/603", func(w http.ResponseWriter, r *http.Request) {
		host := strings.TrimPrefix(srvURL, "http://")
		fmt.Fprintf(w, `<html><body><iframe src="//%s/rcp/abc123" frameborder="0"></iframe></body></html>`, host)
	})
	mux.HandleFunc("/rcp/abc123", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.Header.Get("Referer"), "/embed/movie/603")
		fmt.Fprintf(w, `<html><body><div id="player"></div><div style="display:none">%s</div></body></html>`, payload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	walker := newTestWalker(srv)
	client := NewVidsrcClient(walker, codec.NewRegistry(), "edge-cache.example.net")
	client.SetBaseURLs(srv.URL, srv.URL)

	source, err := client.Resolve(context.Background(), models.ResolutionRequest{
		CatalogID: "603",
		Kind:      models.KindMovie,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://edge-cache.example.net/premium123/index.m3u8", source.URL)
	assert.Equal(t, "hls", source.MediaFormat)
	assert.True(t, source.RequiresProxying)
	assert.Equal(t, models.AvailabilityUnknown, source.Availability)
}

func TestWalkTVChainWithProrcpHop(t *testing.T) {
	payload := encodeReversedHex("https://stream.example.org/tv/42/s1e2/playlist.m3u8")

	mux := http.NewServeMux()
	var srvURL string
	mux.HandleFunc("/embed/tv/42/1/2", func(w http.ResponseWriter, r *http.Request) {
		host := strings.TrimPrefix(srvURL, "http://")
		fmt.Fprintf(w, `<iframe src="//%s/rcp/hash-a"></iframe>`, host)
	})
	mux.HandleFunc("/rcp/hash-a", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<script>player.load({ src: '/prorcp/hash-b' })</script>`)
	})
	mux.HandleFunc("/prorcp/hash-b", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<div style="display: none">%s</div>`, payload)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	srvURL = srv.URL

	walker := newTestWalker(srv)
	client := NewVidsrcClient(walker, codec.NewRegistry(), "")
	client.SetBaseURLs(srv.URL, srv.URL)

	source, err := client.Resolve(context.Background(), models.ResolutionRequest{
		CatalogID: "42",
		Kind:      models.KindTV,
		Season:    1,
		Episode:   2,
	})
	require.NoError(t, err)
	assert.Equal(t, "https://stream.example.org/tv/42/s1e2/playlist.m3u8", source.URL)
}

func TestWalkChallengeBlockedWithoutSolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><head><title>Just a moment...</title></head><body><form id="challenge-form"></form></body></html>`)
	}))
	defer srv.Close()

	walker := newTestWalker(srv)
	_, _, err := walker.Walk(context.Background(), models.Hop{URL: srv.URL}, 3, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrChallengeBlocked)
}

func TestWalkChallengeSolvedWithToken(t *testing.T) {
	var verified bool
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, r *http.Request) {
		if !verified {
			fmt.Fprint(w, `<html><head><title>Just a moment...</title></head></html>`)
			return
		}
		fmt.Fprint(w, `<div style="display:none">`+encodeReversedHex("https://ok.example.com/a/b.m3u8")+`</div>`)
	})
	mux.HandleFunc("/verify", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "solution-token", r.Form.Get("token"))
		verified = true
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	walker := newTestWalker(srv)
	walker.SetChallengeSolver(&ChallengeSolver{Token: "solution-token", VerifyURL: srv.URL + "/verify"})

	extractors := []HopExtractor{NewHiddenPayloadExtractor("hidden", "", codec.NewRegistry())}
	terminal, _, err := walker.Walk(context.Background(), models.Hop{URL: srv.URL + "/page"}, 3, extractors)
	require.NoError(t, err)
	assert.Equal(t, "https://ok.example.com/a/b.m3u8", terminal)
}

func TestWalkFetchErrorDistinctFromDecodeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	walker := newTestWalker(srv)
	_, _, err := walker.Walk(context.Background(), models.Hop{URL: srv.URL}, 3, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrFetch)
	assert.NotErrorIs(t, err, models.ErrDecode)
}

func TestWalkCancellationAborts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	walker := newTestWalker(srv)
	_, _, err := walker.Walk(ctx, models.Hop{URL: srv.URL}, 3, nil)
	require.Error(t, err)
}

func TestValidTerminal(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{"https://cdn.example.com/live/stream.m3u8", true},
		{"https://{v1}/premium/index.m3u8", true},
		{"https:///stream.m3u8", false}, // empty-host decode artifact
		{"http://x", false},             // implausibly short
		{"ftp://cdn.example.com/f.m3u8", false},
		{"", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidTerminal(tt.url), tt.url)
	}
}

func TestIframeExtractorRejectsUnresolvable(t *testing.T) {
	ex := NewIframeExtractor("bad-base", regexp.MustCompile(`src="([^"]+)"`), "://not-a-base", models.PayloadIframe)
	_, _, err := ex.Extract(`<iframe src="/rcp/x"></iframe>`, models.Hop{URL: "https://a.example"})
	assert.Error(t, err)
}
