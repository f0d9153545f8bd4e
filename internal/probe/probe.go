// Package probe checks whether a resolved stream URL actually plays before
// it is handed to a client. Hosts routinely return 200 pages that are not
// playlists, so the body is sniffed, not just the status line.
package probe

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

const (
	probeTimeout = 5 * time.Second

	// Enough for the playlist header plus a few variant lines.
	probeReadLimit = 4096
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Prober verifies stream candidates with a short, bounded fetch.
type Prober struct {
	client    *http.Client
	userAgent string
}

// NewProber builds a prober on the fast shared transport.
func NewProber() *Prober {
	return &Prober{client: util.GetFastClient(), userAgent: defaultUserAgent}
}

// SetHTTPClient overrides the transport, used by tests.
func (p *Prober) SetHTTPClient(c *http.Client) { p.client = c }

// Check fetches the stream URL and reports whether it is playable. A probe
// never returns an error: any failure simply marks the source down.
func (p *Prober) Check(ctx context.Context, streamURL, referer string) models.Availability {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return models.AvailabilityDown
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "*/*")
	if referer != "" {
		req.Header.Set("Referer", referer)
		if origin := originOf(referer); origin != "" {
			req.Header.Set("Origin", origin)
		}
	}

	resp, err := p.client.Do(req)
	if err != nil {
		util.Debug("probe failed", "url", streamURL, "err", err)
		return models.AvailabilityDown
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return models.AvailabilityDown
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, probeReadLimit))
	if err != nil || len(body) == 0 {
		return models.AvailabilityDown
	}

	if isHLS(streamURL) && !looksLikePlaylist(string(body)) {
		return models.AvailabilityDown
	}
	return models.AvailabilityWorking
}

func isHLS(streamURL string) bool {
	u, err := url.Parse(streamURL)
	if err != nil {
		return strings.Contains(streamURL, ".m3u8")
	}
	return strings.Contains(u.Path, ".m3u8")
}

func looksLikePlaylist(body string) bool {
	trimmed := strings.TrimSpace(body)
	return strings.HasPrefix(trimmed, "#EXTM3U") || strings.HasPrefix(trimmed, "#EXT-X")
}

func originOf(ref string) string {
	u, err := url.Parse(ref)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
