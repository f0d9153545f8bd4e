package livetv

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

const (
	authorizeTimeout = 8 * time.Second

	// Enough for the playlist header plus a few variant lines.
	playlistSniffLimit = 4096
)

// ChannelClient builds and authorizes per-credential channel stream URLs
// for an upstream live-TV panel.
type ChannelClient struct {
	client    *http.Client
	baseURL   string
	userAgent string
}

// NewChannelClient points at the upstream panel base URL.
func NewChannelClient(baseURL string) *ChannelClient {
	return &ChannelClient{
		client:    util.GetFastClient(),
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	}
}

// SetHTTPClient overrides the transport, used by tests.
func (c *ChannelClient) SetHTTPClient(client *http.Client) { c.client = client }

// StreamFor builds the channel's playlist URL for one credential. The
// credential's auth material is a panel-issued path token.
func (c *ChannelClient) StreamFor(channelID string, cred models.Credential) models.StreamSource {
	return models.StreamSource{
		URL:              fmt.Sprintf("%s/live/%s/%s/index.m3u8", c.baseURL, cred.AuthMaterial, channelID),
		MediaFormat:      "hls",
		Referer:          c.baseURL + "/",
		RequiresProxying: true,
		SkipOriginHeader: true,
		Availability:     models.AvailabilityUnknown,
		Provider:         "livetv",
	}
}

// Authorize checks whether the upstream accepts the credential baked into
// the stream URL. Auth-class rejections are distinguished from ordinary
// fetch failures so the caller can rotate instead of retrying.
func (c *ChannelClient) Authorize(ctx context.Context, streamURL string) error {
	ctx, cancel := context.WithTimeout(ctx, authorizeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, streamURL, nil)
	if err != nil {
		return models.NewFetchError(streamURL, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.baseURL+"/")

	resp, err := c.client.Do(req)
	if err != nil {
		return models.NewFetchError(streamURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if models.IsAuthStatus(resp.StatusCode) {
		return errors.Wrapf(models.ErrAuth, "upstream rejected credential with status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return models.NewStatusError(streamURL, resp.StatusCode)
	}

	// Panels serve 200 HTML error pages; only a playlist body proves the
	// credential actually unlocked the channel.
	body, err := io.ReadAll(io.LimitReader(resp.Body, playlistSniffLimit))
	if err != nil {
		return models.NewFetchError(streamURL, err)
	}
	head := strings.TrimSpace(string(body))
	if !strings.HasPrefix(head, "#EXTM3U") && !strings.HasPrefix(head, "#EXT-X") {
		return errors.Wrapf(models.ErrFetch, "upstream returned a non-playlist body for %s", streamURL)
	}
	return nil
}
