// Package embed resolves CDN-partner embed pages into direct media URLs.
// Partner hosts hide the stream behind either a JSON media endpoint with an
// encrypted payload or a packed player script inside the embed HTML.
package embed

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/Gostream/internal/codec"
	"github.com/alvarorichard/Gostream/internal/decrypt"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

var streamURLRe = regexp.MustCompile(`https?://[^\s"'<>\\]+?\.(?:m3u8|mp4)[^\s"'<>\\]*`)

// MegaUnwrapper resolves megaup-family embed pages. The media endpoint is
// tried first; scraping the embed HTML is the fallback when the endpoint
// is missing or its payload cannot be decrypted.
type MegaUnwrapper struct {
	client    *http.Client
	crypto    *decrypt.Client
	userAgent string
}

// NewMegaUnwrapper builds an unwrapper backed by the crypto helper.
func NewMegaUnwrapper(crypto *decrypt.Client) *MegaUnwrapper {
	return &MegaUnwrapper{
		client:    util.GetSharedClient(),
		crypto:    crypto,
		userAgent: defaultUserAgent,
	}
}

// SetHTTPClient overrides the transport, used by tests.
func (u *MegaUnwrapper) SetHTTPClient(c *http.Client) { u.client = c }

// Unwrap turns a partner embed page URL into a direct stream URL.
func (u *MegaUnwrapper) Unwrap(ctx context.Context, embedURL string) (string, error) {
	direct, err := u.unwrapMedia(ctx, embedURL)
	if err == nil {
		return direct, nil
	}
	util.Debug("media endpoint failed, scraping embed page", "embed", embedURL, "err", err)
	return u.scrapeEmbed(ctx, embedURL)
}

// unwrapMedia calls the host's /media/{id} endpoint, whose result is an
// encrypted source list.
func (u *MegaUnwrapper) unwrapMedia(ctx context.Context, embedURL string) (string, error) {
	parsed, err := url.Parse(embedURL)
	if err != nil || parsed.Host == "" {
		return "", errors.Wrapf(models.ErrDecode, "unusable embed URL %q", embedURL)
	}

	id := lastPathSegment(parsed.Path)
	if id == "" {
		return "", errors.Wrapf(models.ErrDecode, "embed URL %q carries no media id", embedURL)
	}

	mediaURL := parsed.Scheme + "://" + parsed.Host + "/media/" + id
	body, err := u.fetch(ctx, mediaURL, embedURL)
	if err != nil {
		return "", err
	}

	var resp struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Result == "" {
		return "", errors.Wrap(models.ErrDecode, "media endpoint returned no payload")
	}

	plaintext, err := u.crypto.Decrypt(ctx, resp.Result)
	if err != nil {
		return "", err
	}
	return pickSource(plaintext)
}

// scrapeEmbed fetches the embed HTML and hunts for a stream URL, unpacking
// any packed player script it finds along the way.
func (u *MegaUnwrapper) scrapeEmbed(ctx context.Context, embedURL string) (string, error) {
	body, err := u.fetch(ctx, embedURL, "")
	if err != nil {
		return "", err
	}

	html := string(body)
	if match := bestStreamMatch(html); match != "" {
		return match, nil
	}
	if codec.IsPacked(html) {
		if unpacked, ok := codec.Unpack(html); ok {
			if match := bestStreamMatch(unpacked); match != "" {
				return match, nil
			}
		}
	}
	return "", errors.Wrapf(models.ErrDecode, "no stream URL in embed page %s", embedURL)
}

func (u *MegaUnwrapper) fetch(ctx context.Context, target, referer string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, models.NewFetchError(target, err)
	}
	req.Header.Set("User-Agent", u.userAgent)
	req.Header.Set("Accept", "*/*")
	if referer != "" {
		req.Header.Set("Referer", referer)
		req.Header.Set("X-Requested-With", "XMLHttpRequest")
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, models.NewFetchError(target, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, models.NewStatusError(target, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewFetchError(target, err)
	}
	return body, nil
}

// pickSource decodes a decrypted source list and prefers HLS over plain
// MP4 files.
func pickSource(plaintext string) (string, error) {
	trimmed := strings.TrimSpace(plaintext)
	if strings.HasPrefix(trimmed, "http") {
		return trimmed, nil
	}

	var payload struct {
		Sources []struct {
			File string `json:"file"`
			URL  string `json:"url"`
		} `json:"sources"`
	}
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil || len(payload.Sources) == 0 {
		return "", errors.Wrap(models.ErrDecode, "decrypted media payload carries no sources")
	}

	candidates := make([]string, 0, len(payload.Sources))
	for _, s := range payload.Sources {
		if s.File != "" {
			candidates = append(candidates, s.File)
		} else if s.URL != "" {
			candidates = append(candidates, s.URL)
		}
	}
	if len(candidates) == 0 {
		return "", errors.Wrap(models.ErrDecode, "decrypted media payload carries no sources")
	}

	for _, c := range candidates {
		if strings.Contains(c, ".m3u8") {
			return c, nil
		}
	}
	return candidates[0], nil
}

// bestStreamMatch returns the first HLS URL in the text, or the first
// stream URL of any kind when no HLS one exists.
func bestStreamMatch(text string) string {
	matches := streamURLRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return ""
	}
	for _, m := range matches {
		if strings.Contains(m, ".m3u8") {
			return m
		}
	}
	return matches[0]
}

func lastPathSegment(path string) string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return ""
	}
	parts := strings.Split(trimmed, "/")
	return parts[len(parts)-1]
}
