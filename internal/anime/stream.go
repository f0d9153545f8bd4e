package anime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

// maxServerAttempts bounds end-to-end latency when a title lists many
// servers.
const maxServerAttempts = 3

// DefaultServerOrder prefers subbed servers over dubbed ones.
var DefaultServerOrder = []string{"sub", "dub"}

// ServerHandle is one playable server for an episode token. The link ID is
// opaque and lives only within one resolution attempt.
type ServerHandle struct {
	Type   string `json:"type"`
	Name   string `json:"name"`
	LinkID string `json:"lid"`
}

// Unwrapper resolves CDN-partner embed pages into direct media URLs.
type Unwrapper interface {
	Unwrap(ctx context.Context, embedURL string) (string, error)
}

// Hosts whose "stream URL" is actually another embed page.
var partnerEmbedHosts = []string{"megaup.", "megaf.", "mcloud."}

// StreamResolver turns a provider content ID and episode number into
// candidate stream sources.
type StreamResolver struct {
	kai       *KaiClient
	unwrapper Unwrapper
}

// NewStreamResolver wires the provider client and the embed unwrapper.
func NewStreamResolver(kai *KaiClient, unwrapper Unwrapper) *StreamResolver {
	return &StreamResolver{kai: kai, unwrapper: unwrapper}
}

// ResolveStream walks the provider's token chain for the episode and
// returns every source it could recover, sub before dub, capped at
// maxServerAttempts servers. A failing server never aborts the loop; an
// empty result with a nil error is a valid "no streams found".
func (r *StreamResolver) ResolveStream(ctx context.Context, providerID string, episode int, order []string) ([]models.StreamSource, error) {
	token, err := r.kai.EpisodeToken(ctx, providerID, episode)
	if err != nil {
		return nil, err
	}

	grouped, err := r.kai.Servers(ctx, token)
	if err != nil {
		return nil, err
	}

	if len(order) == 0 {
		order = DefaultServerOrder
	}
	candidates := lo.Flatten(lo.Map(order, func(typ string, _ int) []ServerHandle {
		return grouped[typ]
	}))
	if len(candidates) > maxServerAttempts {
		candidates = candidates[:maxServerAttempts]
	}

	var sources []models.StreamSource
	for _, server := range candidates {
		source, err := r.resolveServer(ctx, server)
		if err != nil {
			util.Debug("server failed, trying next", "server", server.Name, "type", server.Type, "err", err)
			continue
		}
		sources = append(sources, *source)
	}
	return sources, nil
}

func (r *StreamResolver) resolveServer(ctx context.Context, server ServerHandle) (*models.StreamSource, error) {
	streamURL, err := r.kai.ServerPayload(ctx, server.LinkID)
	if err != nil {
		return nil, err
	}

	if isPartnerEmbed(streamURL) {
		streamURL, err = r.unwrapper.Unwrap(ctx, streamURL)
		if err != nil {
			return nil, err
		}
	}

	// Partner CDNs reject the provider's Referer; the origin of the
	// stream URL itself is the one to send downstream.
	return &models.StreamSource{
		URL:          streamURL,
		MediaFormat:  "hls",
		Referer:      originOf(streamURL),
		Availability: models.AvailabilityUnknown,
		Language:     server.Type,
		QualityLabel: server.Name,
		Provider:     "animekai",
	}, nil
}

// EpisodeToken fetches the episode index and returns the token for the
// requested episode number. The provider nests episodes under an outer
// part key defaulting to "1"; the flat layout is the fallback.
func (c *KaiClient) EpisodeToken(ctx context.Context, providerID string, episode int) (string, error) {
	encID, err := c.crypto.Encrypt(ctx, providerID)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/ajax/episodes/list?ani_id=%s", c.baseURL, url.QueryEscape(encID))
	parsed, err := c.fetchParsed(ctx, endpoint)
	if err != nil {
		return "", err
	}

	var index struct {
		Episodes json.RawMessage `json:"episodes"`
	}
	if err := json.Unmarshal(parsed, &index); err != nil || len(index.Episodes) == 0 {
		return "", errors.Wrap(models.ErrDecode, "episode index missing from parsed payload")
	}

	key := strconv.Itoa(episode)

	var nested map[string]map[string]string
	if err := json.Unmarshal(index.Episodes, &nested); err == nil {
		if part, ok := nested["1"]; ok {
			if token, ok := part[key]; ok && token != "" {
				return token, nil
			}
			return "", errors.Wrapf(models.ErrNotFound, "episode %d not in index", episode)
		}
	}

	var flat map[string]string
	if err := json.Unmarshal(index.Episodes, &flat); err == nil {
		if token, ok := flat[key]; ok && token != "" {
			return token, nil
		}
	}
	return "", errors.Wrapf(models.ErrNotFound, "episode %d not in index", episode)
}

// Servers fetches the servers available for an episode token, grouped by
// audio track.
func (c *KaiClient) Servers(ctx context.Context, token string) (map[string][]ServerHandle, error) {
	encToken, err := c.crypto.Encrypt(ctx, token)
	if err != nil {
		return nil, err
	}

	endpoint := fmt.Sprintf("%s/ajax/links/list?token=%s", c.baseURL, url.QueryEscape(encToken))
	parsed, err := c.fetchParsed(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var grouped map[string][]ServerHandle
	if err := json.Unmarshal(parsed, &grouped); err != nil {
		return nil, errors.Wrap(models.ErrDecode, "server list missing from parsed payload")
	}
	for typ, servers := range grouped {
		for i := range servers {
			servers[i].Type = typ
		}
	}
	return grouped, nil
}

// ServerPayload fetches and decrypts the embed payload for a server link
// ID, returning the stream (or partner embed) URL it carries.
func (c *KaiClient) ServerPayload(ctx context.Context, linkID string) (string, error) {
	encID, err := c.crypto.Encrypt(ctx, linkID)
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/ajax/links/view?id=%s", c.baseURL, url.QueryEscape(encID))
	body, err := c.getJSON(ctx, endpoint)
	if err != nil {
		return "", err
	}

	var resp struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Result == "" {
		return "", errors.Wrap(models.ErrDecode, "embed view returned no payload")
	}

	plaintext, err := c.crypto.Decrypt(ctx, resp.Result)
	if err != nil {
		return "", err
	}
	return parseSourcePayload(plaintext)
}

// fetchParsed fetches an endpoint whose result field is an HTML fragment
// and runs it through the helper's structured parser.
func (c *KaiClient) fetchParsed(ctx context.Context, endpoint string) (json.RawMessage, error) {
	body, err := c.getJSON(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result string `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Result == "" {
		return nil, errors.Wrap(models.ErrDecode, "provider returned no result fragment")
	}
	return c.crypto.ParseHTML(ctx, resp.Result)
}

// parseSourcePayload handles the three shapes a decrypted payload takes:
// a bare URL, a {url|file} object, or a {sources:[...]} list.
func parseSourcePayload(plaintext string) (string, error) {
	trimmed := strings.TrimSpace(plaintext)
	if trimmed == "" {
		return "", errors.Wrap(models.ErrDecode, "decrypted payload is empty")
	}

	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") {
		if strings.HasPrefix(trimmed, "http") {
			return trimmed, nil
		}
		return "", errors.Wrap(models.ErrDecode, "decrypted payload is not a URL")
	}

	var obj struct {
		URL     string `json:"url"`
		File    string `json:"file"`
		Sources []struct {
			URL  string `json:"url"`
			File string `json:"file"`
		} `json:"sources"`
	}
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return "", errors.Wrap(models.ErrDecode, "decrypted payload is not valid JSON")
	}

	switch {
	case obj.URL != "":
		return obj.URL, nil
	case obj.File != "":
		return obj.File, nil
	}
	for _, s := range obj.Sources {
		if s.URL != "" {
			return s.URL, nil
		}
		if s.File != "" {
			return s.File, nil
		}
	}
	return "", errors.Wrap(models.ErrDecode, "decrypted payload carries no source URL")
}

func isPartnerEmbed(streamURL string) bool {
	u, err := url.Parse(streamURL)
	if err != nil {
		return false
	}
	for _, host := range partnerEmbedHosts {
		if strings.Contains(u.Host, host) {
			return true
		}
	}
	return false
}

func originOf(streamURL string) string {
	u, err := url.Parse(streamURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host + "/"
}
