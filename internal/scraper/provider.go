package scraper

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/alvarorichard/Gostream/internal/codec"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

const (
	VidsrcBase    = "https://vidsrc.xyz"
	VidsrcGateway = "https://cloudnestra.com"
)

var (
	// The rcp iframe is scheme-relative on the gateway host; the capture
	// is the path, resolved against the configured gateway.
	rcpRe    = regexp.MustCompile(`src="(?:https?:)?//[^/"]+(/rcp/[^"]+)"`)
	prorcpRe = regexp.MustCompile(`src:\s*'(/prorcp/[^']+)'`)

	// Decoded playlists carry per-edge server placeholders that must be
	// substituted with the configured stream domain before the URL is
	// usable.
	serverPlaceholders = []string{"{v1}", "{v2}", "{v3}", "{v4}"}
)

// VidsrcClient resolves movie and TV embeds through the rcp/prorcp chain.
type VidsrcClient struct {
	walker *Walker
	codecs *codec.Registry

	baseURL string
	gateway string
	// streamDomain replaces the server placeholder in decoded playlists.
	streamDomain string
	maxHops      int
}

// NewVidsrcClient builds the provider client. streamDomain comes from
// configuration; empty falls back to the gateway host.
func NewVidsrcClient(walker *Walker, codecs *codec.Registry, streamDomain string) *VidsrcClient {
	if streamDomain == "" {
		streamDomain = strings.TrimPrefix(VidsrcGateway, "https://")
	}
	return &VidsrcClient{
		walker:       walker,
		codecs:       codecs,
		baseURL:      VidsrcBase,
		gateway:      VidsrcGateway,
		streamDomain: streamDomain,
		maxHops:      DefaultMaxHops,
	}
}

// Name identifies this provider in ranking and logs.
func (c *VidsrcClient) Name() string { return "vidsrc" }

// SetBaseURLs overrides the provider hosts, used by tests and mirrors.
func (c *VidsrcClient) SetBaseURLs(base, gateway string) {
	c.baseURL = base
	c.gateway = gateway
}

// Resolve walks the embed chain for the request and returns the candidate
// stream source. Availability is unknown until the prober has run.
func (c *VidsrcClient) Resolve(ctx context.Context, req models.ResolutionRequest) (*models.StreamSource, error) {
	start := models.Hop{
		URL:          c.embedURL(req),
		Referer:      c.baseURL + "/",
		ExpectedKind: models.PayloadIframe,
	}

	terminal, trace, err := c.walker.Walk(ctx, start, c.maxHops, c.extractors())
	if err != nil {
		return nil, err
	}
	util.Debug("vidsrc chain resolved", "hops", len(trace), "terminal", terminal)

	finalURL := c.substitutePlaceholders(terminal)

	// Some payloads append alternates after an " or " separator; the
	// first candidate is the canonical one.
	if idx := strings.Index(finalURL, " or "); idx != -1 {
		finalURL = finalURL[:idx]
	}

	return &models.StreamSource{
		URL:              finalURL,
		MediaFormat:      "hls",
		Referer:          c.gateway + "/",
		RequiresProxying: true,
		Availability:     models.AvailabilityUnknown,
		Provider:         "vidsrc",
	}, nil
}

func (c *VidsrcClient) embedURL(req models.ResolutionRequest) string {
	if req.Kind == models.KindTV {
		return fmt.Sprintf("%s/embed/tv/%s/%d/%d", c.baseURL, req.CatalogID, req.Season, req.Episode)
	}
	return fmt.Sprintf("%s/embed/movie/%s", c.baseURL, req.CatalogID)
}

func (c *VidsrcClient) extractors() []HopExtractor {
	return []HopExtractor{
		NewIframeExtractor("rcp", rcpRe, c.gateway, models.PayloadIframe),
		NewIframeExtractor("prorcp", prorcpRe, c.gateway, models.PayloadHidden),
		NewHiddenPayloadExtractor("hidden-payload", "", c.codecs),
	}
}

func (c *VidsrcClient) substitutePlaceholders(u string) string {
	for _, p := range serverPlaceholders {
		u = strings.ReplaceAll(u, p, c.streamDomain)
	}
	return u
}
