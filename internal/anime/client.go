package anime

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/alvarorichard/Gostream/internal/decrypt"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

const (
	KaiBase      = "https://animekai.to"
	KaiUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0"
)

// KaiClient handles interactions with the anime provider's ajax API. Every
// request parameter the provider gates is encrypted through the crypto
// helper before being sent.
type KaiClient struct {
	client    *http.Client
	crypto    *decrypt.Client
	baseURL   string
	userAgent string
}

// NewKaiClient creates a provider client on the shared fast HTTP client.
func NewKaiClient(crypto *decrypt.Client) *KaiClient {
	return &KaiClient{
		client:    util.GetFastClient(),
		crypto:    crypto,
		baseURL:   KaiBase,
		userAgent: KaiUserAgent,
	}
}

// SetBaseURL overrides the provider host, used by tests and mirrors.
func (c *KaiClient) SetBaseURL(base string) { c.baseURL = strings.TrimRight(base, "/") }

// SetHTTPClient overrides the transport, used by tests.
func (c *KaiClient) SetHTTPClient(client *http.Client) { c.client = client }

func (c *KaiClient) getJSON(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, models.NewFetchError(endpoint, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Referer", c.baseURL+"/")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, models.NewFetchError(endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, models.NewStatusError(endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewFetchError(endpoint, err)
	}
	return body, nil
}
