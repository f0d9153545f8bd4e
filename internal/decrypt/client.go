// Package decrypt is the client for the external crypto helper service.
// The helper performs the symmetric token encryption and the structured
// HTML parsing the anime provider requires; this package is a pure I/O
// wrapper with no business logic. The helper is best-effort: empty or
// garbled results are a normal failure mode, never a crash.
package decrypt

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

const defaultTimeout = 10 * time.Second

// Client talks to the crypto helper service.
type Client struct {
	client  *http.Client
	baseURL string
	timeout time.Duration
}

// New creates a helper client for the given base URL.
func New(baseURL string) *Client {
	return &Client{
		client:  util.GetFastClient(),
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
	}
}

// NewWithClient creates a helper client with an explicit HTTP client,
// used by tests.
func NewWithClient(baseURL string, httpClient *http.Client) *Client {
	c := New(baseURL)
	c.client = httpClient
	return c
}

type helperResponse struct {
	Result json.RawMessage `json:"result"`
}

// Encrypt returns the helper's ciphertext for the given text.
func (c *Client) Encrypt(ctx context.Context, text string) (string, error) {
	return c.textCall(ctx, "/api/enc", text)
}

// Decrypt returns the helper's plaintext for the given ciphertext.
func (c *Client) Decrypt(ctx context.Context, ciphertext string) (string, error) {
	return c.textCall(ctx, "/api/dec", ciphertext)
}

// ParseHTML hands an HTML fragment to the helper and returns the structured
// object it extracts. The shape is provider-defined, so the result is a
// raw JSON document the caller decodes into its own types.
func (c *Client) ParseHTML(ctx context.Context, html string) (json.RawMessage, error) {
	body, err := c.post(ctx, "/api/parse", html)
	if err != nil {
		return nil, err
	}
	var resp helperResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(models.ErrDecode, "helper returned unparseable body")
	}
	if len(resp.Result) == 0 {
		return nil, errors.Wrap(models.ErrDecode, "helper returned empty result")
	}
	return resp.Result, nil
}

func (c *Client) textCall(ctx context.Context, path, text string) (string, error) {
	endpoint := c.baseURL + path + "?text=" + url.QueryEscape(text)

	body, err := c.get(ctx, endpoint)
	if err != nil {
		return "", err
	}

	var resp helperResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(models.ErrDecode, "helper returned unparseable body")
	}

	var result string
	if err := json.Unmarshal(resp.Result, &result); err != nil || result == "" {
		return "", errors.Wrap(models.ErrDecode, "helper returned empty result")
	}
	return result, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	return c.do(req)
}

func (c *Client) post(ctx context.Context, path, payload string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Content-Type", "text/plain")
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, models.NewFetchError(req.URL.String(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, models.NewStatusError(req.URL.String(), resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewFetchError(req.URL.String(), err)
	}
	return body, nil
}
