// Package anime implements the anime resolution workflow: catalog ID to
// provider content ID, then episode, server and embed payload through the
// provider's encrypted token chain.
package anime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/pkg/errors"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

const DefaultMappingBase = "https://raw.githubusercontent.com/bal-mackup/mal-backup/master"

// Identity is the provider-side identity of a catalog title.
type Identity struct {
	ProviderID string
	Title      string
	// SeedEpisode is an episode index the provider returned inline,
	// saving a later round trip. Zero means none was included.
	SeedEpisode int
}

// MappingClient queries the external ID-mapping service that links catalog
// IDs to the anime provider's ID systems.
type MappingClient struct {
	client  *http.Client
	baseURL string
}

// NewMappingClient builds a mapping client; empty base uses the default.
func NewMappingClient(baseURL string) *MappingClient {
	if baseURL == "" {
		baseURL = DefaultMappingBase
	}
	return &MappingClient{client: util.GetFastClient(), baseURL: strings.TrimRight(baseURL, "/")}
}

// SetHTTPClient overrides the transport, used by tests.
func (m *MappingClient) SetHTTPClient(c *http.Client) { m.client = c }

// Lookup returns the MAL ID mapped to a catalog ID, or ErrNotFound when
// the title has no anime mapping (the common case for most catalog IDs).
func (m *MappingClient) Lookup(ctx context.Context, sourceSystem, sourceID string) (int, error) {
	endpoint := fmt.Sprintf("%s/%s/anime/%s.json", m.baseURL, sourceSystem, sourceID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, models.NewFetchError(endpoint, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return 0, models.NewFetchError(endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return 0, errors.Wrapf(models.ErrNotFound, "no mapping for %s/%s", sourceSystem, sourceID)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, models.NewStatusError(endpoint, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, models.NewFetchError(endpoint, err)
	}

	var mapping struct {
		MalID int `json:"malId"`
	}
	if err := json.Unmarshal(body, &mapping); err != nil || mapping.MalID == 0 {
		return 0, errors.Wrapf(models.ErrNotFound, "mapping for %s/%s has no MAL id", sourceSystem, sourceID)
	}
	return mapping.MalID, nil
}

// IdentityResolver maps a catalog content ID to the provider's own ID.
type IdentityResolver struct {
	mapper       *MappingClient
	provider     *KaiClient
	sourceSystem string
}

// NewIdentityResolver wires the mapping client and the provider client.
func NewIdentityResolver(mapper *MappingClient, provider *KaiClient) *IdentityResolver {
	return &IdentityResolver{mapper: mapper, provider: provider, sourceSystem: "anilist"}
}

// Resolve locates the content inside the anime provider's database. A
// NotFound result is a normal outcome — most catalog titles are not anime —
// and is reported without error-level logging.
func (r *IdentityResolver) Resolve(ctx context.Context, catalogID, titleFallback string) (*Identity, error) {
	malID, err := r.mapper.Lookup(ctx, r.sourceSystem, catalogID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	if malID != 0 {
		id, err := r.provider.SearchByMalID(ctx, malID)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
		util.Debug("provider has no entry for MAL id, trying title", "malId", malID)
	}

	if titleFallback == "" {
		return nil, errors.Wrapf(models.ErrNotFound, "catalog id %s is not in the anime database", catalogID)
	}

	id, err := r.provider.SearchByTitle(ctx, titleFallback)
	if err != nil {
		return nil, err
	}
	return id, nil
}

// kaiSearchResult is one entry of the provider's search response.
type kaiSearchResult struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	SeedEpisode int    `json:"episode,omitempty"`
}

// SearchByMalID queries the provider's search-by-alternate-id endpoint.
func (c *KaiClient) SearchByMalID(ctx context.Context, malID int) (*Identity, error) {
	endpoint := fmt.Sprintf("%s/ajax/anime/search?mal=%d", c.baseURL, malID)

	body, err := c.getJSON(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result *kaiSearchResult `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || resp.Result == nil || resp.Result.ID == "" {
		return nil, errors.Wrapf(models.ErrNotFound, "provider has no entry for MAL id %d", malID)
	}

	return &Identity{
		ProviderID:  resp.Result.ID,
		Title:       resp.Result.Title,
		SeedEpisode: resp.Result.SeedEpisode,
	}, nil
}

// SearchByTitle runs the provider's keyword search and picks the closest
// fuzzy match, falling back to the provider's first result.
func (c *KaiClient) SearchByTitle(ctx context.Context, title string) (*Identity, error) {
	endpoint := fmt.Sprintf("%s/ajax/anime/search?keyword=%s", c.baseURL, url.QueryEscape(title))

	body, err := c.getJSON(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Result []kaiSearchResult `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil || len(resp.Result) == 0 {
		return nil, errors.Wrapf(models.ErrNotFound, "no search results for %q", title)
	}

	best := resp.Result[0]
	if ranks := fuzzy.RankFindNormalizedFold(title, searchTitles(resp.Result)); len(ranks) > 0 {
		sort.Sort(ranks)
		best = resp.Result[ranks[0].OriginalIndex]
	}

	return &Identity{
		ProviderID:  best.ID,
		Title:       best.Title,
		SeedEpisode: best.SeedEpisode,
	}, nil
}

func searchTitles(results []kaiSearchResult) []string {
	titles := make([]string, len(results))
	for i, r := range results {
		titles[i] = r.Title
	}
	return titles
}
