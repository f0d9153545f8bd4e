package anime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/Gostream/internal/decrypt"
	"github.com/alvarorichard/Gostream/internal/models"
)

// fakeHelper mimics the crypto helper service: encryption prefixes "enc:",
// decryption looks up a fixture map, and the HTML parser returns canned
// structured objects keyed by a marker substring.
type fakeHelper struct {
	decrypted map[string]string
	parsed    map[string]string
}

func (f *fakeHelper) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/enc":
			_ = json.NewEncoder(w).Encode(map[string]string{"result": "enc:" + r.URL.Query().Get("text")})
		case "/api/dec":
			text := r.URL.Query().Get("text")
			if out, ok := f.decrypted[text]; ok {
				_ = json.NewEncoder(w).Encode(map[string]string{"result": out})
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]string{"result": ""})
		case "/api/parse":
			raw, _ := io.ReadAll(r.Body)
			html := string(raw)
			for marker, result := range f.parsed {
				if strings.Contains(html, marker) {
					_, _ = w.Write([]byte(`{"result":` + result + `}`))
					return
				}
			}
			_, _ = w.Write([]byte(`{"result":{}}`))
		default:
			http.NotFound(w, r)
		}
	}
}

func newTestKai(t *testing.T, provider http.Handler, helper *fakeHelper) (*KaiClient, func()) {
	t.Helper()
	helperSrv := httptest.NewServer(helper.handler())
	providerSrv := httptest.NewServer(provider)

	crypto := decrypt.NewWithClient(helperSrv.URL, helperSrv.Client())
	kai := NewKaiClient(crypto)
	kai.SetBaseURL(providerSrv.URL)
	kai.SetHTTPClient(providerSrv.Client())

	return kai, func() {
		helperSrv.Close()
		providerSrv.Close()
	}
}

func episodeIndexProvider(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/episodes/list", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "enc:show-77", r.URL.Query().Get("ani_id"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": 200, "result": "<ul id=\"eps\"></ul>"})
	})
	return mux
}

func TestEpisodeTokenNestedPartKey(t *testing.T) {
	helper := &fakeHelper{
		parsed: map[string]string{
			"eps": `{"episodes":{"1":{"1":"tok-1","2":"tok-2","3":"tok-3"}}}`,
		},
	}
	kai, cleanup := newTestKai(t, episodeIndexProvider(t), helper)
	defer cleanup()

	for k := 1; k <= 3; k++ {
		token, err := kai.EpisodeToken(context.Background(), "show-77", k)
		require.NoError(t, err, "episode %d", k)
		assert.Equal(t, fmt.Sprintf("tok-%d", k), token)
	}

	_, err := kai.EpisodeToken(context.Background(), "show-77", 4)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestEpisodeTokenFlatFallback(t *testing.T) {
	helper := &fakeHelper{
		parsed: map[string]string{
			"eps": `{"episodes":{"5":"tok-flat"}}`,
		},
	}
	kai, cleanup := newTestKai(t, episodeIndexProvider(t), helper)
	defer cleanup()

	token, err := kai.EpisodeToken(context.Background(), "show-77", 5)
	require.NoError(t, err)
	assert.Equal(t, "tok-flat", token)
}

type blockingUnwrapper struct{ unwrapped string }

func (u *blockingUnwrapper) Unwrap(_ context.Context, embedURL string) (string, error) {
	u.unwrapped = embedURL
	return "https://edge.megaup.cc/hls/abc/master.m3u8", nil
}

func TestResolveStreamFullChain(t *testing.T) {
	helper := &fakeHelper{
		decrypted: map[string]string{
			"blob-a": `{"url":"https://edge9.dotstream.buzz/hls/xyz/master.m3u8"}`,
			"blob-b": `https://megaup.cc/e/embedded-42`,
			"blob-c": `{"sources":[{"file":"https://alt.cdn.example/f/video.mp4"}]}`,
		},
		parsed: map[string]string{
			"eps": `{"episodes":{"1":{"1":"tok-1"}}}`,
			"srv": `{"sub":[{"name":"Server 1","lid":"lid-a"},{"name":"Server 2","lid":"lid-b"}],"dub":[{"name":"Server 1","lid":"lid-c"},{"name":"Server 3","lid":"lid-d"}]}`,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/episodes/list", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": "<ul id=\"eps\"></ul>"})
	})
	mux.HandleFunc("/ajax/links/list", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "enc:tok-1", r.URL.Query().Get("token"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": "<div id=\"srv\"></div>"})
	})
	mux.HandleFunc("/ajax/links/view", func(w http.ResponseWriter, r *http.Request) {
		blob := map[string]string{
			"enc:lid-a": "blob-a",
			"enc:lid-b": "blob-b",
			"enc:lid-c": "blob-c",
			"enc:lid-d": "blob-d",
		}[r.URL.Query().Get("id")]
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": blob})
	})

	kai, cleanup := newTestKai(t, mux, helper)
	defer cleanup()

	unwrapper := &blockingUnwrapper{}
	resolver := NewStreamResolver(kai, unwrapper)

	sources, err := resolver.ResolveStream(context.Background(), "show-77", 1, nil)
	require.NoError(t, err)

	// Three servers attempted (sub first), all succeed.
	require.Len(t, sources, 3)
	assert.Equal(t, "https://edge9.dotstream.buzz/hls/xyz/master.m3u8", sources[0].URL)
	assert.Equal(t, "sub", sources[0].Language)
	// Referer is the origin of the stream URL itself, not the provider's.
	assert.Equal(t, "https://edge9.dotstream.buzz/", sources[0].Referer)

	// The partner embed page was routed through the unwrapper.
	assert.Equal(t, "https://megaup.cc/e/embedded-42", unwrapper.unwrapped)
	assert.Equal(t, "https://edge.megaup.cc/hls/abc/master.m3u8", sources[1].URL)

	// Dub server came after both sub servers; the cap kept lid-d untried.
	assert.Equal(t, "dub", sources[2].Language)
	assert.Equal(t, "https://alt.cdn.example/f/video.mp4", sources[2].URL)
}

func TestResolveStreamContinuesPastFailingServer(t *testing.T) {
	helper := &fakeHelper{
		decrypted: map[string]string{
			// lid-a decrypts to garbage, lid-b to a good URL.
			"blob-bad":  ``,
			"blob-good": `https://cdn.final.example/hls/ok/master.m3u8`,
		},
		parsed: map[string]string{
			"eps": `{"episodes":{"1":{"1":"tok-1"}}}`,
			"srv": `{"sub":[{"name":"Broken","lid":"lid-a"},{"name":"Good","lid":"lid-b"}]}`,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/episodes/list", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": "<ul id=\"eps\"></ul>"})
	})
	mux.HandleFunc("/ajax/links/list", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": "<div id=\"srv\"></div>"})
	})
	mux.HandleFunc("/ajax/links/view", func(w http.ResponseWriter, r *http.Request) {
		blob := "blob-bad"
		if r.URL.Query().Get("id") == "enc:lid-b" {
			blob = "blob-good"
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": blob})
	})

	kai, cleanup := newTestKai(t, mux, helper)
	defer cleanup()

	resolver := NewStreamResolver(kai, &blockingUnwrapper{})
	sources, err := resolver.ResolveStream(context.Background(), "show-77", 1, nil)
	require.NoError(t, err)
	require.Len(t, sources, 1)
	assert.Equal(t, "https://cdn.final.example/hls/ok/master.m3u8", sources[0].URL)
}

func TestResolveStreamNoServersIsNotAnError(t *testing.T) {
	helper := &fakeHelper{
		parsed: map[string]string{
			"eps": `{"episodes":{"1":{"1":"tok-1"}}}`,
			"srv": `{"sub":[],"dub":[]}`,
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ajax/episodes/list", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": "<ul id=\"eps\"></ul>"})
	})
	mux.HandleFunc("/ajax/links/list", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": "<div id=\"srv\"></div>"})
	})

	kai, cleanup := newTestKai(t, mux, helper)
	defer cleanup()

	resolver := NewStreamResolver(kai, &blockingUnwrapper{})
	sources, err := resolver.ResolveStream(context.Background(), "show-77", 1, nil)
	require.NoError(t, err)
	assert.Empty(t, sources)
}

func TestIdentityResolverMappedPath(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/anilist/anime/101.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"malId":5114,"Zoro":{}}`))
	})
	mux.HandleFunc("/ajax/anime/search", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "5114", r.URL.Query().Get("mal"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"id": "fmab-x9", "title": "Fullmetal Alchemist: Brotherhood", "episode": 1},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mapper := NewMappingClient(srv.URL)
	mapper.SetHTTPClient(srv.Client())

	kai := NewKaiClient(nil)
	kai.SetBaseURL(srv.URL)
	kai.SetHTTPClient(srv.Client())

	resolver := NewIdentityResolver(mapper, kai)
	id, err := resolver.Resolve(context.Background(), "101", "")
	require.NoError(t, err)
	assert.Equal(t, "fmab-x9", id.ProviderID)
	assert.Equal(t, "Fullmetal Alchemist: Brotherhood", id.Title)
	assert.Equal(t, 1, id.SeedEpisode)
}

func TestIdentityResolverTitleFallback(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/anilist/anime/202.json", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	mux.HandleFunc("/ajax/anime/search", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("keyword") == "" {
			_, _ = w.Write([]byte(`{"result":null}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": []map[string]interface{}{
				{"id": "wrong-1", "title": "Cowboy Bebop: The Movie"},
				{"id": "right-2", "title": "Cowboy Bebop"},
			},
		})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mapper := NewMappingClient(srv.URL)
	mapper.SetHTTPClient(srv.Client())

	kai := NewKaiClient(nil)
	kai.SetBaseURL(srv.URL)
	kai.SetHTTPClient(srv.Client())

	resolver := NewIdentityResolver(mapper, kai)
	id, err := resolver.Resolve(context.Background(), "202", "Cowboy Bebop")
	require.NoError(t, err)
	assert.Equal(t, "right-2", id.ProviderID)
}

func TestIdentityResolverNotFoundIsExpected(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) { http.NotFound(w, r) })
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mapper := NewMappingClient(srv.URL)
	mapper.SetHTTPClient(srv.Client())

	kai := NewKaiClient(nil)
	kai.SetBaseURL(srv.URL)
	kai.SetHTTPClient(srv.Client())

	resolver := NewIdentityResolver(mapper, kai)
	_, err := resolver.Resolve(context.Background(), "303", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
