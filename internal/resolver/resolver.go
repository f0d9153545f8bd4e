// Package resolver orchestrates the stream resolution pipeline: it routes
// requests by media kind, falls back across providers, probes candidates
// and collapses internal failures into the small fixed set of user-visible
// messages.
package resolver

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/samber/lo"

	"github.com/alvarorichard/Gostream/internal/anime"
	"github.com/alvarorichard/Gostream/internal/livetv"
	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

const (
	// Overall budget for one resolution attempt, all providers included.
	defaultBudget = 45 * time.Second

	probeConcurrency = 3
)

// MovieProvider resolves a movie/TV request into one candidate source.
type MovieProvider interface {
	Name() string
	Resolve(ctx context.Context, req models.ResolutionRequest) (*models.StreamSource, error)
}

// AnimeIdentity maps a catalog ID to the anime provider's own identity.
type AnimeIdentity interface {
	Resolve(ctx context.Context, catalogID, titleFallback string) (*anime.Identity, error)
}

// AnimeStreams resolves a provider identity and episode into sources.
type AnimeStreams interface {
	ResolveStream(ctx context.Context, providerID string, episode int, order []string) ([]models.StreamSource, error)
}

// AvailabilityProber verifies that a candidate URL actually plays.
type AvailabilityProber interface {
	Check(ctx context.Context, streamURL, referer string) models.Availability
}

// LiveClient builds and authorizes per-credential channel URLs.
type LiveClient interface {
	StreamFor(channelID string, cred models.Credential) models.StreamSource
	Authorize(ctx context.Context, streamURL string) error
}

// Resolver is the entry point of the pipeline.
type Resolver struct {
	providers []MovieProvider
	identity  AnimeIdentity
	streams   AnimeStreams
	prober    AvailabilityProber
	cache     *IdentityCache

	live      LiveClient
	credStore livetv.CredentialStore

	budget time.Duration
}

// New wires the movie/TV providers and the anime path. The identity cache
// is injected so callers control its scope and TTL.
func New(providers []MovieProvider, identity AnimeIdentity, streams AnimeStreams, prober AvailabilityProber, cache *IdentityCache) *Resolver {
	return &Resolver{
		providers: providers,
		identity:  identity,
		streams:   streams,
		prober:    prober,
		cache:     cache,
		budget:    defaultBudget,
	}
}

// SetLive enables the live-TV path.
func (r *Resolver) SetLive(live LiveClient, store livetv.CredentialStore) {
	r.live = live
	r.credStore = store
}

// SetBudget overrides the overall resolution timeout.
func (r *Resolver) SetBudget(d time.Duration) { r.budget = d }

// Resolve routes a request to the matching pipeline path and returns an
// ordered list of playable sources. An error always wraps one of the
// taxonomy sentinels; UserMessage collapses it for display.
func (r *Resolver) Resolve(ctx context.Context, req models.ResolutionRequest) ([]models.StreamSource, error) {
	ctx, cancel := context.WithTimeout(ctx, r.budget)
	defer cancel()

	switch req.Kind {
	case models.KindMovie, models.KindTV:
		return r.resolveDirect(ctx, req)
	case models.KindAnime:
		return r.resolveAnime(ctx, req)
	case models.KindLive:
		return r.resolveLive(ctx, req)
	}
	return nil, errors.Wrapf(models.ErrNotFound, "unknown media kind %q", req.Kind)
}

// resolveDirect walks each configured provider in preference order. A
// failing provider never aborts the search.
func (r *Resolver) resolveDirect(ctx context.Context, req models.ResolutionRequest) ([]models.StreamSource, error) {
	var candidates []models.StreamSource
	for _, provider := range r.providers {
		source, err := provider.Resolve(ctx, req)
		if err != nil {
			if errors.Is(err, models.ErrChallengeBlocked) {
				util.Warn("provider blocked by anti-automation challenge",
					"provider", provider.Name(), "err", err)
			} else {
				util.Debug("provider failed, trying next", "provider", provider.Name(), "err", err)
			}
			continue
		}
		candidates = append(candidates, *source)
	}
	return r.finish(ctx, candidates)
}

// resolveAnime runs identity mapping (cached), then the episode/server
// token chain.
func (r *Resolver) resolveAnime(ctx context.Context, req models.ResolutionRequest) ([]models.StreamSource, error) {
	id, ok := r.cache.Get(req.CatalogID)
	if !ok {
		title := ""
		if req.ExternalIDs != nil {
			title = req.ExternalIDs.Title
		}
		resolved, err := r.identity.Resolve(ctx, req.CatalogID, title)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				util.Info("title not in anime database", "catalogId", req.CatalogID)
			}
			return nil, err
		}
		r.cache.Put(req.CatalogID, *resolved)
		id = resolved
	}

	episode := req.Episode
	if episode == 0 {
		episode = 1
	}
	candidates, err := r.streams.ResolveStream(ctx, id.ProviderID, episode, nil)
	if err != nil {
		return nil, err
	}
	return r.finish(ctx, candidates)
}

// resolveLive issues credentials through a per-session rotation controller
// until one authorizes or the pool is exhausted.
func (r *Resolver) resolveLive(ctx context.Context, req models.ResolutionRequest) ([]models.StreamSource, error) {
	if r.live == nil || r.credStore == nil {
		return nil, errors.Wrap(models.ErrNotFound, "live TV is not configured")
	}

	ctrl := livetv.NewController(r.credStore)
	cred, err := ctrl.NextCredential(ctx)
	for {
		if err != nil {
			return nil, err
		}

		source := r.live.StreamFor(req.CatalogID, *cred)
		authErr := r.live.Authorize(ctx, source.URL)
		if authErr == nil {
			ctrl.Retain()
			source.Availability = models.AvailabilityWorking
			return []models.StreamSource{source}, nil
		}
		if !errors.Is(authErr, models.ErrAuth) {
			return nil, authErr
		}

		util.Info("rotating live credential", "channel", req.CatalogID, "attempt", ctrl.AttemptsMade()+1)
		cred, err = ctrl.ReportAuthFailure(ctx)
	}
}

// finish probes the candidates with bounded concurrency, drops dead ones
// and ranks the rest. An empty result after probing is a fully exhausted
// search and surfaces as an error.
func (r *Resolver) finish(ctx context.Context, candidates []models.StreamSource) ([]models.StreamSource, error) {
	if len(candidates) == 0 {
		return nil, errors.Wrap(models.ErrNotFound, "all providers exhausted")
	}

	r.probeAll(ctx, candidates)

	alive := lo.Filter(candidates, func(s models.StreamSource, _ int) bool {
		return s.Availability != models.AvailabilityDown
	})
	if len(alive) == 0 {
		return nil, errors.Wrap(models.ErrNotFound, "no candidate survived probing")
	}

	rank := r.providerRanks()
	sort.SliceStable(alive, func(i, j int) bool {
		ri, rj := rank[alive[i].Provider], rank[alive[j].Provider]
		if ri != rj {
			return ri < rj
		}
		return alive[i].Availability == models.AvailabilityWorking &&
			alive[j].Availability != models.AvailabilityWorking
	})
	return alive, nil
}

// probeAll checks every candidate in place, at most probeConcurrency at a
// time. Probe goroutines exit with the context; none outlives the request.
func (r *Resolver) probeAll(ctx context.Context, candidates []models.StreamSource) {
	sem := make(chan struct{}, probeConcurrency)
	var wg sync.WaitGroup
	for i := range candidates {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(s *models.StreamSource) {
			defer wg.Done()
			defer func() { <-sem }()
			s.Availability = r.prober.Check(ctx, s.URL, s.Referer)
		}(&candidates[i])
	}
	wg.Wait()
}

func (r *Resolver) providerRanks() map[string]int {
	ranks := make(map[string]int, len(r.providers))
	for i, p := range r.providers {
		ranks[p.Name()] = i
	}
	return ranks
}

// UserMessage collapses a pipeline error into the fixed set of messages
// shown to users. Internal detail belongs in logs only.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrPoolExhausted):
		return models.MsgChannelDown
	case errors.Is(err, models.ErrChallengeBlocked):
		return models.ErrChallengeBlocked.Error()
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrDecode):
		return models.MsgNoStreams
	}
	return models.MsgStreamError
}
