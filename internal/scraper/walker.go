// Package scraper implements the chain walker that follows nested embed
// pages until a terminal stream URL is recovered, plus the hop extractors
// and the concrete provider chains built on top of it.
package scraper

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0"

	// DefaultMaxHops bounds runaway chains; real chains are 2-4 hops.
	DefaultMaxHops = 6

	// Terminal URLs shorter than this are artifacts of malformed decoding.
	minTerminalLen = 15

	hopDelayFloor  = 100 * time.Millisecond
	hopDelayJitter = 200 * time.Millisecond
)

// HopExtractor inspects a fetched body for either a next hop or a terminal
// stream URL. Exactly one of the returns is set on success.
type HopExtractor interface {
	Name() string
	Extract(body string, current models.Hop) (next *models.Hop, terminal string, err error)
}

// ChallengeSolver carries a pre-obtained solution token for the provider's
// anti-automation challenge. The walker only ever submits the token to the
// verification endpoint; it never executes remote script.
type ChallengeSolver struct {
	Token     string
	VerifyURL string
}

// Walker fetches embed chains hop by hop.
type Walker struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
	solver    *ChallengeSolver

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewWalker returns a chain walker using the shared pooled client and a
// provider-friendly request rate.
func NewWalker() *Walker {
	return &Walker{
		client:    util.GetSharedClient(),
		userAgent: DefaultUserAgent,
		limiter:   rate.NewLimiter(rate.Every(200*time.Millisecond), 2),
		sleep:     sleepCtx,
	}
}

// NewWalkerWithClient returns a walker on an explicit HTTP client, used by
// tests and by providers that need special transports.
func NewWalkerWithClient(client *http.Client) *Walker {
	w := NewWalker()
	w.client = client
	return w
}

// SetChallengeSolver configures the pre-obtained challenge token.
func (w *Walker) SetChallengeSolver(s *ChallengeSolver) { w.solver = s }

// Walk follows the chain from start until an extractor yields a valid
// terminal URL, the chain is exhausted, or maxHops fetches were made. The
// returned trace records every hop fetched, in order.
func (w *Walker) Walk(ctx context.Context, start models.Hop, maxHops int, extractors []HopExtractor) (string, []models.Hop, error) {
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	hop := start
	trace := make([]models.Hop, 0, maxHops)

	for i := 0; i < maxHops; i++ {
		if i > 0 {
			w.interHopDelay(ctx)
		}
		if err := ctx.Err(); err != nil {
			return "", trace, err
		}

		trace = append(trace, hop)
		body, err := w.fetchHop(ctx, hop)
		if err != nil {
			return "", trace, err
		}

		next, terminal, err := w.extract(body, hop, extractors)
		if err != nil {
			return "", trace, err
		}
		if terminal != "" {
			return terminal, trace, nil
		}
		if next == nil {
			return "", trace, errors.Wrapf(models.ErrDecode, "chain exhausted at hop %d", i+1)
		}
		hop = *next
	}

	return "", trace, errors.Wrapf(models.ErrDecode, "no terminal URL within %d hops", maxHops)
}

func (w *Walker) extract(body string, hop models.Hop, extractors []HopExtractor) (*models.Hop, string, error) {
	for _, ex := range extractors {
		next, terminal, err := ex.Extract(body, hop)
		if err != nil {
			util.Debug("extractor failed", "extractor", ex.Name(), "err", err)
			continue
		}
		if terminal != "" {
			if !ValidTerminal(terminal) {
				util.Debug("discarding malformed terminal", "extractor", ex.Name(), "url", terminal)
				continue
			}
			return nil, terminal, nil
		}
		if next != nil {
			return next, "", nil
		}
	}
	return nil, "", nil
}

func (w *Walker) fetchHop(ctx context.Context, hop models.Hop) (string, error) {
	body, status, err := w.get(ctx, hop)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", models.NewStatusError(hop.URL, status)
	}

	if IsChallengeBody(body) {
		if w.solver == nil || w.solver.Token == "" {
			return "", errors.Wrapf(models.ErrChallengeBlocked, "challenge at %s", hop.URL)
		}
		if err := w.submitChallengeToken(ctx, hop); err != nil {
			return "", err
		}
		body, status, err = w.get(ctx, hop)
		if err != nil {
			return "", err
		}
		if status != http.StatusOK || IsChallengeBody(body) {
			return "", errors.Wrapf(models.ErrChallengeBlocked, "challenge persisted at %s", hop.URL)
		}
	}
	return body, nil
}

func (w *Walker) get(ctx context.Context, hop models.Hop) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, hop.URL, nil)
	if err != nil {
		return "", 0, models.NewFetchError(hop.URL, err)
	}
	w.decorateRequest(req, hop.Referer)

	resp, err := w.client.Do(req)
	if err != nil {
		return "", 0, models.NewFetchError(hop.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", 0, models.NewFetchError(hop.URL, err)
	}
	return string(body), resp.StatusCode, nil
}

func (w *Walker) submitChallengeToken(ctx context.Context, hop models.Hop) error {
	form := url.Values{"token": {w.solver.Token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.solver.VerifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return models.NewFetchError(w.solver.VerifyURL, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w.decorateRequest(req, hop.URL)

	resp, err := w.client.Do(req)
	if err != nil {
		return models.NewFetchError(w.solver.VerifyURL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errors.Wrapf(models.ErrChallengeBlocked, "verification endpoint returned %d", resp.StatusCode)
	}
	return nil
}

func (w *Walker) decorateRequest(req *http.Request, referer string) {
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if referer != "" {
		req.Header.Set("Referer", referer)
		if origin := originOf(referer); origin != "" {
			req.Header.Set("Origin", origin)
		}
	}
}

func (w *Walker) interHopDelay(ctx context.Context) {
	if w.limiter != nil {
		_ = w.limiter.Wait(ctx)
	}
	w.sleep(ctx, hopDelayFloor+time.Duration(rand.Int63n(int64(hopDelayJitter))))
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// ValidTerminal rejects empty-host artifacts of malformed decoding and
// implausibly short URLs. Host checking is deliberately lenient: decoded
// playlists may still carry a server placeholder where the host goes.
func ValidTerminal(raw string) bool {
	if len(raw) < minTerminalLen {
		return false
	}
	rest, ok := strings.CutPrefix(raw, "https://")
	if !ok {
		rest, ok = strings.CutPrefix(raw, "http://")
	}
	if !ok {
		return false
	}
	host, _, _ := strings.Cut(rest, "/")
	return host != "" && !strings.ContainsAny(host, " \t")
}

func originOf(referer string) string {
	u, err := url.Parse(referer)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
