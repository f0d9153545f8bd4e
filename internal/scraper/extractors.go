package scraper

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"

	"github.com/alvarorichard/Gostream/internal/codec"
	"github.com/alvarorichard/Gostream/internal/models"
)

// IframeExtractor finds a nested-iframe reference matching a
// provider-specific URL shape and emits it as the next hop.
type IframeExtractor struct {
	// Pattern matches the iframe src (or inline frame reference) in the
	// body; the first capture group is the reference.
	Pattern *regexp.Regexp
	// Base resolves scheme-relative or path-only references.
	Base string
	// Kind is the expected payload of the hop this extractor produces.
	Kind models.PayloadKind
	name string
}

// NewIframeExtractor builds an iframe extractor with a readable name.
func NewIframeExtractor(name string, pattern *regexp.Regexp, base string, kind models.PayloadKind) *IframeExtractor {
	return &IframeExtractor{Pattern: pattern, Base: base, Kind: kind, name: name}
}

func (e *IframeExtractor) Name() string { return e.name }

func (e *IframeExtractor) Extract(body string, current models.Hop) (*models.Hop, string, error) {
	m := e.Pattern.FindStringSubmatch(body)
	if m == nil || len(m) < 2 {
		return nil, "", errors.Wrap(models.ErrNotFound, "no iframe reference in body")
	}

	ref := strings.TrimSpace(m[1])
	next := resolveRef(e.Base, ref)
	if next == "" {
		return nil, "", errors.Wrapf(models.ErrDecode, "unresolvable iframe reference %q", ref)
	}

	return &models.Hop{URL: next, Referer: current.URL, ExpectedKind: e.Kind}, "", nil
}

// HiddenPayloadExtractor locates an inline hidden payload block and decodes
// it through the codec registry.
type HiddenPayloadExtractor struct {
	Codecs *codec.Registry
	// Selector narrows the search to hidden blocks of the provider's
	// shape; empty means "any display:none div with a non-trivial body".
	Selector string
	name     string
}

// NewHiddenPayloadExtractor pairs the codec registry with a hidden-block
// selector.
func NewHiddenPayloadExtractor(name, selector string, codecs *codec.Registry) *HiddenPayloadExtractor {
	return &HiddenPayloadExtractor{Codecs: codecs, Selector: selector, name: name}
}

func (e *HiddenPayloadExtractor) Name() string { return e.name }

func (e *HiddenPayloadExtractor) Extract(body string, current models.Hop) (*models.Hop, string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return nil, "", errors.Wrap(err, "failed to parse hop body")
	}

	selector := e.Selector
	if selector == "" {
		selector = `div[style*="display:none"], div[style*="display: none"]`
	}

	var terminal string
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := strings.TrimSpace(s.Text())
		if len(raw) < 8 {
			return true
		}
		plaintext, _, ok := e.Codecs.DetectAndDecode(raw)
		if !ok {
			return true
		}
		if u := firstStreamURL(plaintext); u != "" {
			terminal = u
			return false
		}
		return true
	})

	if terminal == "" {
		return nil, "", errors.Wrap(models.ErrDecode, "no hidden payload decoded")
	}
	return nil, terminal, nil
}

var streamURLRe = regexp.MustCompile(`https?://[^\s"'<>\\]+?\.(?:m3u8|mp4)[^\s"'<>\\]*`)

// firstStreamURL pulls the first playable URL out of decoded plaintext;
// decoded payloads often wrap the URL in script fragments.
func firstStreamURL(s string) string {
	return streamURLRe.FindString(s)
}

func resolveRef(base, ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	if strings.HasPrefix(ref, "//") {
		return "https:" + ref
	}
	b, err := url.Parse(base)
	if err != nil || b.Host == "" {
		return ""
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	return b.ResolveReference(r).String()
}
