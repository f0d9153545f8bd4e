// Package models contains the data structures shared across the stream
// resolution pipeline.
package models

// MediaKind represents the kind of content a resolution targets.
type MediaKind string

const (
	KindMovie MediaKind = "movie"
	KindTV    MediaKind = "tv"
	KindAnime MediaKind = "anime"
	KindLive  MediaKind = "live"
)

// ExternalIDs carries alternate identifiers used by the anime path.
type ExternalIDs struct {
	MalID int
	Title string
}

// ResolutionRequest is the immutable input to a resolution attempt.
type ResolutionRequest struct {
	CatalogID   string
	Kind        MediaKind
	Season      int
	Episode     int
	ExternalIDs *ExternalIDs
}

// PayloadKind hints at what a hop's body is expected to contain. Detection
// stays sniffing-based; the hint is advisory only.
type PayloadKind string

const (
	PayloadIframe  PayloadKind = "iframe"
	PayloadHidden  PayloadKind = "hidden"
	PayloadUnknown PayloadKind = ""
)

// Hop represents one fetch in an embed chain. Chains are ordered sequences,
// never graphs; the walker caps the hop count to bound runaway chains.
type Hop struct {
	URL          string
	Referer      string
	ExpectedKind PayloadKind
}

// Availability classifies a candidate stream URL.
type Availability string

const (
	// AvailabilityWorking is only set after the prober confirmed the URL.
	AvailabilityWorking Availability = "working"
	AvailabilityDown    Availability = "down"
	// AvailabilityUnknown means probing was skipped, never that it passed.
	AvailabilityUnknown Availability = "unknown"
)

// StreamSource is the externally visible result unit of a resolution.
type StreamSource struct {
	URL              string
	MediaFormat      string // "hls"
	Referer          string
	RequiresProxying bool
	SkipOriginHeader bool
	Availability     Availability
	Language         string
	QualityLabel     string
	Provider         string
}

// Credential is one upstream live-TV account, owned exclusively by the
// account rotation controller.
type Credential struct {
	ID           string
	AuthMaterial string
	IsInvalid    bool
}

// AttemptState tracks one user-facing live-TV play session. It is discarded
// when the session ends or succeeds.
type AttemptState struct {
	ExcludedCredentialIDs map[string]struct{}
	AttemptsMade          int
}

// NewAttemptState returns an empty per-session attempt state.
func NewAttemptState() *AttemptState {
	return &AttemptState{ExcludedCredentialIDs: make(map[string]struct{})}
}

// Exclude records a failed credential for the remainder of the session.
func (s *AttemptState) Exclude(id string) {
	s.ExcludedCredentialIDs[id] = struct{}{}
	s.AttemptsMade++
}
