package models

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel errors for the pipeline taxonomy. Hop/server/provider level
// failures are converted into try-next-candidate signals inside the
// pipeline; only a fully exhausted search surfaces to the caller.
var (
	// ErrFetch covers network failures, timeouts and non-2xx responses.
	// Transient: eligible for hop-level or account-level retry.
	ErrFetch = errors.New("fetch failed")

	// ErrDecode means no codec matched a payload. Terminal for that hop;
	// the caller moves on to the next extractor or provider.
	ErrDecode = errors.New("no codec matched payload")

	// ErrNotFound is an expected negative result (e.g. title not in the
	// anime database). Logged at info level, never error level.
	ErrNotFound = errors.New("not found")

	// ErrChallengeBlocked means an anti-automation challenge was hit with
	// no solver configured. Terminal for that provider.
	ErrChallengeBlocked = errors.New("challenge blocked: requires bypass configuration")

	// ErrAuth means the upstream rejected a credential. Triggers account
	// rotation, not a user-visible failure.
	ErrAuth = errors.New("upstream rejected credential")

	// ErrPoolExhausted is terminal: every credential in the pool failed.
	ErrPoolExhausted = errors.New("credential pool exhausted")
)

// User-visible failure messages. Internal taxonomy detail is logged, not
// shown.
const (
	MsgNoStreams   = "no streams available"
	MsgChannelDown = "channel unavailable"
	MsgStreamError = "stream error"
)

// FetchError wraps a transport-level failure with the URL that caused it.
type FetchError struct {
	URL    string
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return ErrFetch
}

func (e *FetchError) Is(target error) bool { return target == ErrFetch }

// NewFetchError builds a FetchError from a transport error.
func NewFetchError(url string, err error) *FetchError {
	return &FetchError{URL: url, Err: err}
}

// NewStatusError builds a FetchError from a non-2xx response.
func NewStatusError(url string, status int) *FetchError {
	return &FetchError{URL: url, Status: status}
}

// IsAuthStatus reports whether an HTTP status signals an authentication
// class failure from a live-TV upstream.
func IsAuthStatus(status int) bool {
	switch status {
	case 403, 456, 458:
		return true
	}
	return false
}
