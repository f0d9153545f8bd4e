package livetv

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/Gostream/internal/models"
	"github.com/alvarorichard/Gostream/internal/util"
)

// State is the rotation controller's position in its lifecycle.
type State int

const (
	StateIdle State = iota
	StateIssuing
	StateInUse
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateIssuing:
		return "issuing"
	case StateInUse:
		return "in-use"
	case StateExhausted:
		return "exhausted"
	}
	return "unknown"
}

const invalidateTimeout = 5 * time.Second

// Controller issues credentials one at a time for a single playback
// session. An auth-class failure burns the current credential and the next
// one is issued; exhaustion is terminal for the session. Sessions are
// independent: each gets its own Controller, so there is no cross-session
// locking.
type Controller struct {
	mu      sync.Mutex
	store   CredentialStore
	state   State
	attempt *models.AttemptState
	current *models.Credential
}

// NewController starts a fresh session over the given pool.
func NewController(store CredentialStore) *Controller {
	return &Controller{
		store:   store,
		state:   StateIdle,
		attempt: models.NewAttemptState(),
	}
}

// NextCredential issues the next usable credential. Within one session no
// credential is handed out twice unless it was retained and re-requested;
// every failed one stays excluded. Once the pool is exhausted the session
// stays exhausted.
func (c *Controller) NextCredential(ctx context.Context) (*models.Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.issueLocked(ctx)
}

func (c *Controller) issueLocked(ctx context.Context) (*models.Credential, error) {
	if c.state == StateExhausted {
		return nil, errors.Wrap(models.ErrPoolExhausted, "credential pool already exhausted")
	}

	c.state = StateIssuing
	cred, err := c.store.Issue(ctx, c.excludedLocked())
	if err != nil {
		c.state = StateIdle
		return nil, err
	}
	if cred == nil {
		c.state = StateExhausted
		c.current = nil
		return nil, errors.Wrapf(models.ErrPoolExhausted,
			"no credentials left after %d attempts", c.attempt.AttemptsMade)
	}

	c.state = StateInUse
	c.current = cred
	return cred, nil
}

func (c *Controller) excludedLocked() []string {
	ids := make([]string, 0, len(c.attempt.ExcludedCredentialIDs))
	for id := range c.attempt.ExcludedCredentialIDs {
		ids = append(ids, id)
	}
	return ids
}

// ReportAuthFailure signals that the player rejected the current credential
// with an authentication-class status. The credential is invalidated in the
// durable store (fire and forget), excluded for the rest of the session,
// and the next one is issued.
func (c *Controller) ReportAuthFailure(ctx context.Context) (*models.Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		return nil, errors.Wrap(models.ErrAuth, "auth failure reported with no credential in use")
	}

	burned := c.current
	burned.IsInvalid = true
	c.attempt.Exclude(burned.ID)
	c.current = nil

	util.Warn("credential rejected, rotating",
		"credential", burned.ID, "attempt", c.attempt.AttemptsMade)

	// Deletion from the durable store must not block or cancel with the
	// session that triggered it.
	go func(id string) {
		ctx, cancel := context.WithTimeout(context.Background(), invalidateTimeout)
		defer cancel()
		if err := c.store.Invalidate(ctx, id); err != nil {
			util.Debug("credential invalidation failed", "credential", id, "err", err)
		}
	}(burned.ID)

	return c.issueLocked(ctx)
}

// Retain marks the current credential as good and ends the issue cycle.
func (c *Controller) Retain() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateInUse {
		c.state = StateIdle
	}
}

// AttemptsMade reports how many credentials this session has burned, for
// UI progress.
func (c *Controller) AttemptsMade() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempt.AttemptsMade
}

// State reports the controller's current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
