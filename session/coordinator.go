// Package session enforces "at most one active client context per identity"
// with a heartbeat-based soft lock. There is no server-side transaction:
// claiming is an unconditional last-writer-wins overwrite of the single
// claim row, and the previous owner discovers the takeover at one of its
// next heartbeat ticks. Correctness is detection-based, not prevention-based.
package session

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// State of one client context. Evicted is terminal: a new claim requires a
// fresh Coordinator.
type State int

const (
	Unclaimed State = iota
	Active
	Evicted
)

func (s State) String() string {
	switch s {
	case Unclaimed:
		return "unclaimed"
	case Active:
		return "active"
	case Evicted:
		return "evicted"
	default:
		return "unknown"
	}
}

// Config tunes the heartbeat loop. Zero values fall back to defaults.
type Config struct {
	// HeartbeatInterval is H: the fixed tick of the refresh loop. Takeover
	// detection latency is bounded by MismatchTolerance * H.
	HeartbeatInterval time.Duration
	// MismatchTolerance is how many consecutive ticks must observe a foreign
	// session id before evicting. The default of 2 absorbs one transient
	// write delay and bounds detection to 2H after a competing claim.
	MismatchTolerance int
	// FailureCeiling is how many consecutive I/O failures are tolerated
	// before the degraded callback fires. Failures never evict (fail-open).
	FailureCeiling int
	BackoffBase    time.Duration
	BackoffMax     time.Duration

	// OnEvicted is invoked exactly once, after the transition to Evicted.
	OnEvicted func()
	// OnDegraded is invoked when consecutive heartbeat failures reach
	// FailureCeiling, and again each time the ceiling is reached after a
	// recovery. The coordinator stays Active.
	OnDegraded func(error)

	Metadata domain.ClientMetadata
}

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultMismatchTolerance = 2
	defaultFailureCeiling    = 5
	defaultBackoffBase       = 200 * time.Millisecond
	defaultBackoffMax        = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.MismatchTolerance <= 0 {
		c.MismatchTolerance = defaultMismatchTolerance
	}
	if c.FailureCeiling <= 0 {
		c.FailureCeiling = defaultFailureCeiling
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = defaultBackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = defaultBackoffMax
	}
	return c
}

// Coordinator owns one claim attempt for one identity. It implements
// contract.Worker: Run drives the heartbeat loop and is meant to be started
// under the supervisor after a successful Claim.
type Coordinator struct {
	log      *slog.Logger
	store    contract.ClaimStore
	identity domain.Identity
	cfg      Config

	mu               sync.Mutex
	state            State
	sessionID        string
	mismatches       int
	failures         int
	degradedReported bool

	// done is closed on eviction or release so Run stops between ticks.
	done     chan struct{}
	doneOnce sync.Once
}

func NewCoordinator(log *slog.Logger, store contract.ClaimStore, identity domain.Identity, cfg Config) *Coordinator {
	return &Coordinator{
		log:      log,
		store:    store,
		identity: identity,
		cfg:      cfg.withDefaults(),
		state:    Unclaimed,
		done:     make(chan struct{}),
	}
}

func (c *Coordinator) Identity() domain.Identity {
	return c.identity
}

// SessionID is empty until Claim succeeds.
func (c *Coordinator) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Claim overwrites the claim row with a fresh session id, unconditionally.
// It does not need to know the previous owner; that owner detects the
// takeover at its own next heartbeat.
func (c *Coordinator) Claim(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Unclaimed {
		state := c.state
		c.mu.Unlock()
		return fmt.Errorf("claim from state %s: %w", state, errors.ErrSessionNotActive)
	}
	sessionID := uuid.NewString()
	c.mu.Unlock()

	claim := domain.SessionClaim{
		Identity:      c.identity,
		SessionID:     sessionID,
		LastHeartbeat: time.Now().UTC(),
		Metadata:      c.cfg.Metadata,
	}
	if err := c.store.WriteSessionClaim(ctx, claim); err != nil {
		return fmt.Errorf("claim write for %s: %w", c.identity, err)
	}

	c.mu.Lock()
	c.sessionID = sessionID
	c.state = Active
	c.mu.Unlock()

	c.log.Info("Session claimed", "identity", c.identity, "session_id", sessionID)
	return nil
}

// Run executes the heartbeat loop: read the stored claim every tick, refresh
// it while we still own it, evict ourselves once a foreign session id has
// been observed on MismatchTolerance consecutive ticks.
//
// Heartbeats are strictly sequential, never two in flight. Run returns nil
// on eviction and on release so the supervisor does not restart a context
// that is terminally done.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.State() != Active {
		return fmt.Errorf("heartbeat for %s: %w", c.identity, errors.ErrSessionNotActive)
	}

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	backoff := NewBackoff(c.cfg.BackoffBase, c.cfg.BackoffMax)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case <-ticker.C:
			evicted, err := c.beat(ctx)
			if evicted {
				return nil
			}
			if err == nil {
				backoff.Reset()
				continue
			}
			// Transient I/O failure: hold off before the next attempt so a
			// struggling backend is not hammered at full tick rate.
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.done:
				return nil
			case <-time.After(backoff.Next()):
			}
		}
	}
}

// beat performs one heartbeat round-trip. Only an observed foreign session
// id moves the mismatch counter; I/O errors are counted separately and can
// only degrade, never evict.
func (c *Coordinator) beat(ctx context.Context) (evicted bool, err error) {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return true, nil
	}
	sessionID := c.sessionID
	c.mu.Unlock()

	stored, err := c.store.ReadSessionClaim(ctx, c.identity)
	if err != nil {
		return false, c.recordFailure(err)
	}

	if stored == nil || stored.SessionID != sessionID {
		return c.recordMismatch(stored), nil
	}

	refreshed := *stored
	refreshed.LastHeartbeat = time.Now().UTC()
	if err := c.store.WriteSessionClaim(ctx, refreshed); err != nil {
		return false, c.recordFailure(err)
	}

	c.mu.Lock()
	c.mismatches = 0
	c.failures = 0
	c.degradedReported = false
	c.mu.Unlock()
	return false, nil
}

func (c *Coordinator) recordFailure(err error) error {
	c.mu.Lock()
	c.failures++
	failures := c.failures
	degrade := failures >= c.cfg.FailureCeiling && !c.degradedReported
	if degrade {
		c.degradedReported = true
	}
	c.mu.Unlock()

	c.log.Warn("Heartbeat round-trip failed", "identity", c.identity, "consecutive", failures, "error", err)
	if degrade && c.cfg.OnDegraded != nil {
		c.cfg.OnDegraded(err)
	}
	return err
}

func (c *Coordinator) recordMismatch(stored *domain.SessionClaim) (evicted bool) {
	c.mu.Lock()
	c.mismatches++
	mismatches := c.mismatches
	evict := mismatches >= c.cfg.MismatchTolerance
	if evict {
		c.state = Evicted
	}
	c.mu.Unlock()

	takenBy := "none"
	if stored != nil {
		takenBy = stored.SessionID
	}
	if !evict {
		c.log.Warn("Foreign session id observed", "identity", c.identity, "stored_session_id", takenBy, "consecutive", mismatches)
		return false
	}

	c.log.Info("Takeover detected, evicting this context", "identity", c.identity, "stored_session_id", takenBy)
	c.doneOnce.Do(func() { close(c.done) })
	if c.cfg.OnEvicted != nil {
		c.cfg.OnEvicted()
	}
	return true
}

// Release performs a clean shutdown: the claim row is cleared only if it
// still belongs to this session id, then the heartbeat loop stops.
// Idempotent; releasing an Evicted or already-released coordinator is a
// no-op.
func (c *Coordinator) Release(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Active {
		c.mu.Unlock()
		return nil
	}
	c.state = Unclaimed
	sessionID := c.sessionID
	c.mu.Unlock()

	c.doneOnce.Do(func() { close(c.done) })

	if err := c.store.ClearSessionClaim(ctx, c.identity, sessionID); err != nil {
		return fmt.Errorf("release claim for %s: %w", c.identity, err)
	}
	c.log.Info("Session released", "identity", c.identity, "session_id", sessionID)
	return nil
}
