// Package client is the surface the UI layer consumes: resolve an identity,
// claim it, open its conversation. It wires the coordinator's heartbeat
// under the supervisor and guarantees that an evicted context tears down
// its conversation views before the caller's eviction callback runs.
package client

import (
	"chat-sync/contract"
	"chat-sync/conversation"
	"chat-sync/domain"
	"chat-sync/errors"
	"chat-sync/identity"
	"chat-sync/runtime/workers"
	"chat-sync/session"
	"context"
	"fmt"
	"log/slog"
	"sync"
)

type Client struct {
	log        *slog.Logger
	resolver   *identity.Resolver
	identities contract.IdentityStore
	claims     contract.ClaimStore
	messages   contract.MessageStore
	subscriber contract.Subscriber
	heartbeat  session.Config
}

func New(
	log *slog.Logger,
	resolver *identity.Resolver,
	identities contract.IdentityStore,
	claims contract.ClaimStore,
	messages contract.MessageStore,
	subscriber contract.Subscriber,
	heartbeat session.Config,
) *Client {
	return &Client{
		log:        log,
		resolver:   resolver,
		identities: identities,
		claims:     claims,
		messages:   messages,
		subscriber: subscriber,
		heartbeat:  heartbeat,
	}
}

// ResolveIdentity normalizes raw user input. On rejection the caller must
// re-prompt; there is deliberately no fallback key.
func (c *Client) ResolveIdentity(raw string) (domain.Identity, error) {
	return c.resolver.Normalize(raw)
}

// SessionHandle is one claimed context: it owns the heartbeat loop and every
// conversation engine opened through it.
type SessionHandle struct {
	client      *Client
	coordinator *session.Coordinator
	supervisor  *workers.Supervisor
	cancel      context.CancelFunc

	mu      sync.Mutex
	engines []*conversation.Engine
}

// ClaimSession resolves the identity record, claims the identity and starts
// heartbeating under the supervisor. onEvicted runs after every engine
// opened on this handle has been closed.
func (c *Client) ClaimSession(ctx context.Context, id domain.Identity, onEvicted func()) (*SessionHandle, error) {
	if _, err := c.identities.UpsertIdentityRecord(ctx, id); err != nil {
		return nil, fmt.Errorf("identity record for %s: %w", id, err)
	}

	handle := &SessionHandle{client: c}
	cfg := c.heartbeat
	cfg.Metadata = session.CollectClientMetadata()
	cfg.OnEvicted = func() {
		handle.closeEngines()
		if onEvicted != nil {
			onEvicted()
		}
	}

	coordinator := session.NewCoordinator(c.log, c.claims, id, cfg)
	if err := coordinator.Claim(ctx); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	supervisor := workers.NewSupervisor(c.log, 0)
	supervisor.Add(coordinator)
	go supervisor.Run(runCtx)

	handle.coordinator = coordinator
	handle.supervisor = supervisor
	handle.cancel = cancel
	return handle, nil
}

// OpenConversation attaches a sync engine to the conversation's push
// channel. Refused unless this handle is still the active context.
func (h *SessionHandle) OpenConversation(ctx context.Context, conversationID domain.ConversationID) (*conversation.Engine, error) {
	switch h.coordinator.State() {
	case session.Active:
	case session.Evicted:
		return nil, fmt.Errorf("open conversation %s: %w", conversationID, errors.ErrSessionEvicted)
	default:
		return nil, fmt.Errorf("open conversation %s: %w", conversationID, errors.ErrSessionNotActive)
	}

	engine := conversation.NewEngine(h.client.log, h.client.messages, h.client.subscriber, conversationID)
	if err := engine.Attach(ctx); err != nil {
		return nil, err
	}

	h.mu.Lock()
	h.engines = append(h.engines, engine)
	h.mu.Unlock()
	return engine, nil
}

// State exposes the underlying coordinator state.
func (h *SessionHandle) State() session.State {
	return h.coordinator.State()
}

// Release cleanly shuts the context down: conversations first, then the
// claim row, then the heartbeat loop. Idempotent; also safe after eviction.
func (h *SessionHandle) Release(ctx context.Context) error {
	h.closeEngines()
	err := h.coordinator.Release(ctx)
	h.supervisor.Stop()
	h.cancel()
	return err
}

func (h *SessionHandle) closeEngines() {
	h.mu.Lock()
	engines := h.engines
	h.engines = nil
	h.mu.Unlock()

	for _, engine := range engines {
		engine.Close()
	}
}
