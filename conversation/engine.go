// Package conversation reconciles three concurrent sources into one ordered
// message list: locally-initiated sends, their persistence confirmations,
// and realtime push deliveries (which include the client's own echoed
// sends). The persistence confirmation and the realtime echo arrive in no
// particular relative order; deduplication by server id makes both orders
// converge to the same list.
package conversation

import (
	"chat-sync/contract"
	"chat-sync/domain"
	"chat-sync/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Engine owns the in-memory list for one open conversation view. All state
// mutation is serialized behind its mutex; callbacks (ticker, persistence
// goroutines, broker fan-out) may land in any order.
type Engine struct {
	log            *slog.Logger
	store          contract.MessageStore
	subscriber     contract.Subscriber
	conversationID domain.ConversationID
	author         domain.AuthorRole

	mu          sync.Mutex
	list        *messageList
	onChange    func([]domain.Message)
	unsubscribe func()
	attached    bool
	closed      bool
}

func NewEngine(log *slog.Logger, store contract.MessageStore, subscriber contract.Subscriber, conversationID domain.ConversationID) *Engine {
	return &Engine{
		log:            log,
		store:          store,
		subscriber:     subscriber,
		conversationID: conversationID,
		author:         domain.RoleUser,
		list:           newMessageList(),
	}
}

// OnListChanged registers the callback invoked with a fresh snapshot after
// every list mutation. Must be set before Attach to observe early inserts.
func (e *Engine) OnListChanged(fn func([]domain.Message)) {
	e.mu.Lock()
	e.onChange = fn
	e.mu.Unlock()
}

// Attach acquires the realtime subscription for this conversation. The
// subscription is scoped to this engine and released by Close.
func (e *Engine) Attach(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.ErrConversationClosed
	}
	if e.attached {
		e.mu.Unlock()
		return nil
	}
	e.attached = true
	e.mu.Unlock()

	unsubscribe, err := e.subscriber.Subscribe(e.conversationID, e.handleInsert)
	if err != nil {
		e.mu.Lock()
		e.attached = false
		e.mu.Unlock()
		return fmt.Errorf("subscribe conversation %s: %w", e.conversationID, err)
	}

	e.mu.Lock()
	if e.closed {
		// Close raced with Attach: release immediately, never leak a channel.
		e.mu.Unlock()
		unsubscribe()
		return errors.ErrConversationClosed
	}
	e.unsubscribe = unsubscribe
	e.mu.Unlock()

	e.log.Debug("Conversation attached", "conversation_id", e.conversationID)
	return nil
}

// Send appends a Pending entry immediately (optimistic, UI-visible with no
// wait) and persists asynchronously. The returned local id identifies the
// entry until confirmation and can be used for Retry after a failure.
func (e *Engine) Send(ctx context.Context, text string) (string, error) {
	if err := validateSend(text); err != nil {
		return "", err
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", errors.ErrConversationClosed
	}
	localID := uuid.NewString()
	e.list.appendPending(domain.Message{
		LocalID:        localID,
		ConversationID: e.conversationID,
		Author:         e.author,
		Text:           text,
		State:          domain.Pending,
	})
	notify, snapshot := e.changeLocked()
	e.mu.Unlock()
	emit(notify, snapshot)

	go e.persist(ctx, localID, text)
	return localID, nil
}

// Retry re-attempts persistence for a Failed entry. Failed sends are never
// retried automatically; a silent retry could duplicate a send whose first
// attempt actually reached the server.
func (e *Engine) Retry(ctx context.Context, localID string) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.ErrConversationClosed
	}
	msg, ok := e.list.resetFailed(localID)
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("no failed entry with local id %s", localID)
	}
	notify, snapshot := e.changeLocked()
	e.mu.Unlock()
	emit(notify, snapshot)

	go e.persist(ctx, localID, msg.Text)
	return nil
}

func (e *Engine) persist(ctx context.Context, localID, text string) {
	receipt, err := e.store.PersistMessage(ctx, e.conversationID, e.author, text)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	if err != nil {
		e.log.Error("Persistence failed, entry marked for manual retry", "conversation_id", e.conversationID, "local_id", localID, "error", err)
		e.list.markFailed(localID)
	} else {
		e.list.promote(localID, receipt)
	}
	notify, snapshot := e.changeLocked()
	e.mu.Unlock()
	emit(notify, snapshot)
}

// handleInsert is the realtime path. Duplicates of anything already
// confirmed (or already promoted via the send path) are dropped.
func (e *Engine) handleInsert(row domain.MessageRow) {
	e.mu.Lock()
	if e.closed || !e.list.ingest(row) {
		e.mu.Unlock()
		return
	}
	notify, snapshot := e.changeLocked()
	e.mu.Unlock()
	emit(notify, snapshot)
}

// Resync fetches rows created after the newest confirmed entry and feeds
// them through the same dedup path as realtime deliveries. Safe to call
// redundantly: replayed rows whose server id is already present are dropped,
// so reconnection handlers may fire it on every reconnect.
func (e *Engine) Resync(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.ErrConversationClosed
	}
	since := e.list.latestConfirmedAt()
	e.mu.Unlock()

	rows, err := e.store.FetchMessagesSince(ctx, e.conversationID, since)
	if err != nil {
		return fmt.Errorf("fetch messages since %s: %w", since, err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return errors.ErrConversationClosed
	}
	changed := false
	for _, row := range rows {
		if e.list.ingest(row) {
			changed = true
		}
	}
	if !changed {
		e.mu.Unlock()
		return nil
	}
	notify, snapshot := e.changeLocked()
	e.mu.Unlock()
	emit(notify, snapshot)
	return nil
}

// Snapshot returns an independent copy of the rendered list.
func (e *Engine) Snapshot() []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.list.snapshot()
}

// Close releases the realtime subscription and stops delivering snapshots.
// Idempotent; must be invoked on every view-destruction path.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	unsubscribe := e.unsubscribe
	e.unsubscribe = nil
	e.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	e.log.Debug("Conversation closed", "conversation_id", e.conversationID)
}

// changeLocked captures the callback and a snapshot under the lock; the
// caller emits after unlocking so the callback can safely re-enter the
// engine (e.g. call Snapshot).
func (e *Engine) changeLocked() (func([]domain.Message), []domain.Message) {
	if e.onChange == nil {
		return nil, nil
	}
	return e.onChange, e.list.snapshot()
}

func emit(notify func([]domain.Message), snapshot []domain.Message) {
	if notify != nil {
		notify(snapshot)
	}
}
