// Package realtime fans out message-insert notifications to live
// conversation views. It provides best-effort, in-order, in-process
// delivery with no durability or retries; missed events are recovered by
// the engines' resync path, never by the broker.
package realtime

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"chat-sync/domain"
)

type Broker struct {
	mu   sync.RWMutex
	log  *slog.Logger
	subs map[domain.ConversationID]map[string]func(domain.MessageRow)
}

func NewBroker(log *slog.Logger) *Broker {
	return &Broker{
		log:  log,
		subs: make(map[domain.ConversationID]map[string]func(domain.MessageRow)),
	}
}

// Subscribe registers an insert callback for one conversation and returns
// its release func. The release is idempotent: conversation teardown paths
// may call it more than once.
func (b *Broker) Subscribe(conversationID domain.ConversationID, onInsert func(domain.MessageRow)) (func(), error) {
	id := uuid.NewString()

	b.mu.Lock()
	if _, ok := b.subs[conversationID]; !ok {
		b.subs[conversationID] = make(map[string]func(domain.MessageRow))
	}
	b.subs[conversationID][id] = onInsert
	b.mu.Unlock()

	b.log.Debug("Subscription opened", "conversation_id", conversationID, "subscription_id", id)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			if sinks, ok := b.subs[conversationID]; ok {
				delete(sinks, id)
				// No empty sets left behind, the map would grow forever
				if len(sinks) == 0 {
					delete(b.subs, conversationID)
				}
			}
			b.mu.Unlock()
			b.log.Debug("Subscription released", "conversation_id", conversationID, "subscription_id", id)
		})
	}, nil
}

// NotifyInsert delivers a persisted row to every live subscription of its
// conversation. Called by the message store after the write commits.
func (b *Broker) NotifyInsert(row domain.MessageRow) {
	b.mu.RLock()
	sinks := make([]func(domain.MessageRow), 0, len(b.subs[row.ConversationID]))
	for _, sink := range b.subs[row.ConversationID] {
		sinks = append(sinks, sink)
	}
	b.mu.RUnlock()

	for _, sink := range sinks {
		sink(row)
	}
}

// SubscriberCount reports the live subscriptions for a conversation.
func (b *Broker) SubscriberCount(conversationID domain.ConversationID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}
