//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-sync/domain"
	"context"
	"reflect"
	"time"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// IdentityStore is the backend surface for identity records.
// UpsertIdentityRecord is conflict-resolved on the identity itself, so
// repeated logins from the same normalized number never create a second row.
type IdentityStore interface {
	UpsertIdentityRecord(ctx context.Context, identity domain.Identity) (domain.IdentityRecord, error)
}

// ClaimStore is the backend surface for the per-identity session claim row.
// Write is an unconditional overwrite (last-writer-wins); Clear removes the
// row only while it still carries the given session id.
type ClaimStore interface {
	WriteSessionClaim(ctx context.Context, claim domain.SessionClaim) error
	ReadSessionClaim(ctx context.Context, identity domain.Identity) (*domain.SessionClaim, error)
	ClearSessionClaim(ctx context.Context, identity domain.Identity, sessionID string) error
}

// MessageStore is the backend surface for the server-held message log.
// PersistMessage assigns the authoritative server id and timestamp.
// FetchMessagesSince returns rows strictly newer than since, oldest first.
type MessageStore interface {
	PersistMessage(ctx context.Context, conversationID domain.ConversationID, author domain.AuthorRole, text string) (domain.MessageReceipt, error)
	FetchMessagesSince(ctx context.Context, conversationID domain.ConversationID, since time.Time) ([]domain.MessageRow, error)
}

// Subscriber delivers every insert into a conversation, including the
// caller's own echoed sends. The returned func releases the subscription and
// must be safe to call more than once.
type Subscriber interface {
	Subscribe(conversationID domain.ConversationID, onInsert func(domain.MessageRow)) (func(), error)
}

// InsertNotifier is the row-level notification hook the message store fires
// after a write commits. The realtime broker implements it.
type InsertNotifier interface {
	NotifyInsert(row domain.MessageRow)
}
