//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"chat-sync/contract"
	"chat-sync/domain"
)

type StoredMessage struct {
	ServerID       string    `json:"server_id"`
	ConversationID string    `json:"conversation_id"`
	Author         string    `json:"author"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
}

// MessageRepository is the server-held message log. It assigns the
// authoritative server id and created_at, and fires the row-level insert
// notification after each committed write.
type MessageRepository struct {
	db       *badger.DB
	log      *slog.Logger
	notifier contract.InsertNotifier
}

// NewMessageRepository wires the repository to its insert notifier (the
// realtime broker). notifier may be nil for offline tooling.
func NewMessageRepository(db *badger.DB, log *slog.Logger, notifier contract.InsertNotifier) MessageRepository {
	return MessageRepository{db: db, log: log, notifier: notifier}
}

// messageKey is "msg:{conversation}:{timestamp_padded}:{server_id}":
//  1. 19-digit zero padding keeps chronological order lexicographic.
//  2. The server id disconnects collisions when two messages land on the
//     same nanosecond.
func messageKey(conversationID domain.ConversationID, at time.Time, serverID string) []byte {
	return []byte(fmt.Sprintf("msg:%s:%019d:%s", conversationID, at.UnixNano(), serverID))
}

func messagePrefix(conversationID domain.ConversationID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversationID))
}

func (m MessageRepository) PersistMessage(_ context.Context, conversationID domain.ConversationID, author domain.AuthorRole, text string) (domain.MessageReceipt, error) {
	row := domain.MessageRow{
		ServerID:       uuid.NewString(),
		ConversationID: conversationID,
		Author:         author,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}
	bytes, err := json.Marshal(fromRow(row))
	if err != nil {
		return domain.MessageReceipt{}, err
	}

	err = m.db.Update(func(txn *badger.Txn) error {
		return txn.Set(messageKey(conversationID, row.CreatedAt, row.ServerID), bytes)
	})
	if err != nil {
		return domain.MessageReceipt{}, fmt.Errorf("persist message in %s: %w", conversationID, err)
	}

	// Notify only after the write committed: subscribers must never see a
	// row that a subsequent fetch could miss.
	if m.notifier != nil {
		m.notifier.NotifyInsert(row)
	}
	return domain.MessageReceipt{ServerID: row.ServerID, CreatedAt: row.CreatedAt}, nil
}

// FetchMessagesSince returns rows strictly newer than since, oldest first.
// A zero since returns the whole conversation. Thanks to the padded
// timestamp in the key, the prefix scan is already chronological.
func (m MessageRepository) FetchMessagesSince(_ context.Context, conversationID domain.ConversationID, since time.Time) ([]domain.MessageRow, error) {
	var stored []StoredMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := messagePrefix(conversationID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		seekKey := prefix
		if !since.IsZero() {
			// Seek just past every key carrying the watermark timestamp
			seekKey = []byte(fmt.Sprintf("msg:%s:%019d;", conversationID, since.UnixNano()))
		}

		for it.Seek(seekKey); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(value []byte) error {
				var msg StoredMessage
				if err := json.Unmarshal(value, &msg); err != nil {
					return err
				}
				stored = append(stored, msg)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch messages in %s since %s: %w", conversationID, since, err)
	}

	return lo.Map(stored, func(msg StoredMessage, _ int) domain.MessageRow {
		return toRow(msg)
	}), nil
}

func fromRow(row domain.MessageRow) StoredMessage {
	return StoredMessage{
		ServerID:       row.ServerID,
		ConversationID: row.ConversationID.String(),
		Author:         string(row.Author),
		Text:           row.Text,
		CreatedAt:      row.CreatedAt,
	}
}

func toRow(msg StoredMessage) domain.MessageRow {
	return domain.MessageRow{
		ServerID:       msg.ServerID,
		ConversationID: domain.ConversationID(msg.ConversationID),
		Author:         domain.AuthorRole(msg.Author),
		Text:           msg.Text,
		CreatedAt:      msg.CreatedAt,
	}
}
