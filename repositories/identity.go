//go:generate go run go.uber.org/mock/mockgen -source=identity.go -destination=../mocks/mock_identity_repository.go -package=mocks
// Package repositories persists the sync core's rows in BadgerDB. Keys are
// plain-text prefixes ("identity:", "claim:", "msg:") so the inspection tool
// can scan each table with a prefix iterator.
package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"

	"chat-sync/domain"
)

type StoredIdentity struct {
	Identity  string    `json:"identity"`
	CreatedAt time.Time `json:"created_at"`
	LastLogin time.Time `json:"last_login"`
}

type IdentityRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewIdentityRepository(db *badger.DB, log *slog.Logger) IdentityRepository {
	return IdentityRepository{db: db, log: log}
}

func identityKey(identity domain.Identity) []byte {
	return []byte(fmt.Sprintf("identity:%s", identity))
}

// UpsertIdentityRecord is conflict-resolved on the identity itself: a repeat
// login refreshes LastLogin but keeps the original CreatedAt, so the same
// normalized number never grows a second record.
func (r IdentityRepository) UpsertIdentityRecord(_ context.Context, identity domain.Identity) (domain.IdentityRecord, error) {
	now := time.Now().UTC()
	stored := StoredIdentity{Identity: identity.String(), CreatedAt: now, LastLogin: now}

	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(identityKey(identity))
		switch err {
		case nil:
			if err := item.Value(func(value []byte) error {
				return json.Unmarshal(value, &stored)
			}); err != nil {
				return err
			}
			stored.LastLogin = now
		case badger.ErrKeyNotFound:
			r.log.Info("First login for identity", "identity", identity)
		default:
			return err
		}

		bytes, err := json.Marshal(stored)
		if err != nil {
			return err
		}
		return txn.Set(identityKey(identity), bytes)
	})
	if err != nil {
		return domain.IdentityRecord{}, fmt.Errorf("upsert identity %s: %w", identity, err)
	}

	return domain.IdentityRecord{
		Identity:  identity,
		CreatedAt: stored.CreatedAt,
		LastLogin: stored.LastLogin,
	}, nil
}
