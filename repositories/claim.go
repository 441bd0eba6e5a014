//go:generate go run go.uber.org/mock/mockgen -source=claim.go -destination=../mocks/mock_claim_repository.go -package=mocks
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

type StoredClaim struct {
	Identity      string    `json:"identity"`
	SessionID     string    `json:"session_id"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
	Hostname      string    `json:"hostname,omitempty"`
	PID           int32     `json:"pid,omitempty"`
	Process       string    `json:"process,omitempty"`
}

// ClaimRepository holds the single claim row per identity. Writes are
// unconditional whole-row overwrites; there is no merge and no pessimistic
// lock, ownership disputes are settled by the coordinators' heartbeats.
type ClaimRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewClaimRepository(db *badger.DB, log *slog.Logger) ClaimRepository {
	return ClaimRepository{db: db, log: log}
}

func claimKey(identity domain.Identity) []byte {
	return []byte(fmt.Sprintf("claim:%s", identity))
}

func (r ClaimRepository) WriteSessionClaim(_ context.Context, claim domain.SessionClaim) error {
	stored := StoredClaim{
		Identity:      claim.Identity.String(),
		SessionID:     claim.SessionID,
		LastHeartbeat: claim.LastHeartbeat,
		Hostname:      claim.Metadata.Hostname,
		PID:           claim.Metadata.PID,
		Process:       claim.Metadata.Process,
	}
	bytes, err := json.Marshal(stored)
	if err != nil {
		return err
	}
	err = r.db.Update(func(txn *badger.Txn) error {
		return txn.Set(claimKey(claim.Identity), bytes)
	})
	if err != nil {
		return fmt.Errorf("write claim for %s: %w", claim.Identity, err)
	}
	return nil
}

// ReadSessionClaim returns nil without error when no claim row exists.
func (r ClaimRepository) ReadSessionClaim(_ context.Context, identity domain.Identity) (*domain.SessionClaim, error) {
	var stored StoredClaim
	found := false
	err := r.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(claimKey(identity))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &stored)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("read claim for %s: %w", identity, err)
	}
	if !found {
		return nil, nil
	}
	return &domain.SessionClaim{
		Identity:      domain.Identity(stored.Identity),
		SessionID:     stored.SessionID,
		LastHeartbeat: stored.LastHeartbeat,
		Metadata: domain.ClientMetadata{
			Hostname: stored.Hostname,
			PID:      stored.PID,
			Process:  stored.Process,
		},
	}, nil
}

// ClearSessionClaim deletes the row only while it still carries sessionID.
// A context releasing after a takeover must not wipe the new owner's claim.
func (r ClaimRepository) ClearSessionClaim(_ context.Context, identity domain.Identity, sessionID string) error {
	err := r.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(claimKey(identity))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		var stored StoredClaim
		if err := item.Value(func(value []byte) error {
			return json.Unmarshal(value, &stored)
		}); err != nil {
			return err
		}
		if stored.SessionID != sessionID {
			r.log.Debug("Claim already owned elsewhere, clear skipped", "identity", identity)
			return nil
		}
		return txn.Delete(claimKey(identity))
	})
	if err != nil {
		return fmt.Errorf("clear claim for %s: %w", identity, err)
	}
	return nil
}
