package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConversationForIdentity_Is_Deterministic(t *testing.T) {
	req := require.New(t)

	first := ConversationForIdentity("+15551234567")
	second := ConversationForIdentity("+15551234567")
	other := ConversationForIdentity("+15557654321")

	// Repeated logins reattach to the same conversation
	req.Equal(first.ID, second.ID)
	req.Equal(Identity("+15551234567"), first.Owner)
	req.NotEqual(first.ID, other.ID)
}

func TestSessionClaim_IsStale(t *testing.T) {
	req := require.New(t)
	now := time.Now().UTC()
	claim := SessionClaim{LastHeartbeat: now.Add(-3 * time.Second)}

	req.True(claim.IsStale(now, 2*time.Second))
	req.False(claim.IsStale(now, 5*time.Second))
}
