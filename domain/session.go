package domain

import "time"

// SessionClaim is the single row shared across client contexts for one
// identity. It is a soft lock: mutation is unconditional overwrite, safety
// comes from each owner detecting a foreign SessionID at its next heartbeat.
type SessionClaim struct {
	Identity      Identity
	SessionID     string
	LastHeartbeat time.Time
	Metadata      ClientMetadata
}

// ClientMetadata describes the context holding a claim. Collected once at
// claim time, diagnostic only.
type ClientMetadata struct {
	Hostname string
	PID      int32
	Process  string
}

// IsStale reports whether the claim has not been refreshed within threshold.
// A stale claim is eligible for replacement but replacement never requires
// staleness: claiming is last-writer-wins.
func (c SessionClaim) IsStale(now time.Time, threshold time.Duration) bool {
	return now.Sub(c.LastHeartbeat) > threshold
}
