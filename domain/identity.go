// Package domain contains core concepts of the sync core.
// This file defines the canonical Identity and its stored record.
package domain

import "time"

// Identity is the canonical token for one human: "+" followed by 1 to 15
// digits (E.164 style). It is produced only by the identity resolver and is
// never mutated afterwards.
type Identity string

func (i Identity) String() string {
	return string(i)
}

// IdentityRecord is the stored row for an Identity. Repeated logins from the
// same normalized number resolve to the same record: upserts keep CreatedAt
// and only refresh LastLogin.
type IdentityRecord struct {
	Identity  Identity
	CreatedAt time.Time
	LastLogin time.Time
}
