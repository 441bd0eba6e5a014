package session

import "time"

// Backoff yields bounded exponential delays for heartbeat I/O retries.
// Not safe for concurrent use; the heartbeat loop is strictly sequential.
type Backoff struct {
	base    time.Duration
	max     time.Duration
	attempt int
}

func NewBackoff(base, max time.Duration) *Backoff {
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	if max < base {
		max = base
	}
	return &Backoff{base: base, max: max}
}

// Next returns the delay for the current attempt and advances: base, 2*base,
// 4*base... capped at max.
func (b *Backoff) Next() time.Duration {
	d := b.base << b.attempt
	if d >= b.max || d <= 0 {
		return b.max
	}
	b.attempt++
	return d
}

// Reset rewinds to the initial delay after a successful round-trip.
func (b *Backoff) Reset() {
	b.attempt = 0
}
