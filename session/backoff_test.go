package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoff_Doubles_Until_Capped(t *testing.T) {
	req := require.New(t)
	backoff := NewBackoff(100*time.Millisecond, 500*time.Millisecond)

	req.Equal(100*time.Millisecond, backoff.Next())
	req.Equal(200*time.Millisecond, backoff.Next())
	req.Equal(400*time.Millisecond, backoff.Next())
	req.Equal(500*time.Millisecond, backoff.Next())
	req.Equal(500*time.Millisecond, backoff.Next())
}

func TestBackoff_Reset_Rewinds_To_Base(t *testing.T) {
	req := require.New(t)
	backoff := NewBackoff(50*time.Millisecond, time.Second)

	backoff.Next()
	backoff.Next()
	backoff.Reset()

	req.Equal(50*time.Millisecond, backoff.Next())
}

func TestNewBackoff_Guards_Degenerate_Bounds(t *testing.T) {
	req := require.New(t)

	// Max below base is raised to base
	backoff := NewBackoff(time.Second, time.Millisecond)
	req.Equal(time.Second, backoff.Next())
}
