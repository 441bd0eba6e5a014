package errors

import "fmt"

var (
	ErrIdentityRejected   = fmt.Errorf("identity rejected")
	ErrSessionEvicted     = fmt.Errorf("session evicted")
	ErrSessionNotActive   = fmt.Errorf("session not active")
	ErrConversationClosed = fmt.Errorf("conversation closed")
	ErrWorkerPanic        = fmt.Errorf("worker panic")
)
