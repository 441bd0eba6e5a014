package domain

import "time"

// DeliveryState tracks a message through the optimistic send path.
type DeliveryState int

const (
	// Pending is a locally created message awaiting server confirmation.
	Pending DeliveryState = iota
	// Confirmed has a server id and a server-assigned timestamp.
	Confirmed
	// Failed exhausted its persistence attempt; retried only on explicit request.
	Failed
)

func (s DeliveryState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Confirmed:
		return "confirmed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// AuthorRole identifies who wrote a message.
type AuthorRole string

const (
	RoleUser      AuthorRole = "user"
	RoleAssistant AuthorRole = "assistant"
)

// Message is one entry of the rendered list. LocalID is only meaningful
// until confirmation; ServerID and CreatedAt are authoritative and assigned
// by the persistence layer.
type Message struct {
	LocalID        string
	ServerID       string
	ConversationID ConversationID
	Author         AuthorRole
	Text           string
	CreatedAt      time.Time
	State          DeliveryState
}

// MessageRow is the server-held view of a persisted message, as delivered by
// the push channel and by history fetches.
type MessageRow struct {
	ServerID       string
	ConversationID ConversationID
	Author         AuthorRole
	Text           string
	CreatedAt      time.Time
}

// MessageReceipt is the persistence round-trip response for one send.
type MessageReceipt struct {
	ServerID  string
	CreatedAt time.Time
}
