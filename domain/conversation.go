package domain

import "github.com/google/uuid"

// ConversationID identifies one server-held message log.
type ConversationID string

func (c ConversationID) String() string {
	return string(c)
}

// Conversation ties a message log to its owning identity. Created once per
// identity and never mutated by this core beyond being the subscription key.
type Conversation struct {
	ID    ConversationID
	Owner Identity
}

// conversationNamespace seeds the deterministic identity -> conversation
// mapping. Changing it would orphan every existing conversation.
var conversationNamespace = uuid.MustParse("7c9e6679-7425-40de-944b-e07fc1f90ae7")

// ConversationForIdentity derives the stable conversation for an identity.
// The same identity always maps to the same conversation, so repeated logins
// reattach to the same log.
func ConversationForIdentity(identity Identity) Conversation {
	id := uuid.NewSHA1(conversationNamespace, []byte(identity))
	return Conversation{
		ID:    ConversationID(id.String()),
		Owner: identity,
	}
}
