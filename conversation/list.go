package conversation

import (
	"sort"
	"time"

	"chat-sync/domain"
)

// messageList is the single ordered, deduplicated view of one conversation.
// Confirmed entries are sorted by created_at ascending (ties broken by
// server id); Pending and Failed entries are pinned after them in send
// order until promoted. Not safe for concurrent use: the engine serializes
// every mutation behind its mutex.
type messageList struct {
	confirmed []domain.Message
	pending   []domain.Message
	serverIDs map[string]struct{}
}

func newMessageList() *messageList {
	return &messageList{serverIDs: make(map[string]struct{})}
}

func (l *messageList) appendPending(msg domain.Message) {
	l.pending = append(l.pending, msg)
}

// ingest merges a server row into the confirmed region. Returns false when
// the server id is already present: duplicate deliveries (realtime echo,
// reconnection replay) are no-ops.
func (l *messageList) ingest(row domain.MessageRow) bool {
	if _, dup := l.serverIDs[row.ServerID]; dup {
		return false
	}
	l.insertConfirmed(domain.Message{
		ServerID:       row.ServerID,
		ConversationID: row.ConversationID,
		Author:         row.Author,
		Text:           row.Text,
		CreatedAt:      row.CreatedAt,
		State:          domain.Confirmed,
	})
	return true
}

// promote resolves the persistence round-trip for a local send. If the
// realtime echo already delivered the same server id, the Pending entry is
// dropped instead of duplicated; either arrival order leaves exactly one
// Confirmed entry.
func (l *messageList) promote(localID string, receipt domain.MessageReceipt) bool {
	idx := l.pendingIndex(localID)
	if idx < 0 {
		return false
	}
	msg := l.pending[idx]
	l.pending = append(l.pending[:idx], l.pending[idx+1:]...)

	if _, dup := l.serverIDs[receipt.ServerID]; dup {
		return true
	}
	msg.ServerID = receipt.ServerID
	msg.CreatedAt = receipt.CreatedAt
	msg.State = domain.Confirmed
	l.insertConfirmed(msg)
	return true
}

func (l *messageList) markFailed(localID string) bool {
	idx := l.pendingIndex(localID)
	if idx < 0 {
		return false
	}
	l.pending[idx].State = domain.Failed
	return true
}

// resetFailed rearms a Failed entry as Pending for a manual retry.
func (l *messageList) resetFailed(localID string) (domain.Message, bool) {
	idx := l.pendingIndex(localID)
	if idx < 0 || l.pending[idx].State != domain.Failed {
		return domain.Message{}, false
	}
	l.pending[idx].State = domain.Pending
	return l.pending[idx], true
}

func (l *messageList) pendingIndex(localID string) int {
	for i, msg := range l.pending {
		if msg.LocalID == localID {
			return i
		}
	}
	return -1
}

// insertConfirmed keeps the confirmed region sorted: a late-arriving row is
// placed at its chronological position, not appended.
func (l *messageList) insertConfirmed(msg domain.Message) {
	idx := sort.Search(len(l.confirmed), func(i int) bool {
		if l.confirmed[i].CreatedAt.Equal(msg.CreatedAt) {
			return l.confirmed[i].ServerID > msg.ServerID
		}
		return l.confirmed[i].CreatedAt.After(msg.CreatedAt)
	})
	l.confirmed = append(l.confirmed, domain.Message{})
	copy(l.confirmed[idx+1:], l.confirmed[idx:])
	l.confirmed[idx] = msg
	l.serverIDs[msg.ServerID] = struct{}{}
}

// latestConfirmedAt is the replay watermark for fetchMessagesSince.
func (l *messageList) latestConfirmedAt() time.Time {
	if len(l.confirmed) == 0 {
		return time.Time{}
	}
	return l.confirmed[len(l.confirmed)-1].CreatedAt
}

// snapshot returns an independent copy: confirmed region first, then the
// pinned Pending/Failed tail.
func (l *messageList) snapshot() []domain.Message {
	out := make([]domain.Message, 0, len(l.confirmed)+len(l.pending))
	out = append(out, l.confirmed...)
	return append(out, l.pending...)
}

func (l *messageList) size() int {
	return len(l.confirmed) + len(l.pending)
}
