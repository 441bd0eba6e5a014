package conversation

import (
	"chat-sync/domain"
	"chat-sync/errors"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

const testConversation = domain.ConversationID("conv-1")

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelError)
}

// fakeMessageStore controls receipt content and timing so tests can force
// either relative order of persistence response and realtime echo.
type fakeMessageStore struct {
	mu           sync.Mutex
	gate         chan struct{} // non-nil: PersistMessage blocks until closed
	persistErr   error
	nextServerID string
	rows         []domain.MessageRow
}

func (s *fakeMessageStore) PersistMessage(_ context.Context, conversationID domain.ConversationID, author domain.AuthorRole, text string) (domain.MessageReceipt, error) {
	s.mu.Lock()
	gate := s.gate
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return domain.MessageReceipt{}, s.persistErr
	}
	serverID := s.nextServerID
	if serverID == "" {
		serverID = uuid.NewString()
	}
	row := domain.MessageRow{
		ServerID:       serverID,
		ConversationID: conversationID,
		Author:         author,
		Text:           text,
		CreatedAt:      time.Now().UTC(),
	}
	s.rows = append(s.rows, row)
	return domain.MessageReceipt{ServerID: row.ServerID, CreatedAt: row.CreatedAt}, nil
}

func (s *fakeMessageStore) FetchMessagesSince(_ context.Context, _ domain.ConversationID, since time.Time) ([]domain.MessageRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.MessageRow
	for _, row := range s.rows {
		if row.CreatedAt.After(since) {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *fakeMessageStore) setPersistErr(err error) {
	s.mu.Lock()
	s.persistErr = err
	s.mu.Unlock()
}

func (s *fakeMessageStore) lastRow() domain.MessageRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rows[len(s.rows)-1]
}

// fakeSubscriber hands the insert callback to the test so it can play the
// push channel by hand.
type fakeSubscriber struct {
	mu           sync.Mutex
	onInsert     func(domain.MessageRow)
	unsubscribes int
}

func (s *fakeSubscriber) Subscribe(_ domain.ConversationID, onInsert func(domain.MessageRow)) (func(), error) {
	s.mu.Lock()
	s.onInsert = onInsert
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.unsubscribes++
		s.mu.Unlock()
	}, nil
}

func (s *fakeSubscriber) deliver(row domain.MessageRow) {
	s.mu.Lock()
	onInsert := s.onInsert
	s.mu.Unlock()
	if onInsert != nil {
		onInsert(row)
	}
}

func (s *fakeSubscriber) released() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsubscribes
}

func newTestEngine(t *testing.T, store *fakeMessageStore, subscriber *fakeSubscriber) *Engine {
	t.Helper()
	engine := NewEngine(testLogger(), store, subscriber, testConversation)
	require.NoError(t, engine.Attach(context.Background()))
	t.Cleanup(engine.Close)
	return engine
}

func confirmedCount(msgs []domain.Message) int {
	count := 0
	for _, m := range msgs {
		if m.State == domain.Confirmed {
			count++
		}
	}
	return count
}

func TestEngine_Send_Is_Optimistic(t *testing.T) {
	req := require.New(t)
	store := &fakeMessageStore{gate: make(chan struct{})}
	engine := newTestEngine(t, store, &fakeSubscriber{})

	// When a send is still in flight
	localID, err := engine.Send(context.Background(), "hello")
	req.NoError(err)

	// Then the entry is already visible as Pending
	snapshot := engine.Snapshot()
	req.Len(snapshot, 1)
	req.Equal(domain.Pending, snapshot[0].State)
	req.Equal(localID, snapshot[0].LocalID)
	req.Empty(snapshot[0].ServerID)

	// When persistence completes
	close(store.gate)

	// Then the same entry is promoted in place
	req.Eventually(func() bool {
		snapshot := engine.Snapshot()
		return len(snapshot) == 1 && snapshot[0].State == domain.Confirmed
	}, time.Second, 5*time.Millisecond)
	snapshot = engine.Snapshot()
	req.NotEmpty(snapshot[0].ServerID)
	req.False(snapshot[0].CreatedAt.IsZero())
}

func TestEngine_Confirmation_Then_Echo_Leaves_One_Entry(t *testing.T) {
	req := require.New(t)
	store := &fakeMessageStore{}
	subscriber := &fakeSubscriber{}
	engine := newTestEngine(t, store, subscriber)

	// Given a send whose persistence completed first
	_, err := engine.Send(context.Background(), "only once")
	req.NoError(err)
	req.Eventually(func() bool {
		return confirmedCount(engine.Snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	// When the realtime echo for the same server id arrives afterwards
	subscriber.deliver(store.lastRow())

	// Then the list still contains exactly one confirmed entry
	snapshot := engine.Snapshot()
	req.Len(snapshot, 1)
	req.Equal(domain.Confirmed, snapshot[0].State)
	req.Equal("only once", snapshot[0].Text)
}

func TestEngine_Echo_Then_Confirmation_Leaves_One_Entry(t *testing.T) {
	req := require.New(t)
	store := &fakeMessageStore{gate: make(chan struct{}), nextServerID: "srv-1"}
	subscriber := &fakeSubscriber{}
	engine := newTestEngine(t, store, subscriber)

	// Given a send whose persistence response is delayed
	_, err := engine.Send(context.Background(), "only once")
	req.NoError(err)

	// When the realtime echo overtakes the persistence response
	at := time.Now().UTC()
	subscriber.deliver(domain.MessageRow{
		ServerID:       "srv-1",
		ConversationID: testConversation,
		Author:         domain.RoleUser,
		Text:           "only once",
		CreatedAt:      at,
	})

	// Then both views coexist for a moment: one confirmed, one pending
	snapshot := engine.Snapshot()
	req.Len(snapshot, 2)

	// When the persistence response finally lands with the same server id
	close(store.gate)

	// Then the pending entry is dropped, never duplicated
	req.Eventually(func() bool {
		snapshot := engine.Snapshot()
		return len(snapshot) == 1 && snapshot[0].State == domain.Confirmed
	}, time.Second, 5*time.Millisecond)
}

func TestEngine_Resync_Replays_Are_Dropped(t *testing.T) {
	req := require.New(t)
	store := &fakeMessageStore{}
	engine := newTestEngine(t, store, &fakeSubscriber{})

	_, err := engine.Send(context.Background(), "already here")
	req.NoError(err)
	req.Eventually(func() bool {
		return confirmedCount(engine.Snapshot()) == 1
	}, time.Second, 5*time.Millisecond)

	// When a reconnection replays the full history twice
	req.NoError(engine.Resync(context.Background()))
	req.NoError(engine.Resync(context.Background()))

	// Then the list length is unchanged
	req.Len(engine.Snapshot(), 1)
}

func TestEngine_Resync_Merges_Missed_Messages_In_Order(t *testing.T) {
	req := require.New(t)
	store := &fakeMessageStore{}
	subscriber := &fakeSubscriber{}
	engine := newTestEngine(t, store, subscriber)

	base := time.Now().UTC()
	early := domain.MessageRow{ServerID: "a", ConversationID: testConversation, Author: domain.RoleAssistant, Text: "t1", CreatedAt: base}
	missed := domain.MessageRow{ServerID: "b", ConversationID: testConversation, Author: domain.RoleAssistant, Text: "t2", CreatedAt: base.Add(time.Second)}
	late := domain.MessageRow{ServerID: "c", ConversationID: testConversation, Author: domain.RoleAssistant, Text: "t3", CreatedAt: base.Add(2 * time.Second)}

	// Given the subscription dropped after a, while b and c were persisted
	subscriber.deliver(early)
	store.mu.Lock()
	store.rows = []domain.MessageRow{early, missed, late}
	store.mu.Unlock()

	// When the caller resyncs after reconnect
	req.NoError(engine.Resync(context.Background()))

	// Then the fetched rows merged in order
	snapshot := engine.Snapshot()
	req.Len(snapshot, 3)
	req.Equal("t1", snapshot[0].Text)
	req.Equal("t2", snapshot[1].Text)
	req.Equal("t3", snapshot[2].Text)

	// And a redelivery of b via realtime after the resync is still a no-op
	subscriber.deliver(missed)
	req.Len(engine.Snapshot(), 3)
}

func TestEngine_Failed_Send_Surfaces_And_Retries_On_Request(t *testing.T) {
	req := require.New(t)
	store := &fakeMessageStore{}
	store.setPersistErr(fmt.Errorf("backend unavailable"))
	engine := newTestEngine(t, store, &fakeSubscriber{})

	localID, err := engine.Send(context.Background(), "flaky")
	req.NoError(err)

	// Then the entry is marked Failed, not silently retried
	req.Eventually(func() bool {
		snapshot := engine.Snapshot()
		return len(snapshot) == 1 && snapshot[0].State == domain.Failed
	}, time.Second, 5*time.Millisecond)

	// When the caller explicitly retries after recovery
	store.setPersistErr(nil)
	req.NoError(engine.Retry(context.Background(), localID))

	req.Eventually(func() bool {
		snapshot := engine.Snapshot()
		return len(snapshot) == 1 && snapshot[0].State == domain.Confirmed
	}, time.Second, 5*time.Millisecond)

	// Retrying an unknown or non-failed entry is refused
	req.Error(engine.Retry(context.Background(), localID))
}

func TestEngine_OnListChanged_Delivers_Snapshots(t *testing.T) {
	req := require.New(t)
	store := &fakeMessageStore{}
	subscriber := &fakeSubscriber{}
	engine := NewEngine(testLogger(), store, subscriber, testConversation)
	t.Cleanup(engine.Close)

	var snapMu sync.Mutex
	var latest []domain.Message
	engine.OnListChanged(func(snapshot []domain.Message) {
		snapMu.Lock()
		latest = snapshot
		snapMu.Unlock()
	})
	req.NoError(engine.Attach(context.Background()))

	subscriber.deliver(domain.MessageRow{ServerID: "a", ConversationID: testConversation, Text: "hi", CreatedAt: time.Now().UTC()})

	snapMu.Lock()
	defer snapMu.Unlock()
	req.Len(latest, 1)
	req.Equal("hi", latest[0].Text)
}

func TestEngine_Close_Releases_Subscription_Once(t *testing.T) {
	req := require.New(t)
	store := &fakeMessageStore{}
	subscriber := &fakeSubscriber{}
	engine := NewEngine(testLogger(), store, subscriber, testConversation)
	req.NoError(engine.Attach(context.Background()))

	engine.Close()
	engine.Close()
	req.Equal(1, subscriber.released())

	// A closed engine refuses work and ignores deliveries
	_, err := engine.Send(context.Background(), "too late")
	req.ErrorIs(err, errors.ErrConversationClosed)
	req.ErrorIs(engine.Resync(context.Background()), errors.ErrConversationClosed)
	subscriber.deliver(domain.MessageRow{ServerID: "x", CreatedAt: time.Now().UTC()})
	req.Empty(engine.Snapshot())

	req.ErrorIs(engine.Attach(context.Background()), errors.ErrConversationClosed)
}

func TestEngine_Send_Validates_Text(t *testing.T) {
	req := require.New(t)
	engine := newTestEngine(t, &fakeMessageStore{}, &fakeSubscriber{})

	_, err := engine.Send(context.Background(), "")
	req.Error(err)

	long := make([]byte, 4001)
	for i := range long {
		long[i] = 'a'
	}
	_, err = engine.Send(context.Background(), string(long))
	req.Error(err)
}
