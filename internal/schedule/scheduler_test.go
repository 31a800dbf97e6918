package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camilorivas/mayordomo/internal/agent"
	"github.com/camilorivas/mayordomo/internal/database"
)

type sentMessage struct {
	chatID string
	text   string
}

type fakeDeliverer struct {
	sent      []sentMessage
	failCalls map[int]bool
	calls     int
}

func (f *fakeDeliverer) Deliver(_ context.Context, chatID, text string) error {
	f.calls++
	if f.failCalls[f.calls] {
		return errors.New("telegram unavailable")
	}
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text})
	return nil
}

type fakeAgent struct {
	reply        *agent.Reply
	err          error
	sessionsSeen []string
}

func (f *fakeAgent) Invoke(_ context.Context, _, _, sessionID string) (*agent.Reply, error) {
	f.sessionsSeen = append(f.sessionsSeen, sessionID)
	if f.err != nil {
		return nil, f.err
	}
	return f.reply, nil
}

type fakeStore struct {
	reminders     map[int64]*database.Reminder
	listErr       error
	sessions      map[string]string
	sessionWrites int
}

func newFakeStore(reminders ...*database.Reminder) *fakeStore {
	s := &fakeStore{
		reminders: make(map[int64]*database.Reminder),
		sessions:  make(map[string]string),
	}
	for _, r := range reminders {
		s.reminders[r.ID] = r
	}
	return s
}

func (s *fakeStore) ListPendingReminders() ([]database.Reminder, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []database.Reminder
	for _, r := range s.reminders {
		if r.Status == database.ReminderStatusPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkReminderFired(id int64, lastSent time.Time, oneTime bool) (bool, error) {
	r, ok := s.reminders[id]
	if !ok || r.Status != database.ReminderStatusPending {
		return false, nil
	}
	r.LastSent = &lastSent
	if oneTime {
		r.Status = database.ReminderStatusSent
	}
	return true, nil
}

func (s *fakeStore) GetSessionID(chatID string) (string, error) {
	return s.sessions[chatID], nil
}

func (s *fakeStore) SetSessionID(chatID, sessionID string) error {
	s.sessionWrites++
	s.sessions[chatID] = sessionID
	return nil
}

type fakeAlerter struct {
	subjects []string
}

func (f *fakeAlerter) Alert(_ context.Context, subject, _ string) {
	f.subjects = append(f.subjects, subject)
}

func newTestScheduler(db StoreInterface, agentClient AgentInvoker, deliverer Deliverer, alerts Alerter, now time.Time) *Scheduler {
	s := New(db, agentClient, deliverer, alerts, Config{})
	s.now = func() time.Time { return now }
	return s
}

func TestRunTick_FullTickIdempotence(t *testing.T) {
	db := database.NewTestDB(t)
	now := time.Date(2025, 3, 10, 15, 4, 30, 0, time.UTC)

	oneTime, err := db.CreateReminder(&database.Reminder{
		ChatID:       "chat-1",
		Message:      "water the plants",
		ScheduledFor: now.Add(-time.Minute),
	})
	require.NoError(t, err)

	recurringReminder, err := db.CreateReminder(&database.Reminder{
		ChatID:         "chat-2",
		Message:        "hourly check",
		ScheduledFor:   now.Add(-time.Hour),
		CronExpression: database.StringPtr("* * * * *"),
	})
	require.NoError(t, err)

	deliverer := &fakeDeliverer{}
	s := newTestScheduler(db, nil, deliverer, nil, now)

	s.RunTick()
	require.Len(t, deliverer.sent, 2)

	// Same minute: the one-time reminder is now sent and excluded, the
	// recurring one is blocked by the minute-dedup guard.
	s.RunTick()
	assert.Len(t, deliverer.sent, 2, "second tick in the same minute must fire nothing")

	fetched, err := db.GetReminderByID(oneTime.ID)
	require.NoError(t, err)
	assert.Equal(t, database.ReminderStatusSent, fetched.Status)
	require.NotNil(t, fetched.LastSent)

	fetched, err = db.GetReminderByID(recurringReminder.ID)
	require.NoError(t, err)
	assert.Equal(t, database.ReminderStatusPending, fetched.Status)
	require.NotNil(t, fetched.LastSent)

	// Next minute the recurring reminder fires again; the one-time does not.
	s.now = func() time.Time { return now.Add(time.Minute) }
	s.RunTick()
	require.Len(t, deliverer.sent, 3)
	assert.Equal(t, "chat-2", deliverer.sent[2].chatID)
}

func TestRunTick_PartialDeliveryAtomicity(t *testing.T) {
	db := database.NewTestDB(t)
	now := time.Date(2025, 3, 10, 15, 4, 0, 0, time.UTC)

	reminder, err := db.CreateReminder(&database.Reminder{
		ChatID:           "chat-1",
		Message:          "Summarize my day",
		ScheduledFor:     now.Add(-time.Minute),
		ProcessWithAgent: true,
	})
	require.NoError(t, err)

	agentClient := &fakeAgent{reply: &agent.Reply{Text: "part one\n---\npart two\n---\npart three"}}
	deliverer := &fakeDeliverer{failCalls: map[int]bool{2: true}}
	s := newTestScheduler(db, agentClient, deliverer, nil, now)

	s.RunTick()
	require.Len(t, deliverer.sent, 1, "delivery stops at the first failed part")
	assert.Equal(t, "part one", deliverer.sent[0].text)

	fetched, err := db.GetReminderByID(reminder.ID)
	require.NoError(t, err)
	assert.Equal(t, database.ReminderStatusPending, fetched.Status, "failed delivery leaves state untouched")
	assert.Nil(t, fetched.LastSent)

	// Next tick retries all parts from the start.
	s.RunTick()
	require.Len(t, deliverer.sent, 4)
	assert.Equal(t, "part one", deliverer.sent[1].text)
	assert.Equal(t, "part two", deliverer.sent[2].text)
	assert.Equal(t, "part three", deliverer.sent[3].text)

	fetched, err = db.GetReminderByID(reminder.ID)
	require.NoError(t, err)
	assert.Equal(t, database.ReminderStatusSent, fetched.Status)
}

func TestRunTick_LiteralMessageIsSinglePart(t *testing.T) {
	db := database.NewTestDB(t)
	now := time.Date(2025, 3, 10, 15, 4, 0, 0, time.UTC)

	message := "shopping list\n---\nmilk"
	_, err := db.CreateReminder(&database.Reminder{
		ChatID:       "chat-1",
		Message:      message,
		ScheduledFor: now.Add(-time.Minute),
	})
	require.NoError(t, err)

	deliverer := &fakeDeliverer{}
	s := newTestScheduler(db, nil, deliverer, nil, now)

	s.RunTick()
	require.Len(t, deliverer.sent, 1, "literal text is never split on the delimiter")
	assert.Equal(t, message, deliverer.sent[0].text)
}

func TestRunTick_BlankMessageAdvancesWithoutSending(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 4, 0, 0, time.UTC)
	store := newFakeStore(&database.Reminder{
		ID:           1,
		ChatID:       "chat-1",
		Message:      "   ",
		ScheduledFor: now.Add(-time.Minute),
		Status:       database.ReminderStatusPending,
	})

	deliverer := &fakeDeliverer{}
	s := newTestScheduler(store, nil, deliverer, nil, now)

	s.RunTick()
	assert.Empty(t, deliverer.sent)
	assert.Equal(t, database.ReminderStatusSent, store.reminders[1].Status,
		"an undeliverable row must not be retried every tick forever")
	require.NotNil(t, store.reminders[1].LastSent)
}

func TestRunTick_OneTimeLifecycle(t *testing.T) {
	db := database.NewTestDB(t)
	scheduledFor := time.Date(2025, 1, 15, 13, 0, 0, 0, time.UTC)

	_, err := db.CreateReminder(&database.Reminder{
		ChatID:       "chat-1",
		Message:      "call the dentist",
		ScheduledFor: scheduledFor,
	})
	require.NoError(t, err)

	deliverer := &fakeDeliverer{}
	s := newTestScheduler(db, nil, deliverer, nil, scheduledFor.Add(-time.Second))

	s.RunTick()
	assert.Empty(t, deliverer.sent, "one second early is not due")

	s.now = func() time.Time { return scheduledFor }
	s.RunTick()
	require.Len(t, deliverer.sent, 1)
	assert.Equal(t, "call the dentist", deliverer.sent[0].text)

	s.now = func() time.Time { return scheduledFor.Add(time.Hour) }
	s.RunTick()
	assert.Len(t, deliverer.sent, 1, "sent reminders are excluded from the pending set")
}

func TestRunTick_AgentReminder(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 4, 0, 0, time.UTC)
	store := newFakeStore(&database.Reminder{
		ID:               1,
		ChatID:           "chat-1",
		Message:          "Summarize my day",
		ScheduledFor:     now.Add(-time.Minute),
		Status:           database.ReminderStatusPending,
		ProcessWithAgent: true,
	})
	store.sessions["chat-1"] = "sess-old"

	agentClient := &fakeAgent{reply: &agent.Reply{Text: "Here is your day\n---\nAnd the evening", SessionID: "sess-new"}}
	deliverer := &fakeDeliverer{}
	s := newTestScheduler(store, agentClient, deliverer, nil, now)

	s.RunTick()

	require.Equal(t, []string{"sess-old"}, agentClient.sessionsSeen, "existing session token is supplied")
	require.Len(t, deliverer.sent, 2, "agent output split on the delimiter")
	assert.Equal(t, "Here is your day", deliverer.sent[0].text)
	assert.Equal(t, "And the evening", deliverer.sent[1].text)

	assert.Equal(t, "sess-new", store.sessions["chat-1"], "rotated session token is persisted")
	assert.Equal(t, 1, store.sessionWrites)
	assert.Equal(t, database.ReminderStatusSent, store.reminders[1].Status)
}

func TestRunTick_AgentSessionUnchangedNotRewritten(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 4, 0, 0, time.UTC)
	store := newFakeStore(&database.Reminder{
		ID:               1,
		ChatID:           "chat-1",
		Message:          "Summarize my day",
		ScheduledFor:     now.Add(-time.Minute),
		Status:           database.ReminderStatusPending,
		ProcessWithAgent: true,
	})
	store.sessions["chat-1"] = "sess-1"

	agentClient := &fakeAgent{reply: &agent.Reply{Text: "ok", SessionID: "sess-1"}}
	s := newTestScheduler(store, agentClient, &fakeDeliverer{}, nil, now)

	s.RunTick()
	assert.Zero(t, store.sessionWrites, "unchanged token must not be rewritten")
}

func TestRunTick_AgentFailureLeavesReminderForRetry(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 4, 0, 0, time.UTC)
	store := newFakeStore(&database.Reminder{
		ID:               1,
		ChatID:           "chat-1",
		Message:          "Summarize my day",
		ScheduledFor:     now.Add(-time.Minute),
		Status:           database.ReminderStatusPending,
		ProcessWithAgent: true,
	})

	agentClient := &fakeAgent{err: agent.ErrEmptyResponse}
	deliverer := &fakeDeliverer{}
	s := newTestScheduler(store, agentClient, deliverer, nil, now)

	s.RunTick()
	assert.Empty(t, deliverer.sent)
	assert.Equal(t, database.ReminderStatusPending, store.reminders[1].Status)
	assert.Nil(t, store.reminders[1].LastSent)
}

func TestRunTick_SessionLimitNotifiesChat(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 4, 0, 0, time.UTC)
	store := newFakeStore(&database.Reminder{
		ID:               1,
		ChatID:           "chat-1",
		Message:          "Summarize my day",
		ScheduledFor:     now.Add(-time.Minute),
		Status:           database.ReminderStatusPending,
		ProcessWithAgent: true,
	})

	agentClient := &fakeAgent{err: fmt.Errorf("invoke: %w", agent.ErrSessionLimit)}
	deliverer := &fakeDeliverer{}
	s := newTestScheduler(store, agentClient, deliverer, nil, now)

	s.RunTick()
	require.Len(t, deliverer.sent, 1, "out-of-band notice goes to the chat")
	assert.Equal(t, sessionLimitNotice, deliverer.sent[0].text)
	assert.Equal(t, database.ReminderStatusPending, store.reminders[1].Status, "reminder itself stays for retry")
}

func TestRunTick_OneFailureDoesNotStarveOthers(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 4, 0, 0, time.UTC)
	store := newFakeStore(
		&database.Reminder{
			ID: 1, ChatID: "chat-1", Message: "needs agent",
			ScheduledFor: now.Add(-time.Minute), Status: database.ReminderStatusPending,
			ProcessWithAgent: true,
		},
		&database.Reminder{
			ID: 2, ChatID: "chat-2", Message: "plain text",
			ScheduledFor: now.Add(-time.Minute), Status: database.ReminderStatusPending,
		},
	)

	// No agent configured: reminder 1 fails, reminder 2 must still go out.
	deliverer := &fakeDeliverer{}
	s := newTestScheduler(store, nil, deliverer, nil, now)

	s.RunTick()
	require.Len(t, deliverer.sent, 1)
	assert.Equal(t, "chat-2", deliverer.sent[0].chatID)
	assert.Equal(t, database.ReminderStatusPending, store.reminders[1].Status)
	assert.Equal(t, database.ReminderStatusSent, store.reminders[2].Status)
}

func TestRunTick_ListFailureAbortsTickOnly(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 4, 0, 0, time.UTC)
	store := newFakeStore()
	store.listErr = errors.New("database locked")

	alerts := &fakeAlerter{}
	deliverer := &fakeDeliverer{}
	s := newTestScheduler(store, nil, deliverer, alerts, now)

	s.RunTick()
	assert.Empty(t, deliverer.sent)
	require.Len(t, alerts.subjects, 1, "operator is alerted on a top-level failure")
}

type blockingDeliverer struct {
	entered chan struct{}
	release chan struct{}

	mu    sync.Mutex
	calls int
}

func (d *blockingDeliverer) Deliver(_ context.Context, _, _ string) error {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()

	close(d.entered) // a second delivery would panic, failing the test loudly
	<-d.release
	return nil
}

func TestRunTick_OverlappingTickSkipped(t *testing.T) {
	now := time.Date(2025, 3, 10, 15, 4, 0, 0, time.UTC)
	store := newFakeStore(&database.Reminder{
		ID:           1,
		ChatID:       "chat-1",
		Message:      "slow delivery",
		ScheduledFor: now.Add(-time.Minute),
		Status:       database.ReminderStatusPending,
	})

	deliverer := &blockingDeliverer{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	s := newTestScheduler(store, nil, deliverer, nil, now)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.RunTick()
	}()

	// The first tick is mid-delivery; a tick arriving now must be skipped
	// rather than racing it.
	<-deliverer.entered
	s.RunTick()

	close(deliverer.release)
	wg.Wait()

	deliverer.mu.Lock()
	calls := deliverer.calls
	deliverer.mu.Unlock()
	assert.Equal(t, 1, calls, "reminder must be delivered exactly once")
	assert.Equal(t, database.ReminderStatusSent, store.reminders[1].Status)
}

func TestSplitParts(t *testing.T) {
	assert.Equal(t, []string{"just one"}, SplitParts("just one"))
	assert.Equal(t, []string{"a", "b"}, SplitParts("a\n---\nb"))
	assert.Equal(t, []string{"a", "b"}, SplitParts("a\n --- \nb"), "delimiter line may carry whitespace")
	assert.Equal(t, []string{"a\nstill a", "b"}, SplitParts("a\nstill a\n---\nb"))
	assert.Equal(t, []string{"a"}, SplitParts("---\na\n---"), "leading and trailing delimiters drop empty parts")
	assert.Empty(t, SplitParts("   \n  "))
	assert.Equal(t, []string{"a --- b"}, SplitParts("a --- b"), "inline dashes are not a delimiter")
}
