package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/camilorivas/mayordomo/internal/agent"
	"github.com/camilorivas/mayordomo/internal/database"
)

// StoreInterface defines DB operations needed by the scheduler.
type StoreInterface interface {
	ListPendingReminders() ([]database.Reminder, error)
	MarkReminderFired(id int64, lastSent time.Time, oneTime bool) (bool, error)
	GetSessionID(chatID string) (string, error)
	SetSessionID(chatID, sessionID string) error
}

// AgentInvoker runs a prompt through the hosted agent for a chat.
type AgentInvoker interface {
	Invoke(ctx context.Context, chatID, message, sessionID string) (*agent.Reply, error)
}

// Deliverer sends one message to a chat.
type Deliverer interface {
	Deliver(ctx context.Context, chatID, text string) error
}

// Alerter receives operator-facing fault notifications. May be nil.
type Alerter interface {
	Alert(ctx context.Context, subject, body string)
}

const (
	defaultCallTimeout = 90 * time.Second
	stopWaitTimeout    = 5 * time.Second

	sessionLimitNotice = "This conversation got too long for me to keep following, so I started a fresh one. Your reminder will be retried shortly."
)

// Scheduler evaluates pending reminders once per interval and delivers the
// due ones. One-time reminders fire once and move to sent; recurring ones
// stay pending with last_sent advanced, which also dedups firing within a
// minute. Occurrences missed while the process was down are not backfilled.
type Scheduler struct {
	db        StoreInterface
	agent     AgentInvoker
	deliverer Deliverer
	evaluator *Evaluator
	alerts    Alerter

	pollInterval time.Duration
	callTimeout  time.Duration
	now          func() time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	tickMu sync.Mutex
}

// Config contains configuration for the scheduler.
type Config struct {
	PollIntervalMinutes int
	CallTimeout         time.Duration
}

// New creates a scheduler. The agent invoker and alerter may be nil; the
// store and deliverer are required.
func New(db StoreInterface, agentClient AgentInvoker, deliverer Deliverer, alerts Alerter, config Config) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	pollInterval := time.Duration(config.PollIntervalMinutes) * time.Minute
	if pollInterval <= 0 {
		pollInterval = 1 * time.Minute
	}

	callTimeout := config.CallTimeout
	if callTimeout <= 0 {
		callTimeout = defaultCallTimeout
	}

	return &Scheduler{
		db:           db,
		agent:        agentClient,
		deliverer:    deliverer,
		evaluator:    NewEvaluator(nil),
		alerts:       alerts,
		pollInterval: pollInterval,
		callTimeout:  callTimeout,
		now:          time.Now,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start begins the evaluation loop: one tick immediately, then one per interval.
func (s *Scheduler) Start() error {
	fmt.Printf("Scheduler: starting with %v poll interval\n", s.pollInterval)

	s.wg.Add(1)
	go s.tickLoop()

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for an in-flight tick.
func (s *Scheduler) Stop() {
	fmt.Println("Scheduler: stopping...")
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		fmt.Println("Scheduler: stopped")
	case <-time.After(stopWaitTimeout):
		fmt.Printf("Scheduler: stop timed out after %v; continuing shutdown\n", stopWaitTimeout)
	}
}

func (s *Scheduler) tickLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	s.RunTick()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.RunTick()
		}
	}
}

// RunTick performs one evaluation pass. Ticks never overlap: if the previous
// tick is still running (slow agent or delivery calls), this one is skipped
// rather than racing it and violating the minute-dedup invariant.
func (s *Scheduler) RunTick() {
	if !s.tickMu.TryLock() {
		fmt.Println("Scheduler: previous tick still running, skipping")
		return
	}
	defer s.tickMu.Unlock()

	now := s.now()

	reminders, err := s.db.ListPendingReminders()
	if err != nil {
		fmt.Printf("Scheduler: failed to list pending reminders: %v\n", err)
		if s.alerts != nil {
			s.alerts.Alert(s.ctx, "Scheduler tick aborted",
				fmt.Sprintf("Listing pending reminders failed: %v", err))
		}
		return
	}

	for i := range reminders {
		reminder := &reminders[i]
		if !s.evaluator.IsDue(reminder, now) {
			continue
		}
		// One reminder's failure must not starve the rest of the due set.
		s.fire(reminder, now)
	}
}

// fire delivers a single due reminder and advances its stored state. Any
// failure leaves the row untouched so the whole reminder is retried next
// tick; duplicate parts on retry are accepted over exactly-once complexity.
func (s *Scheduler) fire(r *database.Reminder, now time.Time) {
	var parts []string
	if r.ProcessWithAgent {
		reply, ok := s.invokeAgent(r)
		if !ok {
			return
		}
		parts = SplitParts(reply)
	} else if strings.TrimSpace(r.Message) != "" {
		// A literal message is a single part; the delimiter convention only
		// applies to agent output.
		parts = []string{r.Message}
	}

	if len(parts) == 0 {
		// Blank message or delimiter-only agent output. Advance the row
		// instead of re-logging it every tick forever.
		fmt.Printf("Scheduler: reminder %d has nothing to deliver, advancing without sending\n", r.ID)
		if _, err := s.db.MarkReminderFired(r.ID, now, !r.IsRecurring()); err != nil {
			fmt.Printf("Scheduler: failed to record firing of reminder %d: %v\n", r.ID, err)
		}
		return
	}

	for i, part := range parts {
		if err := s.deliver(r.ChatID, part); err != nil {
			fmt.Printf("Scheduler: reminder %d part %d/%d delivery failed: %v\n", r.ID, i+1, len(parts), err)
			return
		}
	}

	changed, err := s.db.MarkReminderFired(r.ID, now, !r.IsRecurring())
	if err != nil {
		fmt.Printf("Scheduler: failed to record firing of reminder %d: %v\n", r.ID, err)
		return
	}
	if !changed {
		// Cancelled or edited out from under us between the query and now.
		fmt.Printf("Scheduler: reminder %d no longer pending, state not advanced\n", r.ID)
		return
	}

	fmt.Printf("Scheduler: reminder %d delivered to chat %s (%d part(s))\n", r.ID, r.ChatID, len(parts))
}

// invokeAgent runs the reminder's message through the agent. Returns the final
// text and whether it is usable; on any failure the reminder stays untouched
// for a retry next tick.
func (s *Scheduler) invokeAgent(r *database.Reminder) (string, bool) {
	if s.agent == nil {
		fmt.Printf("Scheduler: reminder %d needs the agent but none is configured\n", r.ID)
		return "", false
	}

	sessionID, err := s.db.GetSessionID(r.ChatID)
	if err != nil {
		fmt.Printf("Scheduler: failed to load session for chat %s: %v\n", r.ChatID, err)
		return "", false
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.callTimeout)
	reply, err := s.agent.Invoke(ctx, r.ChatID, r.Message, sessionID)
	cancel()

	if errors.Is(err, agent.ErrSessionLimit) {
		fmt.Printf("Scheduler: session limit for chat %s, notifying user\n", r.ChatID)
		if deliverErr := s.deliver(r.ChatID, sessionLimitNotice); deliverErr != nil {
			fmt.Printf("Scheduler: failed to deliver session-limit notice to chat %s: %v\n", r.ChatID, deliverErr)
		}
		return "", false
	}
	if err != nil {
		fmt.Printf("Scheduler: agent invocation for reminder %d failed: %v\n", r.ID, err)
		return "", false
	}
	if strings.TrimSpace(reply.Text) == "" {
		fmt.Printf("Scheduler: agent returned empty text for reminder %d\n", r.ID)
		return "", false
	}

	// Persist the session token only when the agent rotated it.
	if reply.SessionID != "" && reply.SessionID != sessionID {
		if err := s.db.SetSessionID(r.ChatID, reply.SessionID); err != nil {
			fmt.Printf("Scheduler: failed to persist session for chat %s: %v\n", r.ChatID, err)
		}
	}

	return reply.Text, true
}

func (s *Scheduler) deliver(chatID, text string) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.callTimeout)
	defer cancel()
	return s.deliverer.Deliver(ctx, chatID, text)
}

// SplitParts splits agent output into messages on the multi-part delimiter:
// a line containing only "---". Blank parts are dropped.
func SplitParts(text string) []string {
	lines := strings.Split(text, "\n")

	var parts []string
	var current []string

	flush := func() {
		part := strings.TrimSpace(strings.Join(current, "\n"))
		if part != "" {
			parts = append(parts, part)
		}
		current = current[:0]
	}

	for _, line := range lines {
		if strings.TrimSpace(line) == "---" {
			flush()
			continue
		}
		current = append(current, line)
	}
	flush()

	return parts
}
