package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/camilorivas/mayordomo/internal/database"
	"github.com/camilorivas/mayordomo/internal/timeutil"
)

// ZoneProjector converts an absolute instant into wall-clock components in an
// IANA timezone. Injected so the evaluator is testable with fixed components
// independent of the host timezone database.
type ZoneProjector func(t time.Time, timezone string) (timeutil.WallClock, error)

// Evaluator decides whether a single reminder must fire at a given instant.
type Evaluator struct {
	project ZoneProjector
}

// NewEvaluator creates an evaluator. A nil projector uses the real timezone
// database via timeutil.ProjectToZone.
func NewEvaluator(project ZoneProjector) *Evaluator {
	if project == nil {
		project = timeutil.ProjectToZone
	}
	return &Evaluator{project: project}
}

// IsDue reports whether the reminder must fire now.
//
// One-time reminders are due once their scheduled instant has passed and stay
// due until fired. Recurring reminders pass four guards in order: not already
// fired this minute, recurrence started, recurrence not ended, and the cron
// expression matching the wall clock in the reminder's timezone. Each guard
// is a necessary condition; the cheap ones run first.
func (e *Evaluator) IsDue(r *database.Reminder, now time.Time) bool {
	if !r.IsRecurring() {
		return !r.ScheduledFor.After(now)
	}

	// Already fired this minute; sub-minute re-evaluation must not double-send.
	if r.LastSent != nil && timeutil.SameMinute(*r.LastSent, now) {
		return false
	}

	if now.Before(r.ScheduledFor) {
		return false
	}

	// Past the end date the reminder is never due again, but its status is
	// left alone: termination is by end date or cancellation, not status.
	if r.EndDate != nil && now.After(*r.EndDate) {
		return false
	}

	expr := *r.CronExpression
	if len(strings.Fields(expr)) != cronFieldCount {
		fmt.Printf("Scheduler: reminder %d has malformed cron expression %q, treating as never due\n", r.ID, expr)
		return false
	}

	wc, err := e.project(now, r.Timezone)
	if err != nil {
		fmt.Printf("Scheduler: reminder %d timezone projection failed: %v\n", r.ID, err)
		return false
	}

	return MatchesCron(expr, wc)
}
