package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camilorivas/mayordomo/internal/database"
	"github.com/camilorivas/mayordomo/internal/timeutil"
)

// fixedProjector returns the same wall clock for every instant, making cron
// matching independent of the host timezone database.
func fixedProjector(wc timeutil.WallClock) ZoneProjector {
	return func(time.Time, string) (timeutil.WallClock, error) {
		return wc, nil
	}
}

func recurring(expr string, scheduledFor time.Time) *database.Reminder {
	return &database.Reminder{
		ID:             1,
		ChatID:         "chat-1",
		Message:        "ping",
		ScheduledFor:   scheduledFor,
		Timezone:       "America/Santiago",
		Status:         database.ReminderStatusPending,
		CronExpression: &expr,
	}
}

func TestIsDue_OneTime(t *testing.T) {
	e := NewEvaluator(nil)
	now := time.Date(2025, 1, 15, 13, 0, 0, 0, time.UTC)

	reminder := &database.Reminder{
		ID:           1,
		ChatID:       "chat-1",
		Message:      "dentist",
		ScheduledFor: now,
		Status:       database.ReminderStatusPending,
	}

	assert.True(t, e.IsDue(reminder, now), "due exactly at the scheduled instant")

	reminder.ScheduledFor = now.Add(time.Microsecond)
	assert.False(t, e.IsDue(reminder, now), "a microsecond early is not due")

	reminder.ScheduledFor = now.Add(-24 * time.Hour)
	assert.True(t, e.IsDue(reminder, now), "once due, stays due until fired")
}

func TestIsDue_MinuteDedup(t *testing.T) {
	e := NewEvaluator(fixedProjector(timeutil.WallClock{Minute: 0, Hour: 9, DayOfMonth: 6, Month: 1, DayOfWeek: 1}))

	now := time.Date(2025, 1, 6, 12, 0, 30, 0, time.UTC)
	reminder := recurring("* * * * *", now.Add(-time.Hour))

	lastSent := now.Add(-20 * time.Second) // same minute, different second
	reminder.LastSent = &lastSent
	assert.False(t, e.IsDue(reminder, now), "already fired this minute")

	previousMinute := now.Add(-time.Minute)
	reminder.LastSent = &previousMinute
	assert.True(t, e.IsDue(reminder, now), "previous minute does not block")
}

func TestIsDue_StartBound(t *testing.T) {
	e := NewEvaluator(fixedProjector(timeutil.WallClock{Minute: 0, Hour: 9, DayOfMonth: 6, Month: 1, DayOfWeek: 1}))

	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	reminder := recurring("* * * * *", now.Add(time.Hour))

	assert.False(t, e.IsDue(reminder, now), "recurrence has not started yet")

	reminder.ScheduledFor = now
	assert.True(t, e.IsDue(reminder, now), "start anchor itself is eligible")
}

func TestIsDue_EndDateTermination(t *testing.T) {
	e := NewEvaluator(fixedProjector(timeutil.WallClock{Minute: 0, Hour: 9, DayOfMonth: 6, Month: 1, DayOfWeek: 1}))

	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	reminder := recurring("* * * * *", now.Add(-48*time.Hour))

	past := now.Add(-time.Hour)
	reminder.EndDate = &past
	assert.False(t, e.IsDue(reminder, now), "window closed, never due again even on a cron match")

	reminder.EndDate = &now
	assert.True(t, e.IsDue(reminder, now), "end date itself is still inside the window")
}

func TestIsDue_MalformedCronNeverDue(t *testing.T) {
	e := NewEvaluator(fixedProjector(timeutil.WallClock{}))

	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	reminder := recurring("0 9 * *", now.Add(-time.Hour))

	assert.False(t, e.IsDue(reminder, now))
}

func TestIsDue_ProjectionFailureNeverDue(t *testing.T) {
	e := NewEvaluator(nil)

	now := time.Date(2025, 1, 6, 12, 0, 0, 0, time.UTC)
	reminder := recurring("* * * * *", now.Add(-time.Hour))
	reminder.Timezone = "Not/AZone"

	assert.False(t, e.IsDue(reminder, now))
}

func TestIsDue_WeekdayMorningScenario(t *testing.T) {
	// Real timezone projection: 0 9 * * 1-5 in America/Santiago (UTC-3 in
	// January). 2025-01-06 is a Monday, 2025-01-04 a Saturday.
	e := NewEvaluator(nil)

	loc, err := time.LoadLocation("America/Santiago")
	require.NoError(t, err)

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	reminder := recurring("0 9 * * 1-5", start)

	mondayNine := time.Date(2025, 1, 6, 9, 0, 0, 0, loc)
	assert.True(t, e.IsDue(reminder, mondayNine))

	mondayNineOhOne := time.Date(2025, 1, 6, 9, 1, 0, 0, loc)
	assert.False(t, e.IsDue(reminder, mondayNineOhOne), "minute field no longer matches")

	saturdayNine := time.Date(2025, 1, 4, 9, 0, 0, 0, loc)
	assert.False(t, e.IsDue(reminder, saturdayNine), "day-of-week excludes Saturday")
}
