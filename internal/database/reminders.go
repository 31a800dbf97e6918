package database

import (
	"database/sql"
	"fmt"
	"time"
)

// ReminderStatus represents the status of a reminder
type ReminderStatus string

const (
	ReminderStatusPending   ReminderStatus = "pending"
	ReminderStatusSent      ReminderStatus = "sent"
	ReminderStatusCancelled ReminderStatus = "cancelled"
)

// Reminder is a scheduled message for a chat. A reminder with a cron
// expression fires repeatedly and stays pending; one without fires once and
// transitions to sent. Cancellation is a status change, never a DELETE.
type Reminder struct {
	ID               int64          `json:"id"`
	ChatID           string         `json:"chat_id"`
	Message          string         `json:"message"`
	ScheduledFor     time.Time      `json:"scheduled_for"`
	Timezone         string         `json:"timezone"`
	Status           ReminderStatus `json:"status"`
	ProcessWithAgent bool           `json:"process_with_agent"`
	CronExpression   *string        `json:"cron_expression,omitempty"`
	EndDate          *time.Time     `json:"end_date,omitempty"`
	LastSent         *time.Time     `json:"last_sent,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// IsRecurring reports whether the reminder is driven by a cron expression.
func (r *Reminder) IsRecurring() bool {
	return r.CronExpression != nil && *r.CronExpression != ""
}

// CreateReminder inserts a new pending reminder.
func (d *DB) CreateReminder(reminder *Reminder) (*Reminder, error) {
	if reminder.Timezone == "" {
		reminder.Timezone = "America/Santiago"
	}

	result, err := d.Exec(`
		INSERT INTO reminders (
			chat_id, message, scheduled_for, timezone, status,
			process_with_agent, cron_expression, end_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		reminder.ChatID, reminder.Message, reminder.ScheduledFor.UTC(), reminder.Timezone,
		ReminderStatusPending, reminder.ProcessWithAgent, reminder.CronExpression, reminder.EndDate,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reminder: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder id: %w", err)
	}

	reminder.ID = id
	reminder.Status = ReminderStatusPending
	reminder.CreatedAt = time.Now()
	reminder.UpdatedAt = time.Now()

	return reminder, nil
}

type reminderScanner interface {
	Scan(dest ...any) error
}

func scanReminder(scanner reminderScanner) (*Reminder, error) {
	var reminder Reminder
	var cronNull sql.NullString
	var endDateNull sql.NullTime
	var lastSentNull sql.NullTime

	err := scanner.Scan(
		&reminder.ID, &reminder.ChatID, &reminder.Message, &reminder.ScheduledFor,
		&reminder.Timezone, &reminder.Status, &reminder.ProcessWithAgent,
		&cronNull, &endDateNull, &lastSentNull,
		&reminder.CreatedAt, &reminder.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cronNull.Valid {
		reminder.CronExpression = &cronNull.String
	}
	if endDateNull.Valid {
		endDate := endDateNull.Time
		reminder.EndDate = &endDate
	}
	if lastSentNull.Valid {
		lastSent := lastSentNull.Time
		reminder.LastSent = &lastSent
	}

	return &reminder, nil
}

const reminderColumns = `
	id, chat_id, message, scheduled_for, timezone, status,
	process_with_agent, cron_expression, end_date, last_sent,
	created_at, updated_at`

// GetReminderByID retrieves a reminder by its ID. Returns nil when not found.
func (d *DB) GetReminderByID(id int64) (*Reminder, error) {
	reminder, err := scanReminder(d.QueryRow(
		`SELECT`+reminderColumns+` FROM reminders WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reminder: %w", err)
	}

	return reminder, nil
}

// ListPendingReminders retrieves every pending reminder, deliberately without
// any time filter: due-ness is decided in-process by the scheduler so the
// evaluation logic stays testable independent of storage.
func (d *DB) ListPendingReminders() ([]Reminder, error) {
	rows, err := d.Query(
		`SELECT`+reminderColumns+` FROM reminders WHERE status = ?`, ReminderStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending reminders: %w", err)
	}
	defer rows.Close()

	var reminders []Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, *reminder)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}

	return reminders, nil
}

// ListRemindersForChat retrieves reminders for a chat, optionally filtered by status.
func (d *DB) ListRemindersForChat(chatID string, status *ReminderStatus) ([]Reminder, error) {
	query := `SELECT` + reminderColumns + ` FROM reminders WHERE chat_id = ?`
	args := []any{chatID}

	if status != nil {
		query += " AND status = ?"
		args = append(args, *status)
	}

	query += " ORDER BY scheduled_for ASC, created_at ASC"

	rows, err := d.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminders for chat: %w", err)
	}
	defer rows.Close()

	var reminders []Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		reminders = append(reminders, *reminder)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reminders: %w", err)
	}

	return reminders, nil
}

// MarkReminderFired records a successful delivery. One-time reminders move to
// sent; recurring ones stay pending with last_sent advanced. The update only
// applies while the row is still pending, so a concurrent external cancel is
// never resurrected. Returns true only when this call changed the row.
func (d *DB) MarkReminderFired(id int64, lastSent time.Time, oneTime bool) (bool, error) {
	status := ReminderStatusPending
	if oneTime {
		status = ReminderStatusSent
	}

	result, err := d.Exec(`
		UPDATE reminders
		SET last_sent = ?, status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, lastSent.UTC(), status, id, ReminderStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to mark reminder fired: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// UpdateReminder updates an editable pending reminder.
func (d *DB) UpdateReminder(
	id int64,
	message string,
	scheduledFor time.Time,
	cronExpression *string,
	endDate *time.Time,
) error {
	_, err := d.Exec(`
		UPDATE reminders
		SET message = ?, scheduled_for = ?, cron_expression = ?, end_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, message, scheduledFor.UTC(), cronExpression, endDate, id, ReminderStatusPending)
	if err != nil {
		return fmt.Errorf("failed to update reminder: %w", err)
	}
	return nil
}

// CancelReminder marks a pending reminder as cancelled.
// Returns true only when this call changed the row.
func (d *DB) CancelReminder(id int64) (bool, error) {
	result, err := d.Exec(`
		UPDATE reminders
		SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, ReminderStatusCancelled, id, ReminderStatusPending)
	if err != nil {
		return false, fmt.Errorf("failed to cancel reminder: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CountPendingReminders returns the number of pending reminders
func (d *DB) CountPendingReminders() (int, error) {
	var count int
	err := d.QueryRow(`SELECT COUNT(*) FROM reminders WHERE status = ?`, ReminderStatusPending).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending reminders: %w", err)
	}
	return count, nil
}
