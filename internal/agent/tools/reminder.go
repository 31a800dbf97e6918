package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camilorivas/mayordomo/internal/agent"
	"github.com/camilorivas/mayordomo/internal/database"
	"github.com/camilorivas/mayordomo/internal/schedule"
	"github.com/camilorivas/mayordomo/internal/timeutil"
)

// ReminderStore defines DB operations needed by the reminder tools.
type ReminderStore interface {
	CreateReminder(reminder *database.Reminder) (*database.Reminder, error)
	GetReminderByID(id int64) (*database.Reminder, error)
	ListRemindersForChat(chatID string, status *database.ReminderStatus) ([]database.Reminder, error)
	UpdateReminder(id int64, message string, scheduledFor time.Time, cronExpression *string, endDate *time.Time) error
	CancelReminder(id int64) (bool, error)
}

// CreateReminderTool creates a new reminder
var CreateReminderTool = agent.Tool{
	Name: "create_reminder",
	Description: `Creates a reminder for the user. Use this when the user asks to be reminded of
something. You are responsible for resolving natural language times ("tomorrow at 9",
"every weekday morning") into an absolute RFC3339 instant and, for recurring reminders,
a 5-field cron expression (minute hour day-of-month month day-of-week, 0 = Sunday).
Supported cron field syntax: "*", "*/n", "a-b", "a,b,c", or a bare integer; combined
forms like "1-5/2" and named days are NOT supported. Set process_with_agent to true
only when the reminder text is a prompt you should re-run at fire time (e.g. "summarize
my calendar") rather than literal text to send.`,
	InputSchema: agent.BuildJSONSchema("object", map[string]any{
		"chat_id": agent.PropertyString("Chat to deliver the reminder to"),
		"message": agent.PropertyString("Literal reminder text, or the prompt to run when process_with_agent is true"),
		"scheduled_for": agent.PropertyString("Fire time for one-time reminders, or the recurrence start anchor, in RFC3339 format"),
		"timezone": map[string]any{
			"type":        "string",
			"description": "IANA timezone for interpreting the cron expression. Optional - defaults to the assistant timezone.",
		},
		"cron_expression": map[string]any{
			"type":        "string",
			"description": "5-field cron expression for recurring reminders. Optional - omit for one-time reminders.",
		},
		"end_date": map[string]any{
			"type":        "string",
			"description": "RFC3339 instant after which a recurring reminder stops firing. Optional.",
		},
		"process_with_agent": agent.PropertyBool("Whether the message is a prompt to run through the agent at fire time"),
	}, []string{"chat_id", "message", "scheduled_for"}),
}

// ListRemindersTool lists a chat's pending reminders
var ListRemindersTool = agent.Tool{
	Name: "list_reminders",
	Description: `Lists the chat's pending reminders with their IDs, fire times and recurrence.
Use this before cancelling a reminder, or when the user asks what reminders they have.`,
	InputSchema: agent.BuildJSONSchema("object", map[string]any{
		"chat_id": agent.PropertyString("Chat whose reminders to list"),
	}, []string{"chat_id"}),
}

// UpdateReminderTool edits a pending reminder
var UpdateReminderTool = agent.Tool{
	Name: "update_reminder",
	Description: `Edits a pending reminder. Only the fields you provide change; omitted fields
keep their current value. Use list_reminders first to find the ID.`,
	InputSchema: agent.BuildJSONSchema("object", map[string]any{
		"reminder_id": agent.PropertyInt("ID of the reminder to edit"),
		"message": map[string]any{
			"type":        "string",
			"description": "New reminder text. Optional.",
		},
		"scheduled_for": map[string]any{
			"type":        "string",
			"description": "New fire time or recurrence anchor, RFC3339. Optional.",
		},
		"cron_expression": map[string]any{
			"type":        "string",
			"description": "New 5-field cron expression, or \"none\" to make the reminder one-time. Optional.",
		},
		"end_date": map[string]any{
			"type":        "string",
			"description": "New end date, RFC3339, or \"none\" to remove it. Optional.",
		},
	}, []string{"reminder_id"}),
}

// CancelReminderTool cancels a pending reminder
var CancelReminderTool = agent.Tool{
	Name: "cancel_reminder",
	Description: `Cancels a pending reminder by ID. Use list_reminders first to find the ID.
Cancellation is permanent; a cancelled reminder never fires again.`,
	InputSchema: agent.BuildJSONSchema("object", map[string]any{
		"reminder_id": agent.PropertyInt("ID of the reminder to cancel"),
	}, []string{"reminder_id"}),
}

// RegisterReminderTools wires the reminder tools against the store.
func RegisterReminderTools(registry *agent.ToolRegistry, db ReminderStore, defaultTimezone string) {
	registry.MustRegister(CreateReminderTool, handleCreateReminder(db, defaultTimezone))
	registry.MustRegister(ListRemindersTool, handleListReminders(db))
	registry.MustRegister(UpdateReminderTool, handleUpdateReminder(db))
	registry.MustRegister(CancelReminderTool, handleCancelReminder(db))
}

func handleCreateReminder(db ReminderStore, defaultTimezone string) agent.ToolHandler {
	return func(_ context.Context, input map[string]any) (string, error) {
		chatID, _ := input["chat_id"].(string)
		message, _ := input["message"].(string)
		scheduledForRaw, _ := input["scheduled_for"].(string)

		if chatID == "" || message == "" || scheduledForRaw == "" {
			return "", fmt.Errorf("chat_id, message and scheduled_for are required")
		}

		scheduledFor, err := time.Parse(time.RFC3339, scheduledForRaw)
		if err != nil {
			return "", fmt.Errorf("scheduled_for must be RFC3339: %w", err)
		}

		reminder := &database.Reminder{
			ChatID:       chatID,
			Message:      message,
			ScheduledFor: scheduledFor,
			Timezone:     defaultTimezone,
		}

		if tz, ok := input["timezone"].(string); ok && tz != "" {
			if _, fallback := timeutil.ResolveLocation(tz); fallback {
				return "", fmt.Errorf("unknown timezone %q", tz)
			}
			reminder.Timezone = tz
		}

		// Malformed recurrences are rejected here rather than being stored
		// and silently never firing.
		if expr, ok := input["cron_expression"].(string); ok && expr != "" {
			if err := schedule.ValidateCron(expr); err != nil {
				return "", fmt.Errorf("invalid cron expression: %w", err)
			}
			reminder.CronExpression = &expr
		}

		if endDateRaw, ok := input["end_date"].(string); ok && endDateRaw != "" {
			endDate, err := time.Parse(time.RFC3339, endDateRaw)
			if err != nil {
				return "", fmt.Errorf("end_date must be RFC3339: %w", err)
			}
			reminder.EndDate = &endDate
		}

		if v, ok := input["process_with_agent"].(bool); ok {
			reminder.ProcessWithAgent = v
		}

		created, err := db.CreateReminder(reminder)
		if err != nil {
			return "", fmt.Errorf("failed to create reminder: %w", err)
		}

		result, err := json.Marshal(map[string]any{
			"reminder_id":   created.ID,
			"scheduled_for": created.ScheduledFor.Format(time.RFC3339),
			"recurring":     created.IsRecurring(),
		})
		if err != nil {
			return "", fmt.Errorf("failed to marshal result: %w", err)
		}
		return string(result), nil
	}
}

type reminderSummary struct {
	ID             int64  `json:"id"`
	Message        string `json:"message"`
	ScheduledFor   string `json:"scheduled_for"`
	Timezone       string `json:"timezone"`
	CronExpression string `json:"cron_expression,omitempty"`
	EndDate        string `json:"end_date,omitempty"`
}

func handleListReminders(db ReminderStore) agent.ToolHandler {
	return func(_ context.Context, input map[string]any) (string, error) {
		chatID, _ := input["chat_id"].(string)
		if chatID == "" {
			return "", fmt.Errorf("chat_id is required")
		}

		status := database.ReminderStatusPending
		reminders, err := db.ListRemindersForChat(chatID, &status)
		if err != nil {
			return "", fmt.Errorf("failed to list reminders: %w", err)
		}

		summaries := make([]reminderSummary, 0, len(reminders))
		for _, r := range reminders {
			summary := reminderSummary{
				ID:           r.ID,
				Message:      r.Message,
				ScheduledFor: r.ScheduledFor.Format(time.RFC3339),
				Timezone:     r.Timezone,
			}
			if r.CronExpression != nil {
				summary.CronExpression = *r.CronExpression
			}
			if r.EndDate != nil {
				summary.EndDate = r.EndDate.Format(time.RFC3339)
			}
			summaries = append(summaries, summary)
		}

		result, err := json.Marshal(summaries)
		if err != nil {
			return "", fmt.Errorf("failed to marshal result: %w", err)
		}
		return string(result), nil
	}
}

func handleUpdateReminder(db ReminderStore) agent.ToolHandler {
	return func(_ context.Context, input map[string]any) (string, error) {
		idFloat, ok := input["reminder_id"].(float64)
		if !ok {
			return "", fmt.Errorf("reminder_id is required")
		}
		id := int64(idFloat)

		existing, err := db.GetReminderByID(id)
		if err != nil {
			return "", fmt.Errorf("failed to load reminder: %w", err)
		}
		if existing == nil {
			return "", fmt.Errorf("reminder %d not found", id)
		}
		if existing.Status != database.ReminderStatusPending {
			return "", fmt.Errorf("reminder %d is %s and cannot be edited", id, existing.Status)
		}

		message := existing.Message
		if v, ok := input["message"].(string); ok && v != "" {
			message = v
		}

		scheduledFor := existing.ScheduledFor
		if v, ok := input["scheduled_for"].(string); ok && v != "" {
			scheduledFor, err = time.Parse(time.RFC3339, v)
			if err != nil {
				return "", fmt.Errorf("scheduled_for must be RFC3339: %w", err)
			}
		}

		cronExpression := existing.CronExpression
		if v, ok := input["cron_expression"].(string); ok && v != "" {
			if v == "none" {
				cronExpression = nil
			} else {
				if err := schedule.ValidateCron(v); err != nil {
					return "", fmt.Errorf("invalid cron expression: %w", err)
				}
				cronExpression = &v
			}
		}

		endDate := existing.EndDate
		if v, ok := input["end_date"].(string); ok && v != "" {
			if v == "none" {
				endDate = nil
			} else {
				parsed, err := time.Parse(time.RFC3339, v)
				if err != nil {
					return "", fmt.Errorf("end_date must be RFC3339: %w", err)
				}
				endDate = &parsed
			}
		}

		if err := db.UpdateReminder(id, message, scheduledFor, cronExpression, endDate); err != nil {
			return "", fmt.Errorf("failed to update reminder: %w", err)
		}

		return fmt.Sprintf(`{"updated":true,"reminder_id":%d}`, id), nil
	}
}

func handleCancelReminder(db ReminderStore) agent.ToolHandler {
	return func(_ context.Context, input map[string]any) (string, error) {
		idFloat, ok := input["reminder_id"].(float64)
		if !ok {
			return "", fmt.Errorf("reminder_id is required")
		}
		id := int64(idFloat)

		cancelled, err := db.CancelReminder(id)
		if err != nil {
			return "", fmt.Errorf("failed to cancel reminder: %w", err)
		}
		if !cancelled {
			return fmt.Sprintf(`{"cancelled":false,"reason":"reminder %d is not pending"}`, id), nil
		}

		return fmt.Sprintf(`{"cancelled":true,"reminder_id":%d}`, id), nil
	}
}
