package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camilorivas/mayordomo/internal/agent"
	"github.com/camilorivas/mayordomo/internal/gcal"
)

// CalendarClient defines the Google Calendar operations the calendar tools use.
type CalendarClient interface {
	IsAuthenticated() bool
	ListUpcomingEvents(window time.Duration, maxResults int64) ([]gcal.EventDetails, error)
	CreateEvent(input gcal.EventInput) (string, error)
}

// ListCalendarEventsTool lists upcoming Google Calendar events
var ListCalendarEventsTool = agent.Tool{
	Name: "list_calendar_events",
	Description: `Lists the user's upcoming Google Calendar events. Use this when the user asks
about their schedule or when composing a daily summary.`,
	InputSchema: agent.BuildJSONSchema("object", map[string]any{
		"days_ahead": agent.PropertyInt("How many days ahead to look. Optional - defaults to 7."),
	}, nil),
}

// CreateCalendarEventTool creates a Google Calendar event
var CreateCalendarEventTool = agent.Tool{
	Name: "create_calendar_event",
	Description: `Creates an event in the user's primary Google Calendar. Resolve natural
language times into RFC3339 instants before calling.`,
	InputSchema: agent.BuildJSONSchema("object", map[string]any{
		"summary": agent.PropertyString("Event title"),
		"description": map[string]any{
			"type":        "string",
			"description": "Event description. Optional.",
		},
		"location": map[string]any{
			"type":        "string",
			"description": "Event location. Optional.",
		},
		"start_time": agent.PropertyString("Event start in RFC3339 format"),
		"end_time":   agent.PropertyString("Event end in RFC3339 format"),
	}, []string{"summary", "start_time", "end_time"}),
}

// RegisterCalendarTools wires the calendar tools against a Google Calendar client.
func RegisterCalendarTools(registry *agent.ToolRegistry, client CalendarClient) {
	registry.MustRegister(ListCalendarEventsTool, handleListCalendarEvents(client))
	registry.MustRegister(CreateCalendarEventTool, handleCreateCalendarEvent(client))
}

func handleListCalendarEvents(client CalendarClient) agent.ToolHandler {
	return func(_ context.Context, input map[string]any) (string, error) {
		if client == nil || !client.IsAuthenticated() {
			return "", fmt.Errorf("google calendar is not connected")
		}

		daysAhead := 7
		if v, ok := input["days_ahead"].(float64); ok && v > 0 {
			daysAhead = int(v)
		}

		events, err := client.ListUpcomingEvents(time.Duration(daysAhead)*24*time.Hour, 25)
		if err != nil {
			return "", fmt.Errorf("failed to list calendar events: %w", err)
		}

		type eventSummary struct {
			ID        string `json:"id"`
			Summary   string `json:"summary"`
			Location  string `json:"location,omitempty"`
			StartTime string `json:"start_time"`
			EndTime   string `json:"end_time,omitempty"`
			AllDay    bool   `json:"all_day,omitempty"`
		}

		summaries := make([]eventSummary, 0, len(events))
		for _, event := range events {
			summary := eventSummary{
				ID:        event.ID,
				Summary:   event.Summary,
				Location:  event.Location,
				StartTime: event.StartTime.Format(time.RFC3339),
				AllDay:    event.AllDay,
			}
			if event.EndTime != nil {
				summary.EndTime = event.EndTime.Format(time.RFC3339)
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

func handleCreateCalendarEvent(client CalendarClient) agent.ToolHandler {
	return func(_ context.Context, input map[string]any) (string, error) {
		if client == nil || !client.IsAuthenticated() {
			return "", fmt.Errorf("google calendar is not connected")
		}

		summary, _ := input["summary"].(string)
		startRaw, _ := input["start_time"].(string)
		endRaw, _ := input["end_time"].(string)
		if summary == "" || startRaw == "" || endRaw == "" {
			return "", fmt.Errorf("summary, start_time and end_time are required")
		}

		startTime, err := time.Parse(time.RFC3339, startRaw)
		if err != nil {
			return "", fmt.Errorf("start_time must be RFC3339: %w", err)
		}
		endTime, err := time.Parse(time.RFC3339, endRaw)
		if err != nil {
			return "", fmt.Errorf("end_time must be RFC3339: %w", err)
		}

		eventInput := gcal.EventInput{
			Summary:   summary,
			StartTime: startTime,
			EndTime:   endTime,
		}
		if v, ok := input["description"].(string); ok {
			eventInput.Description = v
		}
		if v, ok := input["location"].(string); ok {
			eventInput.Location = v
		}

		eventID, err := client.CreateEvent(eventInput)
		if err != nil {
			return "", fmt.Errorf("failed to create calendar event: %w", err)
		}

		return fmt.Sprintf(`{"created":true,"event_id":%q}`, eventID), nil
	}
}
