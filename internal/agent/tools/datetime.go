package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/camilorivas/mayordomo/internal/agent"
	"github.com/camilorivas/mayordomo/internal/timeutil"
)

// CurrentDateTimeTool reports the current date and time in the user's timezone
var CurrentDateTimeTool = agent.Tool{
	Name: "current_datetime",
	Description: `Returns the current date and time. Use this to resolve relative expressions
like "tomorrow", "next Tuesday" or "in two hours" before creating reminders or
calendar events. Defaults to the assistant timezone when none is given.`,
	InputSchema: agent.BuildJSONSchema("object", map[string]any{
		"timezone": map[string]any{
			"type":        "string",
			"description": "IANA timezone to report the time in. Optional.",
		},
	}, nil),
}

// RegisterDateTimeTool wires the datetime tool.
func RegisterDateTimeTool(registry *agent.ToolRegistry, defaultTimezone string) {
	registry.MustRegister(CurrentDateTimeTool, handleCurrentDateTime(defaultTimezone))
}

func handleCurrentDateTime(defaultTimezone string) agent.ToolHandler {
	return func(_ context.Context, input map[string]any) (string, error) {
		timezone := defaultTimezone
		if tz, ok := input["timezone"].(string); ok && tz != "" {
			timezone = tz
		}

		loc, fallback := timeutil.ResolveLocation(timezone)
		if fallback && timezone != "" {
			return "", fmt.Errorf("unknown timezone %q", timezone)
		}

		now := time.Now().In(loc)
		result, err := json.Marshal(map[string]any{
			"datetime": now.Format(time.RFC3339),
			"weekday":  now.Weekday().String(),
			"timezone": timezone,
		})
		if err != nil {
			return "", fmt.Errorf("failed to marshal result: %w", err)
		}
		return string(result), nil
	}
}
