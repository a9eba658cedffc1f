package tools

import (
	"context"
	"fmt"
	"time"
)

// DateTimeTool reports the current date and time, optionally in a requested
// IANA time zone.
type DateTimeTool struct {
	defaultZone *time.Location
	now         func() time.Time
}

func NewDateTimeTool(defaultZone string) *DateTimeTool {
	loc, err := time.LoadLocation(defaultZone)
	if err != nil || defaultZone == "" {
		loc = time.UTC
	}
	return &DateTimeTool{defaultZone: loc, now: time.Now}
}

func (t *DateTimeTool) Name() string { return "get_datetime" }

func (t *DateTimeTool) Description() string {
	return "Get the current date and time. Useful for questions about today's date, the day of the week, or the time in a given time zone."
}

func (t *DateTimeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"timezone": map[string]interface{}{
				"type":        "string",
				"description": "IANA time zone name (e.g. 'Europe/Berlin'). Defaults to the bot's configured zone.",
			},
		},
	}
}

func (t *DateTimeTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	loc := t.defaultZone
	if tz, ok := args["timezone"].(string); ok && tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			return ErrorResult(fmt.Sprintf("unknown time zone %q", tz))
		}
		loc = parsed
	}

	now := t.now().In(loc)
	return NewResult(fmt.Sprintf("Current date and time: %s (%s)",
		now.Format("Monday, 2 January 2006 15:04"), loc.String()))
}
