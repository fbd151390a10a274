// Package clock provides a niladic tool that reports the current time.
package clock

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nevindra/conduit"
)

// Tool reports the current time, optionally in a named IANA timezone.
type Tool struct {
	now func() time.Time
}

// New creates a clock tool.
func New() *Tool {
	return &Tool{now: time.Now}
}

func (t *Tool) Definitions() []conduit.ToolDefinition {
	return []conduit.ToolDefinition{{
		Name:        "get_time",
		Description: "Get the current date and time. Optionally pass an IANA timezone name (e.g. \"America/Los_Angeles\").",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"tz":{"type":"string","description":"IANA timezone name"}}}`),
	}}
}

func (t *Tool) Execute(_ context.Context, _ string, args string) (string, error) {
	var params struct {
		TZ string `json:"tz"`
	}
	// Niladic calls arrive as "{}"; a missing tz means local time.
	if err := json.Unmarshal([]byte(args), &params); err != nil {
		params.TZ = ""
	}

	now := t.now()
	if params.TZ != "" {
		loc, err := time.LoadLocation(params.TZ)
		if err != nil {
			return "", err
		}
		now = now.In(loc)
	}

	out, _ := json.Marshal(struct {
		Time     string `json:"time"`
		Timezone string `json:"timezone"`
	}{
		Time:     now.Format(time.RFC3339),
		Timezone: now.Location().String(),
	})
	return string(out), nil
}

var _ conduit.Tool = (*Tool)(nil)
