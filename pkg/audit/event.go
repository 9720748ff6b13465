package audit

import (
	"encoding/json"
	"log/slog"
	"time"
)

// Event is the immutable record of one tool call attempt. Headers and
// Arguments are already redacted when an Event leaves this package.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	RequestID  string            `json:"request_id"`
	ToolName   string            `json:"tool_name"`
	Backend    string            `json:"backend"`
	Headers    map[string]string `json:"headers,omitempty"`
	Arguments  json.RawMessage   `json:"arguments,omitempty"`
	Outcome    string            `json:"outcome"`
	Status     int               `json:"status"`
	DurationMS int64             `json:"duration_ms"`
	Success    bool              `json:"success"`
}

// LogValue renders the event as a structured slog group.
func (e Event) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("request_id", e.RequestID),
		slog.String("tool_name", e.ToolName),
		slog.String("backend", e.Backend),
		slog.String("outcome", e.Outcome),
		slog.Int("status", e.Status),
		slog.Int64("duration_ms", e.DurationMS),
		slog.Bool("success", e.Success),
	}
	if len(e.Headers) > 0 {
		attrs = append(attrs, slog.Any("headers", e.Headers))
	}
	if len(e.Arguments) > 0 {
		attrs = append(attrs, slog.String("arguments", string(e.Arguments)))
	}
	return slog.GroupValue(attrs...)
}
