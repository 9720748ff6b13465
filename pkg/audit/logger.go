package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Message is the slog message of every audit record.
const Message = "tool_call_audit"

// Sink receives audit events in addition to the process log.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Entry is the unredacted input for one audit record.
type Entry struct {
	RequestID string
	ToolName  string
	Backend   string
	Headers   http.Header
	Arguments json.RawMessage
	Outcome   string
	Status    int
	Duration  time.Duration
	Success   bool
}

// Logger redacts entries and emits them to slog and every configured sink.
type Logger struct {
	logger *slog.Logger
	sinks  []Sink
	now    func() time.Time
}

// NewLogger creates an audit logger writing to logger and any sinks.
func NewLogger(logger *slog.Logger, sinks ...Sink) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{logger: logger, sinks: sinks, now: time.Now}
}

// Record redacts entry into an Event and emits it.
func (l *Logger) Record(ctx context.Context, entry Entry) Event {
	event := Event{
		Timestamp:  l.now().UTC(),
		RequestID:  entry.RequestID,
		ToolName:   entry.ToolName,
		Backend:    entry.Backend,
		Headers:    RedactHTTPHeader(entry.Headers),
		Arguments:  RedactJSON(entry.Arguments),
		Outcome:    entry.Outcome,
		Status:     entry.Status,
		DurationMS: entry.Duration.Milliseconds(),
		Success:    entry.Success,
	}
	l.Emit(ctx, event)
	return event
}

// Emit writes an already redacted event. Sink errors are logged and dropped.
func (l *Logger) Emit(ctx context.Context, event Event) {
	level := slog.LevelInfo
	if !event.Success {
		level = slog.LevelWarn
	}
	l.logger.LogAttrs(ctx, level, Message, slog.Any("audit", event))

	for _, sink := range l.sinks {
		if err := safeWrite(ctx, sink, event); err != nil {
			l.logger.Error("audit sink write failed",
				"request_id", event.RequestID,
				"error", err)
		}
	}
}

func safeWrite(ctx context.Context, sink Sink, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &sinkPanicError{value: r}
		}
	}()
	return sink.Write(ctx, event)
}

type sinkPanicError struct {
	value any
}

func (e *sinkPanicError) Error() string {
	return fmt.Sprintf("audit sink panicked: %v", e.value)
}
