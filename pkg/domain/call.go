package domain

import (
	"encoding/json"
	"net/http"
	"time"
)

// ToolCallRequest is a single call-by-name submitted to the gateway.
// Arguments stay raw so key order survives forwarding.
type ToolCallRequest struct {
	RequestID string
	ToolName  string
	Arguments json.RawMessage
	Headers   http.Header
}

// CallEnvelope is the inbound and outbound wire shape of a call.
type CallEnvelope struct {
	ToolMeta ToolMeta        `json:"tool_meta"`
	Args     json.RawMessage `json:"args,omitempty"`
}

// ToolMeta names the tool being invoked.
type ToolMeta struct {
	Name string `json:"name"`
}

// CallError describes why a call failed.
type CallError struct {
	Code    string         `json:"code,omitempty"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ToolCallResult is returned to the caller on every path, success or failure.
type ToolCallResult struct {
	Success bool            `json:"success"`
	Status  int             `json:"status"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *CallError      `json:"error,omitempty"`
}

// Succeeded builds a successful result carrying data.
func Succeeded(data json.RawMessage) ToolCallResult {
	return ToolCallResult{Success: true, Status: http.StatusOK, Data: data}
}

// Failed builds a failed result.
func Failed(status int, code, message string, details map[string]any) ToolCallResult {
	return ToolCallResult{
		Success: false,
		Status:  status,
		Error:   &CallError{Code: code, Message: message, Details: details},
	}
}

// FromError converts a DomainError-style failure into a result.
func FromError(status int, err error) ToolCallResult {
	if de, ok := err.(*DomainError); ok {
		return Failed(status, de.Code, de.Error(), de.Details)
	}
	return Failed(status, CodeInternal, err.Error(), nil)
}

// Summary returns a short outcome description for audit records.
func (r ToolCallResult) Summary() string {
	if r.Success {
		return "ok"
	}
	if r.Error == nil {
		return http.StatusText(r.Status)
	}
	if r.Error.Code != "" {
		return r.Error.Code + ": " + r.Error.Message
	}
	return r.Error.Message
}

// CallTimer measures call duration.
type CallTimer struct {
	start time.Time
}

// StartTimer begins timing a call.
func StartTimer() CallTimer {
	return CallTimer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t CallTimer) Elapsed() time.Duration {
	return time.Since(t.start)
}
