package domain

import "errors"

// Common domain errors
var (
	ErrConfigInvalid   = errors.New("invalid configuration")
	ErrUnknownTool     = errors.New("unknown tool")
	ErrUnknownBackend  = errors.New("unknown backend")
	ErrPolicyViolation = errors.New("policy violation")
	ErrTransport       = errors.New("transport failure")
	ErrInvalidRequest  = errors.New("invalid request")
)

// Error codes surfaced in ToolCallResult.Error.Code.
const (
	CodeUnknownTool     = "unknown_tool"
	CodeUnknownBackend  = "unknown_backend"
	CodePolicyViolation = "policy_violation"
	CodeTransport       = "transport_error"
	CodeScriptFailed    = "script_failed"
	CodeMalformedOutput = "malformed_output"
	CodeTimeout         = "timeout"
	CodeCanceled        = "canceled"
	CodeInvalidRequest  = "invalid_request"
	CodeInternal        = "internal_error"
)

// DomainError wraps errors with additional context.
//
//nolint:revive // Name is intentionally verbose to distinguish domain-layer errors
type DomainError struct {
	Err     error
	Code    string
	Message string
	Details map[string]any
}

func (e *DomainError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Code
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// UnknownToolError reports a call naming a tool absent from the registry.
type UnknownToolError struct {
	Tool string
}

func (e *UnknownToolError) Error() string {
	return "unknown tool: " + e.Tool
}

func (e *UnknownToolError) Is(target error) bool {
	return target == ErrUnknownTool
}

// UnknownBackendError reports a tool whose backend is absent from the registry snapshot.
type UnknownBackendError struct {
	Tool    string
	Backend string
}

func (e *UnknownBackendError) Error() string {
	return "unknown backend " + e.Backend + " for tool " + e.Tool
}

func (e *UnknownBackendError) Is(target error) bool {
	return target == ErrUnknownBackend
}

// IsUnknownTool checks if the error indicates an unknown tool
func IsUnknownTool(err error) bool {
	return errors.Is(err, ErrUnknownTool)
}

// IsUnknownBackend checks if the error indicates an unknown backend
func IsUnknownBackend(err error) bool {
	return errors.Is(err, ErrUnknownBackend)
}
