// Package audit redacts sensitive header and argument values and emits one
// structured audit event per tool call attempt.
//
// Redaction applies a fixed, case-insensitive key denylist at every nesting
// level. Events are written to the process log through slog and fanned out to
// optional sinks such as the SQLite store; sinks never block or fail a call.
package audit
