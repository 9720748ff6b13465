// Package script executes script-backed tools as local subprocesses.
//
// The call payload is written to the process stdin and the result is read
// from stdout as JSON. Every run ends in exactly one of four states: success,
// non-zero exit (500), malformed output (502) or timeout/cancel (504/499).
package script

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/exec"
	"time"

	"github.com/tidwall/gjson"

	"github.com/polisai/toolgate/pkg/domain"
)

// MaxOutputBytes caps each of stdout and stderr.
const MaxOutputBytes = 10 << 20

// StatusClientClosed reports a run aborted because the caller went away.
const StatusClientClosed = 499

// waitDelay bounds how long Wait blocks on pipes held open by descendants
// after the process is killed.
const waitDelay = 2 * time.Second

// Runner executes script commands.
type Runner struct {
	logger   *slog.Logger
	maxBytes int
	env      []string
}

// Option configures a Runner.
type Option func(*Runner)

// WithEnv sets the environment passed to scripts. By default scripts inherit
// the gateway's environment.
func WithEnv(env []string) Option {
	return func(r *Runner) {
		r.env = env
	}
}

// WithOutputLimit overrides MaxOutputBytes.
func WithOutputLimit(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.maxBytes = n
		}
	}
}

// NewRunner creates a script runner.
func NewRunner(logger *slog.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{logger: logger, maxBytes: MaxOutputBytes}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes command with input on stdin and waits at most timeout.
func (r *Runner) Run(ctx context.Context, command string, input []byte, timeout time.Duration) domain.ToolCallResult {
	argv, err := SplitCommand(command)
	if err != nil {
		return domain.Failed(http.StatusInternalServerError, domain.CodeScriptFailed,
			fmt.Sprintf("invalid script command: %v", err), nil)
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdin = bytes.NewReader(input)
	stdout := newCappedBuffer(r.maxBytes)
	stderr := newCappedBuffer(r.maxBytes)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = waitDelay
	if r.env != nil {
		cmd.Env = r.env
	}

	runErr := cmd.Run()

	switch {
	case ctx.Err() != nil:
		r.logger.Warn("script canceled", "command", argv[0], "error", ctx.Err())
		return domain.Failed(StatusClientClosed, domain.CodeCanceled, "script run canceled", nil)
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		r.logger.Warn("script timed out", "command", argv[0], "timeout", timeout)
		return domain.Failed(http.StatusGatewayTimeout, domain.CodeTimeout,
			fmt.Sprintf("script timed out after %s", timeout),
			map[string]any{"stderr": stderr.String()})
	}

	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		return domain.Failed(http.StatusInternalServerError, domain.CodeScriptFailed,
			fmt.Sprintf("script exited with code %d", exitErr.ExitCode()),
			map[string]any{
				"stdout":    stdout.String(),
				"stderr":    stderr.String(),
				"exit_code": exitErr.ExitCode(),
			})
	}
	if runErr != nil {
		r.logger.Error("script failed to start", "command", argv[0], "error", runErr)
		return domain.Failed(http.StatusInternalServerError, domain.CodeScriptFailed,
			fmt.Sprintf("script failed to start: %v", runErr), nil)
	}

	return parseOutput(stdout)
}

// parseOutput turns the stdout of a successful run into a result.
func parseOutput(stdout *cappedBuffer) domain.ToolCallResult {
	out := bytes.TrimSpace(stdout.Bytes())
	if stdout.Truncated() || !json.Valid(out) {
		details := map[string]any{"raw_stdout": stdout.String()}
		if stdout.Truncated() {
			details["truncated"] = true
		}
		return domain.Failed(http.StatusBadGateway, domain.CodeMalformedOutput,
			"script output is not valid JSON", details)
	}

	doc := gjson.ParseBytes(out)
	if success := doc.Get("success"); doc.IsObject() && (success.Type == gjson.True || success.Type == gjson.False) {
		return fromEnvelope(doc)
	}
	return domain.Succeeded(json.RawMessage(append([]byte(nil), out...)))
}

// fromEnvelope passes a script-built {"success":...} result through.
func fromEnvelope(doc gjson.Result) domain.ToolCallResult {
	result := domain.ToolCallResult{Success: doc.Get("success").Bool()}

	if status := doc.Get("status"); status.Type == gjson.Number {
		result.Status = int(status.Int())
	}
	if result.Status == 0 {
		result.Status = http.StatusOK
		if !result.Success {
			result.Status = http.StatusInternalServerError
		}
	}

	if data := doc.Get("data"); data.Exists() {
		result.Data = json.RawMessage(data.Raw)
	}

	errVal := doc.Get("error")
	switch {
	case errVal.IsObject():
		callErr := &domain.CallError{
			Code:    errVal.Get("code").String(),
			Message: errVal.Get("message").String(),
		}
		if details := errVal.Get("details"); details.IsObject() {
			if m, ok := details.Value().(map[string]any); ok {
				callErr.Details = m
			}
		}
		result.Error = callErr
	case errVal.Exists() && errVal.Type != gjson.Null:
		result.Error = &domain.CallError{Message: errVal.String()}
	}
	if !result.Success && result.Error == nil {
		result.Error = &domain.CallError{Code: domain.CodeScriptFailed, Message: "script reported failure"}
	}
	return result
}
