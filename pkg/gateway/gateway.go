// Package gateway resolves named tool calls and dispatches them to HTTP or
// script backends.
//
// A call flows through registry lookup, policy enforcement, credential
// injection and backend dispatch. Every call, including rejected ones,
// produces exactly one audit event and one tool-call metric.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/polisai/toolgate/pkg/audit"
	"github.com/polisai/toolgate/pkg/credentials"
	"github.com/polisai/toolgate/pkg/domain"
	"github.com/polisai/toolgate/pkg/forward"
	"github.com/polisai/toolgate/pkg/metrics"
	"github.com/polisai/toolgate/pkg/policy"
	"github.com/polisai/toolgate/pkg/registry"
)

const tracerName = "toolgate.gateway"

// RegistrySource yields the registry snapshot used for one call. Both
// *registry.Registry and *registry.Provider satisfy it.
type RegistrySource interface {
	Current() *registry.Registry
}

// Forwarder delivers a payload to an HTTP backend.
type Forwarder interface {
	Forward(ctx context.Context, url string, payload []byte, headers http.Header, timeout time.Duration) (json.RawMessage, error)
}

// ScriptRunner executes a script backend.
type ScriptRunner interface {
	Run(ctx context.Context, command string, input []byte, timeout time.Duration) domain.ToolCallResult
}

// Options wires a Gateway. Registry is required; every other field has a
// working default.
type Options struct {
	Registry  RegistrySource
	Enforcer  *policy.Enforcer
	Resolver  *credentials.Resolver
	Forwarder Forwarder
	Runner    ScriptRunner
	Audit     *audit.Logger
	Metrics   *metrics.Metrics
	Logger    *slog.Logger
}

// Gateway executes tool calls.
type Gateway struct {
	registry  RegistrySource
	enforcer  *policy.Enforcer
	resolver  *credentials.Resolver
	forwarder Forwarder
	runner    ScriptRunner
	audit     *audit.Logger
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("gateway: registry is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := &Gateway{
		registry:  opts.Registry,
		enforcer:  opts.Enforcer,
		resolver:  opts.Resolver,
		forwarder: opts.Forwarder,
		runner:    opts.Runner,
		audit:     opts.Audit,
		metrics:   opts.Metrics,
		logger:    logger,
	}
	if g.enforcer == nil {
		g.enforcer = policy.NewEnforcer()
	}
	if g.resolver == nil {
		g.resolver = credentials.NewResolver(credentials.EnvSource{}, "")
	}
	if g.forwarder == nil {
		g.forwarder = forward.New(logger)
	}
	if g.runner == nil {
		g.runner = scriptRunnerDefault(logger)
	}
	if g.audit == nil {
		g.audit = audit.NewLogger(logger)
	}
	return g, nil
}

// Registry returns the registry snapshot new calls will use.
func (g *Gateway) Registry() *registry.Registry {
	return g.registry.Current()
}

// Call executes one tool call. It never returns an error: every failure is
// expressed as a failed result.
func (g *Gateway) Call(ctx context.Context, req domain.ToolCallRequest) (result domain.ToolCallResult) {
	timer := domain.StartTimer()
	ctx, span, req := g.startCall(ctx, req)

	backendName := ""
	defer func() {
		g.finish(ctx, span, req, backendName, result, timer.Elapsed())
	}()

	reg := g.registry.Current()
	tool := reg.GetTool(req.ToolName)
	if tool == nil {
		return domain.FromError(http.StatusNotFound, &domain.DomainError{
			Err:     &domain.UnknownToolError{Tool: req.ToolName},
			Code:    domain.CodeUnknownTool,
			Message: fmt.Sprintf("unknown tool %q", req.ToolName),
		})
	}

	backendName = tool.Backend
	backend := reg.GetBackend(tool.Backend)
	if backend == nil {
		return domain.FromError(http.StatusNotFound, &domain.DomainError{
			Err:     &domain.UnknownBackendError{Tool: tool.Name, Backend: tool.Backend},
			Code:    domain.CodeUnknownBackend,
			Message: fmt.Sprintf("unknown backend %q for tool %q", tool.Backend, tool.Name),
		})
	}
	span.SetAttributes(attribute.String("toolgate.backend", backend.Name))

	args, err := normalizeArguments(req.Arguments)
	if err != nil {
		return domain.Failed(http.StatusBadRequest, domain.CodeInvalidRequest, err.Error(), nil)
	}

	if err := g.enforcer.Enforce(ctx, tool.Name, tool.Policy, args); err != nil {
		return g.policyFailure(tool.Name, err)
	}

	payload, err := json.Marshal(domain.CallEnvelope{
		ToolMeta: domain.ToolMeta{Name: tool.Name},
		Args:     args,
	})
	if err != nil {
		return domain.Failed(http.StatusInternalServerError, domain.CodeInternal,
			fmt.Sprintf("encode call payload: %v", err), nil)
	}

	switch backend.Type {
	case registry.BackendHTTP:
		return g.callHTTP(ctx, tool, backend, payload, req.Headers)
	case registry.BackendScript:
		return g.callScript(ctx, backend, payload)
	default:
		return domain.Failed(http.StatusInternalServerError, domain.CodeInternal,
			fmt.Sprintf("backend %q has unsupported type %q", backend.Name, backend.Type), nil)
	}
}

// Reject records a call that failed before it could be resolved, such as
// an undecodable request body. It emits the same audit event and metric as
// Call and returns result unchanged.
func (g *Gateway) Reject(ctx context.Context, req domain.ToolCallRequest, result domain.ToolCallResult) domain.ToolCallResult {
	timer := domain.StartTimer()
	ctx, span, req := g.startCall(ctx, req)
	g.finish(ctx, span, req, "", result, timer.Elapsed())
	return result
}

func (g *Gateway) startCall(ctx context.Context, req domain.ToolCallRequest) (context.Context, trace.Span, domain.ToolCallRequest) {
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	ctx, span := otel.Tracer(tracerName).Start(ctx, "toolgate.call",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("toolgate.tool", req.ToolName),
			attribute.String("toolgate.request_id", req.RequestID),
		),
	)
	return ctx, span, req
}

func (g *Gateway) policyFailure(tool string, err error) domain.ToolCallResult {
	g.metrics.RecordPolicyViolation(tool)

	var violation *policy.ViolationError
	if errors.As(err, &violation) {
		return domain.Failed(http.StatusForbidden, domain.CodePolicyViolation, violation.Error(),
			map[string]any{"rule": violation.Rule, "reason": violation.Reason})
	}
	return domain.Failed(http.StatusForbidden, domain.CodePolicyViolation, err.Error(), nil)
}

// finish emits the audit event, metric and span status for a call.
func (g *Gateway) finish(ctx context.Context, span trace.Span, req domain.ToolCallRequest, backend string, result domain.ToolCallResult, elapsed time.Duration) {
	outcome := metrics.OutcomeSuccess
	if !result.Success {
		outcome = metrics.OutcomeFailure
	}
	g.metrics.RecordToolCall(req.ToolName, outcome)

	g.audit.Record(ctx, audit.Entry{
		RequestID: req.RequestID,
		ToolName:  req.ToolName,
		Backend:   backend,
		Headers:   req.Headers,
		Arguments: req.Arguments,
		Outcome:   result.Summary(),
		Status:    result.Status,
		Duration:  elapsed,
		Success:   result.Success,
	})

	span.SetAttributes(
		attribute.Int("toolgate.status", result.Status),
		attribute.String("toolgate.outcome", outcome),
	)
	if !result.Success {
		span.SetStatus(codes.Error, result.Summary())
	}
	span.End()
}

// normalizeArguments requires a JSON object and maps an absent body to {}.
func normalizeArguments(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		return json.RawMessage(`{}`), nil
	}
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("arguments are not valid JSON")
	}
	if trimmed[0] != '{' {
		return nil, fmt.Errorf("arguments must be a JSON object")
	}
	return trimmed, nil
}
