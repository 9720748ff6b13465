package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/polisai/toolgate/pkg/domain"
	"github.com/polisai/toolgate/pkg/forward"
	"github.com/polisai/toolgate/pkg/registry"
	"github.com/polisai/toolgate/pkg/script"
)

func scriptRunnerDefault(logger *slog.Logger) ScriptRunner {
	return script.NewRunner(logger)
}

// callHTTP forwards the payload to an http_mcp backend.
func (g *Gateway) callHTTP(ctx context.Context, tool *registry.Tool, backend *registry.Backend, payload []byte, callerHeaders http.Header) domain.ToolCallResult {
	headers, source := g.resolver.ResolveWithSource(callerHeaders, backend)
	g.logger.Debug("credential resolved", "backend", backend.Name, "source", source)
	for name, value := range backend.Headers {
		if headers.Get(name) == "" {
			headers.Set(name, value)
		}
	}

	start := time.Now()
	data, err := g.forwarder.Forward(ctx, backend.URL, payload, headers, backend.Timeout)
	elapsed := time.Since(start)

	if err == nil {
		g.metrics.RecordForward(backend.Name, tool.Name, http.StatusOK, elapsed)
		return domain.Succeeded(data)
	}

	var te *forward.TransportError
	upstream := 0
	if errors.As(err, &te) {
		upstream = te.StatusCode
	}
	g.metrics.RecordForward(backend.Name, tool.Name, upstream, elapsed)
	if upstream == http.StatusUnauthorized || upstream == http.StatusForbidden {
		g.metrics.RecordAuthFailure(backend.Name, tool.Name)
	}

	g.logger.Warn("forward failed",
		"tool", tool.Name,
		"backend", backend.Name,
		"upstream_status", upstream,
		"error", err)
	return transportFailure(ctx, err, te)
}

// transportFailure maps a forward error onto a caller-facing result.
func transportFailure(ctx context.Context, err error, te *forward.TransportError) domain.ToolCallResult {
	details := map[string]any{}
	status := http.StatusBadGateway
	code := domain.CodeTransport

	if te != nil {
		details["status_code"] = te.StatusCode
		details["body"] = te.Body
		if te.StatusCode >= 400 && te.StatusCode <= 599 {
			status = te.StatusCode
		}
	}

	switch {
	case ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled):
		status, code = script.StatusClientClosed, domain.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, domain.CodeTimeout
	}

	return domain.Failed(status, code, err.Error(), details)
}

// callScript runs a script backend with the payload on stdin.
func (g *Gateway) callScript(ctx context.Context, backend *registry.Backend, payload []byte) domain.ToolCallResult {
	start := time.Now()
	result := g.runner.Run(ctx, backend.Command, payload, backend.Timeout)
	g.metrics.RecordScriptRun(backend.Name, result.Success, time.Since(start))

	if !result.Success {
		g.logger.Warn("script failed",
			"backend", backend.Name,
			"status", result.Status,
			"outcome", result.Summary())
	}
	return result
}
