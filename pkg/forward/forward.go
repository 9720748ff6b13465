// Package forward delivers tool calls to HTTP backends.
//
// A Forwarder POSTs a JSON payload, waits at most the backend timeout and
// returns the upstream JSON body. It never retries.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MaxResponseBytes caps how much of an upstream body is read.
const MaxResponseBytes = 10 << 20

// maxErrorBody caps the body excerpt carried on a TransportError.
const maxErrorBody = 4 << 10

// Forwarder posts call payloads to HTTP backends.
type Forwarder struct {
	client *http.Client
	logger *slog.Logger
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithHTTPClient replaces the default instrumented client.
func WithHTTPClient(client *http.Client) Option {
	return func(f *Forwarder) {
		if client != nil {
			f.client = client
		}
	}
}

// New creates a Forwarder whose transport emits OpenTelemetry client spans.
func New(logger *slog.Logger, opts ...Option) *Forwarder {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Forwarder{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport,
				otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
					return "toolgate.forward " + r.URL.Host
				}),
			),
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward POSTs payload to url and returns the JSON response body. An empty
// 2xx body is returned as JSON null. Every failure is a *TransportError.
func (f *Forwarder) Forward(ctx context.Context, url string, payload []byte, headers http.Header, timeout time.Duration) (json.RawMessage, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &TransportError{URL: url, Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header = outboundHeaders(headers)

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("timed out after %s: %w", timeout, context.DeadlineExceeded)
		}
		f.logger.Debug("forward failed", "url", url, "error", err)
		return nil, &TransportError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseBytes+1))
	if err != nil {
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}
	if len(body) > MaxResponseBytes {
		return nil, &TransportError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("response exceeds %d bytes", MaxResponseBytes),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Body: excerpt(body)}
	}

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return json.RawMessage("null"), nil
	}
	if !json.Valid(trimmed) {
		return nil, &TransportError{URL: url, StatusCode: resp.StatusCode, Body: excerpt(body), Err: errInvalidJSON}
	}
	return json.RawMessage(trimmed), nil
}

func excerpt(body []byte) string {
	if len(body) > maxErrorBody {
		return string(body[:maxErrorBody])
	}
	return string(body)
}
