package gateway

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polisai/toolgate/pkg/domain"
)

func serve(t *testing.T, f *fixture, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	srv := NewServer(f.gw, f.metrics, quietLogger())
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder) domain.ToolCallResult {
	t.Helper()
	var res domain.ToolCallResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res), rec.Body.String())
	return res
}

func TestServer_Call(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{"rows":[]}`)

	for _, path := range []string{"/call", "/tools/call"} {
		rec := serve(t, f, http.MethodPost, path,
			`{"tool_meta":{"name":"graph_query"},"args":{"query":"MATCH (n) RETURN n"}}`,
			map[string]string{"X-Request-ID": "abc-123", "Mcp-Session-Id": "s1"})

		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
		res := decodeResult(t, rec)
		assert.True(t, res.Success)
		assert.JSONEq(t, `{"rows":[]}`, string(res.Data))
	}

	assert.Equal(t, "s1", f.backend.headers.Get("Mcp-Session-Id"))
	events := f.sink.all()
	require.Len(t, events, 2)
	assert.Equal(t, "abc-123", events[0].RequestID)
}

func TestServer_CallGeneratesRequestID(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`)
	rec := serve(t, f, http.MethodPost, "/call", `{"tool_meta":{"name":"graph_query"}}`, nil)

	id := rec.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	events := f.sink.all()
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].RequestID)
}

func TestServer_CallFailuresAreJSON(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"malformed body", `{"tool_meta":`, http.StatusBadRequest, domain.CodeInvalidRequest},
		{"missing name", `{"args":{}}`, http.StatusBadRequest, domain.CodeInvalidRequest},
		{"unknown tool", `{"tool_meta":{"name":"ghost"}}`, http.StatusNotFound, domain.CodeUnknownTool},
		{"policy violation", `{"tool_meta":{"name":"graph_query"},"args":{"op":"write"}}`, http.StatusForbidden, domain.CodePolicyViolation},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, f, http.MethodPost, "/call", tt.body,
				map[string]string{"Authorization": "Bearer caller-secret"})
			assert.Equal(t, tt.status, rec.Code)
			res := decodeResult(t, rec)
			assert.False(t, res.Success)
			assert.Equal(t, tt.status, res.Status)
			require.NotNil(t, res.Error)
			assert.Equal(t, tt.code, res.Error.Code)

			events := f.sink.all()
			require.Len(t, events, i+1, "every rejected call is audited exactly once")
			last := events[i]
			assert.False(t, last.Success)
			assert.Equal(t, tt.status, last.Status)
			assert.Equal(t, rec.Header().Get(RequestIDHeader), last.RequestID)
			assert.Equal(t, "REDACTED", last.Headers["Authorization"])
		})
	}
	assert.Equal(t, int32(0), f.backend.calls.Load())

	body := scrape(t, f.metrics)
	assert.Contains(t, body, `toolgate_tool_calls_total{outcome="failure",tool=""} 2`)
}

func TestServer_Tools(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`)
	rec := serve(t, f, http.MethodGet, "/tools", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Tools []struct {
			Name    string          `json:"name"`
			Type    string          `json:"type"`
			Backend string          `json:"backend"`
			Policy  json.RawMessage `json:"policy"`
		} `json:"tools"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Tools, 2)
	assert.Equal(t, "build_report", body.Tools[0].Name)
	assert.Equal(t, "graph_query", body.Tools[1].Name)
	assert.Equal(t, "mcp-forward", body.Tools[1].Type)
	assert.Contains(t, string(body.Tools[1].Policy), `"read_only":true`)
	assert.NotContains(t, rec.Body.String(), "GRAPH_TOKEN")
}

func TestServer_HealthAndMetrics(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`)

	rec := serve(t, f, http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
	assert.Contains(t, rec.Body.String(), `"tools":2`)

	serve(t, f, http.MethodPost, "/call", `{"tool_meta":{"name":"graph_query"}}`, nil)
	rec = serve(t, f, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/plain")
	assert.Contains(t, rec.Body.String(), "toolgate_forward_calls_total")
	assert.Contains(t, rec.Body.String(), `toolgate_http_requests_total{endpoint="call",method="POST",status_code="200"} 1`)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`)
	rec := serve(t, f, http.MethodGet, "/call", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServer_StartStop(t *testing.T) {
	f := newFixture(t, http.StatusOK, `{}`)
	srv := NewServer(f.gw, f.metrics, quietLogger())

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(addr) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/health")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.NoError(t, <-errCh)
}
