package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/polisai/toolgate/pkg/domain"
	"github.com/polisai/toolgate/pkg/metrics"
	"github.com/polisai/toolgate/pkg/policy"
)

// RequestIDHeader carries the caller's correlation id.
const RequestIDHeader = "X-Request-ID"

// maxRequestBytes caps inbound call bodies.
const maxRequestBytes = 10 << 20

// Server exposes a Gateway over HTTP.
type Server struct {
	gateway *Gateway
	metrics *metrics.Metrics
	handler http.Handler

	server  *http.Server
	logger  *slog.Logger
	mu      sync.Mutex
	running bool
}

// NewServer builds the HTTP surface for gw. m may be nil, in which case
// /metrics is not served.
func NewServer(gw *Gateway, m *metrics.Metrics, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{gateway: gw, metrics: m, logger: logger}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	var handler http.Handler = otelhttp.NewHandler(mux, "toolgate.http")
	if m != nil {
		handler = m.Middleware(handler)
	}
	s.handler = handler
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start serves plain HTTP on addr until Stop is called.
func (s *Server) Start(addr string) error {
	return s.serve(addr, nil, "", "")
}

// StartTLS serves HTTPS on addr with the given certificate pair.
func (s *Server) StartTLS(addr string, tlsConfig *tls.Config, certFile, keyFile string) error {
	return s.serve(addr, tlsConfig, certFile, keyFile)
}

func (s *Server) serve(addr string, tlsConfig *tls.Config, certFile, keyFile string) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		TLSConfig:         tlsConfig,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.server
	s.mu.Unlock()

	s.logger.Info("starting toolgate server",
		"addr", addr,
		"tls", tlsConfig != nil,
		"tools", s.gateway.Registry().Len())

	var err error
	if tlsConfig != nil {
		err = srv.ListenAndServeTLS(certFile, keyFile)
	} else {
		err = srv.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.server == nil {
		return nil
	}
	s.running = false
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /call", s.handleCall)
	mux.HandleFunc("POST /tools/call", s.handleCall)
	mux.HandleFunc("GET /tools", s.handleTools)
	mux.HandleFunc("GET /health", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

func (s *Server) handleCall(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)

	req := domain.ToolCallRequest{
		RequestID: requestID,
		Headers:   r.Header.Clone(),
	}

	var envelope domain.CallEnvelope
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	if err := dec.Decode(&envelope); err != nil {
		s.writeResult(w, s.gateway.Reject(r.Context(), req, domain.Failed(http.StatusBadRequest,
			domain.CodeInvalidRequest, fmt.Sprintf("invalid call body: %v", err), nil)))
		return
	}
	req.ToolName = envelope.ToolMeta.Name
	req.Arguments = envelope.Args
	if req.ToolName == "" {
		s.writeResult(w, s.gateway.Reject(r.Context(), req, domain.Failed(http.StatusBadRequest,
			domain.CodeInvalidRequest, "tool_meta.name is required", nil)))
		return
	}

	s.writeResult(w, s.gateway.Call(r.Context(), req))
}

// toolView is the public listing shape of a tool.
type toolView struct {
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Type        string       `json:"type"`
	Backend     string       `json:"backend"`
	Policy      *policy.Spec `json:"policy,omitempty"`
	Schema      string       `json:"schema,omitempty"`
}

func (s *Server) handleTools(w http.ResponseWriter, _ *http.Request) {
	reg := s.gateway.Registry()
	tools := reg.Tools()
	views := make([]toolView, 0, len(tools))
	for _, t := range tools {
		views = append(views, toolView{
			Name:        t.Name,
			Description: t.Description,
			Type:        string(t.Type),
			Backend:     t.Backend,
			Policy:      t.Policy,
			Schema:      t.Schema,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"tools": views})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	reg := s.gateway.Registry()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"tools":     reg.Len(),
		"loaded_at": reg.LoadedAt().UTC().Format(time.RFC3339),
	})
}

func (s *Server) writeResult(w http.ResponseWriter, result domain.ToolCallResult) {
	status := result.Status
	if status < 100 || status > 999 {
		status = http.StatusInternalServerError
	}
	s.writeJSON(w, status, result)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}
