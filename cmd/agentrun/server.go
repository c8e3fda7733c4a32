package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/quillstone/agentrun/auth"
	"github.com/quillstone/agentrun/config"
	"github.com/quillstone/agentrun/internal/metrics"
	"github.com/quillstone/agentrun/orchestrator"
	"github.com/quillstone/agentrun/types"
	"github.com/quillstone/agentrun/workflow"
)

// unauthenticatedPaths bypass JWT verification.
var unauthenticatedPaths = []string{"/healthz", "/metrics"}

// Server exposes the runtime over HTTP.
type Server struct {
	runtime   *orchestrator.Runtime
	collector *metrics.Collector
	cfg       config.ServerConfig
	logger    *zap.Logger
	http      *http.Server
}

// NewServer builds the HTTP server with its full middleware chain.
func NewServer(ctx context.Context, runtime *orchestrator.Runtime, collector *metrics.Collector, cfg *config.Config, registry *prometheus.Registry, logger *zap.Logger) *Server {
	s := &Server{
		runtime:   runtime,
		collector: collector,
		cfg:       cfg.Server,
		logger:    logger.With(zap.String("component", "http_server")),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", s.handleChat)
	mux.HandleFunc("POST /api/v1/resume", s.handleResume)
	mux.HandleFunc("GET /api/v1/tools", s.handleListTools)
	mux.HandleFunc("POST /api/v1/tools/{name}", s.handleInvokeTool)
	mux.HandleFunc("GET /api/v1/approvals", s.handleListApprovals)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	var metricsHandler http.Handler = promhttp.Handler()
	if registry != nil {
		metricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	}
	mux.Handle("GET /metrics", metricsHandler)

	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		RequestLogger(s.logger),
		MetricsMiddleware(collector),
		JWTAuth(cfg.Auth, unauthenticatedPaths, s.logger),
		RateLimiter(ctx, cfg.Server.RateLimit, cfg.Server.RateBurst),
	)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	return s
}

// ListenAndServe runs the server until it is shut down.
func (s *Server) ListenAndServe() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	return s.http.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

type resumeRequest struct {
	ThreadID string `json:"thread_id"`
	Decision string `json:"decision"`
	Note     string `json:"note,omitempty"`
}

type toolInvokeRequest struct {
	Topic  string         `json:"topic"`
	Params map[string]any `json:"params,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, types.NewError(types.ErrAuthentication, "no authenticated user"))
		return
	}

	var req orchestrator.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewError(types.ErrInvalidRequest, "malformed request body").WithCause(err))
		return
	}

	resp, err := s.runtime.Invoke(r.Context(), user, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, types.NewError(types.ErrAuthentication, "no authenticated user"))
		return
	}

	var req resumeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewError(types.ErrInvalidRequest, "malformed request body").WithCause(err))
		return
	}
	if req.ThreadID == "" {
		writeError(w, types.NewError(types.ErrInvalidRequest, "thread_id is required"))
		return
	}

	resp, err := s.runtime.Resume(r.Context(), user, req.ThreadID, workflow.Decision(req.Decision), req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, types.NewError(types.ErrAuthentication, "no authenticated user"))
		return
	}

	topic := r.URL.Query().Get("topic")
	tools := s.runtime.Tools(user, topic)

	type toolView struct {
		Name             string `json:"name"`
		Description      string `json:"description,omitempty"`
		RequiresApproval bool   `json:"requires_approval"`
	}
	out := make([]toolView, len(tools))
	for i, t := range tools {
		out[i] = toolView{Name: t.Name, Description: t.Description, RequiresApproval: t.RequiresApproval}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, types.NewError(types.ErrAuthentication, "no authenticated user"))
		return
	}

	var req toolInvokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, types.NewError(types.ErrInvalidRequest, "malformed request body").WithCause(err))
		return
	}

	result, err := s.runtime.InvokeTool(r.Context(), user, r.PathValue("name"), req.Params, req.Topic)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, types.NewError(types.ErrAuthentication, "no authenticated user"))
		return
	}

	pending, err := s.runtime.ListPendingApprovals(r.Context(), user, r.URL.Query().Get("topic"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pending)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

type envelope struct {
	Success bool        `json:"success"`
	Data    any         `json:"data,omitempty"`
	Error   *errorBody  `json:"error,omitempty"`
}

type errorBody struct {
	Code    types.ErrorCode `json:"code"`
	Message string          `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	code := types.GetErrorCode(err)
	if code == "" {
		code = types.ErrInternalError
	}

	message := err.Error()
	var typed *types.Error
	if e, ok := err.(*types.Error); ok {
		typed = e
		message = e.Message
	}

	status := httpStatusFor(code)
	if typed != nil && typed.HTTPStatus != 0 {
		status = typed.HTTPStatus
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{
		Success: false,
		Error:   &errorBody{Code: code, Message: message},
	})
}

func httpStatusFor(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrAuthentication:
		return http.StatusUnauthorized
	case types.ErrPermissionDenied, types.ErrToolNotPermitted:
		return http.StatusForbidden
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrApprovalConflict:
		return http.StatusConflict
	case types.ErrWorkflowExpired:
		return http.StatusGone
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrClassifierUnavailable, types.ErrMemoryUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
