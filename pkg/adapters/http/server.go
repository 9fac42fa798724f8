package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/botflow"
	"github.com/aretw0/botflow/internal/logging"
	"github.com/aretw0/botflow/pkg/actions"
	"github.com/aretw0/botflow/pkg/domain"
	"github.com/aretw0/botflow/pkg/scheduler"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine is the flow interpreter boundary. *botflow.Engine implements it.
type Engine interface {
	ExecuteFromTrigger(ctx context.Context, uctx *domain.UniversalContext) domain.FlowExecutionResult
	ExecuteResume(ctx context.Context, uctx *domain.UniversalContext) domain.FlowExecutionResult
}

// Scheduler routes commands to a tenant's actor. *scheduler.Hub implements it.
type Scheduler interface {
	Handle(ctx context.Context, tenantID string, req scheduler.Request) scheduler.Response
}

// Server exposes the engine and the scheduler over HTTP.
type Server struct {
	Engine    Engine
	Scheduler Scheduler
	Streams   *StreamManager

	gatherer prometheus.Gatherer
	tokens   TokenResolver
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithScheduler mounts the /v1/scheduler routes.
func WithScheduler(sched Scheduler) Option {
	return func(s *Server) {
		s.Scheduler = sched
	}
}

// WithMetrics mounts /metrics for the given gatherer.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithStreams mounts the /v1/events SSE route. The manager must also be
// subscribed to the event dispatcher to receive anything.
func WithStreams(sm *StreamManager) Option {
	return func(s *Server) {
		s.Streams = sm
	}
}

// WithTelegramWebhook mounts the Telegram webhook route, resolving bot tokens with fn.
func WithTelegramWebhook(fn TokenResolver) Option {
	return func(s *Server) {
		s.tokens = fn
	}
}

// NewServer creates a server around the engine.
func NewServer(engine Engine, opts ...Option) *Server {
	s := &Server{
		Engine: engine,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.Health)
	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Post("/engine/trigger", s.Trigger)
		r.Post("/engine/resume", s.Resume)

		if s.Scheduler != nil {
			r.Route("/scheduler/{tenant}", func(r chi.Router) {
				r.Get("/jobs", s.ListJobs)
				r.Post("/jobs", s.ScheduleJob)
				r.Get("/jobs/{id}", s.GetJob)
				r.Delete("/jobs/{id}", s.CancelJob)
				r.Post("/rpc", s.RPC)
			})
		}
		if s.Streams != nil {
			r.Get("/events/{tenant}", s.SubscribeEvents)
		}
		if s.tokens != nil {
			r.Post("/webhooks/telegram/{tenant}/{bot}", s.TelegramWebhook)
		}
	})

	return enableCORS(r)
}

// NewHandler is a shortcut for NewServer(engine, opts...).Handler().
func NewHandler(engine Engine, opts ...Option) http.Handler {
	return NewServer(engine, opts...).Handler()
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Health handles GET /healthz.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"app":     "botflow",
		"version": strings.TrimSpace(botflow.Version),
	})
}

// Trigger handles POST /v1/engine/trigger.
func (s *Server) Trigger(w http.ResponseWriter, r *http.Request) {
	uctx, ok := s.decodeContext(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.ExecuteFromTrigger(r.Context(), uctx))
}

// Resume handles POST /v1/engine/resume.
func (s *Server) Resume(w http.ResponseWriter, r *http.Request) {
	uctx, ok := s.decodeContext(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Engine.ExecuteResume(r.Context(), uctx))
}

// decodeContext reads a UniversalContext body and sanitises the user-provided text.
func (s *Server) decodeContext(w http.ResponseWriter, r *http.Request) (*domain.UniversalContext, bool) {
	var uctx domain.UniversalContext
	if err := json.NewDecoder(r.Body).Decode(&uctx); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "")
		s.logger.Warn("invalid engine request body", "path", r.URL.Path, "err", err)
		return nil, false
	}
	if err := uctx.SessionKey().Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), domain.CodeValidationFailed)
		return nil, false
	}

	for _, field := range []*string{&uctx.Metadata.LastInput, &uctx.Metadata.Command} {
		clean, err := actions.SanitizeInput(*field)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), domain.CodeValidationFailed)
			s.logger.Warn("input rejected", "tenant", uctx.TenantID, "err", err)
			return nil, false
		}
		*field = clean
	}
	return &uctx, true
}

// ListJobs handles GET /v1/scheduler/{tenant}/jobs.
func (s *Server) ListJobs(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{}
	for _, key := range []string{"campaign_id", "status"} {
		if v := r.URL.Query().Get(key); v != "" {
			payload[key] = v
		}
	}
	s.command(w, r, scheduler.CmdJobsList, payload, http.StatusOK)
}

// ScheduleJob handles POST /v1/scheduler/{tenant}/jobs.
func (s *Server) ScheduleJob(w http.ResponseWriter, r *http.Request) {
	var payload map[string]any
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", scheduler.CodeBadPayload)
		return
	}
	s.command(w, r, scheduler.CmdJobsSchedule, payload, http.StatusCreated)
}

// GetJob handles GET /v1/scheduler/{tenant}/jobs/{id}.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, scheduler.CmdJobsGet, map[string]any{"id": chi.URLParam(r, "id")}, http.StatusOK)
}

// CancelJob handles DELETE /v1/scheduler/{tenant}/jobs/{id}.
func (s *Server) CancelJob(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, scheduler.CmdJobsCancel, map[string]any{"id": chi.URLParam(r, "id")}, http.StatusOK)
}

// RPC handles POST /v1/scheduler/{tenant}/rpc. The response envelope is always
// returned with 200; failures are carried inside it.
func (s *Server) RPC(w http.ResponseWriter, r *http.Request) {
	var req scheduler.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", scheduler.CodeBadPayload)
		return
	}
	writeJSON(w, http.StatusOK, s.Scheduler.Handle(r.Context(), chi.URLParam(r, "tenant"), req))
}

func (s *Server) command(w http.ResponseWriter, r *http.Request, cmd string, payload map[string]any, okStatus int) {
	tenant := chi.URLParam(r, "tenant")
	resp := s.Scheduler.Handle(r.Context(), tenant, scheduler.Request{
		Version:       scheduler.ProtocolVersion,
		CorrelationID: r.Header.Get("X-Correlation-ID"),
		Type:          cmd,
		Payload:       payload,
	})
	w.Header().Set("X-Correlation-ID", resp.CorrelationID)
	if !resp.OK {
		status := statusFor(resp.Code)
		if status >= http.StatusInternalServerError {
			s.logger.Error("scheduler command failed", "tenant", tenant, "command", cmd, "code", resp.Code, "err", resp.Error)
		}
		writeError(w, status, resp.Error, resp.Code)
		return
	}
	writeJSON(w, okStatus, resp.Data)
}

func statusFor(code string) int {
	switch code {
	case scheduler.CodeJobNotFound:
		return http.StatusNotFound
	case scheduler.CodeBadPayload, scheduler.CodeUnknownCommand, scheduler.CodeUnsupportedVersion,
		domain.CodeInvalidJob, domain.CodeValidationFailed:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg, code string) {
	writeJSON(w, status, errorBody{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "err", err)
	}
}
