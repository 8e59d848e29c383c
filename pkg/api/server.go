package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/fedcoord/pkg/coordinator"
	"github.com/cuemby/fedcoord/pkg/log"
	"github.com/cuemby/fedcoord/pkg/metrics"
	"github.com/rs/zerolog"
)

// Server is the coordinator's HTTP front end. It holds no state of its
// own beyond the Core it delegates to.
type Server struct {
	core   *coordinator.Core
	mux    *http.ServeMux
	http   *http.Server
	logger zerolog.Logger
}

// NewServer builds a Server with every route registered against core.
func NewServer(core *coordinator.Core) *Server {
	s := &Server{
		core:   core,
		mux:    http.NewServeMux(),
		logger: log.WithComponent("api"),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /client/register", s.handleRegister)
	s.mux.HandleFunc("GET /task/{client_id}", s.handleGetTask)
	s.mux.HandleFunc("POST /update", s.handleSubmitUpdate)
	s.mux.HandleFunc("GET /aggregate/{round_id}", s.handleGetAggregate)
	s.mux.HandleFunc("GET /status/{round_id}", s.handleGetStatus)
	s.mux.HandleFunc("GET /model/{version}", s.handleGetModel)

	s.mux.HandleFunc("GET /metrics", s.handleMetricsSnapshot)
	s.mux.HandleFunc("GET /metrics/latest", s.handleMetricsLatest)
	s.mux.HandleFunc("GET /metrics/round/{round_id}", s.handleMetricsRound)
	s.mux.Handle("GET /internal/metrics", metrics.Handler())

	s.mux.HandleFunc("GET /reputation", s.handleTopReputation)
	s.mux.HandleFunc("GET /reputation/{client_id}", s.handleGetReputation)
	s.mux.HandleFunc("GET /incentives", s.handleTopIncentives)
	s.mux.HandleFunc("GET /incentives/{client_id}", s.handleGetIncentives)
	s.mux.HandleFunc("GET /async/round/{round_id}/stats", s.handleAsyncStats)

	s.mux.HandleFunc("GET /healthz", metrics.HealthHandler())
	s.mux.HandleFunc("GET /readyz", metrics.ReadyHandler())
	s.mux.HandleFunc("GET /livez", metrics.LivenessHandler())
}

// Start runs the HTTP server until it errors or Stop is called. It
// blocks, same as the underlying http.Server.ListenAndServe.
func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.instrument(s.mux),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("api server listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down, waiting up to ctx's deadline
// for in-flight requests to finish.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// instrument wraps every request with access logging and the
// fedcoord_api_requests_total / fedcoord_api_request_duration_seconds
// metrics, keyed by the matched route pattern rather than the raw path
// so that path parameters don't explode cardinality.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		elapsed := time.Since(start)

		route := r.Pattern
		if route == "" {
			route = r.URL.Path
		}
		metrics.APIRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
		s.logger.Debug().Str("method", r.Method).Str("route", route).
			Int("status", rec.status).Dur("elapsed", elapsed).Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// writeError maps one of coordinator's sentinel errors to an HTTP status
// and a stable reason string, per the table in doc.go.
func writeError(w http.ResponseWriter, err error) {
	status, reason := http.StatusInternalServerError, "internal_error"
	switch {
	case errors.Is(err, coordinator.ErrUnauthenticated):
		status, reason = http.StatusUnauthorized, "unauthenticated"
	case errors.Is(err, coordinator.ErrAlreadyRegistered):
		status, reason = http.StatusBadRequest, "already_registered"
	case errors.Is(err, coordinator.ErrBadDelta):
		status, reason = http.StatusBadRequest, "invalid_delta_format"
	case errors.Is(err, coordinator.ErrNonFinite):
		status, reason = http.StatusBadRequest, "non_finite_values"
	case errors.Is(err, coordinator.ErrRateLimited):
		status, reason = http.StatusTooManyRequests, "rate_limit_exceeded"
	case errors.Is(err, coordinator.ErrNotFound):
		status, reason = http.StatusNotFound, "not_found"
	case errors.Is(err, coordinator.ErrInvalidVersion):
		status, reason = http.StatusNotFound, "invalid_version"
	case errors.Is(err, coordinator.ErrStraggler):
		status, reason = http.StatusGone, "round_closed"
	case errors.Is(err, coordinator.ErrInvalidRound):
		status, reason = http.StatusBadRequest, "invalid_round_assignment"
	case errors.Is(err, coordinator.ErrCorrupt):
		status, reason = http.StatusInternalServerError, "corrupt_artifact"
	case errors.Is(err, coordinator.ErrPersistenceFailed):
		status, reason = http.StatusInternalServerError, "persistence_failed"
	}
	writeJSON(w, status, errorBody{Error: err.Error(), Reason: reason})
}

func pathInt(r *http.Request, name string) (int, bool) {
	v, err := strconv.Atoi(r.PathValue(name))
	if err != nil {
		return 0, false
	}
	return v, true
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
