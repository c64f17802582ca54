package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/depotgate/depotgate/pkg/deliverable"
	"github.com/depotgate/depotgate/pkg/errdefs"
	"github.com/depotgate/depotgate/pkg/log"
	"github.com/depotgate/depotgate/pkg/metrics"
	"github.com/depotgate/depotgate/pkg/shipping"
	"github.com/depotgate/depotgate/pkg/staging"
)

// Server is the HTTP/JSON binding of the DepotGate verbs. It is a
// mechanical wrapper: every decision lives in the core services.
type Server struct {
	tenantID     string
	stager       *staging.Stager
	deliverables *deliverable.Manager
	shipper      *shipping.Service
	mux          *http.ServeMux
	httpSrv      *http.Server
	logger       zerolog.Logger
}

// NewServer wires the HTTP surface over the core services. tenantID is the
// single-tenant scope every request runs under.
func NewServer(tenantID string, stager *staging.Stager, deliverables *deliverable.Manager, shipper *shipping.Service) *Server {
	s := &Server{
		tenantID:     tenantID,
		stager:       stager,
		deliverables: deliverables,
		shipper:      shipper,
		mux:          http.NewServeMux(),
		logger:       log.WithComponent("api"),
	}

	s.mux.HandleFunc("POST /v1/tasks/{task}/artifacts", s.instrument("stage", s.handleStage))
	s.mux.HandleFunc("GET /v1/tasks/{task}/artifacts", s.instrument("stage_list", s.handleStageList))
	s.mux.HandleFunc("GET /v1/artifacts/{id}", s.instrument("get_artifact", s.handleGetArtifact))
	s.mux.HandleFunc("GET /v1/artifacts/{id}/content", s.instrument("get_content", s.handleGetContent))
	s.mux.HandleFunc("POST /v1/tasks/{task}/deliverables", s.instrument("declare_deliverable", s.handleDeclare))
	s.mux.HandleFunc("GET /v1/deliverables/{id}/closure", s.instrument("check_closure", s.handleCheckClosure))
	s.mux.HandleFunc("POST /v1/deliverables/{id}/requirements/{name}", s.instrument("mark_requirement", s.handleMarkRequirement))
	s.mux.HandleFunc("POST /v1/tasks/{task}/deliverables/{id}/ship", s.instrument("ship", s.handleShip))
	s.mux.HandleFunc("POST /v1/tasks/{task}/purge", s.instrument("purge", s.handlePurge))
	s.mux.HandleFunc("GET /v1/tasks/{task}/receipts", s.instrument("list_receipts", s.handleListReceipts))
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())

	return s
}

// Handler exposes the mux, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info().Str("addr", addr).Msg("HTTP API listening")
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop gracefully stops the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// instrument wraps a handler with request metrics and logging.
func (s *Server) instrument(verb string, h func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		metrics.APIRequestsTotal.WithLabelValues(verb, http.StatusText(rec.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(verb).Observe(time.Since(start).Seconds())
		s.logger.Debug().
			Str("verb", verb).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// errorBody is the wire form of a failure: a stable kind plus a
// human-readable detail, never a stack trace.
type errorBody struct {
	Error struct {
		Kind   string `json:"kind"`
		Detail string `json:"detail"`
	} `json:"error"`
}

// writeError maps a core error onto its stable kind and HTTP status.
func writeError(w http.ResponseWriter, err error) {
	kind := errdefs.KindOf(err)
	var body errorBody
	body.Error.Kind = kind
	body.Error.Detail = err.Error()
	writeJSON(w, statusFor(kind), body)
}

func statusFor(kind string) int {
	switch kind {
	case "InvalidIdentifier", "InvalidLocation", "InvalidSpec":
		return http.StatusBadRequest
	case "PathViolation":
		return http.StatusForbidden
	case "NotFound":
		return http.StatusNotFound
	case "ArtifactTooLarge":
		return http.StatusRequestEntityTooLarge
	case "AlreadyShipped", "AlreadyRejected", "RaceLost", "ClosureNotSatisfied":
		return http.StatusConflict
	case "ArtifactMissing", "UnknownSink":
		return http.StatusUnprocessableEntity
	case "SinkTransportFailure":
		return http.StatusBadGateway
	case "DeadlineExceeded":
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC(),
	})
}
