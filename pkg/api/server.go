package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/brick-pid/simplegym/pkg/events"
	"github.com/brick-pid/simplegym/pkg/log"
	"github.com/brick-pid/simplegym/pkg/metrics"
	"github.com/brick-pid/simplegym/pkg/router"
	"github.com/brick-pid/simplegym/pkg/types"
	"github.com/rs/zerolog"
)

// Server binds the environment pool to its HTTP surface. Handlers are
// thin: they decode the body, call the router, and render either the
// payload or the structured failure shape.
type Server struct {
	router *router.Router
	broker *events.Broker
	mux    *http.ServeMux
	logger zerolog.Logger

	httpServer *http.Server
}

// NewServer creates the HTTP server for a router. broker may be nil; the
// /events stream then reports 404.
func NewServer(r *router.Router, broker *events.Broker) *Server {
	s := &Server{
		router: r,
		broker: broker,
		mux:    http.NewServeMux(),
		logger: log.WithComponent("api"),
	}

	s.mux.HandleFunc("/create", s.handleCreate)
	s.mux.HandleFunc("/step", s.handleStep)
	s.mux.HandleFunc("/reset", s.handleReset)
	s.mux.HandleFunc("/close", s.handleClose)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/events", s.handleEvents)
	s.mux.Handle("/metrics", metrics.Handler())

	return s
}

// Handler returns the full handler chain for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.logMiddleware(s.mux)
}

// Start serves HTTP on addr until Shutdown.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // streaming /events; per-op bounds come from the IPC timeout
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info().Str("addr", addr).Msg("api server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

// stepRequest is the body of POST /step.
type stepRequest struct {
	EnvID  *int   `json:"env_id"`
	Action string `json:"action"`
}

// closeRequest is the body of POST /close.
type closeRequest struct {
	EnvID *int `json:"env_id"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	envID, err := s.router.Create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.CreateResult{EnvID: envID})
}

func (s *Server) handleStep(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var body stepRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, types.NewErrorf(types.CodeInvalidAction, "bad request body: %v", err))
		return
	}
	if body.EnvID == nil {
		writeError(w, types.NewErrorf(types.CodeInvalidAction, "env_id is required"))
		return
	}

	result, err := s.router.Step(r.Context(), *body.EnvID, body.Action)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	// Reset options are adapter-specific: everything in the body except
	// env_id passes through verbatim.
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, types.NewErrorf(types.CodeInvalidAction, "bad request body: %v", err))
		return
	}
	rawID, ok := body["env_id"]
	if !ok {
		writeError(w, types.NewErrorf(types.CodeInvalidAction, "env_id is required"))
		return
	}
	envID, ok := types.ResetOptions(body).Int("env_id")
	if !ok {
		writeError(w, types.NewErrorf(types.CodeInvalidAction, "bad env_id %v", rawID))
		return
	}
	delete(body, "env_id")

	payload, err := s.router.Reset(r.Context(), envID, body)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if !requirePost(w, r) {
		return
	}

	var body closeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, types.NewErrorf(types.CodeInvalidAction, "bad request body: %v", err))
		return
	}
	if body.EnvID == nil {
		writeError(w, types.NewErrorf(types.CodeInvalidAction, "env_id is required"))
		return
	}

	closed, err := s.router.Close(r.Context(), *body.EnvID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, closed)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := s.router.Health()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"workers": health.Workers,
		"alive":   health.Alive,
	})
}

// handleEvents streams pool lifecycle events as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.broker == nil {
		http.NotFound(w, r)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	sub := s.broker.Subscribe()
	defer s.broker.Unsubscribe(sub)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case event, ok := <-sub:
			if !ok {
				return
			}
			data, err := json.Marshal(map[string]any{
				"type":      event.Type,
				"timestamp": event.Timestamp,
				"env_id":    event.EnvID,
				"worker_id": event.WorkerID,
			})
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// logMiddleware logs one line per request and feeds the API metrics.
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		elapsed := time.Since(start)
		metrics.APIRequestsTotal.WithLabelValues(r.URL.Path, strconv.Itoa(recorder.status)).Inc()
		metrics.APIRequestDuration.WithLabelValues(r.URL.Path).Observe(elapsed.Seconds())

		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", elapsed).
			Msg("request")
	})
}

// statusRecorder captures the response status for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Flush forwards to the wrapped writer so /events can stream.
func (r *statusRecorder) Flush() {
	if flusher, ok := r.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// errorBody is the structured failure shape of every endpoint.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details"`
}

func writeError(w http.ResponseWriter, err error) {
	var envErr *types.EnvError
	if !errors.As(err, &envErr) {
		envErr = types.ErrInternal(err)
	}
	writeJSON(w, envErr.Status, errorBody{Error: errorDetail{
		Code:      string(envErr.Code),
		Message:   envErr.Message,
		Retryable: envErr.Retryable,
		Details:   map[string]any{},
	}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
