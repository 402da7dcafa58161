// Package api exposes the runtime validator over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	fhirtx "github.com/onc-healthit/onc-certification-g10-test-kit-sub001"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/artifact"
	"github.com/onc-healthit/onc-certification-g10-test-kit-sub001/validation"
)

const (
	// ShutdownTimeout bounds how long Serve waits for in-flight requests.
	ShutdownTimeout = 10 * time.Second

	// MaxBatchQueries caps the queries accepted by one batch request.
	MaxBatchQueries = 10000

	maxBatchBody = 16 << 20
)

// Server routes validation queries to a Validator.
type Server struct {
	validator *validation.Validator
	metrics   *fhirtx.Metrics
	log       zerolog.Logger
}

// NewServer creates a server. metrics may be nil when the validator was
// built without WithMetrics; /metrics then reports zeroes.
func NewServer(v *validation.Validator, metrics *fhirtx.Metrics, log zerolog.Logger) *Server {
	if metrics == nil {
		metrics = fhirtx.NewMetrics()
	}
	return &Server{validator: v, metrics: metrics, log: log}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.logRequests)
	r.HandleFunc("/validate", s.handleValidate).Methods(http.MethodGet)
	r.HandleFunc("/validate/batch", s.handleBatch).Methods(http.MethodPost)
	r.HandleFunc("/manifest", s.handleManifest).Methods(http.MethodGet)
	r.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	return r
}

// Serve listens on addr until ctx is canceled, then shuts down gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", addr).Msg("validation service listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type validateResponse struct {
	Result bool `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type batchResponse struct {
	Answers []validation.Answer `json:"answers"`
}

type manifestResponse struct {
	Artifacts []artifact.Entry `json:"artifacts"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	code := q.Get("code")
	if code == "" {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "code is required"})
		return
	}

	ok, err := s.validator.Validate(code, q.Get("system"), q.Get("url"))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			s.log.Error().Err(err).Str("code", code).Msg("validation failed")
		}
		respondWithJSON(w, status, errorResponse{Error: err.Error()})
		return
	}
	respondWithJSON(w, http.StatusOK, validateResponse{Result: ok})
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var queries []validation.Query
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBatchBody))
	if err := dec.Decode(&queries); err != nil {
		respondWithJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid batch: " + err.Error()})
		return
	}
	if len(queries) > MaxBatchQueries {
		respondWithJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "too many queries"})
		return
	}
	answers := s.validator.ValidateBatch(r.Context(), queries, 0)
	respondWithJSON(w, http.StatusOK, batchResponse{Answers: answers})
}

func (s *Server) handleManifest(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, manifestResponse{Artifacts: s.validator.Repository().Entries()})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]int{"artifacts": s.validator.Repository().Len()})
}

// statusFor maps validation errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, fhirtx.ErrUnknownValueSet), errors.Is(err, fhirtx.ErrUnknownCodeSystem):
		return http.StatusNotFound
	case errors.Is(err, fhirtx.ErrProhibitedSystem):
		return http.StatusForbidden
	case errors.Is(err, validation.ErrNoTarget), errors.Is(err, fhirtx.ErrInvalidSystem):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
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

func respondWithJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data) //nolint:errcheck // client went away
}
