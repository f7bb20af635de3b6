package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/secpipe-io/secpipe/internal/pipeline"
	"github.com/secpipe-io/secpipe/pkg/shared/config"
)

// Submissions above this size are rejected before any processing.
const maxBodyBytes = 1 << 20

// Runner starts an analysis and exposes its event stream. Satisfied
// by pipeline.Orchestrator.
type Runner interface {
	Run(ctx context.Context, code string) *pipeline.Stream
}

// Server is the HTTP surface over the analysis pipeline.
type Server struct {
	cfg    *config.Config
	logger hclog.Logger
	runner Runner
	mux    *http.ServeMux
}

func New(cfg *config.Config, logger hclog.Logger, runner Runner) *Server {
	s := &Server{
		cfg:    cfg,
		logger: logger,
		runner: runner,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/api/analyze/stream", s.handleAnalyzeStream)
	s.mux.HandleFunc("/api/pipeline-info", s.handlePipelineInfo)
	s.mux.HandleFunc("/health", s.handleHealth)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withCORS(s.mux)
}

// ListenAndServe blocks until ctx is cancelled or the listener fails.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

type analyzeRequest struct {
	Code string `json:"code"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSubmission(w, r)
	if !ok {
		return
	}

	stream := s.runner.Run(r.Context(), req.Code)

	var result any
	var failure *pipeline.ErrorPayload
	for event := range stream.Events() {
		switch event.Type {
		case pipeline.EventAnalysisComplete:
			result = event.Payload
		case pipeline.EventError:
			if p, ok := event.Payload.(pipeline.ErrorPayload); ok {
				failure = &p
			}
		}
	}

	switch {
	case failure != nil && failure.Reason != "":
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: failure.Message, Reason: failure.Reason})
	case failure != nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: failure.Message})
	case result == nil:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "analysis ended without a report"})
	default:
		writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSubmission(w, r)
	if !ok {
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The request context cancels the run when the client goes away.
	stream := s.runner.Run(r.Context(), req.Code)
	for event := range stream.Events() {
		if err := writeSSE(w, event); err != nil {
			s.logger.Debug("observer gone", "error", err)
			return
		}
		flusher.Flush()
	}
}

func writeSSE(w io.Writer, event pipeline.Event) error {
	data, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", event.Type, err)
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}

type stageInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Step        int    `json:"step"`
	UsesTool    bool   `json:"uses_tool,omitempty"`
}

func (s *Server) handlePipelineInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	stages := make([]stageInfo, 0, pipeline.TotalStages)
	for i, spec := range pipeline.Stages() {
		stages = append(stages, stageInfo{
			Name:        spec.Name,
			Description: spec.Description,
			Step:        i + 1,
			UsesTool:    spec.UsesTool,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stages": stages,
		"total":  pipeline.TotalStages,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeSubmission reads and validates the analyze request body.
// Writes the error response itself when validation fails.
func (s *Server) decodeSubmission(w http.ResponseWriter, r *http.Request) (analyzeRequest, bool) {
	var req analyzeRequest
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return req, false
	}

	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Error: "submission too large"})
			return req, false
		}
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return req, false
	}
	if req.Code == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "code field is required"})
		return req, false
	}
	return req, true
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}
