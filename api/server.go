package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"joaogchv/promocollector/internal/metrics"
	"joaogchv/promocollector/internal/pipeline"
	"joaogchv/promocollector/internal/warehouse"
	"joaogchv/promocollector/logger"
)

// StatsSource answers aggregate queries over the durable table
type StatsSource interface {
	QueryStats(ctx context.Context, window time.Duration) (warehouse.Stats, error)
}

// PipelineRunner runs one collection pipeline
type PipelineRunner interface {
	Run(ctx context.Context) (pipeline.RunResult, error)
}

// Server exposes collection as a callable HTTP operation
type Server struct {
	runner PipelineRunner
	stats  StatsSource
	reg    *metrics.Registry
	log    *logger.Logger
}

// NewServer creates the HTTP trigger server
func NewServer(runner PipelineRunner, stats StatsSource, reg *metrics.Registry) *Server {
	return &Server{
		runner: runner,
		stats:  stats,
		reg:    reg,
		log:    logger.ForServer(),
	}
}

// Handler builds the route table
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/collect", s.handleCollect)
	mux.HandleFunc("/stats", s.handleStats)
	if s.reg != nil {
		mux.Handle("/metrics", s.reg.Handler())
	}
	return mux
}

// ListenAndServe serves until the context is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("addr", addr).Msg("HTTP server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	result, err := s.runner.Run(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"execution_id":     result.ExecutionID,
			"status":           "error",
			"error":            err.Error(),
			"duration_seconds": result.DurationSeconds,
		})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed < 1 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = parsed
	}

	stats, err := s.stats.QueryStats(r.Context(), time.Duration(hours)*time.Hour)
	if err != nil {
		s.log.Error().Err(err).Msg("Stats query failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
