package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"solsolver/pkg/metrics"
	"solsolver/pkg/solver"
)

// Server exposes the solver over HTTP.
type Server struct {
	solver  *solver.Solver
	metrics *metrics.Metrics
	logger  *zap.Logger
	start   time.Time
	http    *http.Server
}

func NewServer(addr string, s *solver.Solver, m *metrics.Metrics, logger *zap.Logger) *Server {
	server := &Server{
		solver:  s,
		metrics: m,
		logger:  logger,
		start:   time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/solve", server.handleSolve)
	mux.HandleFunc("/health", server.handleHealth)
	mux.HandleFunc("/metrics", server.handleMetrics)

	server.http = &http.Server{
		Addr:    addr,
		Handler: corsMiddleware(mux),
	}
	return server
}

func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req auctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "malformed auction: "+err.Error(), http.StatusBadRequest)
		return
	}
	auction, err := decodeAuction(&req)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	solution, err := s.solver.Solve(r.Context(), auction)
	if err != nil {
		if errors.Is(err, solver.ErrInvalidAuction) {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		s.logger.Error("solve failed", zap.String("auction", auction.ID), zap.Error(err))
		writeError(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(encodeSolution(solution))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status": "healthy",
		"uptime": time.Since(s.start).Round(time.Second).String(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.metrics.Snapshot())
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
