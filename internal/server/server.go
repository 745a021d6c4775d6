// Package server exposes the thin HTTP control surface: start a run, fetch a
// run's detail. Everything heavier lives behind it.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benbenlijie/stock-quant-tool/internal/backtest"
)

// Server is the HTTP front for the backtest runner and store.
type Server struct {
	http   *http.Server
	logger *zap.Logger
	runner *backtest.Runner
	store  *backtest.Store
}

// New creates the server and wires its routes.
func New(port int, runner *backtest.Runner, store *backtest.Store, logger *zap.Logger) *Server {
	s := &Server{
		logger: logger.Named("api-server"),
		runner: runner,
		store:  store,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/runs", s.handleStartRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleRunDetail).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}/cancel", s.handleCancelRun).Methods(http.MethodPost)

	s.http = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	return s
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.http.Addr))
	go func() {
		if err := s.http.ListenAndServe(); err != http.ErrServerClosed {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.http.Shutdown(ctx)
}
