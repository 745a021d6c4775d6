package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/benbenlijie/stock-quant-tool/internal/config"
	"github.com/benbenlijie/stock-quant-tool/internal/models"
)

const dateLayout = "2006-01-02"

type startRunRequest struct {
	StartDate      string   `json:"start_date"`
	EndDate        string   `json:"end_date"`
	InitialCapital *float64 `json:"initial_capital,omitempty"`
	StopLoss       *float64 `json:"stop_loss,omitempty"`
	TakeProfit     *float64 `json:"take_profit,omitempty"`
	MaxPositions   *int     `json:"max_open_positions,omitempty"`
}

type startRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

type runDetailResponse struct {
	Run       *models.BacktestRun     `json:"run"`
	Trades    []models.TradeRecord    `json:"trades"`
	Snapshots []models.SnapshotRecord `json:"snapshots"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "OK")
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("decode request: %w", err))
		return
	}

	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("start_date must be YYYY-MM-DD"))
		return
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("end_date must be YYYY-MM-DD"))
		return
	}
	if !start.Before(end) {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("start_date must be before end_date"))
		return
	}

	overrides := func(cfg *config.Strategy) {
		if req.InitialCapital != nil {
			cfg.InitialCapital = *req.InitialCapital
		}
		if req.StopLoss != nil {
			cfg.StopLoss = *req.StopLoss
		}
		if req.TakeProfit != nil {
			cfg.TakeProfit = *req.TakeProfit
		}
		if req.MaxPositions != nil {
			cfg.MaxOpenPositions = *req.MaxPositions
		}
	}

	// Runs detach from the request context: a closed connection must not
	// cancel a backtest.
	runID, err := s.runner.Start(context.Background(), start, end, overrides)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	s.logger.Info("Run started", zap.String("run_id", runID))
	s.writeJSON(w, http.StatusAccepted, startRunResponse{RunID: runID, Status: models.RunStatusRunning})
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	run, trades, snapshots, err := s.store.RunDetail(runID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("run %s not found", runID))
		return
	}
	s.writeJSON(w, http.StatusOK, runDetailResponse{Run: run, Trades: trades, Snapshots: snapshots})
}

func (s *Server) handleListRuns(w http.ResponseWriter, _ *http.Request) {
	runs, err := s.store.ListRuns(50)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]
	if !s.runner.Cancel(runID) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("run %s is not active", runID))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"run_id": runID, "status": models.RunStatusCancelled})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
