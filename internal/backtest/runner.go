package backtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benbenlijie/stock-quant-tool/internal/config"
	"github.com/benbenlijie/stock-quant-tool/internal/marketdata"
	"github.com/benbenlijie/stock-quant-tool/internal/models"
)

// Runner launches backtests asynchronously and records their results.
// Each run gets its own engine and portfolio, so concurrent runs share
// nothing but the store.
type Runner struct {
	logger   *zap.Logger
	cfg      *config.Config
	provider marketdata.Provider
	store    *Store

	mu     sync.Mutex
	active map[string]context.CancelFunc
	wg     sync.WaitGroup
}

// NewRunner creates a run manager.
func NewRunner(logger *zap.Logger, cfg *config.Config, provider marketdata.Provider, store *Store) *Runner {
	return &Runner{
		logger:   logger,
		cfg:      cfg,
		provider: provider,
		store:    store,
		active:   make(map[string]context.CancelFunc),
	}
}

// Start validates the configuration, records a "running" row and launches
// the engine in the background. It returns the run handle immediately.
func (r *Runner) Start(ctx context.Context, start, end time.Time, overrides func(*config.Strategy)) (string, error) {
	cfg := *r.cfg // per-run copy; overrides must not leak across runs
	if overrides != nil {
		overrides(&cfg.Strategy)
	}
	if err := cfg.Strategy.Validate(); err != nil {
		return "", err
	}
	if end.Before(start) {
		return "", fmt.Errorf("run window: end must not be before start")
	}

	engine := NewEngine(r.logger, &cfg, r.provider)
	runCtx, cancel := context.WithCancel(ctx)

	// Reserve the row before launching so the handle is immediately
	// queryable.
	result, err := r.prepare(engine, &cfg, start, end)
	if err != nil {
		cancel()
		return "", err
	}

	r.mu.Lock()
	r.active[result.RunID] = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer cancel()
		r.execute(runCtx, engine, result.RunID, start, end)
		r.mu.Lock()
		delete(r.active, result.RunID)
		r.mu.Unlock()
	}()

	return result.RunID, nil
}

// prepare inserts the initial run row with a fresh handle.
func (r *Runner) prepare(engine *Engine, cfg *config.Config, start, end time.Time) (*models.BacktestRun, error) {
	run := &models.BacktestRun{
		RunID:          uuid.NewString(),
		StartDate:      start,
		EndDate:        end,
		InitialCapital: cfg.Strategy.InitialCapital,
		Status:         models.RunStatusRunning,
	}
	engine.runID = run.RunID
	if err := r.store.CreateRun(run); err != nil {
		return nil, err
	}
	return run, nil
}

func (r *Runner) execute(ctx context.Context, engine *Engine, runID string, start, end time.Time) {
	result, err := engine.Run(ctx, start, end)
	if err != nil {
		r.logger.Error("Run failed before simulation", zap.String("run_id", runID), zap.Error(err))
		if serr := r.store.MarkFailed(runID, err.Error()); serr != nil {
			r.logger.Error("Failed to record run failure", zap.String("run_id", runID), zap.Error(serr))
		}
		return
	}
	if err := r.store.SaveResult(result); err != nil {
		r.logger.Error("Failed to persist run result", zap.String("run_id", runID), zap.Error(err))
	}
}

// Cancel stops a running backtest between days. It is a no-op for unknown or
// finished runs.
func (r *Runner) Cancel(runID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancel, ok := r.active[runID]
	if ok {
		cancel()
	}
	return ok
}

// Wait blocks until every launched run has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}
