// Package backtest replays a daily equity history through the screening
// strategy: exits, entries, sizing, mark-to-market and a snapshot, in that
// order, one day at a time.
package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benbenlijie/stock-quant-tool/internal/chips"
	"github.com/benbenlijie/stock-quant-tool/internal/config"
	"github.com/benbenlijie/stock-quant-tool/internal/marketdata"
	"github.com/benbenlijie/stock-quant-tool/internal/models"
	"github.com/benbenlijie/stock-quant-tool/internal/strategy"
)

// RunResult is everything one run produces. On cancellation or run-level
// failure the trades and snapshots already produced are preserved.
type RunResult struct {
	RunID          string
	StartDate      time.Time
	EndDate        time.Time
	Status         string
	Message        string
	InitialCapital float64
	FinalCapital   float64
	Metrics        RunMetrics
	Trades         []models.TradeRecord
	Snapshots      []models.SnapshotRecord
}

// Engine runs one backtest. It owns no shared mutable state: independent
// engines may run concurrently.
type Engine struct {
	logger    *zap.Logger
	cfg       *config.Config
	provider  marketdata.Provider
	estimator chips.Estimator
	screener  *strategy.Screener
	runID     string
}

// NewEngine creates a backtest engine.
func NewEngine(logger *zap.Logger, cfg *config.Config, provider marketdata.Provider) *Engine {
	return &Engine{
		logger:    logger,
		cfg:       cfg,
		provider:  provider,
		estimator: chips.NewAutoEstimator(cfg.Estimator),
		screener:  strategy.NewScreener(cfg.Strategy, logger),
	}
}

// Run simulates every day in [start, end]. Cancellation is honored between
// days only; a day's pipeline is atomic from the caller's view.
func (e *Engine) Run(ctx context.Context, start, end time.Time) (*RunResult, error) {
	if err := e.cfg.Strategy.Validate(); err != nil {
		return nil, err
	}
	if err := e.cfg.Estimator.Validate(); err != nil {
		return nil, err
	}
	if end.Before(start) {
		return nil, fmt.Errorf("run window: end %s is before start %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	runID := e.runID
	if runID == "" {
		runID = uuid.NewString()
	}
	result := &RunResult{
		RunID:          runID,
		StartDate:      start,
		EndDate:        end,
		Status:         models.RunStatusRunning,
		InitialCapital: e.cfg.Strategy.InitialCapital,
	}
	portfolio := NewPortfolio(e.cfg.Strategy.InitialCapital, e.cfg.Strategy.CommissionRate, e.cfg.Strategy.LotSize)

	log := e.logger.With(zap.String("run_id", result.RunID))
	log.Info("Starting backtest",
		zap.Time("start", start), zap.Time("end", end),
		zap.Float64("initial_capital", result.InitialCapital))

	prevValue := result.InitialCapital
	failedDays := 0

	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		select {
		case <-ctx.Done():
			result.Status = models.RunStatusCancelled
			result.Message = "cancelled between days"
			log.Warn("Backtest cancelled", zap.Time("day", day))
			return e.finish(result, portfolio, log), nil
		default:
		}

		bars, err := e.fetchDay(ctx, day)
		if err != nil {
			// One lost day must not corrupt committed state: isolate it and
			// move on.
			failedDays++
			log.Warn("Skipping day after repeated fetch failure", zap.Time("day", day), zap.Error(err))
			continue
		}
		if len(bars) == 0 {
			continue // non-trading day
		}

		prevValue = e.simulateDay(ctx, day, bars, portfolio, result, prevValue, log)
	}

	if failedDays > 0 && len(result.Snapshots) == 0 {
		result.Status = models.RunStatusFailed
		result.Message = fmt.Sprintf("no market data: %d fetch failures, no trading day completed", failedDays)
		return e.finish(result, portfolio, log), nil
	}

	result.Status = models.RunStatusCompleted
	return e.finish(result, portfolio, log), nil
}

// fetchDay retrieves a day's universe with one retry.
func (e *Engine) fetchDay(ctx context.Context, day time.Time) ([]marketdata.DailyBar, error) {
	bars, err := e.provider.BarsForDate(ctx, day)
	if err == nil {
		return bars, nil
	}
	e.logger.Warn("Retrying day fetch", zap.Time("day", day), zap.Error(err))
	return e.provider.BarsForDate(ctx, day)
}

// simulateDay runs the strictly ordered pipeline for one trading day and
// returns the day's closing total value.
func (e *Engine) simulateDay(
	ctx context.Context,
	day time.Time,
	bars []marketdata.DailyBar,
	portfolio *Portfolio,
	result *RunResult,
	prevValue float64,
	log *zap.Logger,
) float64 {
	barsByCode := make(map[string]marketdata.DailyBar, len(bars))
	for _, b := range bars {
		barsByCode[b.Code] = b
	}

	// Step 1: exits.
	for _, code := range portfolio.OpenCodes() {
		bar, ok := barsByCode[code]
		if !ok {
			continue // suspended today; keep holding
		}
		pos := portfolio.Positions[code]
		pos.HoldingDays++

		reason := evaluateExit(e.cfg.Strategy, pos, bar)
		if reason == "" {
			continue
		}
		trade, err := portfolio.Sell(code, bar.Close, day, reason)
		if err != nil {
			log.Error("Sell failed", zap.String("code", code), zap.Error(err))
			continue
		}
		trade.RunID = result.RunID
		trade.ValueAfter = portfolio.MarkToMarket(barsByCode)
		result.Trades = append(result.Trades, trade)
		log.Info("Closed position",
			zap.String("code", code), zap.String("reason", reason),
			zap.Float64("profit_loss", trade.ProfitLoss))
	}

	// Step 2: entries.
	slots := e.cfg.Strategy.MaxOpenPositions - len(portfolio.Positions)
	if slots > 0 {
		metricsFn := func(bar marketdata.DailyBar) (chips.Metrics, error) {
			history, err := e.provider.History(ctx, bar.Code, day, e.cfg.Estimator.LookbackDays)
			if err != nil {
				return chips.Metrics{}, err
			}
			return e.estimator.Estimate(bar, history)
		}
		candidates := e.screener.Screen(bars, portfolio.HeldSet(), metricsFn)
		if len(candidates) > slots {
			candidates = candidates[:slots]
		}

		// Step 3: sizing and execution. Equal weight over the slots being
		// filled plus the positions already open, recomputed daily.
		if len(candidates) > 0 {
			targetValue := portfolio.Cash / float64(len(candidates)+len(portfolio.Positions))
			for _, cand := range candidates {
				bar := barsByCode[cand.Code]
				qty := portfolio.SizeOrder(targetValue, bar.Close)
				if qty == 0 {
					log.Debug("Skipping entry below one lot", zap.String("code", cand.Code))
					continue
				}
				trade, err := portfolio.Buy(bar, qty, ReasonEntry)
				if err != nil {
					log.Warn("Buy failed", zap.String("code", cand.Code), zap.Error(err))
					continue
				}
				trade.RunID = result.RunID
				trade.ValueAfter = portfolio.MarkToMarket(barsByCode)
				result.Trades = append(result.Trades, trade)
				log.Info("Opened position",
					zap.String("code", cand.Code),
					zap.Float64("score", cand.Score),
					zap.Float64("quantity", qty))
			}
		}
	}

	// Step 4: mark-to-market.
	total := portfolio.MarkToMarket(barsByCode)

	// Step 5: snapshot.
	snapshot := models.SnapshotRecord{
		RunID:         result.RunID,
		Date:          day,
		TotalValue:    total,
		Cash:          portfolio.Cash,
		Drawdown:      drawdown(portfolio.PeakValue, total),
		OpenPositions: len(portfolio.Positions),
	}
	if prevValue > 0 {
		snapshot.DailyReturn = total/prevValue - 1
	}
	if result.InitialCapital > 0 {
		snapshot.CumulativeReturn = total/result.InitialCapital - 1
	}
	if total > 0 {
		snapshot.Exposure = 1 - portfolio.Cash/total
	}
	result.Snapshots = append(result.Snapshots, snapshot)
	return total
}

func (e *Engine) finish(result *RunResult, portfolio *Portfolio, log *zap.Logger) *RunResult {
	result.FinalCapital = portfolio.TotalValue()
	result.Metrics = ComputeMetrics(result.InitialCapital, result.FinalCapital,
		result.StartDate, result.EndDate, result.Trades, result.Snapshots)
	log.Info("Backtest finished",
		zap.String("status", result.Status),
		zap.Float64("final_capital", result.FinalCapital),
		zap.Float64("total_return", result.Metrics.TotalReturn),
		zap.Int("trades", len(result.Trades)))
	return result
}

func drawdown(peak, value float64) float64 {
	if peak <= 0 {
		return 0
	}
	return (peak - value) / peak
}
