package backtest

import (
	"math"
	"time"

	"github.com/benbenlijie/stock-quant-tool/internal/models"
)

const tradingDaysPerYear = 252

// RunMetrics are the end-of-run aggregate statistics. Every ratio is
// zero-guarded: degenerate inputs yield 0, never a panic.
type RunMetrics struct {
	TotalReturn   float64 `json:"total_return"`
	AnnualReturn  float64 `json:"annual_return"`
	MaxDrawdown   float64 `json:"max_drawdown"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	WinRate       float64 `json:"win_rate"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	AvgProfitLoss float64 `json:"avg_profit_loss"`
	BestTrade     float64 `json:"best_trade"`
	WorstTrade    float64 `json:"worst_trade"`
}

// ComputeMetrics derives the run statistics from the full trade and snapshot
// history. It is called exactly once, at run end.
func ComputeMetrics(
	initial, final float64,
	start, end time.Time,
	trades []models.TradeRecord,
	snapshots []models.SnapshotRecord,
) RunMetrics {
	m := RunMetrics{TotalTrades: len(trades)}

	if initial > 0 {
		m.TotalReturn = final/initial - 1
	}

	elapsedDays := end.Sub(start).Hours() / 24
	if elapsedDays > 0 && 1+m.TotalReturn > 0 {
		m.AnnualReturn = math.Pow(1+m.TotalReturn, 365/elapsedDays) - 1
	}

	for _, s := range snapshots {
		if s.Drawdown > m.MaxDrawdown {
			m.MaxDrawdown = s.Drawdown
		}
	}

	m.SharpeRatio = sharpe(snapshots)
	m.aggregateTrades(trades)
	return m
}

func (m *RunMetrics) aggregateTrades(trades []models.TradeRecord) {
	var sells int
	var sum float64
	for _, t := range trades {
		if t.Side != models.SideSell {
			continue
		}
		sells++
		sum += t.ProfitLoss
		if t.ProfitLoss > 0 {
			m.WinningTrades++
		}
		if sells == 1 || t.ProfitLoss > m.BestTrade {
			m.BestTrade = t.ProfitLoss
		}
		if sells == 1 || t.ProfitLoss < m.WorstTrade {
			m.WorstTrade = t.ProfitLoss
		}
	}
	if sells > 0 {
		m.WinRate = float64(m.WinningTrades) / float64(sells)
		m.AvgProfitLoss = sum / float64(sells)
	}
}

// sharpe annualizes the mean-over-stdev of the daily snapshot returns. A
// flat return series scores 0.
func sharpe(snapshots []models.SnapshotRecord) float64 {
	n := len(snapshots)
	if n < 2 {
		return 0
	}

	var mean float64
	for _, s := range snapshots {
		mean += s.DailyReturn
	}
	mean /= float64(n)

	var variance float64
	for _, s := range snapshots {
		d := s.DailyReturn - mean
		variance += d * d
	}
	variance /= float64(n)

	stdev := math.Sqrt(variance)
	if stdev == 0 {
		return 0
	}
	return mean / stdev * math.Sqrt(tradingDaysPerYear)
}
