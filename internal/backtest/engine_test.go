package backtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benbenlijie/stock-quant-tool/internal/config"
	"github.com/benbenlijie/stock-quant-tool/internal/marketdata"
	"github.com/benbenlijie/stock-quant-tool/internal/models"
)

func testConfig() *config.Config {
	cfg := config.Default()
	// Thresholds the heuristic estimator can clear on a strong bar.
	cfg.Strategy.ConcentrationThreshold = 0.6
	cfg.Strategy.ProfitRatioThreshold = 0.5
	return &cfg
}

// qualifyingBar clears every hard filter and, via the heuristic estimator,
// both metric thresholds: turnover 10 and volume-ratio 3 give a
// concentration of about 0.82, pct-change 9.8 a profit ratio of about 0.82.
func qualifyingBar(code string, close float64, date time.Time) marketdata.DailyBar {
	return marketdata.DailyBar{
		Code:         code,
		Name:         "TEST-" + code,
		Sector:       "semiconductors",
		Date:         date,
		Open:         close * 0.92,
		High:         close * 1.01,
		Low:          close * 0.91,
		Close:        close,
		Volume:       3e7,
		Amount:       close * 3e7,
		TurnoverRate: 10,
		VolumeRatio:  3,
		FloatShares:  2e8,
		PctChange:    9.8,
	}
}

// quietBar is a valid bar that never qualifies for entry and never trips an
// exit rule on its own.
func quietBar(code string, close float64, date time.Time) marketdata.DailyBar {
	return marketdata.DailyBar{
		Code:         code,
		Name:         "TEST-" + code,
		Sector:       "semiconductors",
		Date:         date,
		Open:         close,
		High:         close * 1.02,
		Low:          close * 0.98,
		Close:        close,
		Volume:       1e6,
		Amount:       close * 1e6,
		TurnoverRate: 3,
		VolumeRatio:  1,
		FloatShares:  2e8,
		PctChange:    0.5,
	}
}

func day(offset int) time.Time {
	return time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC).AddDate(0, 0, offset)
}

func runEngine(t *testing.T, cfg *config.Config, bars []marketdata.DailyBar, start, end time.Time) *RunResult {
	t.Helper()
	engine := NewEngine(zap.NewNop(), cfg, marketdata.NewMemoryProvider(bars))
	result, err := engine.Run(context.Background(), start, end)
	require.NoError(t, err)
	return result
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.InitialCapital = -1

	engine := NewEngine(zap.NewNop(), cfg, marketdata.NewMemoryProvider(nil))
	_, err := engine.Run(context.Background(), day(0), day(5))
	assert.Error(t, err, "an out-of-range threshold fails the run before simulation")
}

func TestRunTakeProfitScenario(t *testing.T) {
	// One instrument, five bars: entry on day 0, day 2 closes 25% above the
	// entry, take-profit at 20% closes the position with a gain.
	cfg := testConfig()
	cfg.Strategy.InitialCapital = 1_000_000
	cfg.Strategy.TakeProfit = 0.20

	bars := []marketdata.DailyBar{
		qualifyingBar("600001", 10.0, day(0)),
		quietBar("600001", 10.8, day(1)),
		quietBar("600001", 12.5, day(2)),
		quietBar("600001", 12.4, day(3)),
		quietBar("600001", 12.3, day(4)),
	}

	result := runEngine(t, cfg, bars, day(0), day(4))
	require.Equal(t, models.RunStatusCompleted, result.Status)
	require.Len(t, result.Trades, 2)

	buy, sell := result.Trades[0], result.Trades[1]
	assert.Equal(t, models.SideBuy, buy.Side)
	assert.Equal(t, day(0), buy.Date)
	assert.InDelta(t, 10.0, buy.Price, 1e-9)

	assert.Equal(t, models.SideSell, sell.Side)
	assert.Equal(t, day(2), sell.Date)
	assert.Equal(t, ReasonTakeProfit, sell.Reason)
	assert.Greater(t, sell.ProfitLoss, 0.0)

	assert.Greater(t, result.Metrics.TotalReturn, 0.0)
	assert.Equal(t, 1.0, result.Metrics.WinRate)
}

func TestRunMaxHoldingForcesExit(t *testing.T) {
	// Holding range [1, 3], no stop-loss or take-profit trigger, a bar every
	// day: the position is force-closed exactly when elapsed days reach 3.
	cfg := testConfig()
	cfg.Strategy.MinHoldingDays = 1
	cfg.Strategy.MaxHoldingDays = 3

	bars := []marketdata.DailyBar{
		qualifyingBar("600001", 10.0, day(0)),
		quietBar("600001", 10.2, day(1)),
		quietBar("600001", 10.1, day(2)),
		quietBar("600001", 10.3, day(3)),
		quietBar("600001", 10.4, day(4)),
	}

	result := runEngine(t, cfg, bars, day(0), day(4))
	require.Len(t, result.Trades, 2)

	sell := result.Trades[1]
	assert.Equal(t, ReasonMaxHolding, sell.Reason)
	assert.Equal(t, day(3), sell.Date, "closed on the third day after entry, not earlier or later")
}

func TestRunStopLoss(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.StopLoss = 0.10

	bars := []marketdata.DailyBar{
		qualifyingBar("600001", 10.0, day(0)),
		quietBar("600001", 9.6, day(1)),
		quietBar("600001", 8.8, day(2)),
	}

	result := runEngine(t, cfg, bars, day(0), day(2))
	require.Len(t, result.Trades, 2)

	sell := result.Trades[1]
	assert.Equal(t, ReasonStopLoss, sell.Reason)
	assert.Equal(t, day(2), sell.Date)
	assert.Less(t, sell.ProfitLoss, 0.0)
}

func TestRunZeroCandidates(t *testing.T) {
	// Nothing qualifies on any day: no trades, zero total return.
	cfg := testConfig()

	var bars []marketdata.DailyBar
	for i := 0; i < 10; i++ {
		bars = append(bars, quietBar("600001", 10.0, day(i)))
		bars = append(bars, quietBar("600002", 15.0, day(i)))
	}

	result := runEngine(t, cfg, bars, day(0), day(9))
	assert.Equal(t, models.RunStatusCompleted, result.Status)
	assert.Empty(t, result.Trades)
	assert.Zero(t, result.Metrics.TotalReturn)
	assert.Zero(t, result.Metrics.TotalTrades)
	assert.InDelta(t, cfg.Strategy.InitialCapital, result.FinalCapital, 1e-9)
}

func TestRunPortfolioInvariantEveryDay(t *testing.T) {
	// total_value == cash + sum(position value) after every simulated day,
	// reflected in the snapshot series: exposure and cash must re-compose
	// the total exactly.
	cfg := testConfig()

	var bars []marketdata.DailyBar
	bars = append(bars, qualifyingBar("600001", 10.0, day(0)))
	bars = append(bars, qualifyingBar("600002", 12.0, day(0)))
	closes := []float64{10.4, 10.9, 11.5, 10.8, 12.1}
	for i, c := range closes {
		bars = append(bars, quietBar("600001", c, day(i+1)))
		bars = append(bars, quietBar("600002", c*1.2, day(i+1)))
	}

	result := runEngine(t, cfg, bars, day(0), day(5))
	require.NotEmpty(t, result.Snapshots)

	for _, snap := range result.Snapshots {
		positionValue := snap.TotalValue * snap.Exposure
		assert.InDelta(t, snap.TotalValue, snap.Cash+positionValue, 1e-6,
			"day %s", snap.Date.Format("2006-01-02"))
		assert.GreaterOrEqual(t, snap.Drawdown, 0.0)
	}
}

func TestRunSkipsNonTradingDays(t *testing.T) {
	cfg := testConfig()

	// A gap between day 0 and day 4: the missing days produce no snapshots
	// and no errors.
	bars := []marketdata.DailyBar{
		quietBar("600001", 10.0, day(0)),
		quietBar("600001", 10.1, day(4)),
	}

	result := runEngine(t, cfg, bars, day(0), day(4))
	assert.Equal(t, models.RunStatusCompleted, result.Status)
	assert.Len(t, result.Snapshots, 2)
}

func TestRunCancellationPreservesPartialResults(t *testing.T) {
	cfg := testConfig()

	var bars []marketdata.DailyBar
	bars = append(bars, qualifyingBar("600001", 10.0, day(0)))
	for i := 1; i < 10; i++ {
		bars = append(bars, quietBar("600001", 10.0+float64(i)*0.1, day(i)))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancelled before the first day

	engine := NewEngine(zap.NewNop(), cfg, marketdata.NewMemoryProvider(bars))
	result, err := engine.Run(ctx, day(0), day(9))
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCancelled, result.Status)
	assert.Empty(t, result.Snapshots)
	assert.InDelta(t, cfg.Strategy.InitialCapital, result.FinalCapital, 1e-9)
}

func TestRunCommissionNeverOverspends(t *testing.T) {
	// With a 1% commission every executed buy satisfies
	// quantity*price*1.01 <= cash before the trade.
	cfg := testConfig()
	cfg.Strategy.CommissionRate = 0.01

	bars := []marketdata.DailyBar{
		qualifyingBar("600001", 10.0, day(0)),
		qualifyingBar("600002", 12.0, day(0)),
		quietBar("600001", 10.2, day(1)),
		quietBar("600002", 12.1, day(1)),
	}

	result := runEngine(t, cfg, bars, day(0), day(1))
	require.NotEmpty(t, result.Trades)

	for _, tr := range result.Trades {
		if tr.Side != models.SideBuy {
			continue
		}
		cashBefore := tr.CashAfter + tr.Amount + tr.Commission
		assert.LessOrEqual(t, tr.Quantity*tr.Price*1.01, cashBefore+1e-6,
			"buy of %s must fit with commission included", tr.Code)
	}
}

func TestRunRespectsMaxOpenPositions(t *testing.T) {
	cfg := testConfig()
	cfg.Strategy.MaxOpenPositions = 2

	var bars []marketdata.DailyBar
	for i := 1; i <= 5; i++ {
		code := string(rune('0'+i)) + "00001"
		bars = append(bars, qualifyingBar(code, 10.0, day(0)))
		bars = append(bars, quietBar(code, 10.1, day(1)))
	}

	result := runEngine(t, cfg, bars, day(0), day(1))
	require.NotEmpty(t, result.Snapshots)
	for _, snap := range result.Snapshots {
		assert.LessOrEqual(t, snap.OpenPositions, 2)
	}
}
