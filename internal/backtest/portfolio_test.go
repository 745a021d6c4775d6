package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benbenlijie/stock-quant-tool/internal/marketdata"
	"github.com/benbenlijie/stock-quant-tool/internal/models"
)

func testBar(code string, close float64, date time.Time) marketdata.DailyBar {
	return marketdata.DailyBar{
		Code:        code,
		Name:        "TEST-" + code,
		Date:        date,
		Open:        close,
		High:        close * 1.02,
		Low:         close * 0.98,
		Close:       close,
		Volume:      1e6,
		Amount:      close * 1e6,
		FloatShares: 1e8,
	}
}

func TestSizeOrderLotRounding(t *testing.T) {
	p := NewPortfolio(1_000_000, 0.0003, 100)

	qty := p.SizeOrder(100_000, 10.0)
	assert.InDelta(t, 9900, qty, 1e-9, "commission headroom drops one lot")

	// Below one lot the order is skipped.
	assert.Zero(t, p.SizeOrder(500, 10.0))
	assert.Zero(t, p.SizeOrder(100_000, 0))
}

func TestBuySellRoundTrip(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p := NewPortfolio(1_000_000, 0.001, 100)

	buy, err := p.Buy(testBar("600001", 10.0, day), 10_000, ReasonEntry)
	require.NoError(t, err)
	assert.Equal(t, models.SideBuy, buy.Side)
	assert.InDelta(t, 100_000, buy.Amount, 1e-9)
	assert.InDelta(t, 100, buy.Commission, 1e-9)
	assert.InDelta(t, 899_900, p.Cash, 1e-9)

	sell, err := p.Sell("600001", 12.0, day.AddDate(0, 0, 3), ReasonTakeProfit)
	require.NoError(t, err)
	assert.Equal(t, models.SideSell, sell.Side)
	// P&L nets out both commissions: 120000 - 120 - 100100.
	assert.InDelta(t, 19_780, sell.ProfitLoss, 1e-9)
	assert.Empty(t, p.Positions)
	assert.InDelta(t, 1_019_780, p.Cash, 1e-9)
}

func TestBuyRejectsOverspend(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p := NewPortfolio(100_000, 0.01, 100)

	// 10000 * 10 * 1.01 = 101000 > 100000.
	_, err := p.Buy(testBar("600001", 10.0, day), 10_000, ReasonEntry)
	assert.Error(t, err)
	assert.InDelta(t, 100_000, p.Cash, 1e-9)
	assert.Empty(t, p.Positions)
}

func TestSizedBuyNeverOverspends(t *testing.T) {
	// With a 1% commission, every sized order must satisfy
	// qty*price*1.01 <= cash before the trade.
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p := NewPortfolio(1_000_000, 0.01, 100)

	for i, price := range []float64{3.33, 9.99, 17.5, 29.97} {
		cashBefore := p.Cash
		qty := p.SizeOrder(p.Cash, price)
		if qty == 0 {
			continue
		}
		assert.LessOrEqual(t, qty*price*1.01, cashBefore)

		code := string(rune('A' + i))
		_, err := p.Buy(testBar(code, price, day), qty, ReasonEntry)
		require.NoError(t, err)

		_, err = p.Sell(code, price, day, ReasonMaxHolding)
		require.NoError(t, err)
	}
}

func TestMarkToMarketInvariant(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p := NewPortfolio(1_000_000, 0.0003, 100)

	_, err := p.Buy(testBar("600001", 10.0, day), 10_000, ReasonEntry)
	require.NoError(t, err)
	_, err = p.Buy(testBar("600002", 20.0, day), 5_000, ReasonEntry)
	require.NoError(t, err)

	marks := map[string]marketdata.DailyBar{
		"600001": testBar("600001", 11.0, day.AddDate(0, 0, 1)),
		"600002": testBar("600002", 18.0, day.AddDate(0, 0, 1)),
	}
	total := p.MarkToMarket(marks)
	assert.InDelta(t, p.Cash+10_000*11.0+5_000*18.0, total, 1e-6)
	assert.Equal(t, total, p.TotalValue())

	// A position without a bar keeps its previous mark.
	partial := map[string]marketdata.DailyBar{
		"600001": testBar("600001", 12.0, day.AddDate(0, 0, 2)),
	}
	total = p.MarkToMarket(partial)
	assert.InDelta(t, p.Cash+10_000*12.0+5_000*18.0, total, 1e-6)
}

func TestPeakTracksHighWaterMark(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	p := NewPortfolio(1_000_000, 0, 100)

	_, err := p.Buy(testBar("600001", 10.0, day), 50_000, ReasonEntry)
	require.NoError(t, err)

	p.MarkToMarket(map[string]marketdata.DailyBar{"600001": testBar("600001", 12.0, day)})
	peakAfterRally := p.PeakValue

	p.MarkToMarket(map[string]marketdata.DailyBar{"600001": testBar("600001", 9.0, day)})
	assert.Equal(t, peakAfterRally, p.PeakValue, "peak never declines")
	assert.InDelta(t, 1_100_000, peakAfterRally, 1e-6)
}

func TestExitRulePriority(t *testing.T) {
	cfg := testConfig().Strategy
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	pos := &Position{Code: "600001", EntryPrice: 10.0, Quantity: 1000, HoldingDays: cfg.MaxHoldingDays}

	// Stop-loss and the holding limit both trigger; stop-loss is declared
	// first and must win.
	bar := testBar("600001", 8.9, day)
	assert.Equal(t, ReasonStopLoss, evaluateExit(cfg, pos, bar))

	// Take-profit outranks the holding limit.
	bar = testBar("600001", 12.5, day)
	assert.Equal(t, ReasonTakeProfit, evaluateExit(cfg, pos, bar))

	// Holding limit alone.
	bar = testBar("600001", 10.1, day)
	assert.Equal(t, ReasonMaxHolding, evaluateExit(cfg, pos, bar))

	// Technical deterioration needs both a hard down day and dried-up volume.
	pos.HoldingDays = 1
	bar = testBar("600001", 9.4, day)
	bar.PctChange = -6
	bar.VolumeRatio = 0.3
	assert.Equal(t, ReasonWeakness, evaluateExit(cfg, pos, bar))

	bar.VolumeRatio = 1.2
	assert.Equal(t, "", evaluateExit(cfg, pos, bar))
}
