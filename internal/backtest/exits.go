package backtest

import (
	"github.com/benbenlijie/stock-quant-tool/internal/config"
	"github.com/benbenlijie/stock-quant-tool/internal/marketdata"
)

// Exit-rule reasons, also recorded on the resulting trade.
const (
	ReasonStopLoss   = "stop_loss"
	ReasonTakeProfit = "take_profit"
	ReasonMaxHolding = "max_holding_days"
	ReasonWeakness   = "technical_weakness"
	ReasonEntry      = "screener_entry"
)

// exitRule is one sell trigger. Rules are evaluated in the order of
// exitRules; the first match wins. The order is a documented tie-break, not
// an accident: stop-loss outranks take-profit, which outranks the holding
// limit, which outranks technical deterioration.
type exitRule struct {
	reason    string
	triggered func(cfg config.Strategy, pos *Position, bar marketdata.DailyBar) bool
}

var exitRules = []exitRule{
	{
		reason: ReasonStopLoss,
		triggered: func(cfg config.Strategy, pos *Position, bar marketdata.DailyBar) bool {
			return pos.UnrealizedReturn(bar.Close) <= -cfg.StopLoss
		},
	},
	{
		reason: ReasonTakeProfit,
		triggered: func(cfg config.Strategy, pos *Position, bar marketdata.DailyBar) bool {
			return pos.UnrealizedReturn(bar.Close) >= cfg.TakeProfit
		},
	},
	{
		reason: ReasonMaxHolding,
		triggered: func(cfg config.Strategy, pos *Position, bar marketdata.DailyBar) bool {
			return pos.HoldingDays >= cfg.MaxHoldingDays
		},
	},
	{
		reason: ReasonWeakness,
		triggered: func(cfg config.Strategy, pos *Position, bar marketdata.DailyBar) bool {
			return bar.PctChange < -5 && bar.VolumeRatio < 0.5
		},
	},
}

// evaluateExit returns the first matching exit reason, or "" to keep holding.
func evaluateExit(cfg config.Strategy, pos *Position, bar marketdata.DailyBar) string {
	for _, rule := range exitRules {
		if rule.triggered(cfg, pos, bar) {
			return rule.reason
		}
	}
	return ""
}
