package chips

import (
	"math"

	"github.com/benbenlijie/stock-quant-tool/internal/marketdata"
)

// HeuristicEstimator is the closed-form fallback used when an instrument has
// too little history for the distribution model. It reads only the current
// bar: turnover, volume ratio and percent change.
type HeuristicEstimator struct {
	optimalTurnover float64
}

var _ Estimator = (*HeuristicEstimator)(nil)

// NewHeuristicEstimator creates the fallback estimator. optimalTurnover is
// the turnover percent treated as healthiest for accumulation; distance from
// it lowers the concentration factor.
func NewHeuristicEstimator(optimalTurnover float64) *HeuristicEstimator {
	return &HeuristicEstimator{optimalTurnover: optimalTurnover}
}

// Estimate implements Estimator. It never fails.
func (h *HeuristicEstimator) Estimate(bar marketdata.DailyBar, history []marketdata.DailyBar) (Metrics, error) {
	return Metrics{
		Concentration: h.concentration(bar),
		ProfitRatio:   h.profitRatio(bar),
		Method:        "heuristic",
		DataDays:      len(history),
	}, nil
}

func (h *HeuristicEstimator) concentration(bar marketdata.DailyBar) float64 {
	turnoverFactor := clamp(1.2-math.Abs(bar.TurnoverRate-h.optimalTurnover)/h.optimalTurnover*0.6, 0.3, 1.2)
	volumeFactor := clamp(0.7+bar.VolumeRatio*0.2, 0.7, 1.3)

	var priceFactor float64
	switch {
	case bar.PctChange < 0:
		priceFactor = 0.9
	case bar.PctChange < 3:
		priceFactor = 1.0
	case bar.PctChange < 7:
		priceFactor = 1.1
	default:
		priceFactor = 1.2
	}

	return clamp(0.5*turnoverFactor*volumeFactor*priceFactor, 0.2, 0.95)
}

func (h *HeuristicEstimator) profitRatio(bar marketdata.DailyBar) float64 {
	pct := bar.PctChange

	// Piecewise-linear in the day's move, with flattening slopes: profit
	// taking erodes the marginal gain of large moves.
	var gain float64
	switch {
	case pct <= 3:
		gain = pct * 0.04
	case pct <= 7:
		gain = 0.12 + (pct-3)*0.03
	default:
		gain = 0.24 + (pct-7)*0.01
	}

	ratio := 0.5 + gain
	if bar.TurnoverRate > 10 {
		ratio -= (bar.TurnoverRate - 10) * 0.005
	}
	if bar.VolumeRatio > 1.5 && pct > 2 {
		ratio += 0.05
	}
	return clamp(ratio, 0.1, 0.9)
}
