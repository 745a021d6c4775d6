package chips

import (
	"errors"

	"github.com/benbenlijie/stock-quant-tool/internal/config"
	"github.com/benbenlijie/stock-quant-tool/internal/marketdata"
)

// ErrInsufficientHistory signals that the recursive distribution model has
// too few observations to be stable. It is not a hard failure: callers fall
// back to the closed-form heuristic.
var ErrInsufficientHistory = errors.New("chips: insufficient history for distribution estimate")

// Metrics is the estimator output consumed by the screener. The screener is
// indifferent to which method produced it.
type Metrics struct {
	Concentration float64
	ProfitRatio   float64
	Method        string
	DataDays      int
}

// Estimator derives holder-cost metrics for one instrument from its current
// bar and lookback history. Implementations must be deterministic and free
// of side effects.
type Estimator interface {
	Estimate(bar marketdata.DailyBar, history []marketdata.DailyBar) (Metrics, error)
}

// DistributionEstimator reconstructs the cost-basis histogram day by day:
// seed the first day's volume around its VWAP, decay older holdings by the
// turnover rate, inject the day's traded volume, and renormalize the total
// to the free float.
type DistributionEstimator struct {
	params config.Estimator
}

// NewDistributionEstimator creates a distribution-based estimator.
func NewDistributionEstimator(params config.Estimator) *DistributionEstimator {
	return &DistributionEstimator{params: params}
}

// Build replays the history into a distribution. The window is capped at
// the configured lookback.
func (e *DistributionEstimator) Build(history []marketdata.DailyBar) *Distribution {
	if n := len(history); n > e.params.LookbackDays {
		history = history[n-e.params.LookbackDays:]
	}

	dist := NewDistribution(e.params.BucketWidth)
	for i, bar := range history {
		if i > 0 {
			// Turnover arrives in percent; the decay multiplier wants a
			// fraction, floored to keep the recursion numerically sane.
			turnover := clamp(bar.TurnoverRate/100, 0.001, 1.0)
			dist.Decay(1 - turnover)
		}
		dist.Inject(bar.VWAP(), bar.Low, bar.High, bar.Volume, e.params.BandwidthFactor)
		dist.Renormalize(bar.FloatShares)
	}
	return dist
}

// Estimate implements Estimator. It returns ErrInsufficientHistory below the
// configured minimum number of observations.
func (e *DistributionEstimator) Estimate(bar marketdata.DailyBar, history []marketdata.DailyBar) (Metrics, error) {
	if len(history) < e.params.MinHistoryDays {
		return Metrics{}, ErrInsufficientHistory
	}
	dist := e.Build(history)
	if dist.TotalVolume() == 0 {
		return Metrics{}, ErrInsufficientHistory
	}
	return Metrics{
		Concentration: dist.Concentration(),
		ProfitRatio:   dist.ProfitRatio(bar.Close),
		Method:        "distribution",
		DataDays:      min(len(history), e.params.LookbackDays),
	}, nil
}

// AutoEstimator prefers the distribution model and degrades to the heuristic
// when history is too short.
type AutoEstimator struct {
	dist      *DistributionEstimator
	heuristic *HeuristicEstimator
}

var _ Estimator = (*AutoEstimator)(nil)

// NewAutoEstimator creates the default estimator stack.
func NewAutoEstimator(params config.Estimator) *AutoEstimator {
	return &AutoEstimator{
		dist:      NewDistributionEstimator(params),
		heuristic: NewHeuristicEstimator(params.OptimalTurnover),
	}
}

// Estimate implements Estimator.
func (a *AutoEstimator) Estimate(bar marketdata.DailyBar, history []marketdata.DailyBar) (Metrics, error) {
	m, err := a.dist.Estimate(bar, history)
	if errors.Is(err, ErrInsufficientHistory) {
		return a.heuristic.Estimate(bar, history)
	}
	return m, err
}
