// Package strategy screens a day's instrument universe and ranks the
// survivors with a weighted composite score.
package strategy

import (
	"sort"

	"go.uber.org/zap"

	"github.com/benbenlijie/stock-quant-tool/internal/chips"
	"github.com/benbenlijie/stock-quant-tool/internal/config"
	"github.com/benbenlijie/stock-quant-tool/internal/marketdata"
)

// Candidate is one instrument's score for one day, with the sub-factor
// breakdown that produced it.
type Candidate struct {
	Code          string
	Name          string
	Sector        string
	Close         float64
	PctChange     float64
	TurnoverRate  float64
	VolumeRatio   float64
	Concentration float64
	ProfitRatio   float64
	Score         float64
	Rank          int

	VolumePriceScore float64
	ChipScore        float64
	SentimentScore   float64
	SectorScore      float64
	MoneyFlowScore   float64
}

// Weights are the composite-score weights. They should sum to 1.
type Weights struct {
	VolumePrice float64
	Chip        float64
	Sentiment   float64
	SectorHeat  float64
	MoneyFlow   float64
}

// DefaultWeights mirrors the strategy's standard 30/25/20/15/10 split.
func DefaultWeights() Weights {
	return Weights{
		VolumePrice: 0.30,
		Chip:        0.25,
		Sentiment:   0.20,
		SectorHeat:  0.15,
		MoneyFlow:   0.10,
	}
}

// DefaultSectorHeat is the static sector-heat lookup. Unmapped sectors score
// the neutral default.
var DefaultSectorHeat = map[string]float64{
	"artificial intelligence": 90,
	"semiconductors":          85,
	"new energy":              85,
	"photovoltaics":           80,
	"energy storage":          75,
	"communications":          75,
	"pharmaceuticals":         70,
	"new materials":           65,
	"automotive":              60,
}

const neutralSectorScore = 30

// MetricsFunc supplies holder-cost metrics for one bar. Screening treats a
// metrics failure as a per-instrument problem and skips the instrument.
type MetricsFunc func(bar marketdata.DailyBar) (chips.Metrics, error)

// Screener filters and ranks one day's universe.
type Screener struct {
	logger     *zap.Logger
	cfg        config.Strategy
	weights    Weights
	sectorHeat map[string]float64
}

// NewScreener creates a screener with the default weights and sector table.
func NewScreener(cfg config.Strategy, logger *zap.Logger) *Screener {
	return &Screener{
		logger:     logger,
		cfg:        cfg,
		weights:    DefaultWeights(),
		sectorHeat: DefaultSectorHeat,
	}
}

// Screen filters the day's bars with the hard thresholds, attaches
// holder-cost metrics, scores the survivors and returns them ranked best
// first. Ties break on instrument code so the ordering is deterministic.
// A malformed bar or a failed metrics lookup drops that instrument only.
func (s *Screener) Screen(bars []marketdata.DailyBar, held map[string]bool, metrics MetricsFunc) []Candidate {
	candidates := make([]Candidate, 0, 16)

	for _, bar := range bars {
		if err := bar.Validate(); err != nil {
			s.logger.Warn("Skipping malformed bar", zap.Error(err))
			continue
		}
		if held[bar.Code] {
			continue
		}
		if !s.passesHardFilters(bar) {
			continue
		}

		m, err := metrics(bar)
		if err != nil {
			s.logger.Warn("Skipping instrument without holder-cost metrics",
				zap.String("code", bar.Code), zap.Error(err))
			continue
		}
		if m.Concentration < s.cfg.ConcentrationThreshold || m.ProfitRatio < s.cfg.ProfitRatioThreshold {
			continue
		}

		candidates = append(candidates, s.score(bar, m))
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].Code < candidates[j].Code
	})

	if s.cfg.TopCandidates > 0 && len(candidates) > s.cfg.TopCandidates {
		candidates = candidates[:s.cfg.TopCandidates]
	}
	for i := range candidates {
		candidates[i].Rank = i + 1
	}
	return candidates
}

func (s *Screener) passesHardFilters(bar marketdata.DailyBar) bool {
	switch {
	case bar.Close > s.cfg.MaxPrice:
		return false
	case bar.FloatMarketCap() > s.cfg.MaxMarketCap:
		return false
	case bar.TurnoverRate < s.cfg.MinTurnoverRate:
		return false
	case bar.VolumeRatio < s.cfg.MinVolumeRatio:
		return false
	case bar.PctChange < s.cfg.MinDailyGain:
		return false
	case bar.Amount <= 0:
		return false
	}
	return true
}

func (s *Screener) score(bar marketdata.DailyBar, m chips.Metrics) Candidate {
	c := Candidate{
		Code:          bar.Code,
		Name:          bar.Name,
		Sector:        bar.Sector,
		Close:         bar.Close,
		PctChange:     bar.PctChange,
		TurnoverRate:  bar.TurnoverRate,
		VolumeRatio:   bar.VolumeRatio,
		Concentration: m.Concentration,
		ProfitRatio:   m.ProfitRatio,
	}

	c.VolumePriceScore = cap100(bar.VolumeRatio*20)*0.4 +
		cap100(bar.TurnoverRate*3)*0.3 +
		cap100(bar.PctChange*8)*0.3

	c.ChipScore = m.Concentration * 100

	switch {
	case bar.PctChange >= 9.5:
		c.SentimentScore = 80
	case bar.PctChange >= 7:
		c.SentimentScore = 60
	default:
		c.SentimentScore = 30
	}

	c.SectorScore = neutralSectorScore
	if v, ok := s.sectorHeat[bar.Sector]; ok {
		c.SectorScore = v
	}

	// Traded value in hundreds of millions, 50 points apiece, capped.
	c.MoneyFlowScore = cap100(bar.Amount / 1e8 * 50)

	c.Score = c.VolumePriceScore*s.weights.VolumePrice +
		c.ChipScore*s.weights.Chip +
		c.SentimentScore*s.weights.Sentiment +
		c.SectorScore*s.weights.SectorHeat +
		c.MoneyFlowScore*s.weights.MoneyFlow
	return c
}

func cap100(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
