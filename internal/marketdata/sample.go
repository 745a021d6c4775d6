package marketdata

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// GenerateSample produces a synthetic bar history for demos and tests. It is
// the only place randomness enters the system: the estimator and the
// simulator consume whatever bars they are given. The same seed always yields
// the same bars.
func GenerateSample(seed int64, instruments, days int, start time.Time) []DailyBar {
	rng := rand.New(rand.NewSource(seed))
	sectors := []string{
		"semiconductors", "new energy", "pharmaceuticals", "communications",
		"new materials", "automotive", "consumer",
	}

	var bars []DailyBar
	for i := 0; i < instruments; i++ {
		code := fmt.Sprintf("%06d", 600000+i)
		price := 5 + rng.Float64()*20
		floatShares := math.Floor(1e8 + rng.Float64()*9e8)
		sector := sectors[i%len(sectors)]

		date := start
		for d := 0; d < days; d++ {
			// Walk forward over calendar days, skipping weekends.
			for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
				date = date.AddDate(0, 0, 1)
			}

			pct := rng.NormFloat64() * 3
			if pct > 10 {
				pct = 10
			} else if pct < -10 {
				pct = -10
			}
			open := price * (1 + rng.NormFloat64()*0.005)
			close := price * (1 + pct/100)
			high := math.Max(open, close) * (1 + rng.Float64()*0.02)
			low := math.Min(open, close) * (1 - rng.Float64()*0.02)

			turnover := math.Abs(rng.NormFloat64()*6) + 1
			if turnover > 40 {
				turnover = 40
			}
			volume := math.Floor(floatShares * turnover / 100)

			bars = append(bars, DailyBar{
				Code:         code,
				Name:         "SAMPLE-" + code,
				Sector:       sector,
				Date:         date,
				Open:         open,
				High:         high,
				Low:          low,
				Close:        close,
				Volume:       volume,
				Amount:       volume * (high + low + close) / 3,
				TurnoverRate: turnover,
				VolumeRatio:  0.5 + math.Abs(rng.NormFloat64()),
				FloatShares:  floatShares,
				PctChange:    pct,
			})

			price = close
			date = date.AddDate(0, 0, 1)
		}
	}
	return bars
}
