package marketdata

import (
	"fmt"
	"time"
)

// DailyBar is one instrument's aggregated trading record for one day.
// Prices are in currency units, Volume and FloatShares in shares, Amount in
// currency units, TurnoverRate and PctChange in percent.
type DailyBar struct {
	Code         string
	Name         string
	Sector       string
	Date         time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       float64
	Amount       float64
	TurnoverRate float64
	VolumeRatio  float64
	FloatShares  float64
	PctChange    float64
}

// VWAP approximates the day's volume-weighted average price from the bar.
func (b DailyBar) VWAP() float64 {
	return (b.High + b.Low + b.Close) / 3
}

// FloatMarketCap is the free-float market capitalization at the close.
func (b DailyBar) FloatMarketCap() float64 {
	return b.Close * b.FloatShares
}

// BarError reports a malformed bar. Callers isolate the offending instrument
// and continue the day.
type BarError struct {
	Code   string
	Field  string
	Reason string
}

func (e *BarError) Error() string {
	return fmt.Sprintf("bad bar for %s: %s %s", e.Code, e.Field, e.Reason)
}

// Validate checks the bar for field-level sanity. It returns a *BarError
// naming the first offending field.
func (b DailyBar) Validate() error {
	if b.Code == "" {
		return &BarError{Code: b.Code, Field: "code", Reason: "is empty"}
	}
	if b.Date.IsZero() {
		return &BarError{Code: b.Code, Field: "date", Reason: "is zero"}
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return &BarError{Code: b.Code, Field: "prices", Reason: "must be positive"}
	}
	if b.High < b.Low {
		return &BarError{Code: b.Code, Field: "high", Reason: "is below low"}
	}
	if b.Close > b.High || b.Close < b.Low {
		return &BarError{Code: b.Code, Field: "close", Reason: "is outside the day range"}
	}
	if b.Volume < 0 || b.Amount < 0 {
		return &BarError{Code: b.Code, Field: "volume", Reason: "must be non-negative"}
	}
	if b.TurnoverRate < 0 || b.TurnoverRate > 100 {
		return &BarError{Code: b.Code, Field: "turnover_rate", Reason: "must be in [0, 100]"}
	}
	if b.VolumeRatio < 0 {
		return &BarError{Code: b.Code, Field: "volume_ratio", Reason: "must be non-negative"}
	}
	if b.FloatShares <= 0 {
		return &BarError{Code: b.Code, Field: "float_shares", Reason: "must be positive"}
	}
	return nil
}
