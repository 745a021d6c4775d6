package models

import (
	"time"

	"gorm.io/gorm"
)

// SnapshotRecord is one simulated day's end-of-day portfolio state.
type SnapshotRecord struct {
	gorm.Model
	RunID            string    `gorm:"index" json:"run_id"`
	Date             time.Time `json:"date"`
	TotalValue       float64   `json:"total_value"`
	Cash             float64   `json:"cash"`
	DailyReturn      float64   `json:"daily_return"`
	CumulativeReturn float64   `json:"cumulative_return"`
	Drawdown         float64   `json:"drawdown"`
	OpenPositions    int       `json:"open_positions"`
	Exposure         float64   `json:"exposure"`
}
