package models

import (
	"time"

	"gorm.io/gorm"
)

// Run statuses.
const (
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// BacktestRun is the persisted summary of one backtest run.
type BacktestRun struct {
	gorm.Model
	RunID          string    `gorm:"uniqueIndex" json:"run_id"`
	StartDate      time.Time `json:"start_date"`
	EndDate        time.Time `json:"end_date"`
	InitialCapital float64   `json:"initial_capital"`
	FinalCapital   float64   `json:"final_capital"`
	TotalReturn    float64   `json:"total_return"`
	AnnualReturn   float64   `json:"annual_return"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	SharpeRatio    float64   `json:"sharpe_ratio"`
	WinRate        float64   `json:"win_rate"`
	TotalTrades    int       `json:"total_trades"`
	Status         string    `gorm:"index" json:"status"`
	Message        string    `json:"message,omitempty"`
}
