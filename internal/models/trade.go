package models

import (
	"time"

	"gorm.io/gorm"
)

// Trade sides.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// TradeRecord is the immutable log of one executed order, with a portfolio
// snapshot taken at execution time.
type TradeRecord struct {
	gorm.Model
	RunID      string    `gorm:"index" json:"run_id"`
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Side       string    `json:"side"`
	Date       time.Time `json:"date"`
	Price      float64   `json:"price"`
	Quantity   float64   `json:"quantity"`
	Amount     float64   `json:"amount"`
	Commission float64   `json:"commission"`
	Reason     string    `json:"reason"`
	ProfitLoss float64   `json:"profit_loss"` // realized, sell only
	CashAfter  float64   `json:"cash_after"`
	ValueAfter float64   `json:"value_after"`
}
