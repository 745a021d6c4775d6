package backtest

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/benbenlijie/stock-quant-tool/internal/marketdata"
	"github.com/benbenlijie/stock-quant-tool/internal/models"
)

// Position is one open holding. Created on buy, aged once per trading day,
// destroyed on sell.
type Position struct {
	Code        string
	Name        string
	EntryDate   time.Time
	EntryPrice  float64
	Quantity    float64
	Cost        float64 // notional plus buy commission
	LastPrice   float64
	HoldingDays int
}

// UnrealizedReturn is the position's return at the given price, before the
// exit commission.
func (p *Position) UnrealizedReturn(price float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	return price/p.EntryPrice - 1
}

// Portfolio holds the simulation's cash and open positions. It is owned by a
// single run; independent runs each get their own.
type Portfolio struct {
	Cash           float64
	InitialCapital float64
	Positions      map[string]*Position
	PeakValue      float64

	commissionRate float64
	lotSize        float64
}

// NewPortfolio creates an all-cash portfolio.
func NewPortfolio(initialCapital, commissionRate float64, lotSize int) *Portfolio {
	return &Portfolio{
		Cash:           initialCapital,
		InitialCapital: initialCapital,
		Positions:      make(map[string]*Position),
		PeakValue:      initialCapital,
		commissionRate: commissionRate,
		lotSize:        float64(lotSize),
	}
}

// SizeOrder converts a target position value into a lot-rounded share
// quantity that remains affordable with commission included. Zero means the
// order should be skipped.
func (p *Portfolio) SizeOrder(targetValue, price float64) float64 {
	if price <= 0 {
		return 0
	}
	shares := targetValue / (price * (1 + p.commissionRate))
	qty := math.Floor(shares/p.lotSize) * p.lotSize
	if qty < p.lotSize {
		return 0
	}
	return qty
}

// Buy opens a position at price. It refuses an order whose notional plus
// commission exceeds cash.
func (p *Portfolio) Buy(bar marketdata.DailyBar, qty float64, reason string) (models.TradeRecord, error) {
	if _, exists := p.Positions[bar.Code]; exists {
		return models.TradeRecord{}, fmt.Errorf("already holding %s", bar.Code)
	}
	notional := qty * bar.Close
	commission := notional * p.commissionRate
	if notional+commission > p.Cash {
		return models.TradeRecord{}, fmt.Errorf("order for %s needs %.2f, have %.2f cash",
			bar.Code, notional+commission, p.Cash)
	}

	p.Cash -= notional + commission
	p.Positions[bar.Code] = &Position{
		Code:       bar.Code,
		Name:       bar.Name,
		EntryDate:  bar.Date,
		EntryPrice: bar.Close,
		Quantity:   qty,
		Cost:       notional + commission,
		LastPrice:  bar.Close,
	}

	return models.TradeRecord{
		Code:       bar.Code,
		Name:       bar.Name,
		Side:       models.SideBuy,
		Date:       bar.Date,
		Price:      bar.Close,
		Quantity:   qty,
		Amount:     notional,
		Commission: commission,
		Reason:     reason,
		CashAfter:  p.Cash,
	}, nil
}

// Sell closes the position at price and realizes its P&L against the
// position's full cost, including the buy commission.
func (p *Portfolio) Sell(code string, price float64, date time.Time, reason string) (models.TradeRecord, error) {
	pos, ok := p.Positions[code]
	if !ok {
		return models.TradeRecord{}, fmt.Errorf("not holding %s", code)
	}

	proceeds := pos.Quantity * price
	commission := proceeds * p.commissionRate
	p.Cash += proceeds - commission
	delete(p.Positions, code)

	return models.TradeRecord{
		Code:       code,
		Name:       pos.Name,
		Side:       models.SideSell,
		Date:       date,
		Price:      price,
		Quantity:   pos.Quantity,
		Amount:     proceeds,
		Commission: commission,
		Reason:     reason,
		ProfitLoss: proceeds - commission - pos.Cost,
		CashAfter:  p.Cash,
	}, nil
}

// MarkToMarket values the portfolio with the day's closes, updates each
// position's last mark and the running peak, and returns the total value.
// A position without a bar today keeps its previous mark.
func (p *Portfolio) MarkToMarket(barsByCode map[string]marketdata.DailyBar) float64 {
	total := p.Cash
	for code, pos := range p.Positions {
		if bar, ok := barsByCode[code]; ok {
			pos.LastPrice = bar.Close
		}
		total += pos.Quantity * pos.LastPrice
	}
	if total > p.PeakValue {
		p.PeakValue = total
	}
	return total
}

// TotalValue is cash plus every position at its last mark.
func (p *Portfolio) TotalValue() float64 {
	total := p.Cash
	for _, pos := range p.Positions {
		total += pos.Quantity * pos.LastPrice
	}
	return total
}

// OpenCodes returns held instrument codes in sorted order, for deterministic
// iteration.
func (p *Portfolio) OpenCodes() []string {
	codes := make([]string, 0, len(p.Positions))
	for code := range p.Positions {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// HeldSet returns the held codes as a set for the screener's not-already-held
// filter.
func (p *Portfolio) HeldSet() map[string]bool {
	held := make(map[string]bool, len(p.Positions))
	for code := range p.Positions {
		held[code] = true
	}
	return held
}
