package marketdata

import (
	"context"
	"sort"
	"time"
)

// Provider supplies daily bars. An empty result for a date means a
// non-trading day, not an error.
type Provider interface {
	// BarsForDate returns every instrument's bar for the given date.
	BarsForDate(ctx context.Context, date time.Time) ([]DailyBar, error)

	// History returns up to days bars for one instrument ending at (and
	// including) end, in chronological order.
	History(ctx context.Context, code string, end time.Time, days int) ([]DailyBar, error)
}

const dateLayout = "2006-01-02"

func dateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// MemoryProvider serves bars from an in-memory set, indexed by date and by
// instrument. It backs CSV-loaded backtests and tests.
type MemoryProvider struct {
	byDate map[string][]DailyBar
	byCode map[string][]DailyBar
}

// NewMemoryProvider indexes the given bars. Bars are sorted chronologically
// per instrument and by code within a date so iteration order is stable.
func NewMemoryProvider(bars []DailyBar) *MemoryProvider {
	p := &MemoryProvider{
		byDate: make(map[string][]DailyBar),
		byCode: make(map[string][]DailyBar),
	}
	for _, b := range bars {
		k := dateKey(b.Date)
		p.byDate[k] = append(p.byDate[k], b)
		p.byCode[b.Code] = append(p.byCode[b.Code], b)
	}
	for k := range p.byDate {
		day := p.byDate[k]
		sort.Slice(day, func(i, j int) bool { return day[i].Code < day[j].Code })
	}
	for c := range p.byCode {
		hist := p.byCode[c]
		sort.Slice(hist, func(i, j int) bool { return hist[i].Date.Before(hist[j].Date) })
	}
	return p
}

// BarsForDate implements Provider.
func (p *MemoryProvider) BarsForDate(_ context.Context, date time.Time) ([]DailyBar, error) {
	return p.byDate[dateKey(date)], nil
}

// History implements Provider.
func (p *MemoryProvider) History(_ context.Context, code string, end time.Time, days int) ([]DailyBar, error) {
	hist := p.byCode[code]
	// Find the first bar after end.
	cut := sort.Search(len(hist), func(i int) bool { return hist[i].Date.After(end) })
	start := cut - days
	if start < 0 {
		start = 0
	}
	out := make([]DailyBar, cut-start)
	copy(out, hist[start:cut])
	return out, nil
}
