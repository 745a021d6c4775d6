package marketdata

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/benbenlijie/stock-quant-tool/internal/config"
)

// barRecord is the wire form of one daily bar.
type barRecord struct {
	Code         string  `json:"code"`
	Name         string  `json:"name"`
	Sector       string  `json:"sector"`
	Date         string  `json:"date"`
	Open         float64 `json:"open"`
	High         float64 `json:"high"`
	Low          float64 `json:"low"`
	Close        float64 `json:"close"`
	Volume       float64 `json:"volume"`
	Amount       float64 `json:"amount"`
	TurnoverRate float64 `json:"turnover_rate"`
	VolumeRatio  float64 `json:"volume_ratio"`
	FloatShares  float64 `json:"float_shares"`
	PctChange    float64 `json:"pct_change"`
}

// Client fetches daily bars from a remote quote service. Requests are rate
// limited and routed through a circuit breaker so a dead upstream fails fast
// instead of stalling a run day by day.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

var _ Provider = (*Client)(nil)

// NewClient creates a remote market-data client.
func NewClient(cfg *config.DataFeed, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetQueryParam("token", cfg.Token).
		SetHeader("Content-Type", "application/json")

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "market-data",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Market-data breaker state changed",
				zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &Client{
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		breaker: breaker,
	}
}

// BarsForDate implements Provider. A 404 or an empty payload means a
// non-trading day and yields an empty slice, not an error.
func (c *Client) BarsForDate(ctx context.Context, date time.Time) ([]DailyBar, error) {
	var records []barRecord
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("date", date.Format(dateLayout)).
		SetResult(&records)

	if err := c.doRequest(ctx, "/daily", req); err != nil {
		return nil, fmt.Errorf("fetch bars for %s: %w", date.Format(dateLayout), err)
	}
	return c.decode(records), nil
}

// History implements Provider.
func (c *Client) History(ctx context.Context, code string, end time.Time, days int) ([]DailyBar, error) {
	var records []barRecord
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("code", code).
		SetQueryParam("end", end.Format(dateLayout)).
		SetQueryParam("days", fmt.Sprintf("%d", days)).
		SetResult(&records)

	if err := c.doRequest(ctx, "/history", req); err != nil {
		return nil, fmt.Errorf("fetch history for %s: %w", code, err)
	}
	return c.decode(records), nil
}

// doRequest executes one GET with rate limiting, the breaker and a single
// retry for transient upstream failures.
func (c *Client) doRequest(ctx context.Context, url string, req *resty.Request) error {
	const attempts = 2

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait failed: %w", err)
		}

		_, err := c.breaker.Execute(func() (interface{}, error) {
			resp, err := req.Execute(http.MethodGet, url)
			if err != nil {
				return nil, err
			}
			if resp.IsError() && resp.StatusCode() != http.StatusNotFound {
				return nil, fmt.Errorf("upstream status %s", resp.Status())
			}
			return resp, nil
		})
		if err == nil {
			return nil
		}
		lastErr = err

		c.logger.Warn("Market-data request failed",
			zap.String("url", url), zap.Int("attempt", i+1), zap.Error(err))

		select {
		case <-time.After(time.Duration(i+1) * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

// decode validates wire records, dropping malformed ones.
func (c *Client) decode(records []barRecord) []DailyBar {
	bars := make([]DailyBar, 0, len(records))
	for _, r := range records {
		date, err := time.Parse(dateLayout, r.Date)
		if err != nil {
			c.logger.Warn("Dropping bar with bad date", zap.String("code", r.Code), zap.Error(err))
			continue
		}
		bar := DailyBar{
			Code:         r.Code,
			Name:         r.Name,
			Sector:       r.Sector,
			Date:         date,
			Open:         r.Open,
			High:         r.High,
			Low:          r.Low,
			Close:        r.Close,
			Volume:       r.Volume,
			Amount:       r.Amount,
			TurnoverRate: r.TurnoverRate,
			VolumeRatio:  r.VolumeRatio,
			FloatShares:  r.FloatShares,
			PctChange:    r.PctChange,
		}
		if err := bar.Validate(); err != nil {
			c.logger.Warn("Dropping malformed bar", zap.Error(err))
			continue
		}
		bars = append(bars, bar)
	}
	return bars
}
