package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Strategy  Strategy  `mapstructure:"strategy"`
	Estimator Estimator `mapstructure:"estimator"`
	Logger    Logger    `mapstructure:"logger"`
	Server    Server    `mapstructure:"server"`
	Database  Database  `mapstructure:"database"`
	DataFeed  DataFeed  `mapstructure:"data_feed"`
}

// Strategy holds screening thresholds, risk limits and execution parameters
// for a backtest run.
type Strategy struct {
	MaxPrice               float64 `mapstructure:"max_price"`
	MaxMarketCap           float64 `mapstructure:"max_market_cap"`
	MinTurnoverRate        float64 `mapstructure:"min_turnover_rate"`
	MinVolumeRatio         float64 `mapstructure:"min_volume_ratio"`
	MinDailyGain           float64 `mapstructure:"min_daily_gain"`
	ConcentrationThreshold float64 `mapstructure:"concentration_threshold"`
	ProfitRatioThreshold   float64 `mapstructure:"profit_ratio_threshold"`
	MaxOpenPositions       int     `mapstructure:"max_open_positions"`
	StopLoss               float64 `mapstructure:"stop_loss"`
	TakeProfit             float64 `mapstructure:"take_profit"`
	MinHoldingDays         int     `mapstructure:"min_holding_days"`
	MaxHoldingDays         int     `mapstructure:"max_holding_days"`
	InitialCapital         float64 `mapstructure:"initial_capital"`
	CommissionRate         float64 `mapstructure:"commission_rate"`
	LotSize                int     `mapstructure:"lot_size"`
	TopCandidates          int     `mapstructure:"top_candidates"`
}

// Estimator holds the tunable constants of the cost-basis distribution model.
// These are heuristic parameters, not calibrated values.
type Estimator struct {
	LookbackDays    int     `mapstructure:"lookback_days"`
	BucketWidth     float64 `mapstructure:"bucket_width"`
	BandwidthFactor float64 `mapstructure:"bandwidth_factor"`
	MinHistoryDays  int     `mapstructure:"min_history_days"`
	OptimalTurnover float64 `mapstructure:"optimal_turnover"`
}

// Server holds the configuration for the HTTP control surface.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the run store.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// DataFeed holds the configuration for the remote market-data provider.
type DataFeed struct {
	BaseURL        string  `mapstructure:"base_url"`
	Token          string  `mapstructure:"token"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}

// Default returns a configuration populated with the built-in defaults,
// without touching the filesystem. The CLI uses this when no config file is
// given.
func Default() Config {
	return Config{
		Strategy: Strategy{
			MaxPrice:               30.0,
			MaxMarketCap:           5e9,
			MinTurnoverRate:        10.0,
			MinVolumeRatio:         2.0,
			MinDailyGain:           9.0,
			ConcentrationThreshold: 0.65,
			ProfitRatioThreshold:   0.5,
			MaxOpenPositions:       5,
			StopLoss:               0.10,
			TakeProfit:             0.20,
			MinHoldingDays:         2,
			MaxHoldingDays:         10,
			InitialCapital:         1_000_000.0,
			CommissionRate:         0.0003,
			LotSize:                100,
			TopCandidates:          50,
		},
		Estimator: Estimator{
			LookbackDays:    60,
			BucketWidth:     0.01,
			BandwidthFactor: 1.0,
			MinHistoryDays:  10,
			OptimalTurnover: 8.0,
		},
		Logger:   Logger{Level: "info", Format: "console"},
		Server:   Server{Port: 8080},
		Database: Database{DSN: "backtest.db"},
		DataFeed: DataFeed{RateLimit: 5, RateLimitBurst: 2},
	}
}

func setDefaults() {
	d := Default()

	viper.SetDefault("strategy.max_price", d.Strategy.MaxPrice)
	viper.SetDefault("strategy.max_market_cap", d.Strategy.MaxMarketCap)
	viper.SetDefault("strategy.min_turnover_rate", d.Strategy.MinTurnoverRate)
	viper.SetDefault("strategy.min_volume_ratio", d.Strategy.MinVolumeRatio)
	viper.SetDefault("strategy.min_daily_gain", d.Strategy.MinDailyGain)
	viper.SetDefault("strategy.concentration_threshold", d.Strategy.ConcentrationThreshold)
	viper.SetDefault("strategy.profit_ratio_threshold", d.Strategy.ProfitRatioThreshold)
	viper.SetDefault("strategy.max_open_positions", d.Strategy.MaxOpenPositions)
	viper.SetDefault("strategy.stop_loss", d.Strategy.StopLoss)
	viper.SetDefault("strategy.take_profit", d.Strategy.TakeProfit)
	viper.SetDefault("strategy.min_holding_days", d.Strategy.MinHoldingDays)
	viper.SetDefault("strategy.max_holding_days", d.Strategy.MaxHoldingDays)
	viper.SetDefault("strategy.initial_capital", d.Strategy.InitialCapital)
	viper.SetDefault("strategy.commission_rate", d.Strategy.CommissionRate)
	viper.SetDefault("strategy.lot_size", d.Strategy.LotSize)
	viper.SetDefault("strategy.top_candidates", d.Strategy.TopCandidates)

	viper.SetDefault("estimator.lookback_days", d.Estimator.LookbackDays)
	viper.SetDefault("estimator.bucket_width", d.Estimator.BucketWidth)
	viper.SetDefault("estimator.bandwidth_factor", d.Estimator.BandwidthFactor)
	viper.SetDefault("estimator.min_history_days", d.Estimator.MinHistoryDays)
	viper.SetDefault("estimator.optimal_turnover", d.Estimator.OptimalTurnover)

	viper.SetDefault("logger.level", d.Logger.Level)
	viper.SetDefault("logger.format", d.Logger.Format)
	viper.SetDefault("server.port", d.Server.Port)
	viper.SetDefault("database.dsn", d.Database.DSN)
	viper.SetDefault("data_feed.rate_limit", d.DataFeed.RateLimit)
	viper.SetDefault("data_feed.rate_limit_burst", d.DataFeed.RateLimitBurst)
}

// Validate checks that every strategy parameter is in its legal range. A run
// must not start with an invalid configuration: thresholds cannot be safely
// defaulted after the fact.
func (s Strategy) Validate() error {
	if s.InitialCapital <= 0 {
		return fmt.Errorf("strategy config: initial_capital must be positive, got %v", s.InitialCapital)
	}
	if s.MaxOpenPositions < 1 {
		return fmt.Errorf("strategy config: max_open_positions must be at least 1, got %d", s.MaxOpenPositions)
	}
	if s.CommissionRate < 0 || s.CommissionRate > 0.05 {
		return fmt.Errorf("strategy config: commission_rate must be in [0, 0.05], got %v", s.CommissionRate)
	}
	if s.StopLoss <= 0 || s.StopLoss >= 1 {
		return fmt.Errorf("strategy config: stop_loss must be in (0, 1), got %v", s.StopLoss)
	}
	if s.TakeProfit <= 0 {
		return fmt.Errorf("strategy config: take_profit must be positive, got %v", s.TakeProfit)
	}
	if s.MinHoldingDays < 1 || s.MaxHoldingDays < s.MinHoldingDays {
		return fmt.Errorf("strategy config: holding days range [%d, %d] is invalid", s.MinHoldingDays, s.MaxHoldingDays)
	}
	if s.ConcentrationThreshold < 0 || s.ConcentrationThreshold > 1 {
		return fmt.Errorf("strategy config: concentration_threshold must be in [0, 1], got %v", s.ConcentrationThreshold)
	}
	if s.ProfitRatioThreshold < 0 || s.ProfitRatioThreshold > 1 {
		return fmt.Errorf("strategy config: profit_ratio_threshold must be in [0, 1], got %v", s.ProfitRatioThreshold)
	}
	if s.LotSize < 1 {
		return fmt.Errorf("strategy config: lot_size must be at least 1, got %d", s.LotSize)
	}
	if s.MaxPrice <= 0 || s.MaxMarketCap <= 0 {
		return fmt.Errorf("strategy config: max_price and max_market_cap must be positive")
	}
	return nil
}

// Validate checks the estimator parameters.
func (e Estimator) Validate() error {
	if e.LookbackDays < 1 {
		return fmt.Errorf("estimator config: lookback_days must be at least 1, got %d", e.LookbackDays)
	}
	if e.BucketWidth <= 0 {
		return fmt.Errorf("estimator config: bucket_width must be positive, got %v", e.BucketWidth)
	}
	if e.BandwidthFactor <= 0 {
		return fmt.Errorf("estimator config: bandwidth_factor must be positive, got %v", e.BandwidthFactor)
	}
	if e.MinHistoryDays < 1 || e.MinHistoryDays > e.LookbackDays {
		return fmt.Errorf("estimator config: min_history_days must be in [1, lookback_days], got %d", e.MinHistoryDays)
	}
	if e.OptimalTurnover <= 0 {
		return fmt.Errorf("estimator config: optimal_turnover must be positive, got %v", e.OptimalTurnover)
	}
	return nil
}
