// Command backtester runs a single backtest offline, from a CSV bar file or
// a seeded sample dataset, and prints the run statistics.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/benbenlijie/stock-quant-tool/internal/backtest"
	"github.com/benbenlijie/stock-quant-tool/internal/config"
	"github.com/benbenlijie/stock-quant-tool/internal/logger"
	"github.com/benbenlijie/stock-quant-tool/internal/marketdata"
)

const dateLayout = "2006-01-02"

var (
	flagConfig  string
	flagCSV     string
	flagStart   string
	flagEnd     string
	flagCapital float64
	flagSeed    int64
	flagStocks  int
)

func main() {
	root := &cobra.Command{
		Use:   "backtester",
		Short: "Replay a daily equity history through the screening strategy",
		RunE:  run,
	}

	root.Flags().StringVar(&flagConfig, "config", "", "directory containing config.yml (optional)")
	root.Flags().StringVar(&flagCSV, "csv", "", "daily bar CSV file; omit to use generated sample data")
	root.Flags().StringVar(&flagStart, "start", "", "first simulated day (YYYY-MM-DD)")
	root.Flags().StringVar(&flagEnd, "end", "", "last simulated day (YYYY-MM-DD)")
	root.Flags().Float64Var(&flagCapital, "capital", 0, "override initial capital")
	root.Flags().Int64Var(&flagSeed, "seed", 42, "sample data seed")
	root.Flags().IntVar(&flagStocks, "stocks", 20, "sample data instrument count")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if flagCapital > 0 {
		cfg.Strategy.InitialCapital = flagCapital
	}

	log, err := logger.New(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		return err
	}
	defer log.Sync()

	provider, start, end, err := buildProvider(&cfg, log)
	if err != nil {
		return err
	}

	engine := backtest.NewEngine(log, &cfg, provider)
	result, err := engine.Run(cmd.Context(), start, end)
	if err != nil {
		return err
	}

	printResult(result)
	return nil
}

func loadConfig() (config.Config, error) {
	if flagConfig == "" {
		return config.Default(), nil
	}
	return config.LoadConfig(flagConfig)
}

// buildProvider loads bars from CSV or generates a sample set, and derives
// the simulation window from the flags or the data itself.
func buildProvider(cfg *config.Config, log *zap.Logger) (marketdata.Provider, time.Time, time.Time, error) {
	var bars []marketdata.DailyBar
	if flagCSV != "" {
		loaded, skipped, err := marketdata.LoadCSV(flagCSV, log)
		if err != nil {
			return nil, time.Time{}, time.Time{}, err
		}
		if skipped > 0 {
			log.Warn("Some bar rows were skipped", zap.Int("skipped", skipped))
		}
		bars = loaded
	} else {
		start := time.Now().AddDate(0, -6, 0)
		bars = marketdata.GenerateSample(flagSeed, flagStocks, 120, start)
		log.Info("Using generated sample data",
			zap.Int64("seed", flagSeed), zap.Int("instruments", flagStocks))
	}
	if len(bars) == 0 {
		return nil, time.Time{}, time.Time{}, fmt.Errorf("no usable bars")
	}

	first, last := bars[0].Date, bars[0].Date
	for _, b := range bars {
		if b.Date.Before(first) {
			first = b.Date
		}
		if b.Date.After(last) {
			last = b.Date
		}
	}

	start, end := first, last
	var err error
	if flagStart != "" {
		start, err = time.Parse(dateLayout, flagStart)
		if err != nil {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("bad --start %q", flagStart)
		}
	}
	if flagEnd != "" {
		end, err = time.Parse(dateLayout, flagEnd)
		if err != nil {
			return nil, time.Time{}, time.Time{}, fmt.Errorf("bad --end %q", flagEnd)
		}
	}
	return marketdata.NewMemoryProvider(bars), start, end, nil
}

func printResult(result *backtest.RunResult) {
	m := result.Metrics
	fmt.Printf("run %s  [%s]\n", result.RunID, result.Status)
	fmt.Printf("  period          %s .. %s\n",
		result.StartDate.Format(dateLayout), result.EndDate.Format(dateLayout))
	fmt.Printf("  capital         %.2f -> %.2f\n", result.InitialCapital, result.FinalCapital)
	fmt.Printf("  total return    %+.2f%%\n", m.TotalReturn*100)
	fmt.Printf("  annual return   %+.2f%%\n", m.AnnualReturn*100)
	fmt.Printf("  max drawdown    %.2f%%\n", m.MaxDrawdown*100)
	fmt.Printf("  sharpe ratio    %.2f\n", m.SharpeRatio)
	fmt.Printf("  win rate        %.1f%%\n", m.WinRate*100)
	fmt.Printf("  trades          %d (best %+.2f, worst %+.2f, avg %+.2f)\n",
		m.TotalTrades, m.BestTrade, m.WorstTrade, m.AvgProfitLoss)
}
