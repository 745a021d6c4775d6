package backtest

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/benbenlijie/stock-quant-tool/internal/models"
)

// Store persists run summaries, trades and snapshots.
type Store struct {
	db *gorm.DB
}

// NewStore wraps an opened database.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// CreateRun inserts the initial run row, normally with status "running".
func (s *Store) CreateRun(run *models.BacktestRun) error {
	if err := s.db.Create(run).Error; err != nil {
		return fmt.Errorf("create run %s: %w", run.RunID, err)
	}
	return nil
}

// SaveResult updates the run row from the finished result and appends its
// trades and snapshots. Partial results of cancelled or failed runs are
// persisted the same way.
func (s *Store) SaveResult(result *RunResult) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		updates := map[string]interface{}{
			"final_capital": result.FinalCapital,
			"total_return":  result.Metrics.TotalReturn,
			"annual_return": result.Metrics.AnnualReturn,
			"max_drawdown":  result.Metrics.MaxDrawdown,
			"sharpe_ratio":  result.Metrics.SharpeRatio,
			"win_rate":      result.Metrics.WinRate,
			"total_trades":  result.Metrics.TotalTrades,
			"status":        result.Status,
			"message":       result.Message,
		}
		if err := tx.Model(&models.BacktestRun{}).
			Where("run_id = ?", result.RunID).
			Updates(updates).Error; err != nil {
			return fmt.Errorf("update run %s: %w", result.RunID, err)
		}
		for i := range result.Trades {
			if err := tx.Create(&result.Trades[i]).Error; err != nil {
				return fmt.Errorf("save trade for run %s: %w", result.RunID, err)
			}
		}
		for i := range result.Snapshots {
			if err := tx.Create(&result.Snapshots[i]).Error; err != nil {
				return fmt.Errorf("save snapshot for run %s: %w", result.RunID, err)
			}
		}
		return nil
	})
}

// MarkFailed records a run-level failure.
func (s *Store) MarkFailed(runID, message string) error {
	return s.db.Model(&models.BacktestRun{}).
		Where("run_id = ?", runID).
		Updates(map[string]interface{}{
			"status":  models.RunStatusFailed,
			"message": message,
		}).Error
}

// RunDetail loads one run with its ordered trades and snapshots.
func (s *Store) RunDetail(runID string) (*models.BacktestRun, []models.TradeRecord, []models.SnapshotRecord, error) {
	var run models.BacktestRun
	if err := s.db.Where("run_id = ?", runID).First(&run).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load run %s: %w", runID, err)
	}

	var trades []models.TradeRecord
	if err := s.db.Where("run_id = ?", runID).Order("date, id").Find(&trades).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load trades for run %s: %w", runID, err)
	}

	var snapshots []models.SnapshotRecord
	if err := s.db.Where("run_id = ?", runID).Order("date").Find(&snapshots).Error; err != nil {
		return nil, nil, nil, fmt.Errorf("load snapshots for run %s: %w", runID, err)
	}

	return &run, trades, snapshots, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(limit int) ([]models.BacktestRun, error) {
	var runs []models.BacktestRun
	if err := s.db.Order("created_at desc").Limit(limit).Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}
