package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// csvColumns is the expected header of a bar file. Rows that fail to parse or
// validate are skipped so one bad instrument cannot poison a whole dataset.
var csvColumns = []string{
	"code", "name", "sector", "date", "open", "high", "low", "close",
	"volume", "amount", "turnover_rate", "volume_ratio", "float_shares", "pct_change",
}

// LoadCSV reads daily bars from path. It returns the valid bars and the
// number of rows it skipped.
func LoadCSV(path string, logger *zap.Logger) ([]DailyBar, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open bar file: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(csvColumns)

	header, err := r.Read()
	if err != nil {
		return nil, 0, fmt.Errorf("read bar file header: %w", err)
	}
	for i, col := range csvColumns {
		if header[i] != col {
			return nil, 0, fmt.Errorf("bar file column %d: want %q, got %q", i, col, header[i])
		}
	}

	var bars []DailyBar
	skipped := 0
	for line := 2; ; line++ {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warn("Skipping unreadable bar row", zap.Int("line", line), zap.Error(err))
			skipped++
			continue
		}

		bar, err := parseBarRecord(record)
		if err == nil {
			err = bar.Validate()
		}
		if err != nil {
			logger.Warn("Skipping malformed bar row", zap.Int("line", line), zap.Error(err))
			skipped++
			continue
		}
		bars = append(bars, bar)
	}
	return bars, skipped, nil
}

func parseBarRecord(record []string) (DailyBar, error) {
	bar := DailyBar{
		Code:   record[0],
		Name:   record[1],
		Sector: record[2],
	}

	date, err := time.Parse(dateLayout, record[3])
	if err != nil {
		return DailyBar{}, fmt.Errorf("parse date: %w", err)
	}
	bar.Date = date

	fields := []struct {
		name string
		dst  *float64
	}{
		{"open", &bar.Open},
		{"high", &bar.High},
		{"low", &bar.Low},
		{"close", &bar.Close},
		{"volume", &bar.Volume},
		{"amount", &bar.Amount},
		{"turnover_rate", &bar.TurnoverRate},
		{"volume_ratio", &bar.VolumeRatio},
		{"float_shares", &bar.FloatShares},
		{"pct_change", &bar.PctChange},
	}
	for i, f := range fields {
		v, err := strconv.ParseFloat(record[4+i], 64)
		if err != nil {
			return DailyBar{}, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = v
	}
	return bar, nil
}
