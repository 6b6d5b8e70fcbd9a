// Package data loads historical bars from CSV and generates seeded
// synthetic market data when no files are available.
package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"quantsim/internal/domain"
)

// Loader reads per-symbol bar files from a data directory. Expected
// layout: <dir>/<symbol>_<timeframe>.csv with a
// timestamp,open,high,low,close,volume header.
type Loader struct {
	dataDir string
}

// NewLoader creates a loader rooted at dataDir.
func NewLoader(dataDir string) *Loader {
	return &Loader{dataDir: dataDir}
}

// LoadCSV reads bars for one symbol, keeping rows with timestamps in
// [startMs, endMs]. Returns ErrNoData when nothing survives the
// filter.
func (l *Loader) LoadCSV(symbol, timeframe string, startMs, endMs int64) ([]domain.Bar, error) {
	filename := filepath.Join(l.dataDir, fmt.Sprintf("%s_%s.csv", symbol, timeframe))

	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, required := range []string{"timestamp", "open", "high", "low", "close", "volume"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("missing column %q in %s", required, filename)
		}
	}

	var bars []domain.Bar
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		ts, err := strconv.ParseInt(row[col["timestamp"]], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad timestamp %q: %w", row[col["timestamp"]], err)
		}
		if ts < startMs || ts > endMs {
			continue
		}

		bar := domain.Bar{TimestampMs: ts}
		for _, field := range []struct {
			name string
			dst  *float64
		}{
			{"open", &bar.Open},
			{"high", &bar.High},
			{"low", &bar.Low},
			{"close", &bar.Close},
			{"volume", &bar.Volume},
		} {
			v, err := strconv.ParseFloat(row[col[field.name]], 64)
			if err != nil {
				return nil, fmt.Errorf("bad %s %q: %w", field.name, row[col[field.name]], err)
			}
			*field.dst = v
		}
		bars = append(bars, bar)
	}

	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: %s between %d and %d", domain.ErrNoData, symbol, startMs, endMs)
	}
	return bars, nil
}
