// Package storage persists microstructure metrics and backtest
// results to SQLite. It is a one-way append sink; the simulation core
// never reads back.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"quantsim/internal/domain"
)

// MetricsRecord is the stored shape of one MarketMetrics snapshot.
type MetricsRecord struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement"`
	Symbol             string `gorm:"index"`
	TimestampMs        int64  `gorm:"index"`
	MidPrice           float64
	Spread             float64
	OrderImbalance     float64
	PriceImpact        float64
	RealizedVolatility float64
	CreatedAt          time.Time
}

// BacktestRun is the stored performance summary of one run.
type BacktestRun struct {
	RunID            string `gorm:"primaryKey"`
	Strategy         string
	Symbols          string // comma separated
	InitialCapital   float64
	TotalReturn      float64
	AnnualizedReturn float64
	SharpeRatio      float64
	MaxDrawdown      float64
	WinRate          float64
	TradeCount       int
	CreatedAt        time.Time
}

// EquityPointRecord is one stored equity curve observation.
type EquityPointRecord struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	RunID       string `gorm:"index"`
	TimestampMs int64
	Equity      float64
}

// Storage wraps the SQLite connection.
type Storage struct {
	db *gorm.DB
}

var (
	_ domain.MetricsSink = (*Storage)(nil)
	_ domain.ResultSink  = (*Storage)(nil)
)

// New opens (creating if needed) the SQLite database at path and runs
// migrations.
func New(path string) (*Storage, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create DB directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.AutoMigrate(&MetricsRecord{}, &BacktestRun{}, &EquityPointRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Storage{db: db}, nil
}

// SaveMetrics appends one metrics snapshot.
func (s *Storage) SaveMetrics(m *domain.MarketMetrics) error {
	record := MetricsRecord{
		Symbol:             m.Symbol,
		TimestampMs:        m.TimestampMs,
		MidPrice:           m.MidPrice,
		Spread:             m.Spread,
		OrderImbalance:     m.OrderImbalance,
		PriceImpact:        m.PriceImpact,
		RealizedVolatility: m.RealizedVolatility,
	}
	return s.db.Create(&record).Error
}

// SaveBacktestResult appends one run summary with its equity curve.
func (s *Storage) SaveBacktestResult(run *domain.BacktestRunRecord) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		record := BacktestRun{
			RunID:            run.RunID,
			Strategy:         run.Strategy,
			Symbols:          strings.Join(run.Symbols, ","),
			InitialCapital:   run.InitialCapital,
			TotalReturn:      run.TotalReturn,
			AnnualizedReturn: run.AnnualizedReturn,
			SharpeRatio:      run.SharpeRatio,
			MaxDrawdown:      run.MaxDrawdown,
			WinRate:          run.WinRate,
			TradeCount:       run.TradeCount,
		}
		if err := tx.Create(&record).Error; err != nil {
			return err
		}

		if len(run.EquityCurve) == 0 {
			return nil
		}
		points := make([]EquityPointRecord, len(run.EquityCurve))
		for i, pt := range run.EquityCurve {
			points[i] = EquityPointRecord{
				RunID:       run.RunID,
				TimestampMs: pt.TimestampMs,
				Equity:      pt.Equity,
			}
		}
		return tx.CreateInBatches(points, 500).Error
	})
}
