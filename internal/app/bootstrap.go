// Package app wires configuration, logging, storage and the
// simulation components together at startup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"quantsim/internal/analysis"
	"quantsim/internal/data"
	"quantsim/internal/domain"
	"quantsim/internal/engine"
	"quantsim/internal/execution"
	"quantsim/internal/feed"
	"quantsim/internal/infra"
	"quantsim/internal/infra/storage"
	"quantsim/internal/portfolio"
	"quantsim/internal/strategy"
)

// Bootstrap orchestrates the application startup sequence.
type Bootstrap struct {
	Config   *infra.Config
	Storage  *storage.Storage
	Counters *infra.Metrics
}

// NewBootstrap creates an empty Bootstrap.
func NewBootstrap() *Bootstrap {
	return &Bootstrap{Counters: &infra.Metrics{}}
}

// Initialize loads configuration, installs the logger and opens
// storage when configured.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err
	}
	b.Config = cfg

	slog.SetDefault(infra.NewLogger(cfg))

	if cfg.Storage.Path != "" {
		store, err := storage.New(cfg.Storage.Path)
		if err != nil {
			return err
		}
		b.Storage = store
		slog.Info("database initialized", slog.String("path", cfg.Storage.Path))
	}

	return nil
}

// RunBacktest builds the simulation stack from configuration, runs it
// once and persists the result when storage is configured.
func (b *Bootstrap) RunBacktest(ctx context.Context) (*engine.Result, error) {
	cfg := b.Config

	startMs, err := parseDateMs(cfg.Backtest.StartDate)
	if err != nil {
		return nil, fmt.Errorf("start_date: %w", err)
	}
	endMs, err := parseDateMs(cfg.Backtest.EndDate)
	if err != nil {
		return nil, fmt.Errorf("end_date: %w", err)
	}

	rng := rand.New(rand.NewSource(cfg.Backtest.Seed))

	model, err := execution.NewModel(cfg.Execution, rng)
	if err != nil {
		return nil, err
	}

	loader := data.NewLoader(cfg.Backtest.DataDir)
	var provider domain.MarketDataProvider
	provider, err = data.PrepareBacktestData(loader, cfg.Backtest.Symbols, cfg.Backtest.Timeframe, startMs, endMs, rng)
	if err != nil {
		return nil, err
	}

	bars := make(map[string][]domain.Bar, len(cfg.Backtest.Symbols))
	books := make(map[string][]domain.OrderBookSnapshot)
	for _, symbol := range cfg.Backtest.Symbols {
		series, err := provider.Bars(symbol)
		if err != nil {
			return nil, err
		}
		bars[symbol] = series
		ladder, err := provider.OrderBooks(symbol)
		if err != nil {
			return nil, err
		}
		if len(ladder) > 0 {
			books[symbol] = ladder
		}
	}

	pf := portfolio.New(cfg.Backtest.InitialCapital, model)
	strat := strategy.NewImbalanceStrategy(cfg.Backtest.Symbols, cfg.Strategy)
	eng := engine.New(strat, pf, bars, books, slog.Default(), b.Counters)

	// A zero price impact factor disables transient impact entirely.
	if cfg.Impact.PriceImpactFactor > 0 {
		eng.SetImpactSimulator(execution.NewImpactSimulator(cfg.Impact, rng))
	}

	result, err := eng.Run()
	if err != nil {
		return nil, err
	}

	if b.Storage != nil {
		var sink domain.ResultSink = b.Storage
		record := &domain.BacktestRunRecord{
			RunID:            uuid.NewString(),
			Strategy:         "order_flow_imbalance",
			Symbols:          cfg.Backtest.Symbols,
			InitialCapital:   cfg.Backtest.InitialCapital,
			TotalReturn:      result.TotalReturn,
			AnnualizedReturn: result.AnnualizedReturn,
			SharpeRatio:      result.SharpeRatio,
			MaxDrawdown:      result.MaxDrawdown,
			WinRate:          result.WinRate,
			TradeCount:       result.TradeCount,
			EquityCurve:      result.EquityCurve,
		}
		if err := sink.SaveBacktestResult(record); err != nil {
			slog.Warn("failed to persist backtest result", slog.Any("error", err))
		}
	}

	return result, nil
}

// StartFeed wires the live analytics pipeline: websocket gateway into
// the bounded feed handler into analyzer and detector. The returned
// stop function performs the drain-then-stop shutdown.
func (b *Bootstrap) StartFeed(ctx context.Context, books domain.OrderBookQuerier) (stop func(), err error) {
	cfg := b.Config

	analyzer := analysis.NewAnalyzer(cfg.Analysis.WindowSize, cfg.Analysis.ToxicThreshold)
	detector := analysis.NewDetector(cfg.Detector)

	var sink domain.MetricsSink
	if b.Storage != nil {
		sink = b.Storage
	}

	handler := feed.NewHandler(feed.HandlerConfig{
		OrderBuffer: cfg.Feed.OrderBuffer,
		TradeBuffer: cfg.Feed.TradeBuffer,
		Overflow:    cfg.Feed.Overflow,
	}, analyzer, detector, books, sink, b.Counters, slog.Default())

	handler.Start(ctx)

	client := feed.NewWSClient(cfg.Feed.WSURL, cfg.Feed.Symbols, handler, slog.Default())
	if err := client.Connect(ctx); err != nil {
		handler.Stop()
		return nil, err
	}

	return func() {
		client.Disconnect()
		handler.Stop()
	}, nil
}

func parseDateMs(date string) (int64, error) {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
