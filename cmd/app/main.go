package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"quantsim/internal/app"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	boot := app.NewBootstrap()
	if err := boot.Initialize(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "initialization failed: %v\n", err)
		os.Exit(1)
	}

	cfg := boot.Config
	slog.Info("starting",
		slog.String("app", cfg.App.Name),
		slog.String("version", cfg.App.Version),
	)

	result, err := boot.RunBacktest(ctx)
	if err != nil {
		slog.Error("backtest failed", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("backtest complete",
		slog.Float64("total_return", result.TotalReturn),
		slog.Float64("annualized_return", result.AnnualizedReturn),
		slog.Float64("sharpe_ratio", result.SharpeRatio),
		slog.Float64("max_drawdown", result.MaxDrawdown),
		slog.Float64("win_rate", result.WinRate),
		slog.Int("trade_count", result.TradeCount),
	)

	if cfg.Feed.Enabled {
		stopFeed, err := boot.StartFeed(ctx, nil)
		if err != nil {
			slog.Error("feed startup failed", slog.Any("error", err))
			os.Exit(1)
		}
		slog.Info("live feed running", slog.String("url", cfg.Feed.WSURL))

		<-ctx.Done()
		slog.Info("shutdown signal received")
		stopFeed()

		snap := boot.Counters.Snapshot()
		slog.Info("feed counters",
			slog.Uint64("events", snap.FeedEvents),
			slog.Uint64("dropped", snap.FeedDropped),
		)
	}

	slog.Info("stopped")
}
