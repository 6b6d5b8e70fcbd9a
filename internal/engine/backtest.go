// Package engine time-steps a strategy across aligned multi-symbol
// market data, driving the portfolio and mark-to-market.
package engine

import (
	"log/slog"
	"math"
	"sort"

	"quantsim/internal/domain"
	"quantsim/internal/execution"
	"quantsim/internal/infra"
	"quantsim/internal/portfolio"
	"quantsim/internal/strategy"
)

// Engine lifecycle states. A single pass, no retries: INITIALIZED ->
// RUNNING -> COMPLETED.
type State int

const (
	StateInitialized State = iota
	StateRunning
	StateCompleted
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateInitialized:
		return "INITIALIZED"
	case StateRunning:
		return "RUNNING"
	case StateCompleted:
		return "COMPLETED"
	}
	return "UNKNOWN"
}

// TradingDaysPerYear is the annualization base for returns and Sharpe.
const TradingDaysPerYear = 252

// Result is the post-run performance summary.
type Result struct {
	TotalReturn      float64              `json:"total_return"`
	AnnualizedReturn float64              `json:"annualized_return"`
	SharpeRatio      float64              `json:"sharpe_ratio"`
	MaxDrawdown      float64              `json:"max_drawdown"`
	WinRate          float64              `json:"win_rate"`
	TradeCount       int                  `json:"trade_count"`
	EquityCurve      []domain.EquityPoint `json:"equity_curve"`
}

// Engine runs one strategy over aligned historical data. Execution is
// strictly single-threaded: a bar is fully processed (strategy
// decision, execution, mark-to-market) before the next begins.
type Engine struct {
	strat    strategy.Strategy
	pf       *portfolio.Portfolio
	log      *slog.Logger
	counters *infra.Metrics
	impact   *execution.ImpactSimulator

	bars       map[string]map[int64]domain.Bar
	books      map[string]map[int64]*domain.OrderBookSnapshot
	timestamps []int64

	state State
}

// New aligns the per-symbol series and builds an engine. Timestamps
// not common to all symbols are discarded so the strategy always sees
// a fully populated cross-section. log and counters may be nil.
func New(strat strategy.Strategy, pf *portfolio.Portfolio, data map[string][]domain.Bar, books map[string][]domain.OrderBookSnapshot, log *slog.Logger, counters *infra.Metrics) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if counters == nil {
		counters = &infra.Metrics{}
	}
	e := &Engine{
		strat:    strat,
		pf:       pf,
		log:      log,
		counters: counters,
		bars:     make(map[string]map[int64]domain.Bar, len(data)),
		books:    make(map[string]map[int64]*domain.OrderBookSnapshot, len(books)),
		state:    StateInitialized,
	}

	for symbol, series := range data {
		byTs := make(map[int64]domain.Bar, len(series))
		for _, bar := range series {
			byTs[bar.TimestampMs] = bar
		}
		e.bars[symbol] = byTs
	}
	for symbol, series := range books {
		byTs := make(map[int64]*domain.OrderBookSnapshot, len(series))
		for i := range series {
			byTs[series[i].TimestampMs] = &series[i]
		}
		e.books[symbol] = byTs
	}

	e.timestamps = alignTimestamps(e.bars)
	return e
}

// alignTimestamps intersects the timestamp sets of every symbol and
// sorts the survivors ascending.
func alignTimestamps(bars map[string]map[int64]domain.Bar) []int64 {
	if len(bars) == 0 {
		return nil
	}

	counts := make(map[int64]int)
	for _, series := range bars {
		for ts := range series {
			counts[ts]++
		}
	}

	common := make([]int64, 0, len(counts))
	for ts, n := range counts {
		if n == len(bars) {
			common = append(common, ts)
		}
	}
	sort.Slice(common, func(i, j int) bool { return common[i] < common[j] })
	return common
}

// SetImpactSimulator installs a transient-impact model. When set, each
// bar's snapshots are shifted by the decayed residual impact of
// earlier simulated trades before the strategy and execution model see
// them, and every executed trade is recorded into the model.
func (e *Engine) SetImpactSimulator(sim *execution.ImpactSimulator) { e.impact = sim }

// State returns the engine lifecycle state.
func (e *Engine) State() State { return e.state }

// Timestamps returns the aligned timestamp set.
func (e *Engine) Timestamps() []int64 { return e.timestamps }

// Portfolio exposes the driven portfolio, chiefly for inspection after
// a run.
func (e *Engine) Portfolio() *portfolio.Portfolio { return e.pf }

// Run executes the backtest once and returns the performance summary.
func (e *Engine) Run() (*Result, error) {
	if e.state != StateInitialized {
		return nil, domain.ErrEngineAlreadyRun
	}
	e.state = StateRunning

	if err := e.strat.Initialize(); err != nil {
		return nil, err
	}

	e.log.Info("backtest started",
		slog.Int("symbols", len(e.bars)),
		slog.Int("bars", len(e.timestamps)))

	for _, ts := range e.timestamps {
		barData := make(map[string]*strategy.BarData, len(e.bars))
		prices := make(map[string]float64, len(e.bars))
		snapshots := make(map[string]*domain.MarketSnapshot, len(e.bars))

		for symbol, series := range e.bars {
			bar, ok := series[ts]
			if !ok {
				// Symbol absent from this cycle is skipped, not an error.
				continue
			}
			bd := &strategy.BarData{Bar: bar}
			snap := &domain.MarketSnapshot{Symbol: symbol, Close: bar.Close}
			if byTs, ok := e.books[symbol]; ok {
				if book, ok := byTs[ts]; ok {
					bd.Book = book
					snap.Book = book
					snap.MidPrice = book.MidPrice
				}
			}
			if e.impact != nil {
				snap = e.impact.ShiftSnapshot(symbol, snap, ts)
				bd.Book = snap.Book
			}
			barData[symbol] = bd
			prices[symbol] = snap.Close
			snapshots[symbol] = snap
		}

		e.strat.OnBar(ts, barData, e.pf)

		attempted := len(e.pf.ActiveOrders())
		filledBefore := len(e.pf.Trades())
		e.pf.ResolveOrders(snapshots, ts)
		e.pf.ProcessFills()

		if e.impact != nil {
			trades := e.pf.Trades()
			for _, tr := range trades[filledBefore:] {
				if snap, ok := snapshots[tr.Symbol]; ok {
					isBuy := tr.Direction == domain.DirectionBuy
					e.impact.RecordTrade(tr.Symbol, tr.Quantity, isBuy, snap, 0, ts)
				}
			}
		}

		e.pf.MarkToMarket(prices, ts)

		e.counters.RecordBar()
		e.counters.AddOrdersResolved(attempted)
		e.counters.AddOrdersFilled(len(e.pf.Trades()) - filledBefore)
	}

	e.state = StateCompleted
	result := e.performance()

	e.log.Info("backtest completed",
		slog.Float64("total_return", result.TotalReturn),
		slog.Float64("sharpe", result.SharpeRatio),
		slog.Float64("max_drawdown", result.MaxDrawdown),
		slog.Int("trades", result.TradeCount))

	return result, nil
}

// performance computes the summary once, post-loop.
//
// Annualized return uses the compounding form
// (1+total)^(252/nBars) - 1; win rate counts closed positions with
// positive realized PnL. Both choices are documented in DESIGN.md.
func (e *Engine) performance() *Result {
	curve := e.pf.EquityCurve()
	result := &Result{EquityCurve: curve}

	closed := e.pf.ClosedPositions()
	result.TradeCount = len(closed)
	if len(closed) > 0 {
		wins := 0
		for _, pos := range closed {
			if pos.PnL() > 0 {
				wins++
			}
		}
		result.WinRate = float64(wins) / float64(len(closed))
	}

	// An equity curve of length <= 1 yields a defined 0% return.
	if len(curve) < 2 {
		return result
	}

	initial := e.pf.InitialCapital()
	final := curve[len(curve)-1].Equity
	result.TotalReturn = final/initial - 1

	nBars := float64(len(curve))
	result.AnnualizedReturn = math.Pow(1+result.TotalReturn, TradingDaysPerYear/nBars) - 1

	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	if len(returns) >= 2 {
		mean, std := meanStd(returns)
		if std > 0 {
			result.SharpeRatio = math.Sqrt(TradingDaysPerYear) * mean / std
		}
	}

	peak := curve[0].Equity
	for _, pt := range curve {
		if pt.Equity > peak {
			peak = pt.Equity
		}
		if peak > 0 {
			dd := pt.Equity/peak - 1
			if dd < result.MaxDrawdown {
				result.MaxDrawdown = dd
			}
		}
	}

	return result
}

func meanStd(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(values)))
}
