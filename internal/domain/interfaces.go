package domain

// OrderBookQuerier is the boundary to the external matching engine.
// The simulation core never implements book matching itself.
type OrderBookQuerier interface {
	GetOrderBookSnapshot(symbol string) (*OrderBookSnapshot, error)
}

// MarketDataProvider supplies per-symbol time-indexed bars and optional
// book snapshots for backtesting.
type MarketDataProvider interface {
	Bars(symbol string) ([]Bar, error)
	OrderBooks(symbol string) ([]OrderBookSnapshot, error)
}

// MetricsSink accepts microstructure metric records for storage.
// One-way append; the core never reads back.
type MetricsSink interface {
	SaveMetrics(m *MarketMetrics) error
}

// ResultSink accepts completed backtest results for storage.
type ResultSink interface {
	SaveBacktestResult(run *BacktestRunRecord) error
}

// BacktestRunRecord is the persistence shape of one completed run.
type BacktestRunRecord struct {
	RunID            string
	Strategy         string
	Symbols          []string
	InitialCapital   float64
	TotalReturn      float64
	AnnualizedReturn float64
	SharpeRatio      float64
	MaxDrawdown      float64
	WinRate          float64
	TradeCount       int
	EquityCurve      []EquityPoint
}

// EquityPoint is one mark-to-market observation of portfolio equity.
type EquityPoint struct {
	TimestampMs int64   `json:"timestamp"`
	Equity      float64 `json:"equity"`
}
