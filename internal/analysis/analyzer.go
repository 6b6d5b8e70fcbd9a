// Package analysis derives streaming microstructure metrics and toxic
// flow signals from order, cancel and trade events.
package analysis

import (
	"math"
	"sync"

	"quantsim/internal/domain"
)

// standardImpactSize is the fixed quantity priced through the book for
// the price impact metric.
const standardImpactSize = 100.0

// volAnnualization converts per-snapshot log-return deviation to an
// annual figure: 252 trading days of 6.5 hours.
var volAnnualization = math.Sqrt(252 * 6.5 * 60 * 60)

type orderRecord struct {
	timestampMs int64
	orderID     string
	action      string
	price       float64
	quantity    float64
	isBuy       bool
}

type tradeRecord struct {
	timestampMs int64
	price       float64
	quantity    float64
	isBuy       bool
}

// analyzerWindows holds one symbol's rolling state. Updates within a
// symbol are serialized under mu; there is no ordering guarantee
// across symbols.
type analyzerWindows struct {
	mu      sync.Mutex
	metrics []domain.MarketMetrics
	orders  []orderRecord
	trades  []tradeRecord
}

// Analyzer maintains fixed-capacity per-symbol FIFO windows of book,
// order and trade data and derives mid price, spread, imbalance, price
// impact and realized volatility. Safe for concurrent feeds.
type Analyzer struct {
	windowSize     int
	toxicThreshold float64

	mu      sync.RWMutex
	symbols map[string]*analyzerWindows
}

// NewAnalyzer creates an analyzer with the given rolling window
// capacity and toxic flow threshold.
func NewAnalyzer(windowSize int, toxicThreshold float64) *Analyzer {
	if windowSize <= 0 {
		windowSize = 100
	}
	return &Analyzer{
		windowSize:     windowSize,
		toxicThreshold: toxicThreshold,
		symbols:        make(map[string]*analyzerWindows),
	}
}

func (a *Analyzer) windows(symbol string) *analyzerWindows {
	a.mu.RLock()
	w, ok := a.symbols[symbol]
	a.mu.RUnlock()
	if ok {
		return w
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if w, ok = a.symbols[symbol]; ok {
		return w
	}
	w = &analyzerWindows{}
	a.symbols[symbol] = w
	return w
}

// ProcessOrderBook derives one MarketMetrics snapshot from a book,
// appends it to the symbol's rolling window and returns it. Bids and
// asks must be sorted best first.
func (a *Analyzer) ProcessOrderBook(symbol string, timestampMs int64, bids, asks []domain.BookLevel) *domain.MarketMetrics {
	w := a.windows(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()

	var mid, spread float64
	if len(bids) > 0 && len(asks) > 0 && bids[0].Price > 0 && asks[0].Price > 0 {
		mid = (bids[0].Price + asks[0].Price) / 2
		spread = asks[0].Price - bids[0].Price
	}

	bidVol := topVolume(bids, 5)
	askVol := topVolume(asks, 5)
	var imbalance float64
	if total := bidVol + askVol; total > 0 {
		imbalance = (bidVol - askVol) / total
	}

	metrics := domain.MarketMetrics{
		Symbol:             symbol,
		TimestampMs:        timestampMs,
		MidPrice:           mid,
		Spread:             spread,
		OrderImbalance:     imbalance,
		PriceImpact:        priceImpact(bids, asks),
		RealizedVolatility: realizedVolatility(w.metrics, mid),
	}

	w.metrics = append(w.metrics, metrics)
	if len(w.metrics) > a.windowSize {
		w.metrics = w.metrics[1:]
	}

	return &metrics
}

// ProcessTrade appends one trade to the symbol's rolling window.
func (a *Analyzer) ProcessTrade(symbol string, timestampMs int64, price, quantity float64, isBuy bool) {
	w := a.windows(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.trades = append(w.trades, tradeRecord{
		timestampMs: timestampMs,
		price:       price,
		quantity:    quantity,
		isBuy:       isBuy,
	})
	if len(w.trades) > a.windowSize {
		w.trades = w.trades[1:]
	}
}

// ProcessOrder appends one order event (add/modify/cancel) to the
// symbol's rolling window.
func (a *Analyzer) ProcessOrder(symbol string, timestampMs int64, orderID, action string, price, quantity float64, isBuy bool) {
	w := a.windows(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.orders = append(w.orders, orderRecord{
		timestampMs: timestampMs,
		orderID:     orderID,
		action:      action,
		price:       price,
		quantity:    quantity,
		isBuy:       isBuy,
	})
	if len(w.orders) > a.windowSize {
		w.orders = w.orders[1:]
	}
}

// topVolume sums quantity over the top n levels, or fewer when the
// book is shallower.
func topVolume(levels []domain.BookLevel, n int) float64 {
	var vol float64
	for i, lvl := range levels {
		if i >= n {
			break
		}
		vol += lvl.Quantity
	}
	return vol
}

// priceImpact simulates filling the standard size on each side from
// best price outward. Shortfall beyond available depth is extrapolated
// at best price times 0.95 (bid side) or 1.05 (ask side). The result
// is the averaged deviation from mid, normalized by mid.
func priceImpact(bids, asks []domain.BookLevel) float64 {
	if len(bids) == 0 || len(asks) == 0 {
		return 0
	}

	bestBid := bids[0].Price
	bestAsk := asks[0].Price
	mid := (bestBid + bestAsk) / 2
	if mid <= 0 {
		return 0
	}

	bidAvg := sideFillAverage(bids, bestBid*0.95)
	askAvg := sideFillAverage(asks, bestAsk*1.05)

	impact := ((askAvg - mid) + (mid - bidAvg)) / 2
	return impact / mid
}

// sideFillAverage walks levels best first, filling standardImpactSize
// and pricing any shortfall at the penalty price.
func sideFillAverage(levels []domain.BookLevel, penaltyPrice float64) float64 {
	remaining := standardImpactSize
	var notional float64
	for _, lvl := range levels {
		take := math.Min(remaining, lvl.Quantity)
		notional += take * lvl.Price
		remaining -= take
		if remaining <= 0 {
			break
		}
	}
	if remaining > 0 {
		notional += remaining * penaltyPrice
	}
	return notional / standardImpactSize
}

// realizedVolatility is the standard deviation of log returns of the
// rolling mid price window, annualized to trading seconds per year.
func realizedVolatility(history []domain.MarketMetrics, currentMid float64) float64 {
	if len(history) < 2 {
		return 0
	}

	prices := make([]float64, 0, len(history)+1)
	for _, m := range history {
		if m.MidPrice > 0 {
			prices = append(prices, m.MidPrice)
		}
	}
	if currentMid > 0 {
		prices = append(prices, currentMid)
	}
	if len(prices) < 3 {
		return 0
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns = append(returns, math.Log(prices[i]/prices[i-1]))
	}

	_, std := meanStd(returns)
	return std * volAnnualization
}

// DetectToxicFlow is a self-contained heuristic over the most recent
// ten metric snapshots: toxic when |avg imbalance| x avg impact x
// (1 + avg volatility) x (1 + imbalance std) exceeds the threshold.
// Requires at least ten accumulated snapshots.
func (a *Analyzer) DetectToxicFlow(symbol string) bool {
	w := a.windows(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.metrics) < 10 {
		return false
	}
	recent := w.metrics[len(w.metrics)-10:]

	imbalances := make([]float64, len(recent))
	var impactSum, volSum float64
	for i, m := range recent {
		imbalances[i] = m.OrderImbalance
		impactSum += m.PriceImpact
		volSum += m.RealizedVolatility
	}

	imbMean, imbStd := meanStd(imbalances)
	avgImpact := impactSum / float64(len(recent))
	avgVol := volSum / float64(len(recent))

	score := math.Abs(imbMean) * avgImpact * (1 + avgVol) * (1 + imbStd)
	return score > a.toxicThreshold
}

// VWAP returns the volume-weighted average trade price over
// [fromMs, toMs], 0 when no trades fall in the range.
func (a *Analyzer) VWAP(symbol string, fromMs, toMs int64) float64 {
	w := a.windows(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()

	var notional, volume float64
	for _, t := range w.trades {
		if t.timestampMs < fromMs || t.timestampMs > toMs {
			continue
		}
		notional += t.price * t.quantity
		volume += t.quantity
	}
	if volume == 0 {
		return 0
	}
	return notional / volume
}

// TradeToCancelRatio returns trades per cancel over the trailing
// window. +Inf when the window holds trades but no cancels; 0 when
// either history is empty.
func (a *Analyzer) TradeToCancelRatio(symbol string, windowMs int64) float64 {
	w := a.windows(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.trades) == 0 || len(w.orders) == 0 {
		return 0
	}

	latest := w.trades[len(w.trades)-1].timestampMs
	if ts := w.orders[len(w.orders)-1].timestampMs; ts > latest {
		latest = ts
	}
	start := latest - windowMs

	var trades, cancels int
	for _, t := range w.trades {
		if t.timestampMs >= start {
			trades++
		}
	}
	for _, o := range w.orders {
		if o.timestampMs >= start && o.action == "cancel" {
			cancels++
		}
	}
	if cancels == 0 {
		return math.Inf(1)
	}
	return float64(trades) / float64(cancels)
}

// HistoricalMetrics returns the (timestamp, value) series of one named
// metric from the rolling window. Unknown names yield nil.
func (a *Analyzer) HistoricalMetrics(symbol, name string) [][2]float64 {
	w := a.windows(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()

	pick := func(m domain.MarketMetrics) (float64, bool) {
		switch name {
		case "mid_price":
			return m.MidPrice, true
		case "spread":
			return m.Spread, true
		case "order_imbalance":
			return m.OrderImbalance, true
		case "price_impact":
			return m.PriceImpact, true
		case "realized_volatility":
			return m.RealizedVolatility, true
		}
		return 0, false
	}

	var out [][2]float64
	for _, m := range w.metrics {
		v, ok := pick(m)
		if !ok {
			return nil
		}
		out = append(out, [2]float64{float64(m.TimestampMs), v})
	}
	return out
}

// MetricsCount returns the number of retained snapshots for a symbol.
func (a *Analyzer) MetricsCount(symbol string) int {
	w := a.windows(symbol)
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.metrics)
}

func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
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
