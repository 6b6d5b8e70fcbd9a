package analysis

import (
	"math"
	"sync"

	"quantsim/internal/domain"
)

// Toxicity factor names, in score order.
const (
	FactorCancelTradeRatio = "Cancel/Trade Ratio"
	FactorOrderImbalance   = "Order Imbalance"
	FactorPriceImpact      = "Price Impact"
	FactorVolatility       = "Recent Volatility"
	FactorLargeOrders      = "Large Orders"
)

// Factor weights and normalizers of the toxicity score.
const (
	weightCancelTrade = 0.25
	weightImbalance   = 0.20
	weightImpact      = 0.20
	weightVolatility  = 0.15
	weightLargeOrders = 0.20

	cancelTradeNorm = 10.0
	impactNorm      = 0.0005
	volatilityNorm  = 0.002
	largeOrderScale = 2.0

	toxicScoreThreshold = 0.6
)

// DetectorConfig parameterizes the toxic flow detector.
type DetectorConfig struct {
	WindowSize      int `yaml:"window_size"`
	UpdateFrequency int `yaml:"update_frequency"`
}

// DefaultDetectorConfig returns the conventional detector parameters.
func DefaultDetectorConfig() DetectorConfig {
	return DetectorConfig{WindowSize: 100, UpdateFrequency: 10}
}

type orderSample struct {
	timestampMs int64
	orderID     string
	orderType   string
	quantity    float64
	isBuy       bool
	price       float64
}

type cancelSample struct {
	timestampMs int64
	orderID     string
}

type tradeSample struct {
	timestampMs int64
	tradeID     string
	price       float64
	quantity    float64
	isBuy       bool
}

type valueSample struct {
	timestampMs int64
	value       float64
}

// detectorMetrics is one derived metric row computed on a recompute
// tick.
type detectorMetrics struct {
	timestampMs       int64
	cancelTradeRatio  float64
	orderFlowImb      float64
	priceImpact       float64
	volatility        float64
	avgOrderSize      float64
	largeOrderRatio   float64
}

// detectorState holds one symbol's rolling windows and cached
// assessment, serialized under mu.
type detectorState struct {
	mu sync.Mutex

	orders     []orderSample
	cancels    []cancelSample
	trades     []tradeSample
	imbalance  []valueSample
	impact     []valueSample
	volatility []valueSample
	metrics    []detectorMetrics

	assessment domain.ToxicityAssessment
}

// Detector is the heavier-weight toxic flow model. It recomputes the
// weighted toxicity score on every update_frequency-th order or trade
// event and on every order book update; lookups in between return the
// cached assessment verbatim.
type Detector struct {
	cfg DetectorConfig

	mu      sync.RWMutex
	symbols map[string]*detectorState
}

// NewDetector creates a detector with the given windows.
func NewDetector(cfg DetectorConfig) *Detector {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 100
	}
	if cfg.UpdateFrequency <= 0 {
		cfg.UpdateFrequency = 10
	}
	return &Detector{cfg: cfg, symbols: make(map[string]*detectorState)}
}

func (d *Detector) state(symbol string) *detectorState {
	d.mu.RLock()
	s, ok := d.symbols[symbol]
	d.mu.RUnlock()
	if ok {
		return s
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok = d.symbols[symbol]; ok {
		return s
	}
	s = &detectorState{assessment: domain.ToxicityAssessment{Symbol: symbol}}
	d.symbols[symbol] = s
	return s
}

// ProcessOrder records a new order and recomputes metrics on every
// update_frequency-th order.
func (d *Detector) ProcessOrder(symbol string, timestampMs int64, orderID, orderType string, quantity float64, isBuy bool, price float64) {
	s := d.state(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.orders = append(s.orders, orderSample{
		timestampMs: timestampMs,
		orderID:     orderID,
		orderType:   orderType,
		quantity:    quantity,
		isBuy:       isBuy,
		price:       price,
	})
	if len(s.orders) > d.cfg.WindowSize {
		s.orders = s.orders[1:]
	}

	if len(s.orders)%d.cfg.UpdateFrequency == 0 {
		d.recompute(s, symbol, timestampMs)
	}
}

// ProcessCancel records an order cancellation.
func (d *Detector) ProcessCancel(symbol string, timestampMs int64, orderID string) {
	s := d.state(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancels = append(s.cancels, cancelSample{timestampMs: timestampMs, orderID: orderID})
	if len(s.cancels) > d.cfg.WindowSize {
		s.cancels = s.cancels[1:]
	}
}

// ProcessTrade records an execution and recomputes metrics on every
// update_frequency-th trade.
func (d *Detector) ProcessTrade(symbol string, timestampMs int64, tradeID string, price, quantity float64, isBuy bool) {
	s := d.state(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.trades = append(s.trades, tradeSample{
		timestampMs: timestampMs,
		tradeID:     tradeID,
		price:       price,
		quantity:    quantity,
		isBuy:       isBuy,
	})
	if len(s.trades) > d.cfg.WindowSize {
		s.trades = s.trades[1:]
	}

	if len(s.trades)%d.cfg.UpdateFrequency == 0 {
		d.recompute(s, symbol, timestampMs)
	}
}

// ProcessOrderBook records derived book metrics and always triggers a
// recompute.
func (d *Detector) ProcessOrderBook(symbol string, timestampMs int64, orderImbalance, midPrice, priceImpact, volatility float64) {
	s := d.state(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.imbalance = append(s.imbalance, valueSample{timestampMs: timestampMs, value: orderImbalance})
	s.impact = append(s.impact, valueSample{timestampMs: timestampMs, value: priceImpact})
	s.volatility = append(s.volatility, valueSample{timestampMs: timestampMs, value: volatility})

	if len(s.imbalance) > d.cfg.WindowSize {
		s.imbalance = s.imbalance[1:]
	}
	if len(s.impact) > d.cfg.WindowSize {
		s.impact = s.impact[1:]
	}
	if len(s.volatility) > d.cfg.WindowSize {
		s.volatility = s.volatility[1:]
	}

	d.recompute(s, symbol, timestampMs)
}

// recompute derives the metric row and refreshes the cached toxicity
// assessment. Caller holds s.mu.
func (d *Detector) recompute(s *detectorState, symbol string, timestampMs int64) {
	row := detectorMetrics{
		timestampMs:      timestampMs,
		cancelTradeRatio: cancelTradeRatio(len(s.cancels), len(s.trades)),
		orderFlowImb:     orderFlowImbalance(s.orders),
		priceImpact:      sampleMean(s.impact),
		volatility:       sampleMean(s.volatility),
	}
	row.avgOrderSize, row.largeOrderRatio = orderSizeStats(s.orders)

	s.metrics = append(s.metrics, row)
	if len(s.metrics) > d.cfg.WindowSize {
		s.metrics = s.metrics[1:]
	}

	factors := []domain.ToxicityFactor{
		{Name: FactorCancelTradeRatio, Contribution: capUnit(row.cancelTradeRatio / cancelTradeNorm)},
		{Name: FactorOrderImbalance, Contribution: capUnit(math.Abs(row.orderFlowImb))},
		{Name: FactorPriceImpact, Contribution: capUnit(row.priceImpact / impactNorm)},
		{Name: FactorVolatility, Contribution: capUnit(row.volatility / volatilityNorm)},
		{Name: FactorLargeOrders, Contribution: capUnit(row.largeOrderRatio * largeOrderScale)},
	}

	score := factors[0].Contribution*weightCancelTrade +
		factors[1].Contribution*weightImbalance +
		factors[2].Contribution*weightImpact +
		factors[3].Contribution*weightVolatility +
		factors[4].Contribution*weightLargeOrders

	isToxic := score > toxicScoreThreshold
	confidence := score
	if !isToxic {
		confidence = 1 - score
	}

	s.assessment = domain.ToxicityAssessment{
		Symbol:      symbol,
		TimestampMs: timestampMs,
		IsToxic:     isToxic,
		Confidence:  confidence,
		Factors:     factors,
	}
}

// GetToxicFlowStatus returns the cached assessment for the symbol.
// Calling it twice without new events yields identical results.
func (d *Detector) GetToxicFlowStatus(symbol string) domain.ToxicityAssessment {
	d.mu.RLock()
	s, ok := d.symbols[symbol]
	d.mu.RUnlock()
	if !ok {
		return domain.ToxicityAssessment{Symbol: symbol, Confidence: 0, Factors: nil}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.assessment
	out.Factors = append([]domain.ToxicityFactor(nil), s.assessment.Factors...)
	return out
}

// cancelTradeRatio is cancels per trade. +Inf is the explicit
// representation when trades are absent but cancels exist; 0 when both
// windows are empty.
func cancelTradeRatio(cancels, trades int) float64 {
	if trades == 0 {
		if cancels == 0 {
			return 0
		}
		return math.Inf(1)
	}
	return float64(cancels) / float64(trades)
}

func orderFlowImbalance(orders []orderSample) float64 {
	var buy, sell float64
	for _, o := range orders {
		if o.isBuy {
			buy += o.quantity
		} else {
			sell += o.quantity
		}
	}
	total := buy + sell
	if total == 0 {
		return 0
	}
	return (buy - sell) / total
}

func orderSizeStats(orders []orderSample) (mean, largeRatio float64) {
	if len(orders) == 0 {
		return 0, 0
	}
	var sum float64
	for _, o := range orders {
		sum += o.quantity
	}
	mean = sum / float64(len(orders))
	if mean == 0 {
		return 0, 0
	}

	large := 0
	for _, o := range orders {
		if o.quantity > 2*mean {
			large++
		}
	}
	return mean, float64(large) / float64(len(orders))
}

func sampleMean(samples []valueSample) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s.value
	}
	return sum / float64(len(samples))
}

// capUnit clamps a factor score to [0, 1]. +Inf caps to 1.
func capUnit(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
