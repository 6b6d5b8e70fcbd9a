package execution

import (
	"math"
	"math/rand"
	"sync"

	"quantsim/internal/domain"
)

// ImpactConfig parameterizes the transient market impact simulator.
type ImpactConfig struct {
	PriceImpactFactor float64 `yaml:"price_impact_factor"`
	DecayFactor       float64 `yaml:"decay_factor"`
	SpreadFactor      float64 `yaml:"spread_factor"`
	VolatilityFactor  float64 `yaml:"volatility_factor"`
	RandomFactor      float64 `yaml:"random_factor"`
}

// DefaultImpactConfig returns the conventional impact parameters.
func DefaultImpactConfig() ImpactConfig {
	return ImpactConfig{
		PriceImpactFactor: 0.1,
		DecayFactor:       0.95,
		SpreadFactor:      0.2,
		VolatilityFactor:  0.5,
		RandomFactor:      0.1,
	}
}

type impactEvent struct {
	timestampMs int64
	impact      float64
}

// ImpactSimulator models the transient price impact of simulated
// trades: each trade contributes an immediate shift that decays
// exponentially over time. The backtest engine records executed trades
// here and shifts later snapshots by the residual, so repeated
// aggressive flow moves the market against itself.
type ImpactSimulator struct {
	cfg ImpactConfig
	rng *rand.Rand

	mu      sync.Mutex
	history map[string][]impactEvent
}

// NewImpactSimulator builds a simulator around an explicit random
// source.
func NewImpactSimulator(cfg ImpactConfig, rng *rand.Rand) *ImpactSimulator {
	return &ImpactSimulator{
		cfg:     cfg,
		rng:     rng,
		history: make(map[string][]impactEvent),
	}
}

// ImmediateImpact computes the signed price shift a trade of the given
// size causes right now, based on visible top-5 depth, spread and
// volatility.
func (s *ImpactSimulator) ImmediateImpact(quantity float64, isBuy bool, snap *domain.MarketSnapshot, volatility float64) float64 {
	mid := snap.RefPrice()
	if mid <= 0 {
		return 0
	}

	var depth float64
	if snap.Book != nil {
		levels := snap.Book.Bids
		if isBuy {
			levels = snap.Book.Asks
		}
		for i, lvl := range levels {
			if i >= 5 {
				break
			}
			depth += lvl.Quantity
		}
	}
	if depth <= 0 {
		depth = quantity * 10
	}

	sizeRatio := math.Min(1.0, quantity/depth)

	var spread float64
	if snap.Book != nil {
		spread = snap.Book.Spread
	}

	base := mid * s.cfg.PriceImpactFactor * sizeRatio
	total := base + spread*s.cfg.SpreadFactor + volatility*s.cfg.VolatilityFactor +
		mid*s.cfg.RandomFactor*s.rng.NormFloat64()

	if isBuy {
		return total
	}
	return -total
}

// RecordTrade registers a trade's immediate impact so later snapshots
// can be shifted by the decayed residual.
func (s *ImpactSimulator) RecordTrade(symbol string, quantity float64, isBuy bool, snap *domain.MarketSnapshot, volatility float64, timestampMs int64) float64 {
	impact := s.ImmediateImpact(quantity, isBuy, snap, volatility)

	s.mu.Lock()
	s.history[symbol] = append(s.history[symbol], impactEvent{timestampMs: timestampMs, impact: impact})
	s.mu.Unlock()

	return impact
}

// ResidualImpact returns the sum of decayed impacts still in effect at
// the given time, pruning contributions that decayed below 1%.
func (s *ImpactSimulator) ResidualImpact(symbol string, nowMs int64) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := s.history[symbol]
	if len(events) == 0 {
		return 0
	}

	var total float64
	kept := events[:0]
	for _, ev := range events {
		elapsed := float64(nowMs-ev.timestampMs) / 1000.0
		decay := math.Pow(s.cfg.DecayFactor, elapsed)
		if decay <= 0.01 {
			continue
		}
		decayed := ev.impact * decay
		total += decayed
		kept = append(kept, impactEvent{timestampMs: ev.timestampMs, impact: ev.impact})
	}
	s.history[symbol] = kept

	return total
}

// ShiftSnapshot returns a copy of the snapshot with mid and all book
// levels moved by the residual impact. The input is never mutated.
func (s *ImpactSimulator) ShiftSnapshot(symbol string, snap *domain.MarketSnapshot, nowMs int64) *domain.MarketSnapshot {
	shift := s.ResidualImpact(symbol, nowMs)
	if math.Abs(shift) < 1e-9 {
		return snap
	}

	out := *snap
	if out.MidPrice > 0 {
		out.MidPrice += shift
	}
	if out.Close > 0 {
		out.Close += shift
	}
	if snap.Book != nil {
		book := *snap.Book
		book.MidPrice += shift
		book.Bids = shiftLevels(snap.Book.Bids, shift)
		book.Asks = shiftLevels(snap.Book.Asks, shift)
		out.Book = &book
	}
	return &out
}

func shiftLevels(levels []domain.BookLevel, shift float64) []domain.BookLevel {
	out := make([]domain.BookLevel, len(levels))
	for i, lvl := range levels {
		out[i] = domain.BookLevel{Price: lvl.Price + shift, Quantity: lvl.Quantity}
	}
	return out
}

// Reset clears recorded impact history, for the whole simulator or one
// symbol.
func (s *ImpactSimulator) Reset(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if symbol == "" {
		s.history = make(map[string][]impactEvent)
		return
	}
	delete(s.history, symbol)
}
