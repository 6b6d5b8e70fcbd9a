// Package execution converts requested orders into simulated fills,
// modeling slippage, book-depth market impact and probabilistic fill
// timing.
package execution

import (
	"fmt"
	"math"
	"math/rand"

	"quantsim/internal/domain"
)

// Supported slippage model names.
const (
	SlippageFixed        = "fixed"
	SlippageNormal       = "normal"
	SlippageProportional = "proportional"
)

// Config holds the execution friction parameters.
type Config struct {
	SlippageModel      string  `yaml:"slippage_model"`
	SlippageFactor     float64 `yaml:"slippage_factor"`
	MarketImpactFactor float64 `yaml:"market_impact_factor"`
	FillProbability    float64 `yaml:"fill_probability"`
	LatencyMs          int64   `yaml:"latency_ms"`
}

// DefaultConfig returns the conventional friction parameters.
func DefaultConfig() Config {
	return Config{
		SlippageModel:      SlippageFixed,
		SlippageFactor:     0.0001,
		MarketImpactFactor: 0.1,
		FillProbability:    1.0,
	}
}

// Model resolves orders against market snapshots. All randomness
// (fill-probability draws, normal slippage draws) comes from the
// injected generator so a run is reproducible byte for byte.
type Model struct {
	cfg Config
	rng *rand.Rand
}

// NewModel validates the configuration and builds a Model. An unknown
// slippage model name is fatal here; it is never defaulted away.
func NewModel(cfg Config, rng *rand.Rand) (*Model, error) {
	switch cfg.SlippageModel {
	case SlippageFixed, SlippageNormal, SlippageProportional:
	default:
		return nil, &domain.ConfigError{
			Field: "slippage_model",
			Err:   fmt.Errorf("%w: %q", domain.ErrUnsupportedSlippageModel, cfg.SlippageModel),
		}
	}
	if rng == nil {
		return nil, &domain.ConfigError{Field: "rng", Err: fmt.Errorf("random source is required")}
	}
	return &Model{cfg: cfg, rng: rng}, nil
}

// Resolve attempts to execute the order against the snapshot, mutating
// it via AddFill on success. Only OPEN and PARTIALLY_FILLED orders are
// eligible; anything else is a no-op returning false. A missing or
// non-positive price skips the attempt, leaving the order active for
// the next timestamp.
func (m *Model) Resolve(order *domain.Order, snap *domain.MarketSnapshot, timestampMs int64) bool {
	if order == nil || snap == nil || !order.IsOpen() {
		return false
	}

	switch order.Type {
	case domain.OrderTypeMarket:
		return m.executeMarket(order, snap, timestampMs)
	case domain.OrderTypeLimit:
		return m.executeLimit(order, snap, timestampMs)
	case domain.OrderTypeStop:
		price := snap.RefPrice()
		if price <= 0 {
			return false
		}
		triggered := (order.Direction == domain.DirectionBuy && price >= order.StopPrice) ||
			(order.Direction == domain.DirectionSell && price <= order.StopPrice)
		if !triggered {
			return false
		}
		// Trigger reclassifies the order; it trades as a market order
		// in the same step.
		order.Type = domain.OrderTypeMarket
		return m.executeMarket(order, snap, timestampMs)
	}
	return false
}

func (m *Model) executeMarket(order *domain.Order, snap *domain.MarketSnapshot, timestampMs int64) bool {
	price := snap.RefPrice()
	if price <= 0 {
		return false
	}
	if !m.fillGate() {
		return false
	}

	dir := directionSign(order.Direction)
	execPrice := price + dir*m.slippage(order, price) + dir*m.marketImpact(order, snap)

	order.AddFill(order.Quantity-order.FilledQuantity, execPrice, timestampMs+m.cfg.LatencyMs)
	return true
}

func (m *Model) executeLimit(order *domain.Order, snap *domain.MarketSnapshot, timestampMs int64) bool {
	if order.LimitPrice <= 0 {
		return false
	}
	price := snap.RefPrice()
	if price <= 0 {
		return false
	}

	var execPrice float64
	switch order.Direction {
	case domain.DirectionBuy:
		if price > order.LimitPrice {
			return false
		}
		execPrice = math.Min(order.LimitPrice, price)
	case domain.DirectionSell:
		if price < order.LimitPrice {
			return false
		}
		execPrice = math.Max(order.LimitPrice, price)
	default:
		return false
	}

	if !m.fillGate() {
		return false
	}
	order.AddFill(order.Quantity-order.FilledQuantity, execPrice, timestampMs+m.cfg.LatencyMs)
	return true
}

// fillGate draws once per resolution attempt, never per unit quantity.
func (m *Model) fillGate() bool {
	return m.rng.Float64() <= m.cfg.FillProbability
}

// slippage returns the unsigned price deviation for the configured
// model. Buys are pushed up and sells pushed down by the caller.
func (m *Model) slippage(order *domain.Order, price float64) float64 {
	switch m.cfg.SlippageModel {
	case SlippageFixed:
		return price * m.cfg.SlippageFactor
	case SlippageNormal:
		return price * m.rng.NormFloat64() * m.cfg.SlippageFactor
	case SlippageProportional:
		return price * m.cfg.SlippageFactor * math.Sqrt(order.Quantity)
	}
	return 0
}

// marketImpact walks the opposing side of the book depth-first and
// prices the requested quantity against successive levels. Without
// book data the impact is zero.
func (m *Model) marketImpact(order *domain.Order, snap *domain.MarketSnapshot) float64 {
	if snap.Book == nil {
		return 0
	}

	var levels []domain.BookLevel
	if order.Direction == domain.DirectionBuy {
		levels = snap.Book.Asks
	} else {
		levels = snap.Book.Bids
	}
	if len(levels) == 0 {
		return 0
	}

	remaining := order.Quantity
	var weighted, filled float64
	for _, lvl := range levels {
		take := math.Min(remaining, lvl.Quantity)
		weighted += take * lvl.Price
		filled += take
		remaining -= take
		if remaining <= 0 {
			break
		}
	}
	if filled <= 0 {
		return 0
	}

	avgPrice := weighted / filled
	mid := snap.Book.MidPrice
	if mid <= 0 {
		mid = levels[0].Price
	}
	return (avgPrice - mid) * directionSign(order.Direction) * m.cfg.MarketImpactFactor
}

func directionSign(direction string) float64 {
	if direction == domain.DirectionBuy {
		return 1
	}
	return -1
}
