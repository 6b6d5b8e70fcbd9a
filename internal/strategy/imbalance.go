package strategy

import (
	"math"

	"quantsim/internal/domain"
	"quantsim/internal/portfolio"
)

// ImbalanceParams configures the order flow imbalance strategy.
type ImbalanceParams struct {
	LookbackWindow int     `yaml:"lookback_window"`
	EntryThreshold float64 `yaml:"entry_threshold"`
	ExitThreshold  float64 `yaml:"exit_threshold"`
	PositionSize   float64 `yaml:"position_size"` // fraction of equity per entry
	StopLoss       float64 `yaml:"stop_loss"`     // fractional adverse move
}

// DefaultImbalanceParams returns the conventional parameter set.
func DefaultImbalanceParams() ImbalanceParams {
	return ImbalanceParams{
		LookbackWindow: 20,
		EntryThreshold: 0.7,
		ExitThreshold:  0.3,
		PositionSize:   0.1,
		StopLoss:       0.02,
	}
}

// ImbalanceStrategy trades normalized order flow imbalance: it enters
// when the current imbalance deviates from its rolling mean by more
// than EntryThreshold standard deviations and exits on reversion or a
// stop-loss breach.
type ImbalanceStrategy struct {
	symbols []string
	params  ImbalanceParams

	history     map[string][]float64
	entryPrices map[string]float64
}

// NewImbalanceStrategy builds the strategy for the given symbols.
func NewImbalanceStrategy(symbols []string, params ImbalanceParams) *ImbalanceStrategy {
	return &ImbalanceStrategy{symbols: symbols, params: params}
}

// Initialize resets rolling state.
func (s *ImbalanceStrategy) Initialize() error {
	s.history = make(map[string][]float64, len(s.symbols))
	s.entryPrices = make(map[string]float64)
	return nil
}

// OnBar updates each symbol's imbalance window and issues market
// orders on threshold crossings.
func (s *ImbalanceStrategy) OnBar(timestampMs int64, bars map[string]*BarData, pf *portfolio.Portfolio) {
	for _, symbol := range s.symbols {
		data, ok := bars[symbol]
		if !ok {
			continue
		}

		imbalance := data.OrderImbalance()
		window := append(s.history[symbol], imbalance)
		if len(window) > s.params.LookbackWindow {
			window = window[1:]
		}
		s.history[symbol] = window

		if len(window) < s.params.LookbackWindow {
			continue
		}

		mean, std := meanStd(window)
		var normalized float64
		if std > 0 {
			normalized = (imbalance - mean) / std
		}

		price := data.RefPrice()
		if price <= 0 {
			continue
		}

		held := pf.Position(symbol)
		switch {
		case held == 0:
			if normalized > s.params.EntryThreshold {
				shares := pf.Equity() * s.params.PositionSize / price
				pf.PlaceMarketOrder(symbol, shares, domain.DirectionBuy, timestampMs)
				s.entryPrices[symbol] = price
			} else if normalized < -s.params.EntryThreshold {
				shares := pf.Equity() * s.params.PositionSize / price
				pf.PlaceMarketOrder(symbol, shares, domain.DirectionSell, timestampMs)
				s.entryPrices[symbol] = price
			}

		case held > 0:
			entry, hasEntry := s.entryPrices[symbol]
			if normalized < -s.params.ExitThreshold ||
				(hasEntry && price < entry*(1-s.params.StopLoss)) {
				pf.PlaceMarketOrder(symbol, held, domain.DirectionSell, timestampMs)
				delete(s.entryPrices, symbol)
			}

		case held < 0:
			entry, hasEntry := s.entryPrices[symbol]
			if normalized > s.params.ExitThreshold ||
				(hasEntry && price > entry*(1+s.params.StopLoss)) {
				pf.PlaceMarketOrder(symbol, -held, domain.DirectionBuy, timestampMs)
				delete(s.entryPrices, symbol)
			}
		}
	}
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
