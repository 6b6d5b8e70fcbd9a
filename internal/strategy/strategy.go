// Package strategy defines the trading strategy capability and the
// built-in strategies driven by the backtest engine.
package strategy

import (
	"quantsim/internal/domain"
	"quantsim/internal/portfolio"
)

// BarData is the per-symbol cross-section handed to a strategy on each
// aligned timestamp. Book is nil when only bar data exists.
type BarData struct {
	Bar  domain.Bar
	Book *domain.OrderBookSnapshot
}

// OrderImbalance returns the book's top-5 imbalance when a book is
// attached, zero otherwise.
func (b *BarData) OrderImbalance() float64 {
	if b.Book == nil {
		return 0
	}
	return b.Book.OrderImbalance
}

// RefPrice returns mid when a book is attached, else the bar close.
func (b *BarData) RefPrice() float64 {
	if b.Book != nil && b.Book.MidPrice > 0 {
		return b.Book.MidPrice
	}
	return b.Bar.Close
}

// Strategy is the capability every trading strategy implements. The
// engine depends only on this interface, never a concrete type.
type Strategy interface {
	// Initialize prepares internal state before the first bar.
	Initialize() error

	// OnBar consumes the aligned cross-section for one timestamp and
	// may place or cancel orders on the portfolio.
	OnBar(timestampMs int64, bars map[string]*BarData, pf *portfolio.Portfolio)
}
