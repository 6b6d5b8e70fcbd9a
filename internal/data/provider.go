package data

import (
	"fmt"
	"math/rand"

	"quantsim/internal/domain"
)

// MemoryProvider serves preloaded bars and books.
type MemoryProvider struct {
	bars  map[string][]domain.Bar
	books map[string][]domain.OrderBookSnapshot
}

var _ domain.MarketDataProvider = (*MemoryProvider)(nil)

// NewMemoryProvider wraps the given series.
func NewMemoryProvider(bars map[string][]domain.Bar, books map[string][]domain.OrderBookSnapshot) *MemoryProvider {
	return &MemoryProvider{bars: bars, books: books}
}

// Bars returns the bar series for a symbol.
func (p *MemoryProvider) Bars(symbol string) ([]domain.Bar, error) {
	bars, ok := p.bars[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoData, symbol)
	}
	return bars, nil
}

// OrderBooks returns the book series for a symbol; nil when only bar
// data was loaded.
func (p *MemoryProvider) OrderBooks(symbol string) ([]domain.OrderBookSnapshot, error) {
	return p.books[symbol], nil
}

// PrepareBacktestData loads CSV bars per symbol, generating a seeded
// synthetic series (with books) for any symbol whose file is missing.
func PrepareBacktestData(loader *Loader, symbols []string, timeframe string, startMs, endMs int64, rng *rand.Rand) (*MemoryProvider, error) {
	bars := make(map[string][]domain.Bar, len(symbols))
	books := make(map[string][]domain.OrderBookSnapshot)

	for _, symbol := range symbols {
		series, err := loader.LoadCSV(symbol, timeframe, startMs, endMs)
		if err == nil {
			bars[symbol] = series
			continue
		}

		synthetic, ladder, genErr := GenerateSynthetic(startMs, endMs, timeframe, true, rng)
		if genErr != nil {
			return nil, genErr
		}
		for i := range ladder {
			ladder[i].Symbol = symbol
		}
		bars[symbol] = synthetic
		books[symbol] = ladder
	}

	return NewMemoryProvider(bars, books), nil
}
