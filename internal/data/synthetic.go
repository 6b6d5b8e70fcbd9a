package data

import (
	"fmt"
	"math"
	"math/rand"

	"quantsim/internal/domain"
)

// Timeframe step sizes in milliseconds.
const (
	msMinute = int64(60 * 1000)
	msHour   = int64(60 * 60 * 1000)
	msDay    = int64(24 * 60 * 60 * 1000)
)

// stepForTimeframe maps a timeframe string to its bar interval.
// Unknown strings are a configuration error.
func stepForTimeframe(timeframe string) (int64, error) {
	switch timeframe {
	case "1min":
		return msMinute, nil
	case "1h":
		return msHour, nil
	case "1d":
		return msDay, nil
	}
	return 0, fmt.Errorf("%w: %q", domain.ErrUnsupportedTimeframe, timeframe)
}

const (
	syntheticInitialPrice = 100.0
	syntheticBarVol       = 0.0015
	syntheticRangeVol     = 0.015
	syntheticBookLevels   = 10
)

// GenerateSynthetic produces a random-walk OHLCV series between
// startMs and endMs at the given timeframe, optionally with an order
// book ladder per bar. All randomness comes from the injected
// generator, so a seed reproduces the series exactly.
func GenerateSynthetic(startMs, endMs int64, timeframe string, includeBooks bool, rng *rand.Rand) ([]domain.Bar, []domain.OrderBookSnapshot, error) {
	step, err := stepForTimeframe(timeframe)
	if err != nil {
		return nil, nil, err
	}
	if endMs < startMs {
		return nil, nil, fmt.Errorf("%w: empty range", domain.ErrNoData)
	}

	n := int((endMs-startMs)/step) + 1
	prices := make([]float64, n)
	prices[0] = syntheticInitialPrice
	for i := 1; i < n; i++ {
		prices[i] = prices[i-1] * (1 + rng.NormFloat64()*syntheticBarVol)
	}

	bars := make([]domain.Bar, n)
	var books []domain.OrderBookSnapshot
	if includeBooks {
		books = make([]domain.OrderBookSnapshot, 0, n)
	}

	for i := 0; i < n; i++ {
		ts := startMs + int64(i)*step
		price := prices[i]

		rangeVol := price * syntheticRangeVol
		high := price + rng.Float64()*rangeVol
		low := price - rng.Float64()*rangeVol

		open := price
		if i > 0 {
			open = prices[i-1]
			high = math.Max(high, price)
			low = math.Min(low, price)
		}

		bars[i] = domain.Bar{
			TimestampMs: ts,
			Open:        open,
			High:        high,
			Low:         low,
			Close:       price,
			Volume:      math.Exp(10 + rng.NormFloat64()),
		}

		if includeBooks {
			books = append(books, syntheticBook(ts, price, rng))
		}
	}

	return bars, books, nil
}

// syntheticBook builds a ten-level ladder around mid with
// exponentially decaying depth.
func syntheticBook(timestampMs int64, mid float64, rng *rand.Rand) domain.OrderBookSnapshot {
	spread := mid*0.0005 + rng.Float64()*mid*0.0005
	bestBid := mid - spread/2
	bestAsk := mid + spread/2
	tick := mid * 0.0001

	bids := make([]domain.BookLevel, syntheticBookLevels)
	asks := make([]domain.BookLevel, syntheticBookLevels)
	var bidVol, askVol float64
	for j := 0; j < syntheticBookLevels; j++ {
		depth := 100*math.Exp(-0.3*float64(j)) + rng.Float64()*20
		bids[j] = domain.BookLevel{Price: bestBid - float64(j)*tick, Quantity: depth}
		bidVol += depth

		depth = 100*math.Exp(-0.3*float64(j)) + rng.Float64()*20
		asks[j] = domain.BookLevel{Price: bestAsk + float64(j)*tick, Quantity: depth}
		askVol += depth
	}

	var imbalance float64
	if total := bidVol + askVol; total > 0 {
		imbalance = (bidVol - askVol) / total
	}

	return domain.OrderBookSnapshot{
		TimestampMs:    timestampMs,
		Bids:           bids,
		Asks:           asks,
		MidPrice:       mid,
		Spread:         spread,
		OrderImbalance: imbalance,
	}
}
