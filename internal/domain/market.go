package domain

// Bar is one OHLCV observation for a symbol at a timestamp.
type Bar struct {
	TimestampMs int64   `json:"timestamp"`
	Open        float64 `json:"open"`
	High        float64 `json:"high"`
	Low         float64 `json:"low"`
	Close       float64 `json:"close"`
	Volume      float64 `json:"volume"`
}

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price    float64 `json:"price"`
	Quantity float64 `json:"quantity"`
}

// OrderBookSnapshot is a point-in-time view of a limit order book.
// Bids and Asks are sorted best-first. The matching engine producing
// these lives behind the OrderBookQuerier boundary.
type OrderBookSnapshot struct {
	Symbol         string      `json:"symbol"`
	TimestampMs    int64       `json:"timestamp"`
	Bids           []BookLevel `json:"bid_levels"`
	Asks           []BookLevel `json:"ask_levels"`
	MidPrice       float64     `json:"mid_price"`
	Spread         float64     `json:"spread"`
	OrderImbalance float64     `json:"order_imbalance"`
}

// MarketSnapshot bundles the price information available to the
// execution model at one timestamp. Book may be nil when only bar data
// is available.
type MarketSnapshot struct {
	Symbol   string
	MidPrice float64
	Close    float64
	Book     *OrderBookSnapshot
}

// RefPrice returns the reference price for execution: mid when known,
// falling back to close. Zero means no usable price this cycle.
func (m *MarketSnapshot) RefPrice() float64 {
	if m.MidPrice > 0 {
		return m.MidPrice
	}
	return m.Close
}
