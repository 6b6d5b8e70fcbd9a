package domain

// Position tracks a single open or closed holding in one symbol.
// Quantity is signed: positive long, negative short. A portfolio keeps
// at most one open position per symbol; new entries are netted against
// the existing position, never stacked.
type Position struct {
	Symbol     string  `json:"symbol"`
	Quantity   float64 `json:"quantity"`
	EntryPrice float64 `json:"entry_price"`
	EntryMs    int64   `json:"entry_ms"`
	ExitPrice  float64 `json:"exit_price,omitempty"`
	ExitMs     int64   `json:"exit_ms,omitempty"`

	closed bool
}

// IsOpen reports whether the position has not been closed yet.
func (p *Position) IsOpen() bool {
	return !p.closed
}

// PnL returns the realized profit and loss. It is zero while the
// position is open; realization happens only on Close.
func (p *Position) PnL() float64 {
	if p.closed {
		return (p.ExitPrice - p.EntryPrice) * p.Quantity
	}
	return 0
}

// Close stamps the exit price and time, realizing the PnL.
func (p *Position) Close(price float64, timestampMs int64) {
	p.ExitPrice = price
	p.ExitMs = timestampMs
	p.closed = true
}
