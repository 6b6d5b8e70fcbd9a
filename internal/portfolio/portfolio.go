// Package portfolio owns cash, positions, outstanding orders and the
// realized trade and equity history of a simulated account.
package portfolio

import (
	"math"

	"quantsim/internal/domain"
	"quantsim/internal/execution"
)

// Trade is one executed fill applied to the account.
type Trade struct {
	Symbol      string  `json:"symbol"`
	Direction   string  `json:"direction"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	TimestampMs int64   `json:"timestamp"`
}

// Portfolio is the account state machine. It is driven strictly
// single-threaded by the backtest engine: one bar is fully processed
// before the next begins, so no locking is needed here.
type Portfolio struct {
	initialCapital float64
	cash           float64

	positions map[string]float64 // signed quantity per symbol
	open      map[string]*domain.Position
	closed    []*domain.Position

	orders []*domain.Order
	active []*domain.Order

	trades []Trade
	equity []domain.EquityPoint

	exec *execution.Model
}

// New creates a portfolio backed by the given execution model.
func New(initialCapital float64, exec *execution.Model) *Portfolio {
	return &Portfolio{
		initialCapital: initialCapital,
		cash:           initialCapital,
		positions:      make(map[string]float64),
		open:           make(map[string]*domain.Position),
		exec:           exec,
	}
}

// PlaceMarketOrder constructs and registers a market order.
func (p *Portfolio) PlaceMarketOrder(symbol string, quantity float64, direction string, timestampMs int64) *domain.Order {
	order := domain.NewOrder(symbol, domain.OrderTypeMarket, direction, quantity, timestampMs)
	p.register(order)
	return order
}

// PlaceLimitOrder constructs and registers a limit order.
func (p *Portfolio) PlaceLimitOrder(symbol string, quantity, limitPrice float64, direction string, timestampMs int64) *domain.Order {
	order := domain.NewOrder(symbol, domain.OrderTypeLimit, direction, quantity, timestampMs)
	order.LimitPrice = limitPrice
	p.register(order)
	return order
}

// PlaceStopOrder constructs and registers a stop order.
func (p *Portfolio) PlaceStopOrder(symbol string, quantity, stopPrice float64, direction string, timestampMs int64) *domain.Order {
	order := domain.NewOrder(symbol, domain.OrderTypeStop, direction, quantity, timestampMs)
	order.StopPrice = stopPrice
	p.register(order)
	return order
}

func (p *Portfolio) register(order *domain.Order) {
	p.orders = append(p.orders, order)
	p.active = append(p.active, order)
}

// CancelOrder marks the order CANCELLED and drops it from the active
// set. Terminal orders are not resurrected; returns false for them.
func (p *Portfolio) CancelOrder(order *domain.Order) bool {
	if order == nil || !order.Cancel() {
		return false
	}
	p.removeActive(order)
	return true
}

func (p *Portfolio) removeActive(order *domain.Order) {
	for i, o := range p.active {
		if o == order {
			p.active = append(p.active[:i], p.active[i+1:]...)
			return
		}
	}
}

// ResolveOrders runs the execution model over every active order using
// the per-symbol snapshots for this timestamp. Symbols without a
// snapshot are skipped for the cycle; their orders stay active and are
// retried on the next bar.
func (p *Portfolio) ResolveOrders(snapshots map[string]*domain.MarketSnapshot, timestampMs int64) {
	for _, order := range p.active {
		snap, ok := snapshots[order.Symbol]
		if !ok {
			continue
		}
		p.exec.Resolve(order, snap, timestampMs)
	}
}

// ProcessFills applies every active order that is now FILLED: signed
// quantity into the position map, cash debit/credit at the average
// fill price, a trade record, and removal from the active set.
// Partially filled orders remain active.
func (p *Portfolio) ProcessFills() {
	remaining := p.active[:0]
	for _, order := range p.active {
		if order.Status != domain.OrderStatusFilled {
			remaining = append(remaining, order)
			continue
		}

		signed := order.SignedQuantity()
		p.positions[order.Symbol] += signed
		if math.Abs(p.positions[order.Symbol]) < domain.FillEpsilon {
			delete(p.positions, order.Symbol)
		}

		notional := order.Quantity * order.AverageFillPrice
		if order.Direction == domain.DirectionBuy {
			p.cash -= notional
		} else {
			p.cash += notional
		}

		p.applyToPosition(order.Symbol, signed, order.AverageFillPrice, order.ExecutedMs)

		p.trades = append(p.trades, Trade{
			Symbol:      order.Symbol,
			Direction:   order.Direction,
			Quantity:    order.Quantity,
			Price:       order.AverageFillPrice,
			TimestampMs: order.ExecutedMs,
		})
	}
	p.active = remaining
}

// applyToPosition nets a signed fill against the symbol's open
// position. Entries in the same direction average the entry price;
// opposite entries close (possibly partially) and realize PnL; a fill
// larger than the open position flips it, opening the remainder at the
// fill price.
func (p *Portfolio) applyToPosition(symbol string, signed, price float64, timestampMs int64) {
	pos, ok := p.open[symbol]
	if !ok {
		p.open[symbol] = &domain.Position{
			Symbol:     symbol,
			Quantity:   signed,
			EntryPrice: price,
			EntryMs:    timestampMs,
		}
		return
	}

	sameSide := (pos.Quantity > 0) == (signed > 0)
	if sameSide {
		total := pos.Quantity + signed
		pos.EntryPrice = (pos.EntryPrice*pos.Quantity + price*signed) / total
		pos.Quantity = total
		return
	}

	closeQty := math.Min(math.Abs(signed), math.Abs(pos.Quantity))
	sign := 1.0
	if pos.Quantity < 0 {
		sign = -1.0
	}

	closedPart := &domain.Position{
		Symbol:     symbol,
		Quantity:   sign * closeQty,
		EntryPrice: pos.EntryPrice,
		EntryMs:    pos.EntryMs,
	}
	closedPart.Close(price, timestampMs)
	p.closed = append(p.closed, closedPart)

	leftover := pos.Quantity + signed
	if math.Abs(leftover) < domain.FillEpsilon {
		delete(p.open, symbol)
		return
	}
	if (leftover > 0) == (pos.Quantity > 0) {
		// Partial close: the original entry persists at reduced size.
		pos.Quantity = leftover
		return
	}
	// Flip: the remainder opens a fresh position at the fill price.
	p.open[symbol] = &domain.Position{
		Symbol:     symbol,
		Quantity:   leftover,
		EntryPrice: price,
		EntryMs:    timestampMs,
	}
}

// MarkToMarket revalues open positions at current prices and appends
// exactly one equity point. Symbols without a current price are
// excluded from the sum, not assumed zero. Must be called once per
// simulated timestamp, after all order processing.
func (p *Portfolio) MarkToMarket(prices map[string]float64, timestampMs int64) float64 {
	equity := p.cash
	for symbol, quantity := range p.positions {
		price, ok := prices[symbol]
		if !ok {
			continue
		}
		equity += quantity * price
	}
	p.equity = append(p.equity, domain.EquityPoint{TimestampMs: timestampMs, Equity: equity})
	return equity
}

// Buy is the direct convenience path: pre-trade admission check on
// cash, then immediate market execution. Returns false with no state
// change when cash is insufficient or the fill gate rejects.
func (p *Portfolio) Buy(symbol string, quantity, price float64, snap *domain.MarketSnapshot, timestampMs int64) bool {
	if p.cash < quantity*price {
		return false
	}
	return p.executeDirect(symbol, quantity, domain.DirectionBuy, snap, timestampMs)
}

// Sell is the direct convenience path: fails when the symbol has no
// open position or the open quantity is smaller than requested.
func (p *Portfolio) Sell(symbol string, quantity float64, snap *domain.MarketSnapshot, timestampMs int64) bool {
	held := p.positions[symbol]
	if held <= 0 || held < quantity {
		return false
	}
	return p.executeDirect(symbol, quantity, domain.DirectionSell, snap, timestampMs)
}

func (p *Portfolio) executeDirect(symbol string, quantity float64, direction string, snap *domain.MarketSnapshot, timestampMs int64) bool {
	order := domain.NewOrder(symbol, domain.OrderTypeMarket, direction, quantity, timestampMs)
	if !p.exec.Resolve(order, snap, timestampMs) {
		return false
	}
	p.orders = append(p.orders, order)
	p.active = append(p.active, order)
	p.ProcessFills()
	return order.Status == domain.OrderStatusFilled
}

// Position returns the signed quantity held for the symbol.
func (p *Portfolio) Position(symbol string) float64 {
	return p.positions[symbol]
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 { return p.cash }

// InitialCapital returns the starting capital.
func (p *Portfolio) InitialCapital() float64 { return p.initialCapital }

// Equity returns the most recent mark-to-market value, or the initial
// capital before the first mark.
func (p *Portfolio) Equity() float64 {
	if len(p.equity) == 0 {
		return p.initialCapital
	}
	return p.equity[len(p.equity)-1].Equity
}

// EquityCurve returns the append-only equity history.
func (p *Portfolio) EquityCurve() []domain.EquityPoint { return p.equity }

// Trades returns the executed fill history.
func (p *Portfolio) Trades() []Trade { return p.trades }

// ClosedPositions returns positions with realized PnL.
func (p *Portfolio) ClosedPositions() []*domain.Position { return p.closed }

// OpenPosition returns the open position object for the symbol, nil
// when flat.
func (p *Portfolio) OpenPosition(symbol string) *domain.Position { return p.open[symbol] }

// ActiveOrders returns the currently unresolved orders.
func (p *Portfolio) ActiveOrders() []*domain.Order { return p.active }

// Orders returns every order ever placed.
func (p *Portfolio) Orders() []*domain.Order { return p.orders }
