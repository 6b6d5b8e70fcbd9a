package domain

import (
	"github.com/google/uuid"
)

// Order type constants.
const (
	OrderTypeMarket = "MARKET"
	OrderTypeLimit  = "LIMIT"
	OrderTypeStop   = "STOP"

	DirectionBuy  = "BUY"
	DirectionSell = "SELL"

	OrderStatusOpen            = "OPEN"
	OrderStatusPartiallyFilled = "PARTIALLY_FILLED"
	OrderStatusFilled          = "FILLED"
	OrderStatusCancelled       = "CANCELLED"

	TimeInForceDay = "DAY"
)

// FillEpsilon is the tolerance used when deciding whether an order's
// cumulative fills complete the requested quantity.
const FillEpsilon = 1e-6

// Fill is a single (partial or full) execution of an order.
type Fill struct {
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
	TimestampMs int64   `json:"timestamp"`
}

// Order represents a trading order with its fill lifecycle.
// State is mutated only through AddFill and Cancel; a FILLED or
// CANCELLED order is terminal.
type Order struct {
	ID          string  `json:"id"`
	Symbol      string  `json:"symbol"`
	Type        string  `json:"type"`      // MARKET, LIMIT, STOP
	Direction   string  `json:"direction"` // BUY, SELL
	Quantity    float64 `json:"quantity"`
	LimitPrice  float64 `json:"limit_price,omitempty"` // 0 when unset
	StopPrice   float64 `json:"stop_price,omitempty"`  // 0 when unset
	TimeInForce string  `json:"time_in_force"`

	Status           string  `json:"status"`
	FilledQuantity   float64 `json:"filled_quantity"`
	AverageFillPrice float64 `json:"average_fill_price"`
	Fills            []Fill  `json:"fills"`

	CreatedMs  int64 `json:"created_ms"`
	ExecutedMs int64 `json:"executed_ms,omitempty"`
}

// NewOrder constructs an OPEN order with a fresh ID.
func NewOrder(symbol, orderType, direction string, quantity float64, createdMs int64) *Order {
	return &Order{
		ID:          uuid.NewString(),
		Symbol:      symbol,
		Type:        orderType,
		Direction:   direction,
		Quantity:    quantity,
		TimeInForce: TimeInForceDay,
		Status:      OrderStatusOpen,
		CreatedMs:   createdMs,
	}
}

// IsOpen reports whether the order is still eligible for execution.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusOpen || o.Status == OrderStatusPartiallyFilled
}

// CanCancel reports whether the order may still be cancelled.
func (o *Order) CanCancel() bool {
	return o.Status != OrderStatusFilled && o.Status != OrderStatusCancelled
}

// AddFill appends a fill and updates the volume-weighted average fill
// price and the status. Fills against a terminal order are ignored.
func (o *Order) AddFill(quantity, price float64, timestampMs int64) {
	if !o.IsOpen() {
		return
	}

	o.Fills = append(o.Fills, Fill{Quantity: quantity, Price: price, TimestampMs: timestampMs})
	o.FilledQuantity += quantity

	var totalValue float64
	for _, f := range o.Fills {
		totalValue += f.Quantity * f.Price
	}
	if o.FilledQuantity > 0 {
		o.AverageFillPrice = totalValue / o.FilledQuantity
	} else {
		o.AverageFillPrice = 0
	}

	if abs(o.FilledQuantity-o.Quantity) < FillEpsilon {
		o.Status = OrderStatusFilled
		o.ExecutedMs = timestampMs
	} else if o.FilledQuantity > 0 {
		o.Status = OrderStatusPartiallyFilled
	}
}

// Cancel marks the order CANCELLED. Already-applied fills are kept.
// Returns false when the order is terminal.
func (o *Order) Cancel() bool {
	if !o.CanCancel() {
		return false
	}
	o.Status = OrderStatusCancelled
	return true
}

// SignedQuantity returns the position delta a full fill would apply:
// positive for BUY, negative for SELL.
func (o *Order) SignedQuantity() float64 {
	if o.Direction == DirectionBuy {
		return o.Quantity
	}
	return -o.Quantity
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
