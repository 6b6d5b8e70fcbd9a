// Package event defines the order-flow events consumed by the live
// feed handler and the analytics layer.
package event

// Order event actions.
const (
	ActionAdd    = "add"
	ActionModify = "modify"
	ActionCancel = "cancel"
)

// OrderEvent is an add/modify/cancel seen on the order stream.
type OrderEvent struct {
	Symbol      string
	TimestampMs int64
	OrderID     string
	Action      string
	OrderType   string
	Price       float64
	Quantity    float64
	IsBuy       bool
}

// TradeEvent is one execution seen on the trade stream.
type TradeEvent struct {
	Symbol      string
	TimestampMs int64
	TradeID     string
	Price       float64
	Quantity    float64
	IsBuy       bool
}
