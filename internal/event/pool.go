package event

import (
	"sync"
)

// Pools reduce GC pressure on the feed hotpath. Events must be
// released back after the analytics layer is done with them.

var orderPool = sync.Pool{
	New: func() interface{} {
		return &OrderEvent{}
	},
}

// AcquireOrderEvent gets an OrderEvent from the pool. The returned
// event has zero values and must be initialized.
func AcquireOrderEvent() *OrderEvent {
	return orderPool.Get().(*OrderEvent)
}

// ReleaseOrderEvent resets an OrderEvent and returns it to the pool.
func ReleaseOrderEvent(ev *OrderEvent) {
	if ev == nil {
		return
	}
	ev.Symbol = ""
	ev.TimestampMs = 0
	ev.OrderID = ""
	ev.Action = ""
	ev.OrderType = ""
	ev.Price = 0
	ev.Quantity = 0
	ev.IsBuy = false

	orderPool.Put(ev)
}

var tradePool = sync.Pool{
	New: func() interface{} {
		return &TradeEvent{}
	},
}

// AcquireTradeEvent gets a TradeEvent from the pool.
func AcquireTradeEvent() *TradeEvent {
	return tradePool.Get().(*TradeEvent)
}

// ReleaseTradeEvent resets a TradeEvent and returns it to the pool.
func ReleaseTradeEvent(ev *TradeEvent) {
	if ev == nil {
		return
	}
	ev.Symbol = ""
	ev.TimestampMs = 0
	ev.TradeID = ""
	ev.Price = 0
	ev.Quantity = 0
	ev.IsBuy = false

	tradePool.Put(ev)
}
