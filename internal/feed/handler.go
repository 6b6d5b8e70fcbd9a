// Package feed consumes live or replayed order, cancel and trade
// events and fans them into the analytics layer.
package feed

import (
	"context"
	"log/slog"
	"sync"

	"quantsim/internal/analysis"
	"quantsim/internal/domain"
	"quantsim/internal/event"
	"quantsim/internal/infra"
)

// Overflow policies for the bounded event channels. The choice is
// explicit configuration, never implicit behavior.
const (
	OverflowBlock      = "block"
	OverflowDropOldest = "drop_oldest"
)

// HandlerConfig sizes the bounded channels and picks the overflow
// policy.
type HandlerConfig struct {
	OrderBuffer int
	TradeBuffer int
	Overflow    string
}

// MetricsSubscriber receives every derived metrics snapshot.
type MetricsSubscriber func(symbol string, m *domain.MarketMetrics)

// Handler drains bounded order and trade channels into the
// MicrostructureAnalyzer and ToxicFlowDetector. Shutdown is
// drain-then-stop: submission is refused first, queued events are
// fully processed, then the workers exit. In-flight window updates are
// never cut off mid-write.
type Handler struct {
	cfg      HandlerConfig
	analyzer *analysis.Analyzer
	detector *analysis.Detector
	books    domain.OrderBookQuerier
	sink     domain.MetricsSink
	counters *infra.Metrics
	log      *slog.Logger

	orderCh chan *event.OrderEvent
	tradeCh chan *event.TradeEvent

	mu          sync.RWMutex
	closed      bool
	subscribers []MetricsSubscriber

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewHandler wires a feed handler. books and sink may be nil; metric
// derivation and persistence are skipped accordingly.
func NewHandler(cfg HandlerConfig, analyzer *analysis.Analyzer, detector *analysis.Detector, books domain.OrderBookQuerier, sink domain.MetricsSink, counters *infra.Metrics, log *slog.Logger) *Handler {
	if cfg.OrderBuffer <= 0 {
		cfg.OrderBuffer = 1024
	}
	if cfg.TradeBuffer <= 0 {
		cfg.TradeBuffer = 1024
	}
	if cfg.Overflow == "" {
		cfg.Overflow = OverflowBlock
	}
	if counters == nil {
		counters = &infra.Metrics{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Handler{
		cfg:      cfg,
		analyzer: analyzer,
		detector: detector,
		books:    books,
		sink:     sink,
		counters: counters,
		log:      log,
		orderCh:  make(chan *event.OrderEvent, cfg.OrderBuffer),
		tradeCh:  make(chan *event.TradeEvent, cfg.TradeBuffer),
	}
}

// SubscribeMetrics registers a subscriber for derived metrics.
// Register before Start.
func (h *Handler) SubscribeMetrics(fn MetricsSubscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers = append(h.subscribers, fn)
}

// Start launches the worker per event stream. The context cancels via
// Stop so queued events still drain.
func (h *Handler) Start(ctx context.Context) {
	h.wg.Add(2)
	go h.orderWorker()
	go h.tradeWorker()

	go func() {
		<-ctx.Done()
		h.Stop()
	}()

	h.log.Info("feed handler started",
		slog.Int("order_buffer", h.cfg.OrderBuffer),
		slog.Int("trade_buffer", h.cfg.TradeBuffer),
		slog.String("overflow", h.cfg.Overflow))
}

// Stop refuses new events, drains both channels and waits for the
// workers. Safe to call more than once.
func (h *Handler) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.orderCh)
		close(h.tradeCh)
		h.mu.Unlock()

		h.wg.Wait()
		h.log.Info("feed handler stopped", slog.Uint64("events", h.counters.Snapshot().FeedEvents))
	})
}

// SubmitOrderEvent enqueues an order event according to the overflow
// policy. Returns ErrFeedClosed after shutdown began.
func (h *Handler) SubmitOrderEvent(ev *event.OrderEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return domain.ErrFeedClosed
	}

	if h.cfg.Overflow == OverflowBlock {
		h.orderCh <- ev
		return nil
	}

	for {
		select {
		case h.orderCh <- ev:
			return nil
		default:
			select {
			case dropped := <-h.orderCh:
				event.ReleaseOrderEvent(dropped)
				h.counters.RecordFeedDropped()
			default:
			}
		}
	}
}

// SubmitTradeEvent enqueues a trade event according to the overflow
// policy. Returns ErrFeedClosed after shutdown began.
func (h *Handler) SubmitTradeEvent(ev *event.TradeEvent) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return domain.ErrFeedClosed
	}

	if h.cfg.Overflow == OverflowBlock {
		h.tradeCh <- ev
		return nil
	}

	for {
		select {
		case h.tradeCh <- ev:
			return nil
		default:
			select {
			case dropped := <-h.tradeCh:
				event.ReleaseTradeEvent(dropped)
				h.counters.RecordFeedDropped()
			default:
			}
		}
	}
}

// orderWorker drains the order channel until it is closed and empty.
func (h *Handler) orderWorker() {
	defer h.wg.Done()
	for ev := range h.orderCh {
		h.processOrder(ev)
		event.ReleaseOrderEvent(ev)
	}
}

// tradeWorker drains the trade channel until it is closed and empty.
func (h *Handler) tradeWorker() {
	defer h.wg.Done()
	for ev := range h.tradeCh {
		h.processTrade(ev)
		event.ReleaseTradeEvent(ev)
	}
}

func (h *Handler) processOrder(ev *event.OrderEvent) {
	h.counters.RecordFeedEvent()

	h.analyzer.ProcessOrder(ev.Symbol, ev.TimestampMs, ev.OrderID, ev.Action, ev.Price, ev.Quantity, ev.IsBuy)

	if ev.Action == event.ActionCancel {
		h.detector.ProcessCancel(ev.Symbol, ev.TimestampMs, ev.OrderID)
	} else {
		h.detector.ProcessOrder(ev.Symbol, ev.TimestampMs, ev.OrderID, ev.OrderType, ev.Quantity, ev.IsBuy, ev.Price)
	}
}

func (h *Handler) processTrade(ev *event.TradeEvent) {
	h.counters.RecordFeedEvent()

	h.analyzer.ProcessTrade(ev.Symbol, ev.TimestampMs, ev.Price, ev.Quantity, ev.IsBuy)
	h.detector.ProcessTrade(ev.Symbol, ev.TimestampMs, ev.TradeID, ev.Price, ev.Quantity, ev.IsBuy)

	h.deriveMetrics(ev.Symbol, ev.TimestampMs)
}

// deriveMetrics queries the external book, runs the analyzer over the
// snapshot, feeds the detector and fans out to subscribers and the
// persistence sink. A missing symbol is skipped for the cycle.
func (h *Handler) deriveMetrics(symbol string, timestampMs int64) {
	if h.books == nil {
		return
	}

	snapshot, err := h.books.GetOrderBookSnapshot(symbol)
	if err != nil || snapshot == nil {
		return
	}

	metrics := h.analyzer.ProcessOrderBook(symbol, timestampMs, snapshot.Bids, snapshot.Asks)
	h.detector.ProcessOrderBook(symbol, timestampMs,
		metrics.OrderImbalance, metrics.MidPrice, metrics.PriceImpact, metrics.RealizedVolatility)

	if h.sink != nil {
		if err := h.sink.SaveMetrics(metrics); err != nil {
			h.counters.RecordError()
			h.log.Warn("metrics persistence failed", slog.String("symbol", symbol), slog.Any("error", err))
		} else {
			h.counters.RecordSnapshotStored()
		}
	}

	h.mu.RLock()
	subs := h.subscribers
	h.mu.RUnlock()
	for _, fn := range subs {
		fn(symbol, metrics)
	}
}
