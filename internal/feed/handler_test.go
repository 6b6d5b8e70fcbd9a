package feed_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"quantsim/internal/analysis"
	"quantsim/internal/domain"
	"quantsim/internal/event"
	"quantsim/internal/feed"
	"quantsim/internal/infra"
)

type staticBooks struct {
	snap *domain.OrderBookSnapshot
}

func (s *staticBooks) GetOrderBookSnapshot(symbol string) (*domain.OrderBookSnapshot, error) {
	if s.snap == nil {
		return nil, fmt.Errorf("no book for %s", symbol)
	}
	return s.snap, nil
}

func newHandler(cfg feed.HandlerConfig, books domain.OrderBookQuerier, counters *infra.Metrics) (*feed.Handler, *analysis.Analyzer, *analysis.Detector) {
	analyzer := analysis.NewAnalyzer(100, 0.7)
	detector := analysis.NewDetector(analysis.DefaultDetectorConfig())
	h := feed.NewHandler(cfg, analyzer, detector, books, nil, counters, nil)
	return h, analyzer, detector
}

func orderEvent(symbol, id, action string, ts int64) *event.OrderEvent {
	ev := event.AcquireOrderEvent()
	ev.Symbol = symbol
	ev.TimestampMs = ts
	ev.OrderID = id
	ev.Action = action
	ev.OrderType = "limit"
	ev.Price = 100.0
	ev.Quantity = 10
	ev.IsBuy = true
	return ev
}

func tradeEvent(symbol, id string, ts int64) *event.TradeEvent {
	ev := event.AcquireTradeEvent()
	ev.Symbol = symbol
	ev.TimestampMs = ts
	ev.TradeID = id
	ev.Price = 100.0
	ev.Quantity = 10
	ev.IsBuy = true
	return ev
}

func TestDrainThenStop(t *testing.T) {
	counters := &infra.Metrics{}
	h, analyzer, _ := newHandler(feed.HandlerConfig{
		OrderBuffer: 64,
		TradeBuffer: 64,
		Overflow:    feed.OverflowBlock,
	}, nil, counters)

	h.Start(context.Background())

	const n = 50
	for i := 0; i < n; i++ {
		if err := h.SubmitOrderEvent(orderEvent("AAPL", fmt.Sprintf("o%d", i), event.ActionAdd, int64(i))); err != nil {
			t.Fatalf("submit %d: %v", i, err)
		}
	}

	// Stop must process everything already queued before returning.
	h.Stop()

	if got := counters.Snapshot().FeedEvents; got != n {
		t.Errorf("processed events = %d, want %d", got, n)
	}
	if got := analyzer.TradeToCancelRatio("AAPL", 1000); got != 0 {
		// Orders only, no trades: ratio must be the empty-history zero.
		t.Errorf("ratio = %v, want 0", got)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	h, _, _ := newHandler(feed.HandlerConfig{Overflow: feed.OverflowBlock}, nil, nil)
	h.Start(context.Background())
	h.Stop()

	ev := orderEvent("AAPL", "o1", event.ActionAdd, 0)
	if err := h.SubmitOrderEvent(ev); !errors.Is(err, domain.ErrFeedClosed) {
		t.Errorf("submit after stop = %v, want ErrFeedClosed", err)
	}
	event.ReleaseOrderEvent(ev)

	tr := tradeEvent("AAPL", "t1", 0)
	if err := h.SubmitTradeEvent(tr); !errors.Is(err, domain.ErrFeedClosed) {
		t.Errorf("trade submit after stop = %v, want ErrFeedClosed", err)
	}
	event.ReleaseTradeEvent(tr)
}

func TestStopIsIdempotent(t *testing.T) {
	h, _, _ := newHandler(feed.HandlerConfig{}, nil, nil)
	h.Start(context.Background())
	h.Stop()
	h.Stop()
}

func TestContextCancelStops(t *testing.T) {
	h, _, _ := newHandler(feed.HandlerConfig{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)
	cancel()

	deadline := time.After(2 * time.Second)
	for {
		ev := orderEvent("AAPL", "o1", event.ActionAdd, 0)
		err := h.SubmitOrderEvent(ev)
		if errors.Is(err, domain.ErrFeedClosed) {
			event.ReleaseOrderEvent(ev)
			return
		}
		select {
		case <-deadline:
			t.Fatal("handler did not stop after context cancellation")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDropOldestOverflow(t *testing.T) {
	counters := &infra.Metrics{}
	h, _, _ := newHandler(feed.HandlerConfig{
		OrderBuffer: 4,
		TradeBuffer: 4,
		Overflow:    feed.OverflowDropOldest,
	}, nil, counters)

	// Workers not started: the channel fills and old events get dropped
	// instead of blocking the submitter.
	const n = 20
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n; i++ {
			if err := h.SubmitOrderEvent(orderEvent("AAPL", fmt.Sprintf("o%d", i), event.ActionAdd, int64(i))); err != nil {
				t.Errorf("submit %d: %v", i, err)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("drop_oldest submission blocked")
	}

	if got := counters.Snapshot().FeedDropped; got != n-4 {
		t.Errorf("dropped = %d, want %d", got, n-4)
	}

	// The survivors still process on Start/Stop.
	h.Start(context.Background())
	h.Stop()
	if got := counters.Snapshot().FeedEvents; got != 4 {
		t.Errorf("processed = %d, want 4", got)
	}
}

func TestTradeDerivesMetrics(t *testing.T) {
	books := &staticBooks{snap: &domain.OrderBookSnapshot{
		Symbol: "AAPL",
		Bids:   []domain.BookLevel{{Price: 149.0, Quantity: 300}},
		Asks:   []domain.BookLevel{{Price: 151.0, Quantity: 100}},
	}}
	h, analyzer, detector := newHandler(feed.HandlerConfig{Overflow: feed.OverflowBlock}, books, nil)

	var received []*domain.MarketMetrics
	h.SubscribeMetrics(func(symbol string, m *domain.MarketMetrics) {
		received = append(received, m)
	})

	h.Start(context.Background())
	if err := h.SubmitTradeEvent(tradeEvent("AAPL", "t1", 1000)); err != nil {
		t.Fatalf("submit: %v", err)
	}
	h.Stop()

	if len(received) != 1 {
		t.Fatalf("subscriber received %d snapshots, want 1", len(received))
	}
	if received[0].MidPrice != 150.0 {
		t.Errorf("derived mid = %v, want 150", received[0].MidPrice)
	}
	if analyzer.MetricsCount("AAPL") != 1 {
		t.Errorf("analyzer snapshots = %d, want 1", analyzer.MetricsCount("AAPL"))
	}
	// The detector saw a book update, so an assessment exists.
	if got := detector.GetToxicFlowStatus("AAPL"); len(got.Factors) != 5 {
		t.Errorf("detector factors = %d, want 5", len(got.Factors))
	}
}

func TestCancelRoutesToDetector(t *testing.T) {
	h, _, detector := newHandler(feed.HandlerConfig{Overflow: feed.OverflowBlock}, nil, nil)
	h.Start(context.Background())

	// One add then its cancel; one trade to give the ratio a denominator.
	if err := h.SubmitOrderEvent(orderEvent("AAPL", "o1", event.ActionAdd, 0)); err != nil {
		t.Fatalf("submit add: %v", err)
	}
	if err := h.SubmitOrderEvent(orderEvent("AAPL", "o1", event.ActionCancel, 10)); err != nil {
		t.Fatalf("submit cancel: %v", err)
	}
	if err := h.SubmitTradeEvent(tradeEvent("AAPL", "t1", 20)); err != nil {
		t.Fatalf("submit trade: %v", err)
	}
	h.Stop()

	// Force an assessment over what the detector accumulated.
	detector.ProcessOrderBook("AAPL", 30, 0, 100.0, 0, 0)
	status := detector.GetToxicFlowStatus("AAPL")

	var ratio float64
	for _, f := range status.Factors {
		if f.Name == analysis.FactorCancelTradeRatio {
			ratio = f.Contribution
		}
	}
	// 1 cancel / 1 trade, normalized by 10.
	if ratio != 0.1 {
		t.Errorf("cancel/trade contribution = %v, want 0.1", ratio)
	}
}
