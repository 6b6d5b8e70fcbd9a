package portfolio_test

import (
	"math"
	"math/rand"
	"testing"

	"quantsim/internal/domain"
	"quantsim/internal/execution"
	"quantsim/internal/portfolio"
)

// frictionless builds an execution model with no slippage and certain
// fills so cash arithmetic is exact.
func frictionless(t *testing.T) *execution.Model {
	t.Helper()
	m, err := execution.NewModel(execution.Config{
		SlippageModel:   execution.SlippageFixed,
		SlippageFactor:  0,
		FillProbability: 1.0,
	}, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}
	return m
}

func snapAt(price float64) *domain.MarketSnapshot {
	return &domain.MarketSnapshot{MidPrice: price}
}

func TestMarketOrderRoundTrip(t *testing.T) {
	pf := portfolio.New(100_000, frictionless(t))

	// Buy 100 @ 150.
	pf.PlaceMarketOrder("AAPL", 100, domain.DirectionBuy, 1000)
	pf.ResolveOrders(map[string]*domain.MarketSnapshot{"AAPL": snapAt(150.0)}, 1000)
	pf.ProcessFills()

	if got := pf.Position("AAPL"); got != 100 {
		t.Fatalf("position = %v, want 100", got)
	}
	if got, want := pf.Cash(), 100_000-100*150.0; got != want {
		t.Errorf("cash = %v, want %v", got, want)
	}
	if len(pf.ActiveOrders()) != 0 {
		t.Errorf("active orders = %d, want 0", len(pf.ActiveOrders()))
	}
	if len(pf.Trades()) != 1 {
		t.Errorf("trades = %d, want 1", len(pf.Trades()))
	}

	// Sell the lot @ 155; realized PnL = 500.
	pf.PlaceMarketOrder("AAPL", 100, domain.DirectionSell, 2000)
	pf.ResolveOrders(map[string]*domain.MarketSnapshot{"AAPL": snapAt(155.0)}, 2000)
	pf.ProcessFills()

	if got := pf.Position("AAPL"); got != 0 {
		t.Errorf("position after close = %v, want 0", got)
	}
	if got, want := pf.Cash(), 100_500.0; got != want {
		t.Errorf("cash after round trip = %v, want %v", got, want)
	}
	closed := pf.ClosedPositions()
	if len(closed) != 1 {
		t.Fatalf("closed positions = %d, want 1", len(closed))
	}
	if got, want := closed[0].PnL(), 500.0; got != want {
		t.Errorf("realized PnL = %v, want %v", got, want)
	}
}

func TestEquityInvariant(t *testing.T) {
	// At every mark: equity == cash + sum(quantity * price).
	pf := portfolio.New(50_000, frictionless(t))
	prices := map[string]float64{"AAPL": 100.0, "MSFT": 200.0}

	pf.PlaceMarketOrder("AAPL", 50, domain.DirectionBuy, 0)
	pf.PlaceMarketOrder("MSFT", 20, domain.DirectionBuy, 0)
	pf.ResolveOrders(map[string]*domain.MarketSnapshot{
		"AAPL": snapAt(100.0),
		"MSFT": snapAt(200.0),
	}, 0)
	pf.ProcessFills()

	equity := pf.MarkToMarket(prices, 0)
	want := pf.Cash() + 50*100.0 + 20*200.0
	if math.Abs(equity-want) > 1e-9 {
		t.Errorf("equity = %v, want %v", equity, want)
	}
	// Frictionless fills keep total value at initial capital.
	if math.Abs(equity-50_000) > 1e-9 {
		t.Errorf("equity = %v, want 50000", equity)
	}

	// A missing price excludes the symbol from the sum.
	partial := pf.MarkToMarket(map[string]float64{"AAPL": 110.0}, 1000)
	want = pf.Cash() + 50*110.0
	if math.Abs(partial-want) > 1e-9 {
		t.Errorf("partial-price equity = %v, want %v", partial, want)
	}

	if got := len(pf.EquityCurve()); got != 2 {
		t.Errorf("equity curve points = %d, want 2", got)
	}
}

func TestPartialFillStaysActive(t *testing.T) {
	pf := portfolio.New(100_000, frictionless(t))

	order := pf.PlaceMarketOrder("AAPL", 100, domain.DirectionBuy, 0)
	order.AddFill(40, 150.0, 0)

	pf.ProcessFills()
	if len(pf.ActiveOrders()) != 1 {
		t.Fatalf("partially filled order dropped from active set")
	}
	if got := pf.Position("AAPL"); got != 0 {
		t.Errorf("partial fill applied to position early: %v", got)
	}

	order.AddFill(60, 150.0, 1000)
	pf.ProcessFills()
	if got := pf.Position("AAPL"); got != 100 {
		t.Errorf("position = %v, want 100", got)
	}
	if len(pf.ActiveOrders()) != 0 {
		t.Errorf("filled order still active")
	}
}

func TestCancelOrder(t *testing.T) {
	pf := portfolio.New(100_000, frictionless(t))

	order := pf.PlaceLimitOrder("AAPL", 100, 140.0, domain.DirectionBuy, 0)
	if !pf.CancelOrder(order) {
		t.Fatal("open limit order must cancel")
	}
	if len(pf.ActiveOrders()) != 0 {
		t.Errorf("cancelled order still active")
	}
	if pf.CancelOrder(order) {
		t.Error("second cancel must fail")
	}

	// Cancelled orders never fill.
	pf.ResolveOrders(map[string]*domain.MarketSnapshot{"AAPL": snapAt(135.0)}, 1000)
	pf.ProcessFills()
	if got := pf.Position("AAPL"); got != 0 {
		t.Errorf("cancelled order produced a position: %v", got)
	}
}

func TestPositionNetting(t *testing.T) {
	t.Run("same side averages entry", func(t *testing.T) {
		pf := portfolio.New(100_000, frictionless(t))
		buy := func(qty, price float64) {
			pf.PlaceMarketOrder("AAPL", qty, domain.DirectionBuy, 0)
			pf.ResolveOrders(map[string]*domain.MarketSnapshot{"AAPL": snapAt(price)}, 0)
			pf.ProcessFills()
		}
		buy(100, 100.0)
		buy(100, 110.0)

		pos := pf.OpenPosition("AAPL")
		if pos == nil {
			t.Fatal("no open position")
		}
		if pos.Quantity != 200 {
			t.Errorf("quantity = %v, want 200", pos.Quantity)
		}
		if got, want := pos.EntryPrice, 105.0; math.Abs(got-want) > 1e-9 {
			t.Errorf("entry price = %v, want %v", got, want)
		}
	})

	t.Run("flip realizes and reopens", func(t *testing.T) {
		pf := portfolio.New(100_000, frictionless(t))
		trade := func(dir string, qty, price float64) {
			pf.PlaceMarketOrder("AAPL", qty, dir, 0)
			pf.ResolveOrders(map[string]*domain.MarketSnapshot{"AAPL": snapAt(price)}, 0)
			pf.ProcessFills()
		}
		trade(domain.DirectionBuy, 100, 100.0)
		trade(domain.DirectionSell, 150, 110.0) // close 100, open short 50

		if got := pf.Position("AAPL"); got != -50 {
			t.Fatalf("net position = %v, want -50", got)
		}
		closed := pf.ClosedPositions()
		if len(closed) != 1 {
			t.Fatalf("closed positions = %d, want 1", len(closed))
		}
		if got, want := closed[0].PnL(), 1000.0; math.Abs(got-want) > 1e-9 {
			t.Errorf("realized PnL = %v, want %v", got, want)
		}
		pos := pf.OpenPosition("AAPL")
		if pos == nil || pos.Quantity != -50 || pos.EntryPrice != 110.0 {
			t.Errorf("flipped position = %+v, want -50 @ 110", pos)
		}
	})
}

func TestDirectBuySellGuards(t *testing.T) {
	pf := portfolio.New(1_000, frictionless(t))
	snap := snapAt(100.0)

	if pf.Buy("AAPL", 100, 100.0, snap, 0) {
		t.Error("buy exceeding cash must be rejected")
	}
	if pf.Sell("AAPL", 10, snap, 0) {
		t.Error("sell with no position must be rejected")
	}

	if !pf.Buy("AAPL", 5, 100.0, snap, 0) {
		t.Fatal("affordable buy must succeed")
	}
	if pf.Sell("AAPL", 10, snap, 0) {
		t.Error("sell beyond held quantity must be rejected")
	}
	if !pf.Sell("AAPL", 5, snap, 0) {
		t.Error("sell of held quantity must succeed")
	}
	if got := pf.Position("AAPL"); got != 0 {
		t.Errorf("position = %v, want 0", got)
	}
}

func TestResolveSkipsMissingSnapshot(t *testing.T) {
	pf := portfolio.New(100_000, frictionless(t))
	pf.PlaceMarketOrder("MSFT", 10, domain.DirectionBuy, 0)

	pf.ResolveOrders(map[string]*domain.MarketSnapshot{"AAPL": snapAt(150.0)}, 0)
	pf.ProcessFills()

	if len(pf.ActiveOrders()) != 1 {
		t.Error("order for a symbol without a snapshot must stay active")
	}
}
