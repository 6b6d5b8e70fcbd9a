package domain_test

import (
	"testing"

	"quantsim/internal/domain"
)

func TestOrderFillLifecycle(t *testing.T) {
	o := domain.NewOrder("AAPL", domain.OrderTypeMarket, domain.DirectionBuy, 100, 1000)

	if o.Status != domain.OrderStatusOpen {
		t.Fatalf("new order status = %s, want OPEN", o.Status)
	}
	if o.ID == "" {
		t.Error("new order must carry an ID")
	}

	// Partial fill: 40 @ 150.
	o.AddFill(40, 150.0, 2000)
	if o.Status != domain.OrderStatusPartiallyFilled {
		t.Errorf("after partial fill status = %s, want PARTIALLY_FILLED", o.Status)
	}
	if o.FilledQuantity != 40 {
		t.Errorf("filled quantity = %v, want 40", o.FilledQuantity)
	}
	if o.AverageFillPrice != 150.0 {
		t.Errorf("average fill price = %v, want 150", o.AverageFillPrice)
	}
	if !o.IsOpen() {
		t.Error("partially filled order must remain open")
	}

	// Remaining 60 @ 151. VWAP = (40*150 + 60*151) / 100 = 150.6.
	o.AddFill(60, 151.0, 3000)
	if o.Status != domain.OrderStatusFilled {
		t.Errorf("after full fill status = %s, want FILLED", o.Status)
	}
	if got, want := o.AverageFillPrice, 150.6; !closeTo(got, want) {
		t.Errorf("average fill price = %v, want %v", got, want)
	}
	if o.ExecutedMs != 3000 {
		t.Errorf("executed ms = %d, want 3000", o.ExecutedMs)
	}

	// Fills against a terminal order are ignored.
	o.AddFill(10, 200.0, 4000)
	if o.FilledQuantity != 100 {
		t.Errorf("terminal order accepted a fill, quantity = %v", o.FilledQuantity)
	}
	if len(o.Fills) != 2 {
		t.Errorf("terminal order recorded extra fill, fills = %d", len(o.Fills))
	}
}

func TestOrderCancel(t *testing.T) {
	t.Run("open order", func(t *testing.T) {
		o := domain.NewOrder("AAPL", domain.OrderTypeLimit, domain.DirectionBuy, 10, 0)
		if !o.Cancel() {
			t.Fatal("open order must be cancellable")
		}
		if o.Status != domain.OrderStatusCancelled {
			t.Errorf("status = %s, want CANCELLED", o.Status)
		}
		if o.IsOpen() {
			t.Error("cancelled order must not be open")
		}
	})

	t.Run("partially filled keeps fills", func(t *testing.T) {
		o := domain.NewOrder("AAPL", domain.OrderTypeLimit, domain.DirectionBuy, 10, 0)
		o.AddFill(4, 99.0, 500)
		if !o.Cancel() {
			t.Fatal("partially filled order must be cancellable")
		}
		if o.FilledQuantity != 4 {
			t.Errorf("cancel discarded fills, quantity = %v", o.FilledQuantity)
		}
	})

	t.Run("filled order", func(t *testing.T) {
		o := domain.NewOrder("AAPL", domain.OrderTypeMarket, domain.DirectionSell, 5, 0)
		o.AddFill(5, 100.0, 500)
		if o.Cancel() {
			t.Error("filled order must not be cancellable")
		}
		if o.Status != domain.OrderStatusFilled {
			t.Errorf("cancel mutated terminal status to %s", o.Status)
		}
	})
}

func TestOrderSignedQuantity(t *testing.T) {
	buy := domain.NewOrder("AAPL", domain.OrderTypeMarket, domain.DirectionBuy, 25, 0)
	if buy.SignedQuantity() != 25 {
		t.Errorf("buy signed quantity = %v, want 25", buy.SignedQuantity())
	}
	sell := domain.NewOrder("AAPL", domain.OrderTypeMarket, domain.DirectionSell, 25, 0)
	if sell.SignedQuantity() != -25 {
		t.Errorf("sell signed quantity = %v, want -25", sell.SignedQuantity())
	}
}

func closeTo(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
