package execution_test

import (
	"math"
	"math/rand"
	"testing"

	"quantsim/internal/domain"
	"quantsim/internal/execution"
)

func newImpactSim(cfg execution.ImpactConfig) *execution.ImpactSimulator {
	return execution.NewImpactSimulator(cfg, rand.New(rand.NewSource(42)))
}

func TestImmediateImpactSign(t *testing.T) {
	cfg := execution.DefaultImpactConfig()
	cfg.RandomFactor = 0 // keep the test deterministic in value, not just seed
	sim := newImpactSim(cfg)

	snap := &domain.MarketSnapshot{
		MidPrice: 100.0,
		Book: &domain.OrderBookSnapshot{
			Bids:     []domain.BookLevel{{Price: 99.5, Quantity: 500}},
			Asks:     []domain.BookLevel{{Price: 100.5, Quantity: 500}},
			MidPrice: 100.0,
			Spread:   1.0,
		},
	}

	buy := sim.ImmediateImpact(100, true, snap, 0.01)
	if buy <= 0 {
		t.Errorf("buy impact = %v, want positive", buy)
	}
	sell := sim.ImmediateImpact(100, false, snap, 0.01)
	if sell >= 0 {
		t.Errorf("sell impact = %v, want negative", sell)
	}
	if math.Abs(buy+sell) > 1e-9 {
		t.Errorf("buy and sell impacts not symmetric: %v vs %v", buy, sell)
	}

	if got := sim.ImmediateImpact(100, true, &domain.MarketSnapshot{}, 0); got != 0 {
		t.Errorf("impact without a price = %v, want 0", got)
	}
}

func TestImmediateImpactScalesWithSize(t *testing.T) {
	cfg := execution.ImpactConfig{PriceImpactFactor: 0.1}
	sim := newImpactSim(cfg)

	snap := &domain.MarketSnapshot{
		MidPrice: 100.0,
		Book: &domain.OrderBookSnapshot{
			Asks:     []domain.BookLevel{{Price: 100.5, Quantity: 1000}},
			MidPrice: 100.0,
		},
	}

	small := sim.ImmediateImpact(10, true, snap, 0)
	large := sim.ImmediateImpact(500, true, snap, 0)
	if large <= small {
		t.Errorf("larger trade must impact more: small=%v large=%v", small, large)
	}

	// Size ratio is capped: a trade bigger than visible depth impacts no
	// more than one consuming exactly the depth.
	capped := sim.ImmediateImpact(5000, true, snap, 0)
	atDepth := sim.ImmediateImpact(1000, true, snap, 0)
	if math.Abs(capped-atDepth) > 1e-9 {
		t.Errorf("impact beyond depth not capped: %v vs %v", capped, atDepth)
	}
}

func TestResidualImpactDecays(t *testing.T) {
	cfg := execution.ImpactConfig{PriceImpactFactor: 0.1, DecayFactor: 0.5}
	sim := newImpactSim(cfg)

	snap := &domain.MarketSnapshot{MidPrice: 100.0}
	impact := sim.RecordTrade("AAPL", 100, true, snap, 0, 0)
	if impact <= 0 {
		t.Fatalf("recorded buy impact = %v, want positive", impact)
	}

	atZero := sim.ResidualImpact("AAPL", 0)
	if math.Abs(atZero-impact) > 1e-9 {
		t.Errorf("residual at trade time = %v, want %v", atZero, impact)
	}

	afterOne := sim.ResidualImpact("AAPL", 1000)
	if math.Abs(afterOne-impact*0.5) > 1e-9 {
		t.Errorf("residual after 1s = %v, want %v", afterOne, impact*0.5)
	}

	// With decay 0.5 the contribution falls below 1% after ~7 halvings
	// and is pruned.
	if got := sim.ResidualImpact("AAPL", 60_000); got != 0 {
		t.Errorf("residual after a minute = %v, want 0 (pruned)", got)
	}
	if got := sim.ResidualImpact("AAPL", 1000); got != 0 {
		t.Errorf("pruned event came back: %v", got)
	}
}

func TestShiftSnapshotCopies(t *testing.T) {
	cfg := execution.ImpactConfig{PriceImpactFactor: 0.1, DecayFactor: 0.95}
	sim := newImpactSim(cfg)

	snap := &domain.MarketSnapshot{
		MidPrice: 100.0,
		Close:    100.0,
		Book: &domain.OrderBookSnapshot{
			Bids:     []domain.BookLevel{{Price: 99.5, Quantity: 100}},
			Asks:     []domain.BookLevel{{Price: 100.5, Quantity: 100}},
			MidPrice: 100.0,
		},
	}

	sim.RecordTrade("AAPL", 100, true, snap, 0, 0)
	shifted := sim.ShiftSnapshot("AAPL", snap, 0)

	if shifted == snap {
		t.Fatal("shifted snapshot must be a copy")
	}
	if shifted.MidPrice <= snap.MidPrice {
		t.Errorf("buy flow must shift mid up: %v -> %v", snap.MidPrice, shifted.MidPrice)
	}
	if snap.MidPrice != 100.0 || snap.Book.Bids[0].Price != 99.5 {
		t.Error("input snapshot was mutated")
	}
	delta := shifted.MidPrice - snap.MidPrice
	if got := shifted.Book.Asks[0].Price - snap.Book.Asks[0].Price; math.Abs(got-delta) > 1e-9 {
		t.Errorf("book level shift = %v, want %v", got, delta)
	}

	sim.Reset("AAPL")
	if got := sim.ShiftSnapshot("AAPL", snap, 0); got != snap {
		t.Error("after reset the unshifted snapshot should be returned as-is")
	}
}
