package portfolio

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/pmbacktest/pkg/market"
)

func newTestPortfolio(cash float64) *Portfolio {
	return New(cash, zerolog.Nop())
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestApplyFill_BuyYes(t *testing.T) {
	t.Parallel()

	p := newTestPortfolio(100)
	p.ApplyFill(market.Fill{MarketID: "m", Action: market.Buy, Side: market.Yes, Price: 0.40, Quantity: 10})

	if !almostEqual(p.Cash(), 96) {
		t.Errorf("cash = %v, want 96", p.Cash())
	}
	pos, ok := p.Position("m")
	if !ok {
		t.Fatal("expected position to exist")
	}
	if !almostEqual(pos.Quantity, 10) || !almostEqual(pos.AvgEntryPrice, 0.40) {
		t.Errorf("position = %+v, want quantity=10 avg=0.40", pos)
	}
}

func TestApplyFill_RoundTripBuyThenSellSamePrice(t *testing.T) {
	t.Parallel()

	p := newTestPortfolio(100)
	p.ApplyFill(market.Fill{MarketID: "m", Action: market.Buy, Side: market.Yes, Price: 0.40, Quantity: 10})
	p.ApplyFill(market.Fill{MarketID: "m", Action: market.Sell, Side: market.Yes, Price: 0.40, Quantity: 10})

	pos, ok := p.Position("m")
	if !ok {
		t.Fatal("expected position to exist")
	}
	if pos.Quantity != 0 {
		t.Errorf("quantity = %v, want 0", pos.Quantity)
	}
	if !almostEqual(pos.RealizedPnL, 0) {
		t.Errorf("realized_pnl = %v, want 0", pos.RealizedPnL)
	}
	if !almostEqual(p.Cash(), 100) {
		t.Errorf("cash = %v, want 100", p.Cash())
	}
}

func TestApplyFill_SellYesRealizesProfit(t *testing.T) {
	t.Parallel()

	p := newTestPortfolio(60)
	p.ApplyFill(market.Fill{MarketID: "m", Action: market.Buy, Side: market.Yes, Price: 0.40, Quantity: 10})
	p.ApplyFill(market.Fill{MarketID: "m", Action: market.Sell, Side: market.Yes, Price: 0.70, Quantity: 10})

	pos, _ := p.Position("m")
	if !almostEqual(pos.RealizedPnL, 3.0) {
		t.Errorf("realized_pnl = %v, want 3.0", pos.RealizedPnL)
	}
	if !almostEqual(p.Cash(), 60-4+7) {
		t.Errorf("cash = %v, want %v", p.Cash(), 60-4+7)
	}
}

func TestApplyFill_ReturnsRealizedDelta(t *testing.T) {
	t.Parallel()

	p := newTestPortfolio(60)
	if delta := p.ApplyFill(market.Fill{MarketID: "m", Action: market.Buy, Side: market.Yes, Price: 0.40, Quantity: 10}); delta != 0 {
		t.Errorf("opening fill delta = %v, want 0", delta)
	}
	delta := p.ApplyFill(market.Fill{MarketID: "m", Action: market.Sell, Side: market.Yes, Price: 0.70, Quantity: 10})
	if !almostEqual(delta, 3.0) {
		t.Errorf("closing fill delta = %v, want 3.0", delta)
	}
}

func TestResolveMarket_LongNoPayout(t *testing.T) {
	t.Parallel()

	p := newTestPortfolio(100)
	p.ApplyFill(market.Fill{MarketID: "m", Action: market.Buy, Side: market.No, Price: 0.40, Quantity: 10})

	pos, _ := p.Position("m")
	if !almostEqual(pos.Quantity, -10) || !almostEqual(pos.AvgEntryPrice, 0.60) {
		t.Fatalf("position = %+v, want quantity=-10 avg=0.60", pos)
	}

	delta := p.ResolveMarket("m", market.No)
	if !almostEqual(delta, 6.0) {
		t.Errorf("resolution pnl = %v, want 6.0 (payout 10 - cost basis 10*(1-0.60))", delta)
	}
}

func TestResolveMarket_Idempotent(t *testing.T) {
	t.Parallel()

	p := newTestPortfolio(100)
	p.ApplyFill(market.Fill{MarketID: "m", Action: market.Buy, Side: market.Yes, Price: 0.5, Quantity: 10})

	first := p.ResolveMarket("m", market.Yes)
	second := p.ResolveMarket("m", market.Yes)

	if first == 0 {
		t.Error("first ResolveMarket() = 0, want nonzero")
	}
	if second != 0 {
		t.Errorf("second ResolveMarket() = %v, want 0", second)
	}
}

func TestSnapshot_UnrealizedPnL(t *testing.T) {
	t.Parallel()

	p := newTestPortfolio(100)
	p.ApplyFill(market.Fill{MarketID: "m", Action: market.Buy, Side: market.Yes, Price: 0.40, Quantity: 10})
	p.UpdatePrice("m", 0.60)

	snap := p.ComputeSnapshot(1)
	if !almostEqual(snap.UnrealizedPnL, 2.0) {
		t.Errorf("unrealized pnl = %v, want 2.0", snap.UnrealizedPnL)
	}
	if !almostEqual(snap.TotalEquity, 98) {
		t.Errorf("total equity = %v, want 98", snap.TotalEquity)
	}
	if snap.NumPositions != 1 {
		t.Errorf("num positions = %d, want 1", snap.NumPositions)
	}
}

func TestAddToPosition_VolumeWeightedAverage(t *testing.T) {
	t.Parallel()

	p := newTestPortfolio(100)
	p.ApplyFill(market.Fill{MarketID: "m", Action: market.Buy, Side: market.Yes, Price: 0.40, Quantity: 10})
	p.ApplyFill(market.Fill{MarketID: "m", Action: market.Buy, Side: market.Yes, Price: 0.60, Quantity: 10})

	pos, _ := p.Position("m")
	if !almostEqual(pos.AvgEntryPrice, 0.50) {
		t.Errorf("avg_entry_price = %v, want 0.50", pos.AvgEntryPrice)
	}
	if !almostEqual(pos.Quantity, 20) {
		t.Errorf("quantity = %v, want 20", pos.Quantity)
	}
}

func TestClosePartial_DirectionFlip(t *testing.T) {
	t.Parallel()

	p := newTestPortfolio(100)
	p.ApplyFill(market.Fill{MarketID: "m", Action: market.Buy, Side: market.Yes, Price: 0.40, Quantity: 5})
	// Selling more YES than held flips the position to long-NO at the sell price.
	p.ApplyFill(market.Fill{MarketID: "m", Action: market.Sell, Side: market.Yes, Price: 0.60, Quantity: 8})

	pos, _ := p.Position("m")
	if !almostEqual(pos.Quantity, -3) {
		t.Errorf("quantity = %v, want -3", pos.Quantity)
	}
	if !almostEqual(pos.AvgEntryPrice, 0.60) {
		t.Errorf("avg_entry_price after flip = %v, want 0.60", pos.AvgEntryPrice)
	}
	if !almostEqual(pos.RealizedPnL, 1.0) {
		t.Errorf("realized_pnl = %v, want 1.0 (5 * (0.60-0.40))", pos.RealizedPnL)
	}
}
