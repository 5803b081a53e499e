package broker

import (
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/pmbacktest/pkg/market"
)

func newTestBroker(cfg Config) *Broker {
	return New(cfg, zerolog.Nop(), nil)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestCheckFills_BasicBuyYes(t *testing.T) {
	t.Parallel()

	b := newTestBroker(Config{CommissionRate: 0, BaseSlippage: 0, LiquidityCap: true})
	b.PlaceOrder("m", market.Buy, market.Yes, 0.50, 10, 0)

	b.UpdateTradeSize("m", 100)
	fills := b.CheckFills(market.Trade{
		MarketID: "m", YesPrice: 0.40, NoPrice: 0.60, Quantity: 100, TakerSide: market.No,
	}, 100)

	if len(fills) != 1 {
		t.Fatalf("len(fills) = %d, want 1", len(fills))
	}
	if !almostEqual(fills[0].Price, 0.40) {
		t.Errorf("fill price = %v, want 0.40", fills[0].Price)
	}
	if !almostEqual(fills[0].Quantity, 10) {
		t.Errorf("fill quantity = %v, want 10", fills[0].Quantity)
	}
	if len(b.AllPending()) != 0 {
		t.Errorf("AllPending() len = %d, want 0", len(b.AllPending()))
	}
}

func TestCheckFills_NoMatchWrongTakerSide(t *testing.T) {
	t.Parallel()

	b := newTestBroker(DefaultConfig())
	b.PlaceOrder("m", market.Buy, market.Yes, 0.50, 10, 0)

	b.UpdateTradeSize("m", 100)
	fills := b.CheckFills(market.Trade{
		MarketID: "m", YesPrice: 0.40, NoPrice: 0.60, Quantity: 100, TakerSide: market.Yes,
	}, 100)

	if len(fills) != 0 {
		t.Fatalf("len(fills) = %d, want 0 (taker on same side should not fire a resting order)", len(fills))
	}
}

func TestCheckFills_CashGatedPartialFill(t *testing.T) {
	t.Parallel()

	b := newTestBroker(Config{CommissionRate: 0.01, BaseSlippage: 0, LiquidityCap: true})
	b.PlaceOrder("m", market.Buy, market.Yes, 0.50, 100, 0)

	b.UpdateTradeSize("m", 100)
	fills := b.CheckFills(market.Trade{
		MarketID: "m", YesPrice: 0.50, NoPrice: 0.50, Quantity: 100, TakerSide: market.No,
	}, 5)

	if len(fills) != 1 {
		t.Fatalf("len(fills) = %d, want 1", len(fills))
	}
	if fills[0].Quantity != 9 {
		t.Errorf("fill quantity = %v, want 9 (floored from 5/(0.50*1.01))", fills[0].Quantity)
	}
}

func TestCheckFills_CashGatedSkipWithoutLiquidityCap(t *testing.T) {
	t.Parallel()

	b := newTestBroker(Config{CommissionRate: 0, BaseSlippage: 0, LiquidityCap: false})
	b.PlaceOrder("m", market.Buy, market.Yes, 0.50, 100, 0)

	b.UpdateTradeSize("m", 100)
	fills := b.CheckFills(market.Trade{
		MarketID: "m", YesPrice: 0.50, NoPrice: 0.50, Quantity: 100, TakerSide: market.No,
	}, 5)

	if len(fills) != 0 {
		t.Fatalf("len(fills) = %d, want 0 (cash-insufficient order skipped entirely, not partially filled)", len(fills))
	}
	if len(b.AllPending()) != 1 {
		t.Errorf("AllPending() len = %d, want 1 (order remains pending)", len(b.AllPending()))
	}
}

func TestCheckFills_MarketImpactPricing(t *testing.T) {
	t.Parallel()

	b := newTestBroker(Config{CommissionRate: 0, BaseSlippage: 0.01, LiquidityCap: false})
	b.PlaceOrder("m", market.Buy, market.Yes, 0.99, 1, 0)

	b.UpdateTradeSize("m", 1)
	fills := b.CheckFills(market.Trade{
		MarketID: "m", YesPrice: 0.05, NoPrice: 0.95, Quantity: 1, TakerSide: market.No,
	}, 100)

	if len(fills) != 1 {
		t.Fatalf("len(fills) = %d, want 1", len(fills))
	}
	want := 0.05 + 0.01*(0.25/0.0475)*1.0
	if !almostEqual(fills[0].Price, want) {
		t.Errorf("fill price = %v, want %v", fills[0].Price, want)
	}
}

func TestCheckFills_FIFOOrdering(t *testing.T) {
	t.Parallel()

	b := newTestBroker(Config{CommissionRate: 0, BaseSlippage: 0, LiquidityCap: true})
	first := b.PlaceOrder("m", market.Buy, market.Yes, 0.50, 5, 0)
	second := b.PlaceOrder("m", market.Buy, market.Yes, 0.50, 5, 1)

	b.UpdateTradeSize("m", 10)
	fills := b.CheckFills(market.Trade{
		MarketID: "m", YesPrice: 0.40, NoPrice: 0.60, Quantity: 10, TakerSide: market.No,
	}, 100)

	if len(fills) != 2 {
		t.Fatalf("len(fills) = %d, want 2", len(fills))
	}
	if fills[0].OrderID != first.OrderID || fills[1].OrderID != second.OrderID {
		t.Errorf("fills out of FIFO order: got [%s, %s], want [%s, %s]",
			fills[0].OrderID, fills[1].OrderID, first.OrderID, second.OrderID)
	}
}

func TestCancelOrder(t *testing.T) {
	t.Parallel()

	b := newTestBroker(DefaultConfig())
	o := b.PlaceOrder("m", market.Buy, market.Yes, 0.5, 1, 0)

	if !b.CancelOrder(o.OrderID) {
		t.Fatal("CancelOrder() = false, want true")
	}
	if b.CancelOrder(o.OrderID) {
		t.Error("CancelOrder() on already-cancelled order = true, want false")
	}
}

func TestCancelAll(t *testing.T) {
	t.Parallel()

	b := newTestBroker(DefaultConfig())
	b.PlaceOrder("m1", market.Buy, market.Yes, 0.5, 1, 0)
	b.PlaceOrder("m1", market.Buy, market.Yes, 0.5, 1, 0)
	b.PlaceOrder("m2", market.Buy, market.Yes, 0.5, 1, 0)

	m1 := "m1"
	if n := b.CancelAll(&m1); n != 2 {
		t.Errorf("CancelAll(m1) = %d, want 2", n)
	}
	if n := b.CancelAll(nil); n != 1 {
		t.Errorf("CancelAll(nil) = %d, want 1", n)
	}
}
