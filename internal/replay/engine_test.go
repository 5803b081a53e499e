package replay

import (
	"context"
	"math"
	"testing"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/pmbacktest/internal/broker"
	"github.com/bikeshrana/pmbacktest/internal/portfolio"
	"github.com/bikeshrana/pmbacktest/pkg/market"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestEngine_TradeThenResolution(t *testing.T) {
	t.Parallel()

	b := broker.New(broker.Config{CommissionRate: 0, BaseSlippage: 0, LiquidityCap: true}, zerolog.Nop(), nil)
	p := portfolio.New(100, zerolog.Nop())
	b.PlaceOrder("m", market.Buy, market.Yes, 0.50, 10, 0)

	e := New(b, p, nil, Config{SnapshotEvery: 0}, zerolog.Nop())

	events := make(chan Event, 2)
	events <- Event{Type: TradeEvent, Timestamp: 1, Trade: market.Trade{
		MarketID: "m", YesPrice: 0.40, NoPrice: 0.60, Quantity: 100, TakerSide: market.No, Timestamp: 1,
	}}
	events <- Event{Type: ResolutionEvent, Timestamp: 2, MarketID: "m", Result: market.Yes}
	close(events)

	result, err := e.Run(context.Background(), events)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(result.Fills) != 1 {
		t.Fatalf("len(Fills) = %d, want 1", len(result.Fills))
	}
	if !almostEqual(p.Cash(), 100-4+10) {
		t.Errorf("cash = %v, want %v", p.Cash(), 100-4+10)
	}
	if len(result.Snapshots) != 1 {
		t.Errorf("len(Snapshots) = %d, want 1 (final snapshot on stream close)", len(result.Snapshots))
	}
	if len(result.ClosedTrades) != 1 {
		t.Fatalf("len(ClosedTrades) = %d, want 1 (the resolution)", len(result.ClosedTrades))
	}
	if !almostEqual(result.ClosedTrades[0].PnL, 6.0) {
		t.Errorf("resolution pnl = %v, want 6.0 (payout 10 - cost basis 4)", result.ClosedTrades[0].PnL)
	}
}

func TestEngine_ContextCancellation(t *testing.T) {
	t.Parallel()

	b := broker.New(broker.DefaultConfig(), zerolog.Nop(), nil)
	p := portfolio.New(100, zerolog.Nop())
	e := New(b, p, nil, Config{}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := make(chan Event)
	_, err := e.Run(ctx, events)
	if err == nil {
		t.Error("Run() with cancelled context: error = nil, want context.Canceled")
	}
}
