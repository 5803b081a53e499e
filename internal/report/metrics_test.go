package report

import (
	"math"
	"testing"

	"github.com/bikeshrana/pmbacktest/pkg/market"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestCompute_WinRateAndProfitFactor(t *testing.T) {
	t.Parallel()

	trades := []ClosedTrade{
		{MarketID: "m", PnL: 10},
		{MarketID: "m", PnL: -5},
		{MarketID: "m", PnL: 20},
	}
	c := NewCalculator(trades, nil, 100)
	r := c.Compute()

	if r.TotalTrades != 3 {
		t.Errorf("TotalTrades = %d, want 3", r.TotalTrades)
	}
	if !almostEqual(r.WinRate, 200.0/3.0) {
		t.Errorf("WinRate = %v, want %v", r.WinRate, 200.0/3.0)
	}
	if !almostEqual(r.ProfitFactor, 6.0) {
		t.Errorf("ProfitFactor = %v, want 6.0 (30/5)", r.ProfitFactor)
	}
	if !almostEqual(r.NetProfit, 25) {
		t.Errorf("NetProfit = %v, want 25", r.NetProfit)
	}
}

func TestCompute_NoLossesGivesCappedProfitFactor(t *testing.T) {
	t.Parallel()

	trades := []ClosedTrade{{MarketID: "m", PnL: 10}}
	r := NewCalculator(trades, nil, 100).Compute()

	if r.ProfitFactor != 999.99 {
		t.Errorf("ProfitFactor = %v, want 999.99", r.ProfitFactor)
	}
}

func TestCompute_MaxDrawdown(t *testing.T) {
	t.Parallel()

	snaps := []market.Snapshot{
		{TotalEquity: 100},
		{TotalEquity: 120},
		{TotalEquity: 90},
		{TotalEquity: 110},
	}
	r := NewCalculator(nil, snaps, 100).Compute()

	if !almostEqual(r.MaxDrawdown, 30) {
		t.Errorf("MaxDrawdown = %v, want 30", r.MaxDrawdown)
	}
	if !almostEqual(r.MaxDrawdownPct, 25) {
		t.Errorf("MaxDrawdownPct = %v, want 25", r.MaxDrawdownPct)
	}
}

func TestCompute_ConsecutiveStreaks(t *testing.T) {
	t.Parallel()

	trades := []ClosedTrade{
		{PnL: 1}, {PnL: 1}, {PnL: -1}, {PnL: 1}, {PnL: 1}, {PnL: 1},
	}
	r := NewCalculator(trades, nil, 100).Compute()

	if r.MaxConsecutiveWins != 3 {
		t.Errorf("MaxConsecutiveWins = %d, want 3", r.MaxConsecutiveWins)
	}
	if r.MaxConsecutiveLosses != 1 {
		t.Errorf("MaxConsecutiveLosses = %d, want 1", r.MaxConsecutiveLosses)
	}
}

func TestCompute_EmptyTradesIsZeroValue(t *testing.T) {
	t.Parallel()

	r := NewCalculator(nil, nil, 100).Compute()
	if r.WinRate != 0 || r.ProfitFactor != 0 || r.TotalTrades != 0 {
		t.Errorf("expected zero-value Result for no trades, got %+v", r)
	}
}
