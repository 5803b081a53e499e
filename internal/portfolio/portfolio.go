// Package portfolio tracks cash, per-market signed positions, and realized
// and unrealized profit and loss for a binary-market backtest.
package portfolio

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/pmbacktest/pkg/market"
)

// Portfolio holds cash and per-market positions and produces periodic
// snapshots. Like the broker, it is designed for a single writer (the
// replay engine) and is not internally synchronized beyond a coarse mutex
// guarding its maps.
type Portfolio struct {
	logger zerolog.Logger

	mu          sync.Mutex
	cash        float64
	initialCash float64
	positions   map[string]*market.Position
	lastPrices  map[string]float64
	snapshots   []market.Snapshot
	resolved    map[string]bool
}

// New creates a Portfolio funded with initialCash.
func New(initialCash float64, logger zerolog.Logger) *Portfolio {
	return &Portfolio{
		logger:      logger.With().Str("component", "portfolio").Logger(),
		cash:        initialCash,
		initialCash: initialCash,
		positions:   make(map[string]*market.Position),
		lastPrices:  make(map[string]float64),
		snapshots:   make([]market.Snapshot, 0),
		resolved:    make(map[string]bool),
	}
}

// Cash returns the current cash balance.
func (p *Portfolio) Cash() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash
}

// Position returns a copy of the current position for a market, and whether
// one exists.
func (p *Portfolio) Position(marketID string) (market.Position, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[marketID]
	if !ok {
		return market.Position{}, false
	}
	return *pos, true
}

// positionFor returns the mutable position record for a market, creating one
// lazily on first use. Caller must hold p.mu.
func (p *Portfolio) positionFor(marketID string) *market.Position {
	pos, ok := p.positions[marketID]
	if !ok {
		pos = &market.Position{MarketID: marketID}
		p.positions[marketID] = pos
	}
	return pos
}

// ApplyFill updates cash and the relevant position for a single fill, and
// returns the realized P&L delta this fill closed, if any (zero for a fill
// that only opens or adds to a position).
func (p *Portfolio) ApplyFill(f market.Fill) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positionFor(f.MarketID)
	var realized float64

	switch {
	case f.Action == market.Buy && f.Side == market.Yes:
		realized = p.addToPosition(pos, f.Quantity, f.Price)
		p.cash -= f.Price * f.Quantity
	case f.Action == market.Sell && f.Side == market.Yes:
		realized = p.closePartial(pos, -f.Quantity, f.Price)
		p.cash += f.Price * f.Quantity
	case f.Action == market.Buy && f.Side == market.No:
		realized = p.addToPosition(pos, -f.Quantity, 1-f.Price)
		p.cash -= f.Price * f.Quantity
	case f.Action == market.Sell && f.Side == market.No:
		realized = p.closePartial(pos, f.Quantity, 1-f.Price)
		p.cash += f.Price * f.Quantity
	}

	p.cash -= f.Commission
	pos.Normalize()

	p.logger.Debug().
		Str("market_id", f.MarketID).
		Str("action", f.Action.String()).
		Str("side", f.Side.String()).
		Float64("price", f.Price).
		Float64("quantity", f.Quantity).
		Float64("cash", p.cash).
		Msg("fill applied")

	return realized
}

// addToPosition folds a signed quantity delta into a position at the given
// YES-equivalent price. Same-direction additions are volume-weight averaged
// into the existing entry price; opposite-direction additions are routed to
// closePartial.
func (p *Portfolio) addToPosition(pos *market.Position, delta, price float64) float64 {
	switch {
	case pos.Quantity == 0:
		pos.Quantity = delta
		pos.AvgEntryPrice = price
		return 0
	case sameSign(pos.Quantity, delta):
		totalQty := pos.Quantity + delta
		pos.AvgEntryPrice = (absf(pos.Quantity)*pos.AvgEntryPrice + absf(delta)*price) / absf(totalQty)
		pos.Quantity = totalQty
		return 0
	default:
		return p.closePartial(pos, delta, price)
	}
}

// closePartial closes up to |delta| of a position's existing quantity at
// price, realizing P&L on the closed portion, and opens a new position in
// the opposite direction with any remainder. It returns the realized P&L.
func (p *Portfolio) closePartial(pos *market.Position, delta, price float64) float64 {
	if pos.Quantity == 0 {
		pos.Quantity = delta
		pos.AvgEntryPrice = price
		return 0
	}

	closingQty := minf(absf(delta), absf(pos.Quantity))
	var realized float64
	if closingQty > 0 {
		if pos.Quantity > 0 {
			realized = closingQty * (price - pos.AvgEntryPrice)
		} else {
			realized = closingQty * (pos.AvgEntryPrice - price)
		}
		pos.RealizedPnL += realized
	}

	remaining := absf(delta) - closingQty
	pos.Quantity += delta
	pos.Normalize()

	if remaining > 0 && pos.Quantity != 0 {
		pos.AvgEntryPrice = price
	}

	return realized
}

// UpdatePrice records the most recently observed YES price for a market, used
// to value unrealized P&L.
func (p *Portfolio) UpdatePrice(marketID string, yesPrice float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrices[marketID] = yesPrice
}

// IsResolved reports whether a market has already been settled.
func (p *Portfolio) IsResolved(marketID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resolved[marketID]
}

// ResolveMarket settles a market's position against its binary outcome.
// Resolution is idempotent: calling it again for an already-resolved market
// returns a zero delta and does not touch cash or realized P&L again.
func (p *Portfolio) ResolveMarket(marketID string, result market.Side) float64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.resolved[marketID] {
		return 0
	}

	pos, ok := p.positions[marketID]
	if !ok || pos.Quantity == 0 {
		p.resolved[marketID] = true
		return 0
	}

	settlement := 0.0
	if result == market.Yes {
		settlement = 1.0
	}

	var payout, costBasis float64
	if pos.Quantity > 0 {
		payout = pos.Quantity * settlement
		costBasis = pos.Quantity * pos.AvgEntryPrice
	} else {
		payout = absf(pos.Quantity) * (1 - settlement)
		costBasis = absf(pos.Quantity) * (1 - pos.AvgEntryPrice)
	}

	resolutionPnL := payout - costBasis
	p.cash += payout
	pos.RealizedPnL += resolutionPnL
	pos.Quantity = 0
	pos.AvgEntryPrice = 0
	p.resolved[marketID] = true

	p.logger.Info().
		Str("market_id", marketID).
		Str("result", result.String()).
		Float64("payout", payout).
		Float64("resolution_pnl", resolutionPnL).
		Msg("market resolved")

	return resolutionPnL
}

// Snapshot computes and records a point-in-time snapshot at timestamp.
func (p *Portfolio) Snapshot(timestamp float64) market.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	snap := p.computeSnapshot(timestamp)
	p.snapshots = append(p.snapshots, snap)
	return snap
}

// ComputeSnapshot computes a point-in-time snapshot without recording it.
func (p *Portfolio) ComputeSnapshot(timestamp float64) market.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.computeSnapshot(timestamp)
}

// Snapshots returns every snapshot recorded via Snapshot, in order.
func (p *Portfolio) Snapshots() []market.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]market.Snapshot, len(p.snapshots))
	copy(out, p.snapshots)
	return out
}

func (p *Portfolio) computeSnapshot(timestamp float64) market.Snapshot {
	unrealized := 0.0
	numPositions := 0

	for marketID, pos := range p.positions {
		if pos.Quantity == 0 || p.resolved[marketID] {
			continue
		}
		last, ok := p.lastPrices[marketID]
		if !ok {
			last = pos.AvgEntryPrice
		}
		if pos.Quantity > 0 {
			unrealized += pos.Quantity * (last - pos.AvgEntryPrice)
		} else {
			unrealized += absf(pos.Quantity) * (pos.AvgEntryPrice - last)
		}
		numPositions++
	}

	return market.Snapshot{
		Timestamp:     timestamp,
		Cash:          p.cash,
		TotalEquity:   p.cash + unrealized,
		UnrealizedPnL: unrealized,
		NumPositions:  numPositions,
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func absf(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
