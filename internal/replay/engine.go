// Package replay drives a Broker and Portfolio through a stream of market
// events, implementing the event-driver contract: for each trade, update
// the market's trade-size average, check for fills, apply each fill in
// order, and record the latest price; for each resolution, settle the
// position and cancel any remaining resting orders.
package replay

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bikeshrana/pmbacktest/internal/broker"
	"github.com/bikeshrana/pmbacktest/internal/portfolio"
	"github.com/bikeshrana/pmbacktest/internal/report"
	"github.com/bikeshrana/pmbacktest/pkg/market"
)

// EventType tags a replay Event as either a trade or a market resolution.
type EventType string

const (
	TradeEvent      EventType = "trade"
	ResolutionEvent EventType = "resolution"
)

// Event is one entry in the replay stream. Exactly one of Trade or
// Resolution fields is populated, per Type.
type Event struct {
	Type       EventType
	Trade      market.Trade
	MarketID   string
	Result     market.Side
	Info       *market.Info
	Timestamp  float64
}

// Sink receives fills, snapshots, and resolutions as the engine produces
// them. It is an additive, optional export hook; a nil Sink disables
// persistence entirely without changing replay semantics.
type Sink interface {
	RecordFill(ctx context.Context, fill market.Fill) error
	RecordSnapshot(ctx context.Context, snap market.Snapshot) error
	RecordResolution(ctx context.Context, marketID string, result market.Side, pnl float64) error
}

// Config controls the engine's snapshot cadence.
type Config struct {
	// SnapshotEvery takes a snapshot after this many processed events.
	// Zero disables periodic snapshotting (a final snapshot is still
	// taken at stream exhaustion).
	SnapshotEvery int
}

// Engine wires a Broker and Portfolio to an event stream.
type Engine struct {
	broker    *broker.Broker
	portfolio *portfolio.Portfolio
	sink      Sink
	cfg       Config
	logger    zerolog.Logger

	fills        []market.Fill
	snapshots    []market.Snapshot
	closedTrades []report.ClosedTrade
}

// New creates a replay Engine. sink may be nil.
func New(b *broker.Broker, p *portfolio.Portfolio, sink Sink, cfg Config, logger zerolog.Logger) *Engine {
	return &Engine{
		broker:    b,
		portfolio: p,
		sink:      sink,
		cfg:       cfg,
		logger:    logger.With().Str("component", "replay").Logger(),
		fills:        make([]market.Fill, 0),
		snapshots:    make([]market.Snapshot, 0),
		closedTrades: make([]report.ClosedTrade, 0),
	}
}

// Result is the accumulated output of a completed replay: every fill in
// emission order, every snapshot taken, and every realized-P&L event,
// ready to hand to a report.Calculator.
type Result struct {
	Fills        []market.Fill
	Snapshots    []market.Snapshot
	ClosedTrades []report.ClosedTrade
}

// Run consumes events until the channel closes or ctx is cancelled. Each
// trade is matched and applied synchronously before the next event is read;
// the core matching and accounting operations themselves never block.
func (e *Engine) Run(ctx context.Context, events <-chan Event) (*Result, error) {
	processed := 0

	for {
		select {
		case <-ctx.Done():
			return e.result(), ctx.Err()
		case ev, ok := <-events:
			if !ok {
				e.finalSnapshot(ctx)
				return e.result(), nil
			}
			if err := e.handle(ctx, ev); err != nil {
				return e.result(), err
			}
			processed++
			if e.cfg.SnapshotEvery > 0 && processed%e.cfg.SnapshotEvery == 0 {
				e.takeSnapshot(ctx, ev.Timestamp)
			}
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev Event) error {
	switch ev.Type {
	case TradeEvent:
		return e.handleTrade(ctx, ev.Trade)
	case ResolutionEvent:
		return e.handleResolution(ctx, ev.MarketID, ev.Result, ev.Timestamp)
	}
	return nil
}

func (e *Engine) handleTrade(ctx context.Context, t market.Trade) error {
	e.broker.UpdateTradeSize(t.MarketID, t.Quantity)
	fills := e.broker.CheckFills(t, e.portfolio.Cash())

	for _, f := range fills {
		realized := e.portfolio.ApplyFill(f)
		e.fills = append(e.fills, f)
		if realized != 0 {
			e.closedTrades = append(e.closedTrades, report.ClosedTrade{
				MarketID:  f.MarketID,
				PnL:       realized,
				Timestamp: f.Timestamp,
			})
		}
		if e.sink != nil {
			if err := e.sink.RecordFill(ctx, f); err != nil {
				e.logger.Warn().Err(err).Str("order_id", f.OrderID).Msg("failed to persist fill")
			}
		}
	}
	e.portfolio.UpdatePrice(t.MarketID, t.YesPrice)
	return nil
}

func (e *Engine) handleResolution(ctx context.Context, marketID string, result market.Side, timestamp float64) error {
	pnl := e.portfolio.ResolveMarket(marketID, result)
	e.broker.CancelAll(&marketID)

	if pnl != 0 {
		e.closedTrades = append(e.closedTrades, report.ClosedTrade{
			MarketID:  marketID,
			PnL:       pnl,
			Timestamp: timestamp,
		})
	}

	if e.sink != nil {
		if err := e.sink.RecordResolution(ctx, marketID, result, pnl); err != nil {
			e.logger.Warn().Err(err).Str("market_id", marketID).Msg("failed to persist resolution")
		}
	}
	return nil
}

func (e *Engine) takeSnapshot(ctx context.Context, timestamp float64) {
	snap := e.portfolio.Snapshot(timestamp)
	e.snapshots = append(e.snapshots, snap)
	if e.sink != nil {
		if err := e.sink.RecordSnapshot(ctx, snap); err != nil {
			e.logger.Warn().Err(err).Msg("failed to persist snapshot")
		}
	}
}

func (e *Engine) finalSnapshot(ctx context.Context) {
	e.takeSnapshot(ctx, float64(time.Now().Unix()))
}

func (e *Engine) result() *Result {
	return &Result{Fills: e.fills, Snapshots: e.snapshots, ClosedTrades: e.closedTrades}
}
