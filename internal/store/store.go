// Package store persists fills, snapshots, and resolutions to Postgres.
// It is an additive export layer: the replay engine works without a store,
// and a failing store degrades to "stop persisting, keep replaying" rather
// than interrupting a run, enforced by wrapping every write in a circuit
// breaker.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/bikeshrana/pmbacktest/internal/circuitbreaker"
	"github.com/bikeshrana/pmbacktest/internal/metrics"
	"github.com/bikeshrana/pmbacktest/pkg/market"
)

// Store persists replay output to Postgres, guarded by a circuit breaker.
type Store struct {
	pool    *pgxpool.Pool
	cb      *circuitbreaker.CircuitBreaker
	logger  zerolog.Logger
	runID   string
	metrics *metrics.ReplayMetrics
}

// New creates a Store backed by an already-connected pgxpool.Pool for the
// given run id (used to distinguish concurrent or historical replay runs in
// the same database). m may be nil to disable metric observation.
func New(pool *pgxpool.Pool, runID string, logger zerolog.Logger, m *metrics.ReplayMetrics) *Store {
	log := logger.With().Str("component", "store").Logger()

	cbConfig := circuitbreaker.DefaultConfig("store", log)
	if m != nil {
		cbConfig.OnTrip = func() { m.CircuitBreakerTrips.WithLabelValues("store").Inc() }
	}

	return &Store{
		pool:    pool,
		cb:      circuitbreaker.New(cbConfig),
		logger:  log,
		runID:   runID,
		metrics: m,
	}
}

// observe wraps a single query in the circuit breaker and, if metrics were
// supplied, records its duration, count, and any error by operation/table.
func (s *Store) observe(operation, table string, query func() error) error {
	start := time.Now()
	err := s.cb.Execute(query)

	if s.metrics != nil {
		s.metrics.DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
		s.metrics.DBQueryTotal.WithLabelValues(operation, table).Inc()
		if err != nil {
			s.metrics.DBErrors.WithLabelValues(operation, table).Inc()
		}
		s.metrics.CircuitBreakerState.WithLabelValues("store").Set(float64(s.cb.GetState()))
	}
	return err
}

// Connect opens a pgx connection pool for dsn.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return pool, nil
}

// RecordFill persists a single fill. Implements replay.Sink.
func (s *Store) RecordFill(ctx context.Context, f market.Fill) error {
	err := s.observe("insert", "fills", func() error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO fills (run_id, order_id, market_id, action, side, price, quantity, timestamp, commission)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, s.runID, f.OrderID, f.MarketID, f.Action.String(), f.Side.String(), f.Price, f.Quantity, f.Timestamp, f.Commission)
		if err != nil {
			return fmt.Errorf("store: insert fill: %w", err)
		}
		return nil
	})
	if err == nil && s.metrics != nil {
		s.metrics.FillsTotal.WithLabelValues(f.MarketID, f.Action.String(), f.Side.String()).Inc()
		s.metrics.FillVolume.WithLabelValues(f.MarketID).Add(f.Quantity)
	}
	return err
}

// RecordSnapshot persists a single portfolio snapshot. Implements
// replay.Sink.
func (s *Store) RecordSnapshot(ctx context.Context, snap market.Snapshot) error {
	err := s.observe("insert", "snapshots", func() error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO snapshots (run_id, timestamp, cash, total_equity, unrealized_pnl, num_positions)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, s.runID, snap.Timestamp, snap.Cash, snap.TotalEquity, snap.UnrealizedPnL, snap.NumPositions)
		if err != nil {
			return fmt.Errorf("store: insert snapshot: %w", err)
		}
		return nil
	})
	if err == nil && s.metrics != nil {
		s.metrics.ObserveSnapshot(snap.Cash, snap.TotalEquity, snap.UnrealizedPnL, snap.NumPositions)
	}
	return err
}

// RecordResolution persists a market resolution and its realized P&L delta.
// Implements replay.Sink.
func (s *Store) RecordResolution(ctx context.Context, marketID string, result market.Side, pnl float64) error {
	err := s.observe("insert", "resolutions", func() error {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO resolutions (run_id, market_id, result, realized_pnl)
			VALUES ($1, $2, $3, $4)
		`, s.runID, marketID, result.String(), pnl)
		if err != nil {
			return fmt.Errorf("store: insert resolution: %w", err)
		}
		return nil
	})
	if err == nil && s.metrics != nil {
		s.metrics.ResolutionsTotal.WithLabelValues(result.String()).Inc()
	}
	return err
}

// BreakerState exposes the underlying circuit breaker's state.
func (s *Store) BreakerState() circuitbreaker.State {
	return s.cb.GetState()
}
