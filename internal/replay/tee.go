package replay

import (
	"context"

	"github.com/bikeshrana/pmbacktest/pkg/market"
)

// TeeSink fans a single Sink call out to every underlying Sink, collecting
// the first error but still calling each sink so one failing observer (say,
// a results store whose circuit breaker is open) never blocks another (the
// broadcast hub).
type TeeSink struct {
	sinks []Sink
}

// Tee combines sinks into one. Nil sinks are skipped.
func Tee(sinks ...Sink) *TeeSink {
	nonNil := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			nonNil = append(nonNil, s)
		}
	}
	return &TeeSink{sinks: nonNil}
}

func (t *TeeSink) RecordFill(ctx context.Context, f market.Fill) error {
	var firstErr error
	for _, s := range t.sinks {
		if err := s.RecordFill(ctx, f); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *TeeSink) RecordSnapshot(ctx context.Context, snap market.Snapshot) error {
	var firstErr error
	for _, s := range t.sinks {
		if err := s.RecordSnapshot(ctx, snap); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (t *TeeSink) RecordResolution(ctx context.Context, marketID string, result market.Side, pnl float64) error {
	var firstErr error
	for _, s := range t.sinks {
		if err := s.RecordResolution(ctx, marketID, result, pnl); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
