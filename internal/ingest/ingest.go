// Package ingest reads a newline-delimited JSON event log into the replay
// package's Event stream. It is a minimal reference adapter for the
// external data-ingestion collaborator the core assumes: swapping it for a
// database-backed reader never touches broker or portfolio semantics.
package ingest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/bikeshrana/pmbacktest/internal/replay"
	"github.com/bikeshrana/pmbacktest/pkg/market"
)

// ErrUnknownEventType is returned when a decoded line's "type" field does
// not match a recognized event kind.
var ErrUnknownEventType = errors.New("ingest: unknown event type")

// rawEvent mirrors one line of the NDJSON log.
type rawEvent struct {
	Type      string   `json:"type"`
	Timestamp float64  `json:"timestamp"`
	MarketID  string   `json:"market_id"`
	YesPrice  float64  `json:"yes_price"`
	NoPrice   float64  `json:"no_price"`
	Quantity  float64  `json:"quantity"`
	TakerSide string   `json:"taker_side"`
	Result    string   `json:"result"`
	Title     string   `json:"title,omitempty"`
}

// Decode reads one NDJSON event log from r and streams decoded replay
// events to the returned channel. Decoding happens in a background
// goroutine; the channel is closed when r is exhausted or an error occurs,
// and the first decode error (if any) is sent to errCh before it closes.
func Decode(r io.Reader) (<-chan replay.Event, <-chan error) {
	out := make(chan replay.Event)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		line := 0

		for scanner.Scan() {
			line++
			raw := scanner.Bytes()
			if len(raw) == 0 {
				continue
			}

			var re rawEvent
			if err := json.Unmarshal(raw, &re); err != nil {
				errCh <- fmt.Errorf("ingest: decode line %d: %w", line, err)
				return
			}

			ev, err := toEvent(re)
			if err != nil {
				errCh <- fmt.Errorf("ingest: line %d: %w", line, err)
				return
			}
			out <- ev
		}

		if err := scanner.Err(); err != nil {
			errCh <- fmt.Errorf("ingest: scan: %w", err)
		}
	}()

	return out, errCh
}

func toEvent(re rawEvent) (replay.Event, error) {
	switch re.Type {
	case "trade":
		return replay.Event{
			Type:      replay.TradeEvent,
			Timestamp: re.Timestamp,
			Trade: market.Trade{
				Timestamp: re.Timestamp,
				MarketID:  re.MarketID,
				YesPrice:  re.YesPrice,
				NoPrice:   re.NoPrice,
				Quantity:  re.Quantity,
				TakerSide: parseSide(re.TakerSide),
			},
		}, nil
	case "resolution":
		return replay.Event{
			Type:      replay.ResolutionEvent,
			Timestamp: re.Timestamp,
			MarketID:  re.MarketID,
			Result:    parseSide(re.Result),
		}, nil
	default:
		return replay.Event{}, fmt.Errorf("%w: %q", ErrUnknownEventType, re.Type)
	}
}

func parseSide(s string) market.Side {
	if s == "no" {
		return market.No
	}
	return market.Yes
}
