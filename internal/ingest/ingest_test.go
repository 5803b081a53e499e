package ingest

import (
	"strings"
	"testing"

	"github.com/bikeshrana/pmbacktest/internal/replay"
)

func TestDecode_TradeAndResolution(t *testing.T) {
	t.Parallel()

	log := strings.Join([]string{
		`{"type":"trade","timestamp":1,"market_id":"m","yes_price":0.4,"no_price":0.6,"quantity":10,"taker_side":"no"}`,
		`{"type":"resolution","timestamp":2,"market_id":"m","result":"yes"}`,
	}, "\n")

	events, errCh := Decode(strings.NewReader(log))

	var got []replay.Event
	for ev := range events {
		got = append(got, ev)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("decode error: %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(got))
	}
	if got[0].Type != replay.TradeEvent {
		t.Errorf("events[0].Type = %v, want TradeEvent", got[0].Type)
	}
	if got[1].Type != replay.ResolutionEvent {
		t.Errorf("events[1].Type = %v, want ResolutionEvent", got[1].Type)
	}
}

func TestDecode_MalformedLineReturnsError(t *testing.T) {
	t.Parallel()

	events, errCh := Decode(strings.NewReader(`{not valid json`))

	for range events {
	}
	if err := <-errCh; err == nil {
		t.Error("expected a decode error for malformed input, got nil")
	}
}

func TestDecode_UnknownEventType(t *testing.T) {
	t.Parallel()

	events, errCh := Decode(strings.NewReader(`{"type":"bogus"}`))

	for range events {
	}
	if err := <-errCh; err == nil {
		t.Error("expected ErrUnknownEventType, got nil")
	}
}
