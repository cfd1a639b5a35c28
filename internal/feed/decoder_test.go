package feed

import (
	"testing"
	"time"

	"liqflow/internal/models"
)

var receipt = time.UnixMilli(1700000000000)

func TestDecodeCombinedEnvelope(t *testing.T) {
	frame := []byte(`{"stream":"!forceOrder@arr","data":{"e":"forceOrder","E":1700000001000,"o":{"s":"btcusdt","S":"SELL","q":"0.5","p":"30000","ap":"30100","T":1700000000500}}}`)

	events, err := Decode(frame, receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	evt := events[0]
	if evt.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %s, want BTCUSDT", evt.Symbol)
	}
	if evt.Side != models.SideSell {
		t.Errorf("side = %s, want SELL", evt.Side)
	}
	if evt.Price != 30100 {
		t.Errorf("price = %v, want average price 30100", evt.Price)
	}
	if evt.Quantity != 0.5 {
		t.Errorf("quantity = %v, want 0.5", evt.Quantity)
	}
	if evt.EventTime != 1700000000500 {
		t.Errorf("event time = %d, want trade time 1700000000500", evt.EventTime)
	}
	if evt.ReceivedTime != receipt.UnixMilli() {
		t.Errorf("received time = %d, want %d", evt.ReceivedTime, receipt.UnixMilli())
	}
}

func TestDecodeBareObject(t *testing.T) {
	frame := []byte(`{"e":"forceOrder","E":1700000001000,"o":{"s":"ETHUSDT","S":"BUY","q":"2","p":"2000"}}`)

	events, err := Decode(frame, receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Side != models.SideBuy {
		t.Errorf("side = %s, want BUY", events[0].Side)
	}
	// no trade time: envelope event time wins
	if events[0].EventTime != 1700000001000 {
		t.Errorf("event time = %d, want 1700000001000", events[0].EventTime)
	}
}

func TestDecodeArray(t *testing.T) {
	frame := []byte(`[
		{"e":"forceOrder","o":{"s":"BTCUSDT","S":"SELL","q":"1","p":"30000"}},
		{"e":"forceOrder","o":{"s":"ETHUSDT","S":"BUY","q":"3","p":"2000"}},
		{"e":"kline","k":{}}
	]`)

	events, err := Decode(frame, receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Symbol != "BTCUSDT" || events[1].Symbol != "ETHUSDT" {
		t.Errorf("unexpected symbols: %s, %s", events[0].Symbol, events[1].Symbol)
	}
}

func TestDecodePricePreference(t *testing.T) {
	// zero average price falls back to the order price
	frame := []byte(`{"e":"forceOrder","o":{"s":"BTCUSDT","S":"SELL","q":"1","p":"30000","ap":"0"}}`)

	events, err := Decode(frame, receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Price != 30000 {
		t.Errorf("price = %v, want order price 30000", events[0].Price)
	}
}

func TestDecodeQuantityFallback(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  float64
	}{
		{"original quantity", `{"o":{"s":"BTCUSDT","q":"2","z":"1","l":"0.5","p":"30000"}}`, 2},
		{"cumulative filled", `{"o":{"s":"BTCUSDT","q":"0","z":"1","l":"0.5","p":"30000"}}`, 1},
		{"last fill", `{"o":{"s":"BTCUSDT","l":"0.5","p":"30000"}}`, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Decode([]byte(tt.frame), receipt)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(events) != 1 {
				t.Fatalf("expected 1 event, got %d", len(events))
			}
			if events[0].Quantity != tt.want {
				t.Errorf("quantity = %v, want %v", events[0].Quantity, tt.want)
			}
		})
	}
}

func TestDecodeTimestampFallback(t *testing.T) {
	// neither trade time nor event time: receipt time wins
	frame := []byte(`{"o":{"s":"BTCUSDT","S":"SELL","q":"1","p":"30000"}}`)

	events, err := Decode(frame, receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].EventTime != receipt.UnixMilli() {
		t.Errorf("event time = %d, want receipt %d", events[0].EventTime, receipt.UnixMilli())
	}
}

func TestDecodeFiltersNonPositive(t *testing.T) {
	frames := []string{
		`{"o":{"s":"BTCUSDT","S":"SELL","q":"0","p":"30000"}}`,
		`{"o":{"s":"BTCUSDT","S":"SELL","q":"1","p":"0"}}`,
		`{"o":{"s":"BTCUSDT","S":"SELL","q":"-1","p":"30000"}}`,
		`{"o":{"s":"","S":"SELL","q":"1","p":"30000"}}`,
	}
	for _, frame := range frames {
		events, err := Decode([]byte(frame), receipt)
		if err != nil {
			t.Fatalf("unexpected error for %s: %v", frame, err)
		}
		if len(events) != 0 {
			t.Errorf("expected frame to be filtered: %s", frame)
		}
	}
}

func TestDecodeNormalizesMultiplierContracts(t *testing.T) {
	frame := []byte(`{"e":"forceOrder","o":{"s":"1000pepeusdt","S":"SELL","q":"100000","p":"0.001"}}`)

	events, err := Decode(frame, receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Symbol != "PEPEUSDT" {
		t.Errorf("symbol = %s, want PEPEUSDT", events[0].Symbol)
	}
}

func TestDecodeUnknownSide(t *testing.T) {
	frame := []byte(`{"o":{"s":"BTCUSDT","q":"1","p":"30000"}}`)

	events, err := Decode(frame, receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Side != models.SideUnknown {
		t.Errorf("side = %s, want UNKNOWN", events[0].Side)
	}
}

func TestDecodeBareNumbers(t *testing.T) {
	frame := []byte(`{"o":{"s":"BTCUSDT","S":"BUY","q":1.5,"p":30000}}`)

	events, err := Decode(frame, receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Price != 30000 || events[0].Quantity != 1.5 {
		t.Errorf("unexpected values: price=%v qty=%v", events[0].Price, events[0].Quantity)
	}
}

func TestDecodeInvalidJSON(t *testing.T) {
	if _, err := Decode([]byte(`{not json`), receipt); err == nil {
		t.Fatal("expected error for malformed frame")
	}
	if _, err := Decode([]byte(``), receipt); err == nil {
		t.Fatal("expected error for empty frame")
	}
	if _, err := Decode([]byte(`[{"o":`), receipt); err == nil {
		t.Fatal("expected error for malformed array frame")
	}
}

func TestDecodeNonForceOrderSkipped(t *testing.T) {
	frame := []byte(`{"e":"kline","E":1700000001000,"o":{"s":"BTCUSDT","q":"1","p":"30000"}}`)

	events, err := Decode(frame, receipt)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected non-forceOrder frame to be skipped, got %d events", len(events))
	}
}
