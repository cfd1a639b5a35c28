package store

import (
	"testing"
	"time"

	"liqflow/internal/models"
)

func mkEvent(symbol string, eventTime int64, price, qty float64) models.LiquidationEvent {
	return models.LiquidationEvent{
		EventTime:    eventTime,
		ReceivedTime: eventTime,
		Symbol:       symbol,
		Side:         models.SideSell,
		Price:        price,
		Quantity:     qty,
	}
}

func TestNewStoreZeroBoundsFallBack(t *testing.T) {
	s := NewStore(0, 0)
	if s.maxEvents != DefaultMaxEvents {
		t.Errorf("maxEvents = %d, want %d", s.maxEvents, DefaultMaxEvents)
	}
	if s.maxAge != DefaultMaxAge {
		t.Errorf("maxAge = %v, want %v", s.maxAge, DefaultMaxAge)
	}

	// a single configured bound keeps the default for the other
	s = NewStore(500, 0)
	if s.maxEvents != 500 || s.maxAge != DefaultMaxAge {
		t.Errorf("bounds = %d, %v; want 500, %v", s.maxEvents, s.maxAge, DefaultMaxAge)
	}
}

func TestStoreAppendAndQuery(t *testing.T) {
	s := NewStore(10, time.Hour)

	base := time.Now().UnixMilli()
	s.Append(mkEvent("BTCUSDT", base+2000, 30000, 1))
	s.Append(mkEvent("BTCUSDT", base+1000, 30100, 2))
	s.Append(mkEvent("ETHUSDT", base+1500, 2000, 3))

	got := s.Query("BTCUSDT", 0, 0)
	if len(got) != 2 {
		t.Fatalf("expected 2 events, got %d", len(got))
	}
	// out-of-order appends come back sorted ascending
	if got[0].EventTime != base+1000 || got[1].EventTime != base+2000 {
		t.Errorf("events not sorted: %d, %d", got[0].EventTime, got[1].EventTime)
	}

	if got := s.Query("ETHUSDT", 0, 0); len(got) != 1 {
		t.Fatalf("expected 1 ETHUSDT event, got %d", len(got))
	}
	if got := s.Query("SOLUSDT", 0, 0); len(got) != 0 {
		t.Fatalf("expected no SOLUSDT events, got %d", len(got))
	}
}

func TestStoreQueryRange(t *testing.T) {
	s := NewStore(10, time.Hour)

	base := time.Now().UnixMilli()
	for i := int64(0); i < 5; i++ {
		s.Append(mkEvent("BTCUSDT", base+i*1000, 30000, 1))
	}

	got := s.Query("BTCUSDT", base+1000, base+3000)
	if len(got) != 3 {
		t.Fatalf("expected 3 events in range, got %d", len(got))
	}
	if got[0].EventTime != base+1000 || got[2].EventTime != base+3000 {
		t.Errorf("range bounds not inclusive: %d..%d", got[0].EventTime, got[2].EventTime)
	}

	// zero upper bound means unbounded
	if got := s.Query("BTCUSDT", base+3000, 0); len(got) != 2 {
		t.Fatalf("expected 2 events from open-ended range, got %d", len(got))
	}
}

func TestStoreCountBound(t *testing.T) {
	s := NewStore(3, time.Hour)

	base := time.Now().UnixMilli()
	for i := int64(0); i < 6; i++ {
		s.Append(mkEvent("BTCUSDT", base+i*1000, 30000, 1))
	}

	got := s.Query("BTCUSDT", 0, 0)
	if len(got) != 3 {
		t.Fatalf("expected buffer capped at 3, got %d", len(got))
	}
	// oldest evicted first
	if got[0].EventTime != base+3000 {
		t.Errorf("expected oldest surviving event at %d, got %d", base+3000, got[0].EventTime)
	}
	if s.TotalAppended() != 6 {
		t.Errorf("total appended = %d, want 6", s.TotalAppended())
	}
}

func TestStoreAgeBound(t *testing.T) {
	s := NewStore(100, time.Hour)

	now := time.Now()
	s.now = func() time.Time { return now }

	old := now.Add(-2 * time.Hour).UnixMilli()
	fresh := now.Add(-time.Minute).UnixMilli()
	s.Append(mkEvent("BTCUSDT", old, 30000, 1))
	s.Append(mkEvent("BTCUSDT", fresh, 30000, 1))

	got := s.Query("BTCUSDT", 0, 0)
	if len(got) != 1 {
		t.Fatalf("expected stale event pruned, got %d events", len(got))
	}
	if got[0].EventTime != fresh {
		t.Errorf("wrong survivor: %d, want %d", got[0].EventTime, fresh)
	}
}

func TestStoreStatus(t *testing.T) {
	s := NewStore(100, 24*time.Hour)

	now := time.Now()
	s.now = func() time.Time { return now }

	s.Append(mkEvent("BTCUSDT", now.Add(-90*time.Minute).UnixMilli(), 30000, 1))
	s.Append(mkEvent("BTCUSDT", now.Add(-10*time.Minute).UnixMilli(), 30000, 1))
	s.Append(mkEvent("BTCUSDT", now.Add(-5*time.Minute).UnixMilli(), 30000, 1))

	status := s.Status("BTCUSDT", 30*time.Minute)
	if status.Count != 3 {
		t.Errorf("count = %d, want 3", status.Count)
	}
	if status.WindowCount != 2 {
		t.Errorf("window count = %d, want 2", status.WindowCount)
	}
	if status.OldestMs != now.Add(-90*time.Minute).UnixMilli() {
		t.Errorf("unexpected oldest: %d", status.OldestMs)
	}
	if status.NewestMs != now.Add(-5*time.Minute).UnixMilli() {
		t.Errorf("unexpected newest: %d", status.NewestMs)
	}

	empty := s.Status("SOLUSDT", 30*time.Minute)
	if empty.Count != 0 || empty.WindowCount != 0 {
		t.Errorf("expected empty status, got %+v", empty)
	}
}

func TestStoreSymbols(t *testing.T) {
	s := NewStore(10, time.Hour)

	base := time.Now().UnixMilli()
	s.Append(mkEvent("ETHUSDT", base, 2000, 1))
	s.Append(mkEvent("BTCUSDT", base, 30000, 1))

	syms := s.Symbols()
	if len(syms) != 2 || syms[0] != "BTCUSDT" || syms[1] != "ETHUSDT" {
		t.Fatalf("unexpected symbols: %v", syms)
	}
}

func TestStoreQueryReturnsCopy(t *testing.T) {
	s := NewStore(10, time.Hour)

	base := time.Now().UnixMilli()
	s.Append(mkEvent("BTCUSDT", base, 30000, 1))

	got := s.Query("BTCUSDT", 0, 0)
	got[0].Price = 1

	again := s.Query("BTCUSDT", 0, 0)
	if again[0].Price != 30000 {
		t.Fatal("query result aliases internal buffer")
	}
}
