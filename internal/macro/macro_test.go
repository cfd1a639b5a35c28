package macro

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"liqflow/internal/models"
)

func coingeckoStub(t *testing.T, globalBody, marketsBody string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/global":
			w.Write([]byte(globalBody))
		case "/coins/markets":
			if r.URL.Query().Get("ids") != "bitcoin,ethereum" {
				http.Error(w, "unexpected ids", http.StatusBadRequest)
				return
			}
			w.Write([]byte(marketsBody))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestProviderSnapshot(t *testing.T) {
	srv := coingeckoStub(t,
		`{"data":{"total_market_cap":{"usd":2000000000000},"total_volume":{"usd":90000000000}}}`,
		`[{"id":"bitcoin","market_cap":1000000000000},{"id":"ethereum","market_cap":400000000000}]`)

	p := NewProvider(srv.URL, srv.Client())
	snap, err := p.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}

	if snap.TotalUSD != 2e12 {
		t.Errorf("total = %v, want 2e12", snap.TotalUSD)
	}
	if snap.VolumeUSD != 9e10 {
		t.Errorf("volume = %v, want 9e10", snap.VolumeUSD)
	}
	if snap.BTCUSD != 1e12 || snap.ETHUSD != 4e11 {
		t.Errorf("caps = %v, %v", snap.BTCUSD, snap.ETHUSD)
	}
	if snap.AltUSD != 6e11 {
		t.Errorf("alt = %v, want 6e11", snap.AltUSD)
	}
	if snap.BTCDominance == nil || *snap.BTCDominance != 50 {
		t.Errorf("dominance = %v, want 50", snap.BTCDominance)
	}
}

func TestProviderSnapshotUnknownTotal(t *testing.T) {
	srv := coingeckoStub(t, `{"data":{}}`, `[]`)

	p := NewProvider(srv.URL, srv.Client())
	snap, err := p.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if snap.BTCDominance != nil {
		t.Errorf("dominance = %v, want nil for unknown total", *snap.BTCDominance)
	}
	if snap.AltUSD != 0 {
		t.Errorf("alt = %v, want 0", snap.AltUSD)
	}
}

func TestProviderSnapshotUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	p := NewProvider(srv.URL, srv.Client())
	if _, err := p.Snapshot(context.Background()); err == nil {
		t.Fatal("expected error for non-200 upstream")
	}
}

func snapAt(ts time.Time, total float64) models.MacroSnapshot {
	return models.MacroSnapshot{Timestamp: ts, TotalUSD: total}
}

func TestHistorySeriesBuckets(t *testing.T) {
	h := NewHistory(100)
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	h.Append(snapAt(base, 1))
	h.Append(snapAt(base.Add(20*time.Minute), 2)) // same hour: last wins
	h.Append(snapAt(base.Add(time.Hour), 3))
	h.Append(snapAt(base.Add(25*time.Hour), 4)) // next day

	hourly := h.Series("hourly", 0)
	if len(hourly) != 3 {
		t.Fatalf("expected 3 hourly buckets, got %d", len(hourly))
	}
	if hourly[0].TotalUSD != 2 {
		t.Errorf("first bucket total = %v, want last observation 2", hourly[0].TotalUSD)
	}
	if hourly[0].T != base.UnixMilli() {
		t.Errorf("first bucket time = %d, want %d", hourly[0].T, base.UnixMilli())
	}

	daily := h.Series("daily", 0)
	if len(daily) != 2 {
		t.Fatalf("expected 2 daily buckets, got %d", len(daily))
	}
	if daily[0].TotalUSD != 3 || daily[1].TotalUSD != 4 {
		t.Errorf("daily totals = %v, %v; want 3, 4", daily[0].TotalUSD, daily[1].TotalUSD)
	}

	// trailing limit keeps the newest buckets
	trimmed := h.Series("hourly", 2)
	if len(trimmed) != 2 || trimmed[1].TotalUSD != 4 {
		t.Errorf("unexpected trimmed series: %+v", trimmed)
	}
}

func TestHistoryBound(t *testing.T) {
	h := NewHistory(3)
	base := time.Date(2026, 8, 24, 10, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		h.Append(snapAt(base.Add(time.Duration(i)*time.Hour), float64(i)))
	}

	if h.Len() != 3 {
		t.Fatalf("expected history capped at 3, got %d", h.Len())
	}
	latest, ok := h.Latest()
	if !ok || latest.TotalUSD != 4 {
		t.Errorf("unexpected latest: %+v", latest)
	}
}

func TestHistoryEmpty(t *testing.T) {
	h := NewHistory(0)
	if _, ok := h.Latest(); ok {
		t.Fatal("expected no latest snapshot")
	}
	if got := h.Series("daily", 180); len(got) != 0 {
		t.Fatalf("expected empty series, got %d points", len(got))
	}
}

func TestServiceTakeSnapshotStores(t *testing.T) {
	srv := coingeckoStub(t,
		`{"data":{"total_market_cap":{"usd":100},"total_volume":{"usd":10}}}`,
		`[{"id":"bitcoin","market_cap":60},{"id":"ethereum","market_cap":20}]`)

	svc := NewService(NewProvider(srv.URL, srv.Client()), NewHistory(10))

	snap, err := svc.TakeSnapshot(context.Background())
	if err != nil {
		t.Fatalf("take snapshot failed: %v", err)
	}
	if snap.AltUSD != 20 {
		t.Errorf("alt = %v, want 20", snap.AltUSD)
	}

	stored, ok := svc.Latest()
	if !ok {
		t.Fatal("snapshot not stored")
	}
	if stored.TotalUSD != 100 {
		t.Errorf("stored total = %v, want 100", stored.TotalUSD)
	}
}
