package oi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"liqflow/logger"
)

func stubServer(t *testing.T, path, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestBinanceProviderFetch(t *testing.T) {
	srv := stubServer(t, "/futures/data/openInterestHist",
		`[{"sumOpenInterestValue":"5200000000.5","timestamp":1700000000000}]`)

	p := &binanceProvider{baseURL: srv.URL, client: srv.Client()}
	value, ts, err := p.Fetch(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if value != 5200000000.5 {
		t.Errorf("value = %v, want 5200000000.5", value)
	}
	if ts.UnixMilli() != 1700000000000 {
		t.Errorf("timestamp = %v", ts)
	}
}

func bybitTestClient(srv *httptest.Server) *bybit.Client {
	client := bybit.NewBybitHttpClient("", "", bybit.WithBaseURL(srv.URL))
	client.HTTPClient = srv.Client()
	return client
}

func TestBybitProviderFetch(t *testing.T) {
	srv := stubServer(t, "/v5/market/open-interest",
		`{"retCode":0,"retMsg":"OK","result":{"list":[{"openInterest":"123456.7","timestamp":"1700000000000"}]},"time":1700000000000}`)

	p := &bybitProvider{client: bybitTestClient(srv)}
	value, _, err := p.Fetch(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if value != 123456.7 {
		t.Errorf("value = %v, want 123456.7", value)
	}
}

func TestBybitProviderErrorCode(t *testing.T) {
	srv := stubServer(t, "/v5/market/open-interest",
		`{"retCode":10001,"retMsg":"params error","result":{},"time":1700000000000}`)

	p := &bybitProvider{client: bybitTestClient(srv)}
	if _, _, err := p.Fetch(context.Background(), "BTCUSDT"); err == nil {
		t.Fatal("expected error for non-zero retCode")
	}
}

func TestOkxProviderFetch(t *testing.T) {
	var gotInstID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotInstID = r.URL.Query().Get("instId")
		w.Write([]byte(`{"code":"0","data":[{"oiUsd":"987654321","oi":"1000","ts":"1700000000000"}]}`))
	}))
	defer srv.Close()

	p := &okxProvider{baseURL: srv.URL, client: srv.Client()}
	value, _, err := p.Fetch(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if gotInstID != "BTC-USDT-SWAP" {
		t.Errorf("instId = %s, want BTC-USDT-SWAP", gotInstID)
	}
	if value != 987654321 {
		t.Errorf("value = %v, want 987654321", value)
	}
}

type stubProvider struct {
	name  string
	value float64
	err   error
}

func (s *stubProvider) Name() string { return s.name }
func (s *stubProvider) Fetch(context.Context, string) (float64, time.Time, error) {
	return s.value, time.UnixMilli(1700000000000), s.err
}

func TestAggregateSkipsFailedProviders(t *testing.T) {
	agg := &Aggregator{
		providers: []Provider{
			&stubProvider{name: "binance", value: 100},
			&stubProvider{name: "bybit", err: context.DeadlineExceeded},
			&stubProvider{name: "okx", value: 50},
		},
		log: logger.GetLogger(),
	}

	out := agg.Aggregate(context.Background(), "btcusdt")
	if out.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %s, want BTCUSDT", out.Symbol)
	}
	if len(out.Exchanges) != 2 {
		t.Fatalf("expected 2 surviving exchanges, got %d", len(out.Exchanges))
	}
	if out.TotalOIUSD != 150 {
		t.Errorf("total = %v, want 150", out.TotalOIUSD)
	}
}

func TestAggregateAllFailed(t *testing.T) {
	agg := &Aggregator{
		providers: []Provider{
			&stubProvider{name: "binance", err: context.DeadlineExceeded},
		},
		log: logger.GetLogger(),
	}

	out := agg.Aggregate(context.Background(), "BTCUSDT")
	if len(out.Exchanges) != 0 || out.TotalOIUSD != 0 {
		t.Errorf("expected empty aggregate, got %+v", out)
	}
}
