package writer

import (
	"strings"
	"sync"
	"testing"
	"time"

	appconfig "liqflow/config"
	"liqflow/internal/models"
	"liqflow/logger"
)

func newTestOIWriter() *OIWriter {
	w := &OIWriter{
		cfg:           &appconfig.Config{},
		log:           logger.GetLogger(),
		bucket:        "test-bucket",
		wg:            &sync.WaitGroup{},
		buffer:        make(map[string][]models.OISnapshot),
		lastFlush:     make(map[string]time.Time),
		flushInterval: time.Minute,
	}
	w.uploadFn = func(string, []byte) error { return nil }
	return w
}

func TestOICreateParquet(t *testing.T) {
	w := newTestOIWriter()

	entries := []models.OISnapshot{
		{Timestamp: time.UnixMilli(1700000000000), Symbol: "BTCUSDT", Exchange: "binance", ValueUSD: 5.2e9},
		{Timestamp: time.UnixMilli(1700000300000), Symbol: "BTCUSDT", Exchange: "binance", ValueUSD: 5.3e9},
	}

	data, size, err := w.createParquet(entries)
	if err != nil {
		t.Fatalf("createParquet failed: %v", err)
	}
	if size == 0 || string(data[:4]) != "PAR1" {
		t.Fatal("expected a parquet payload")
	}
}

func TestOIGenerateS3Key(t *testing.T) {
	w := newTestOIWriter()

	entries := []models.OISnapshot{
		{Timestamp: time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC), Symbol: "btcusdt", Exchange: "Bybit", ValueUSD: 1e9},
	}

	key := w.generateS3Key(entries)
	if !strings.HasPrefix(key, "exchange=bybit/market=open_interest/symbol=BTCUSDT/date=2026-08-24/") {
		t.Errorf("unexpected key prefix: %s", key)
	}
	if !strings.HasSuffix(key, "bybit_oi_BTCUSDT_20260824120000.parquet") {
		t.Errorf("unexpected key suffix: %s", key)
	}
}

func TestOIFlushBuffersSnapshots(t *testing.T) {
	w := newTestOIWriter()

	uploads := 0
	w.uploadFn = func(string, []byte) error {
		uploads++
		return nil
	}

	w.addSnapshot(models.OISnapshot{Timestamp: time.Now(), Symbol: "BTCUSDT", Exchange: "binance", ValueUSD: 1e9})
	w.addSnapshot(models.OISnapshot{Timestamp: time.Now(), Symbol: "BTCUSDT", Exchange: "okx", ValueUSD: 2e9})
	w.addSnapshot(models.OISnapshot{Symbol: "", Exchange: "binance"}) // ignored

	w.flushAll("test")
	if uploads != 2 {
		t.Fatalf("expected 2 uploads (one per exchange), got %d", uploads)
	}
}
