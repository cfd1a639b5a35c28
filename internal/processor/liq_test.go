package processor

import (
	"context"
	"testing"
	"time"

	appconfig "liqflow/config"
	liqchannel "liqflow/internal/channel/liq"
	"liqflow/internal/models"
	"liqflow/internal/store"
)

func newTestIngestor(batchSize int) (*LiqIngestor, *liqchannel.Channels, *store.Store) {
	cfg := &appconfig.Config{}
	cfg.Writer.BatchSize = batchSize
	cfg.Writer.BatchTimeout = time.Minute

	ch := liqchannel.NewChannels(16, 16)
	st := store.NewStore(1000, time.Hour)
	return NewLiqIngestor(cfg, ch, st), ch, st
}

func rawFrame(data string) models.RawLiquidationMessage {
	return models.RawLiquidationMessage{
		Exchange:  "binance",
		Market:    "liquidation",
		Data:      []byte(data),
		Timestamp: time.Now().UTC(),
	}
}

func TestIngestorStoresDecodedEvents(t *testing.T) {
	p, ch, st := newTestIngestor(100)

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer func() {
		cancel()
		p.Stop()
	}()

	frame := `{"e":"forceOrder","E":1700000001000,"o":{"s":"BTCUSDT","S":"SELL","q":"0.5","p":"30000","T":1700000000500}}`
	if !ch.SendRaw(ctx, rawFrame(frame)) {
		t.Fatal("send failed")
	}

	deadline := time.After(2 * time.Second)
	for {
		if events := st.Query("BTCUSDT", 0, 0); len(events) == 1 {
			if events[0].Price != 30000 || events[0].Quantity != 0.5 {
				t.Fatalf("unexpected event: %+v", events[0])
			}
			break
		}
		select {
		case <-deadline:
			t.Fatal("event never reached the store")
		case <-time.After(10 * time.Millisecond):
		}
	}

	stats := p.Stats()
	if stats.FramesConsumed != 1 || stats.EventsAccepted != 1 || stats.DecodeFailures != 0 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}

func TestIngestorSurvivesMalformedFrames(t *testing.T) {
	p, ch, st := newTestIngestor(100)

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer func() {
		cancel()
		p.Stop()
	}()

	frames := []string{
		`{broken`,
		`not json at all`,
		`{"e":"forceOrder","o":{"s":"BTCUSDT","S":"BUY","q":"1","p":"29000"}}`,
	}
	for _, f := range frames {
		if !ch.SendRaw(ctx, rawFrame(f)) {
			t.Fatal("send failed")
		}
	}

	deadline := time.After(2 * time.Second)
	for {
		if events := st.Query("BTCUSDT", 0, 0); len(events) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("good frame after bad frames never reached the store")
		case <-time.After(10 * time.Millisecond):
		}
	}

	stats := p.Stats()
	if stats.DecodeFailures != 2 {
		t.Errorf("decode failures = %d, want 2", stats.DecodeFailures)
	}
	if stats.FramesConsumed != 3 {
		t.Errorf("frames consumed = %d, want 3", stats.FramesConsumed)
	}
}

func TestIngestorFlushesBySize(t *testing.T) {
	p, ch, _ := newTestIngestor(2)

	ctx, cancel := context.WithCancel(context.Background())
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer func() {
		cancel()
		p.Stop()
	}()

	frame := `{"e":"forceOrder","o":{"s":"BTCUSDT","S":"SELL","q":"1","p":"30000"}}`
	ch.SendRaw(ctx, rawFrame(frame))
	ch.SendRaw(ctx, rawFrame(frame))

	select {
	case batch := <-ch.Batch:
		if batch.RecordCount != 2 {
			t.Errorf("record count = %d, want 2", batch.RecordCount)
		}
		if batch.Symbol != "BTCUSDT" || batch.Exchange != "binance" {
			t.Errorf("unexpected batch metadata: %+v", batch)
		}
		if batch.BatchID == "" {
			t.Error("expected a batch id")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("batch never flushed")
	}
}

func TestIngestorStartContract(t *testing.T) {
	p, _, _ := newTestIngestor(100)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := p.Start(ctx); err == nil {
		t.Fatal("expected error for double start")
	}
	cancel()
	p.Stop()
	p.Stop() // idempotent
}
