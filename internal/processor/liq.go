package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "liqflow/config"
	liqchannel "liqflow/internal/channel/liq"
	"liqflow/internal/feed"
	metrics "liqflow/internal/metrics"
	"liqflow/internal/models"
	"liqflow/internal/store"
	"liqflow/logger"
)

type liqBatchState struct {
	mu        sync.Mutex
	batch     *models.BatchLiquidationMessage
	lastFlush time.Time
}

// IngestStats counts ingestor outcomes since start.
type IngestStats struct {
	FramesConsumed int64
	EventsAccepted int64
	DecodeFailures int64
}

// LiqIngestor is the single pipeline worker between the raw channel and the
// event store. Each frame is decoded, accepted events are appended to the
// store, and a copy is batched per symbol for the durable writer. A bad frame
// is counted and skipped; the worker never terminates on malformed input.
type LiqIngestor struct {
	config   *appconfig.Config
	channels *liqchannel.Channels
	store    *store.Store
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
	batches  map[string]*liqBatchState
	stats    IngestStats
}

// NewLiqIngestor builds the ingestor instance.
func NewLiqIngestor(cfg *appconfig.Config, ch *liqchannel.Channels, st *store.Store) *LiqIngestor {
	return &LiqIngestor{
		config:   cfg,
		channels: ch,
		store:    st,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
		batches:  make(map[string]*liqBatchState),
	}
}

// Start begins consuming raw liquidation frames.
func (p *LiqIngestor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("liquidation ingestor already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	p.log.WithComponent("liq_ingestor").WithFields(logger.Fields{"operation": "start"}).Info("starting liquidation ingestor")

	// the store has a single-writer contract, so exactly one worker consumes
	p.wg.Add(1)
	go p.worker()

	p.wg.Add(1)
	go p.flusher()
	return nil
}

// Stop drains pending batches and waits for the worker to exit.
func (p *LiqIngestor) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.log.WithComponent("liq_ingestor").Info("stopping liquidation ingestor")
	p.flushAll()
	p.wg.Wait()
	p.log.WithComponent("liq_ingestor").Info("liquidation ingestor stopped")
}

// Stats returns a snapshot of the ingest counters.
func (p *LiqIngestor) Stats() IngestStats {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.stats
}

func (p *LiqIngestor) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case msg, ok := <-p.channels.Raw:
			if !ok {
				return
			}
			p.handleMessage(msg)
		}
	}
}

func (p *LiqIngestor) handleMessage(raw models.RawLiquidationMessage) {
	p.mu.Lock()
	p.stats.FramesConsumed++
	p.mu.Unlock()

	receivedAt := raw.Timestamp
	if receivedAt.IsZero() {
		receivedAt = time.Now().UTC()
	}

	events, err := feed.Decode(raw.Data, receivedAt)
	if err != nil {
		p.mu.Lock()
		p.stats.DecodeFailures++
		p.mu.Unlock()
		logger.IncrementDecodeFailure()
		p.log.WithComponent("liq_ingestor").WithError(err).WithFields(logger.Fields{
			"payload_bytes": len(raw.Data),
		}).Warn("failed to decode liquidation frame, skipping")
		return
	}

	for _, evt := range events {
		p.store.Append(evt)
		p.addToBatch(raw, evt)
	}

	if len(events) > 0 {
		p.mu.Lock()
		p.stats.EventsAccepted += int64(len(events))
		p.mu.Unlock()
	}
}

func (p *LiqIngestor) addToBatch(raw models.RawLiquidationMessage, evt models.LiquidationEvent) {
	key := fmt.Sprintf("%s_%s_%s", raw.Exchange, raw.Market, evt.Symbol)

	p.mu.RLock()
	state, ok := p.batches[key]
	p.mu.RUnlock()
	if !ok {
		p.mu.Lock()
		if state, ok = p.batches[key]; !ok {
			state = &liqBatchState{
				batch:     p.newBatch(raw.Exchange, raw.Market, evt.Symbol),
				lastFlush: time.Now(),
			}
			p.batches[key] = state
		}
		p.mu.Unlock()
	}

	state.mu.Lock()
	b := state.batch
	b.Entries = append(b.Entries, evt)
	b.RecordCount = len(b.Entries)
	if raw.Timestamp.After(b.Timestamp) {
		b.Timestamp = raw.Timestamp
	}
	shouldFlush := b.RecordCount >= p.batchSize()
	state.mu.Unlock()

	if shouldFlush {
		p.flush(key)
	}
}

func (p *LiqIngestor) newBatch(exchange, market, symbol string) *models.BatchLiquidationMessage {
	return &models.BatchLiquidationMessage{
		BatchID:     uuid.New().String(),
		Exchange:    exchange,
		Market:      market,
		Symbol:      symbol,
		Entries:     make([]models.LiquidationEvent, 0, p.batchSize()),
		ProcessedAt: time.Now(),
	}
}

func (p *LiqIngestor) batchSize() int {
	if p.config.Writer.BatchSize > 0 {
		return p.config.Writer.BatchSize
	}
	return 100
}

func (p *LiqIngestor) batchTimeout() time.Duration {
	if p.config.Writer.BatchTimeout > 0 {
		return p.config.Writer.BatchTimeout
	}
	return 10 * time.Second
}

func (p *LiqIngestor) flusher() {
	defer p.wg.Done()
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.flushTimedOut()
		}
	}
}

func (p *LiqIngestor) flushTimedOut() {
	p.mu.RLock()
	now := time.Now()
	keys := make([]string, 0)
	for k, state := range p.batches {
		state.mu.Lock()
		if now.Sub(state.lastFlush) >= p.batchTimeout() && state.batch.RecordCount > 0 {
			keys = append(keys, k)
		}
		state.mu.Unlock()
	}
	p.mu.RUnlock()

	for _, k := range keys {
		p.flush(k)
	}
}

func (p *LiqIngestor) flush(key string) {
	p.mu.RLock()
	state, ok := p.batches[key]
	p.mu.RUnlock()
	if !ok {
		return
	}

	state.mu.Lock()
	defer state.mu.Unlock()

	batch := state.batch
	if batch == nil || batch.RecordCount == 0 {
		return
	}

	if !p.channels.SendBatch(p.ctx, *batch) {
		if p.ctx.Err() != nil {
			return
		}
		metrics.EmitDropMetric(p.log, metrics.DropMetricLiquidationBatch, batch.Exchange, batch.Market, batch.Symbol, "batch")
		p.log.WithComponent("liq_ingestor").WithFields(logger.Fields{"batch_key": key}).Warn("batch channel full, dropping batch")
	}

	state.batch = p.newBatch(batch.Exchange, batch.Market, batch.Symbol)
	state.lastFlush = time.Now()
}

func (p *LiqIngestor) flushAll() {
	p.mu.RLock()
	keys := make([]string, 0, len(p.batches))
	for k := range p.batches {
		keys = append(keys, k)
	}
	p.mu.RUnlock()
	for _, k := range keys {
		p.flush(k)
	}
}
