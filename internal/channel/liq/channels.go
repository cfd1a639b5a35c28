package liq

import (
	"context"
	"sync"

	"liqflow/internal/models"
	"liqflow/logger"
)

type ChannelStats struct {
	RawSent      int64
	RawDropped   int64
	BatchSent    int64
	BatchDropped int64
}

// Channels carries liquidation data between pipeline stages: raw frames from
// the stream consumer to the ingestor, and per-symbol batches from the
// ingestor to the durable writer.
type Channels struct {
	Raw   chan models.RawLiquidationMessage
	Batch chan models.BatchLiquidationMessage

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(rawBufferSize, batchBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Raw:   make(chan models.RawLiquidationMessage, rawBufferSize),
		Batch: make(chan models.BatchLiquidationMessage, batchBufferSize),
		log:   log,
	}

	log.WithComponent("liq_channels").WithFields(logger.Fields{
		"raw_buffer_size":   rawBufferSize,
		"batch_buffer_size": batchBufferSize,
	}).Info("liquidation channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Raw)
	close(c.Batch)
	c.log.WithComponent("liq_channels").Info("liquidation channels closed")
}

func (c *Channels) IncrementRawSent() {
	c.statsMutex.Lock()
	c.stats.RawSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementRawDropped() {
	c.statsMutex.Lock()
	c.stats.RawDropped++
	c.statsMutex.Unlock()
}

// SendRaw attempts a non-blocking send so a slow ingestor can never stall the
// websocket read loop; full buffers drop the frame and count it.
func (c *Channels) SendRaw(ctx context.Context, msg models.RawLiquidationMessage) bool {
	select {
	case c.Raw <- msg:
		c.IncrementRawSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementRawDropped()
		return false
	}
}

// SendBatch forwards a flushed batch to the durable writer with the same
// non-blocking contract as SendRaw.
func (c *Channels) SendBatch(ctx context.Context, batch models.BatchLiquidationMessage) bool {
	select {
	case c.Batch <- batch:
		c.statsMutex.Lock()
		c.stats.BatchSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.BatchDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
