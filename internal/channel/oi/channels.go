package oi

import (
	"context"
	"sync"

	"liqflow/internal/models"
	"liqflow/logger"
)

type ChannelStats struct {
	SnapshotsSent    int64
	SnapshotsDropped int64
}

// Channels carries open-interest snapshots from the aggregation loop to the
// durable writer.
type Channels struct {
	Snapshots chan models.OISnapshot

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(bufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Snapshots: make(chan models.OISnapshot, bufferSize),
		log:       log,
	}

	log.WithComponent("oi_channels").WithFields(logger.Fields{
		"snapshot_buffer_size": bufferSize,
	}).Info("open-interest channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Snapshots)
	c.log.WithComponent("oi_channels").Info("open-interest channels closed")
}

func (c *Channels) SendSnapshot(ctx context.Context, snap models.OISnapshot) bool {
	select {
	case c.Snapshots <- snap:
		c.statsMutex.Lock()
		c.stats.SnapshotsSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.SnapshotsDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
