package metrics

import (
	"context"
	"time"

	liqchannel "liqflow/internal/channel/liq"
	oichannel "liqflow/internal/channel/oi"
	"liqflow/logger"
)

// StartChannelSizeMetrics emits occupancy gauges for the liquidation and
// open-interest channel buffers every `interval` until the context is
// cancelled. When interval <= 0, a one-second cadence is used. Either channel
// set may be nil.
func StartChannelSizeMetrics(ctx context.Context, liq *liqchannel.Channels, oi *oichannel.Channels, interval time.Duration) {
	if liq == nil && oi == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)
	component := "channel_buffers"

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if liq != nil {
					EmitMetric(log, component, "liq_raw_buffer_length", len(liq.Raw), "gauge", logger.Fields{
						"buffer":   "liq_raw",
						"capacity": cap(liq.Raw),
					})
					EmitMetric(log, component, "liq_batch_buffer_length", len(liq.Batch), "gauge", logger.Fields{
						"buffer":   "liq_batch",
						"capacity": cap(liq.Batch),
					})
				}
				if oi != nil {
					EmitMetric(log, component, "oi_snapshot_buffer_length", len(oi.Snapshots), "gauge", logger.Fields{
						"buffer":   "oi_snapshot",
						"capacity": cap(oi.Snapshots),
					})
				}
			}
		}
	}()
}
