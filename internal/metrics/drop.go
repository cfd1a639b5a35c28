package metrics

import "liqflow/logger"

// DropMetric identifies the metric name emitted when channel messages are dropped.
type DropMetric string

const (
	// DropMetricLiquidationRaw records dropped liquidation stream frames.
	DropMetricLiquidationRaw DropMetric = "liquidation_messages_dropped"
	// DropMetricLiquidationBatch records dropped liquidation batches bound for storage.
	DropMetricLiquidationBatch DropMetric = "liquidation_batches_dropped"
	// DropMetricOpenInterestRaw records dropped open interest snapshots.
	DropMetricOpenInterestRaw DropMetric = "open_interest_messages_dropped"
)

// EmitDropMetric logs and emits a metric representing a dropped channel message.
// The metric value is always incremented by one so callers should invoke this
// helper for each dropped message. Optional metadata (exchange, market, symbol,
// stage) is added to the metric fields when provided which enables downstream
// aggregation per exchange and stream type.
func EmitDropMetric(log *logger.Log, metric DropMetric, exchange, market, symbol, stage string) {
	fields := logger.Fields{}
	if exchange != "" {
		fields["exchange"] = exchange
	}
	if market != "" {
		fields["market"] = market
	}
	if symbol != "" {
		fields["symbol"] = symbol
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "channel_drops", string(metric), 1, "counter", fields)
}
