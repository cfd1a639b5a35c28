package binance

import (
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/sirupsen/logrus"

	metrics "liqflow/internal/metrics"
	"liqflow/internal/models"
	"liqflow/logger"
)

// streamSymbol subscribes to one symbol's force-order stream through the
// go-binance futures client. The subscription is restarted until the context
// is cancelled.
func (r *LiqReader) streamSymbol(symbol string) {
	defer r.wg.Done()

	log := r.log.WithComponent("binance_liq_reader").WithFields(logger.Fields{
		"symbol": symbol,
		"worker": "liquidation_stream",
	})

	// backoff resets only once the subscription proves usable
	var received atomic.Bool
	handler := r.liqOrderHandler(symbol, &received, log)

	errHandler := func(err error) {
		if err != nil {
			log.WithError(err).Warn("websocket error")
		}
	}

	attempt := 0
	for {
		if r.ctx.Err() != nil {
			return
		}

		received.Store(false)
		doneC, stopC, err := futures.WsLiquidationOrderServe(symbol, handler, errHandler)
		if err != nil {
			log.WithError(err).Error("failed to subscribe to liquidation stream")
			if waitForReconnect(r.ctx, nextBackoff(attempt, r.config.Feed.MaxBackoff)) {
				return
			}
			attempt++
			continue
		}

		select {
		case <-r.ctx.Done():
			close(stopC)
			<-doneC
			return
		case <-doneC:
			if received.Load() {
				attempt = 0
			}
			log.Warn("liquidation stream closed, reconnecting")
			close(stopC)
			if waitForReconnect(r.ctx, nextBackoff(attempt, r.config.Feed.MaxBackoff)) {
				return
			}
			attempt++
		}
	}
}

// liqOrderHandler builds the per-event callback for one SDK subscription. The
// received flag records that the connection delivered at least one message.
func (r *LiqReader) liqOrderHandler(symbol string, received *atomic.Bool, log *logger.Entry) func(*futures.WsLiquidationOrderEvent) {
	return func(event *futures.WsLiquidationOrderEvent) {
		received.Store(true)

		payload, err := json.Marshal(event)
		if err != nil {
			log.WithError(err).Warn("failed to marshal liquidation event")
			return
		}
		logger.IncrementFeedRead(len(payload))

		msg := models.RawLiquidationMessage{
			Exchange:  "binance",
			Market:    "liquidation",
			Data:      payload,
			Timestamp: time.UnixMilli(event.Time).UTC(),
		}

		if r.channels.SendRaw(r.ctx, msg) {
			if log.Logger.IsLevelEnabled(logrus.DebugLevel) {
				log.WithFields(logger.Fields{
					"payload_bytes": len(payload),
					"side":          event.LiquidationOrder.Side,
				}).Debug("forwarded liquidation event to raw channel")
			}
		} else if r.ctx.Err() != nil {
			return
		} else {
			metrics.EmitDropMetric(r.log, metrics.DropMetricLiquidationRaw, "binance", "liquidation", strings.ToUpper(symbol), "raw")
			log.Warn("liquidation raw channel full, dropping message")
		}
	}
}
