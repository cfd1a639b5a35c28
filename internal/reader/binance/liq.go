package binance

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	appconfig "liqflow/config"
	liqchannel "liqflow/internal/channel/liq"
	metrics "liqflow/internal/metrics"
	"liqflow/internal/models"
	"liqflow/logger"
)

// LiqReader streams force-order events from the Binance futures websocket API
// and forwards raw frames to the liquidation channel. Two modes are
// supported: "combined" dials the combined stream endpoint directly, "sdk"
// subscribes per symbol through the go-binance futures client.
type LiqReader struct {
	config   *appconfig.Config
	channels *liqchannel.Channels
	ctx      context.Context
	wg       *sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	log      *logger.Log
}

// NewLiqReader constructs a new liquidation reader.
func NewLiqReader(cfg *appconfig.Config, ch *liqchannel.Channels) *LiqReader {
	return &LiqReader{
		config:   cfg,
		channels: ch,
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// Start launches the stream worker. Calling Start on a running reader is an
// error; the worker reconnects on its own until the context is cancelled.
func (r *LiqReader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("binance liquidation reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	cfg := r.config.Feed
	log := r.log.WithComponent("binance_liq_reader").WithFields(logger.Fields{"operation": "start"})

	if !cfg.Enabled {
		log.Warn("binance liquidation feed disabled via configuration")
		return fmt.Errorf("binance liquidation feed disabled")
	}

	switch cfg.Mode {
	case "sdk":
		if len(cfg.Symbols) == 0 {
			log.Warn("no symbols configured for sdk feed mode")
			return fmt.Errorf("no symbols configured for sdk feed mode")
		}
		for _, symbol := range cfg.Symbols {
			sym := strings.ToUpper(strings.TrimSpace(symbol))
			if sym == "" {
				continue
			}
			r.wg.Add(1)
			go r.streamSymbol(sym)
		}
	default:
		r.wg.Add(1)
		go r.streamCombined()
	}

	log.WithFields(logger.Fields{
		"mode":    cfg.Mode,
		"symbols": strings.Join(cfg.Symbols, ","),
	}).Info("binance liquidation reader started")
	return nil
}

// Stop waits for all stream workers to exit. The context passed to Start must
// be cancelled first.
func (r *LiqReader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("binance_liq_reader").Info("stopping binance liquidation reader")
	r.wg.Wait()
	r.log.WithComponent("binance_liq_reader").Info("binance liquidation reader stopped")
}

// streamURL builds the combined stream endpoint. With symbols configured the
// subscription narrows to per-symbol force-order streams, otherwise the
// market-wide array stream is used.
func streamURL(base string, symbols []string) string {
	base = strings.TrimRight(strings.TrimSpace(base), "/")
	if base == "" {
		base = "wss://fstream.binance.com"
	}
	if strings.Contains(base, "?streams=") {
		return base
	}

	streams := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		sym := strings.ToLower(strings.TrimSpace(symbol))
		if sym == "" {
			continue
		}
		streams = append(streams, sym+"@forceOrder")
	}
	if len(streams) == 0 {
		streams = []string{"!forceOrder@arr"}
	}
	return base + "/stream?streams=" + strings.Join(streams, "/")
}

func (r *LiqReader) streamCombined() {
	defer r.wg.Done()

	cfg := r.config.Feed
	log := r.log.WithComponent("binance_liq_reader").WithFields(logger.Fields{
		"worker": "combined_stream",
	})

	url := streamURL(cfg.URL, cfg.Symbols)
	pingInterval := cfg.PingInterval
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}

	attempt := 0
	for {
		if r.ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(r.ctx, url, nil)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"url": url}).Warn("failed to connect to liquidation stream, retrying")
			if waitForReconnect(r.ctx, nextBackoff(attempt, cfg.MaxBackoff)) {
				return
			}
			attempt++
			continue
		}

		log.WithFields(logger.Fields{"url": url, "attempt": attempt}).Info("connected to liquidation stream")

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(readTimeout))
			return nil
		})
		pingCancel := startPingLoop(r.ctx, conn, pingInterval, log)

		received := false
		for {
			if r.ctx.Err() != nil {
				break
			}

			_, msg, err := conn.ReadMessage()
			if err != nil {
				if r.ctx.Err() == nil {
					log.WithError(err).Warn("liquidation stream error, reconnecting")
				}
				break
			}
			conn.SetReadDeadline(time.Now().Add(readTimeout))

			// backoff resets only once the connection proves usable
			if !received {
				received = true
				attempt = 0
			}

			r.forwardFrame(msg, log)
		}

		pingCancel()
		_ = conn.Close()

		if r.ctx.Err() != nil {
			return
		}
		if waitForReconnect(r.ctx, nextBackoff(attempt, cfg.MaxBackoff)) {
			return
		}
		attempt++
	}
}

func (r *LiqReader) forwardFrame(payload []byte, log *logger.Entry) {
	data := append([]byte(nil), payload...)
	logger.IncrementFeedRead(len(data))

	msg := models.RawLiquidationMessage{
		Exchange:  "binance",
		Market:    "liquidation",
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	if r.channels.SendRaw(r.ctx, msg) {
		log.WithFields(logger.Fields{
			"payload_bytes": len(data),
		}).Debug("forwarded liquidation frame to raw channel")
	} else if r.ctx.Err() != nil {
		return
	} else {
		metrics.EmitDropMetric(r.log, metrics.DropMetricLiquidationRaw, "binance", "liquidation", "", "raw")
		log.Warn("liquidation raw channel full, dropping frame")
	}
}
