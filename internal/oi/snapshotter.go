package oi

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	appconfig "liqflow/config"
	oichannel "liqflow/internal/channel/oi"
	metrics "liqflow/internal/metrics"
	"liqflow/internal/models"
	"liqflow/logger"
)

// Snapshotter periodically aggregates open interest for the configured
// symbols and forwards one snapshot per venue to the snapshot channel.
type Snapshotter struct {
	config     *appconfig.Config
	aggregator *Aggregator
	channels   *oichannel.Channels
	ctx        context.Context
	wg         *sync.WaitGroup
	mu         sync.RWMutex
	running    bool
	log        *logger.Log
}

// NewSnapshotter builds the snapshot loop.
func NewSnapshotter(cfg *appconfig.Config, agg *Aggregator, ch *oichannel.Channels) *Snapshotter {
	return &Snapshotter{
		config:     cfg,
		aggregator: agg,
		channels:   ch,
		wg:         &sync.WaitGroup{},
		log:        logger.GetLogger(),
	}
}

// Start launches the snapshot loop.
func (s *Snapshotter) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("open-interest snapshotter already running")
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	cfg := s.config.OpenInterest
	if !cfg.Enabled {
		s.log.WithComponent("oi_snapshotter").Warn("open-interest snapshots disabled via configuration")
		return fmt.Errorf("open-interest snapshots disabled")
	}
	if len(cfg.Symbols) == 0 {
		return fmt.Errorf("no symbols configured for open-interest snapshots")
	}

	interval := cfg.SnapshotInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s.wg.Add(1)
	go s.loop(interval, cfg.Symbols)

	s.log.WithComponent("oi_snapshotter").WithFields(logger.Fields{
		"symbols":  strings.Join(cfg.Symbols, ","),
		"interval": interval.String(),
	}).Info("open-interest snapshotter started")
	return nil
}

// Stop waits for the loop to exit.
func (s *Snapshotter) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.log.WithComponent("oi_snapshotter").Info("stopping open-interest snapshotter")
	s.wg.Wait()
	s.log.WithComponent("oi_snapshotter").Info("open-interest snapshotter stopped")
}

func (s *Snapshotter) loop(interval time.Duration, syms []string) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// take one snapshot immediately rather than waiting a full interval
	s.snapshot(syms)

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.snapshot(syms)
		}
	}
}

func (s *Snapshotter) snapshot(syms []string) {
	log := s.log.WithComponent("oi_snapshotter")

	for _, symbol := range syms {
		agg := s.aggregator.Aggregate(s.ctx, symbol)
		for _, exch := range agg.Exchanges {
			snap := models.OISnapshot{
				Timestamp: exch.Timestamp,
				Symbol:    agg.Symbol,
				Exchange:  exch.Name,
				ValueUSD:  exch.OIValueUSD,
			}
			if snap.Timestamp.IsZero() {
				snap.Timestamp = agg.AsOf
			}
			if !s.channels.SendSnapshot(s.ctx, snap) {
				if s.ctx.Err() != nil {
					return
				}
				metrics.EmitDropMetric(s.log, metrics.DropMetricOpenInterestRaw, exch.Name, "open_interest", agg.Symbol, "snapshot")
				log.Warn("open-interest snapshot channel full, dropping snapshot")
			}
		}
		log.WithFields(logger.Fields{
			"symbol":       agg.Symbol,
			"exchanges":    len(agg.Exchanges),
			"total_oi_usd": agg.TotalOIUSD,
		}).Debug("open-interest snapshot taken")
	}
}
