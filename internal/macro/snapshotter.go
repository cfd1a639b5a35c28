package macro

import (
	"context"
	"fmt"
	"sync"
	"time"

	appconfig "liqflow/config"
	"liqflow/logger"
)

// Snapshotter periodically takes one macro snapshot so the stored series
// grows into a history without any external scheduler.
type Snapshotter struct {
	config  *appconfig.Config
	service *Service
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

// NewSnapshotter builds the snapshot loop.
func NewSnapshotter(cfg *appconfig.Config, svc *Service) *Snapshotter {
	return &Snapshotter{
		config:  cfg,
		service: svc,
		wg:      &sync.WaitGroup{},
		log:     logger.GetLogger(),
	}
}

// Start launches the snapshot loop.
func (s *Snapshotter) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("macro snapshotter already running")
	}
	s.running = true
	s.ctx = ctx
	s.mu.Unlock()

	cfg := s.config.Macro
	if !cfg.Enabled {
		s.log.WithComponent("macro_snapshotter").Warn("macro snapshots disabled via configuration")
		return fmt.Errorf("macro snapshots disabled")
	}

	interval := cfg.SnapshotInterval
	if interval <= 0 {
		interval = time.Hour
	}

	s.wg.Add(1)
	go s.loop(interval)

	s.log.WithComponent("macro_snapshotter").WithFields(logger.Fields{
		"interval": interval.String(),
	}).Info("macro snapshotter started")
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

	s.log.WithComponent("macro_snapshotter").Info("stopping macro snapshotter")
	s.wg.Wait()
	s.log.WithComponent("macro_snapshotter").Info("macro snapshotter stopped")
}

func (s *Snapshotter) loop(interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// take one snapshot immediately rather than waiting a full interval
	s.snapshot()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.snapshot()
		}
	}
}

func (s *Snapshotter) snapshot() {
	log := s.log.WithComponent("macro_snapshotter")

	snap, err := s.service.TakeSnapshot(s.ctx)
	if err != nil {
		if s.ctx.Err() == nil {
			log.WithError(err).Warn("macro snapshot failed, skipping")
		}
		return
	}

	log.WithFields(logger.Fields{
		"total_usd": snap.TotalUSD,
		"btc_usd":   snap.BTCUSD,
		"eth_usd":   snap.ETHUSD,
	}).Debug("macro snapshot taken")
}
