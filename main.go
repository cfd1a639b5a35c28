package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"liqflow/config"
	liqchannel "liqflow/internal/channel/liq"
	oichannel "liqflow/internal/channel/oi"
	"liqflow/internal/api"
	"liqflow/internal/macro"
	"liqflow/internal/metrics"
	"liqflow/internal/oi"
	"liqflow/internal/processor"
	"liqflow/internal/reader/binance"
	"liqflow/internal/store"
	"liqflow/internal/writer"
	"liqflow/logger"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service": cfg.Liqflow.Name,
		"version": cfg.Liqflow.Version,
	}).Info("starting liqflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace, cfg.Metrics.DashboardName)
	}

	if strings.ToLower(cfg.Logging.Level) == "report" {
		logger.StartReport(ctx, log, 30*time.Second)
	}

	liqChannels := liqchannel.NewChannels(cfg.Channels.RawBuffer, cfg.Channels.BatchBuffer)
	defer liqChannels.Close()

	var oiChannels *oichannel.Channels
	if cfg.OpenInterest.Enabled {
		oiChannels = oichannel.NewChannels(cfg.Channels.SnapshotBuffer)
		defer oiChannels.Close()
	}

	metrics.StartChannelSizeMetrics(ctx, liqChannels, oiChannels, 30*time.Second)

	eventStore := store.NewStore(cfg.Store.MaxEvents, cfg.Store.MaxAge)

	liqReader := binance.NewLiqReader(cfg, liqChannels)
	ingestor := processor.NewLiqIngestor(cfg, liqChannels, eventStore)

	var liqWriter *writer.LiquidationWriter
	var oiWriter *writer.OIWriter
	if cfg.Storage.S3.Enabled {
		liqWriter, err = writer.NewLiquidationWriter(cfg, liqChannels.Batch)
		if err != nil {
			log.WithError(err).Error("failed to create liquidation writer")
			os.Exit(1)
		}
		if oiChannels != nil {
			oiWriter, err = writer.NewOIWriter(cfg, oiChannels.Snapshots)
			if err != nil {
				log.WithError(err).Error("failed to create open-interest writer")
				os.Exit(1)
			}
		}
	} else {
		log.WithComponent("main").Info("S3 storage disabled; skipping writers")
	}

	var aggregator *oi.Aggregator
	var snapshotter *oi.Snapshotter
	if cfg.OpenInterest.Enabled {
		aggregator = oi.NewAggregator(cfg)
		snapshotter = oi.NewSnapshotter(cfg, aggregator, oiChannels)
	}

	var macroService *macro.Service
	var macroSnapshotter *macro.Snapshotter
	if cfg.Macro.Enabled {
		macroService = macro.NewService(
			macro.NewProvider(cfg.Macro.URL, nil),
			macro.NewHistory(cfg.Macro.MaxSnapshots),
		)
		macroSnapshotter = macro.NewSnapshotter(cfg, macroService)
	}

	apiServer, err := api.NewServer(cfg, eventStore, aggregator, macroService)
	if err != nil {
		log.WithError(err).Error("failed to create api server")
		os.Exit(1)
	}

	var wg sync.WaitGroup

	if cfg.Feed.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := liqReader.Start(ctx); err != nil {
				log.WithError(err).Warn("liquidation reader failed to start")
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := ingestor.Start(ctx); err != nil {
			log.WithError(err).Warn("liquidation ingestor failed to start")
		}
	}()

	if liqWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := liqWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("liquidation writer failed to start")
			}
		}()
	}
	if oiWriter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := oiWriter.Start(ctx); err != nil {
				log.WithError(err).Warn("open-interest writer failed to start")
			}
		}()
	}

	if snapshotter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := snapshotter.Start(ctx); err != nil {
				log.WithError(err).Warn("open-interest snapshotter failed to start")
			}
		}()
	}

	if macroSnapshotter != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := macroSnapshotter.Start(ctx); err != nil {
				log.WithError(err).Warn("macro snapshotter failed to start")
			}
		}()
	}

	if apiServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := apiServer.Run(ctx); err != nil {
				log.WithError(err).Error("api server exited with error")
			}
		}()
	}

	time.Sleep(2 * time.Second)
	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	if snapshotter != nil {
		log.Info("stopping open-interest snapshotter")
		snapshotter.Stop()
	}

	if macroSnapshotter != nil {
		log.Info("stopping macro snapshotter")
		macroSnapshotter.Stop()
	}

	log.Info("stopping liquidation reader")
	liqReader.Stop()

	log.Info("stopping liquidation ingestor")
	ingestor.Stop()

	if liqWriter != nil {
		log.Info("stopping liquidation writer")
		liqWriter.Stop()
	}
	if oiWriter != nil {
		log.Info("stopping open-interest writer")
		oiWriter.Stop()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info("graceful shutdown completed")
	case <-time.After(30 * time.Second):
		log.Warn("graceful shutdown timeout exceeded")
	}

	log.Info("liqflow stopped")
}
