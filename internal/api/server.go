// Package api hosts the HTTP query surface: liquidation heatmap and status,
// multi-exchange open interest, and Binance derivatives pass-throughs.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	appconfig "liqflow/config"
	"liqflow/internal/heatmap"
	"liqflow/internal/macro"
	"liqflow/internal/oi"
	"liqflow/internal/store"
	"liqflow/logger"
)

const defaultDerivsBaseURL = "https://fapi.binance.com"

// Server hosts the Gin-powered query API.
type Server struct {
	cfg        *appconfig.Config
	store      *store.Store
	aggregator *oi.Aggregator
	macro      *macro.Service
	limiter    *rate.Limiter
	client     *http.Client
	log        *logger.Log
	httpServer *http.Server
	address    string
}

// NewServer constructs the API server when the server feature is enabled.
// When disabled the returned server is nil.
func NewServer(cfg *appconfig.Config, st *store.Store, agg *oi.Aggregator, macroSvc *macro.Service) (*Server, error) {
	if !cfg.Server.Enabled {
		return nil, nil
	}
	if st == nil {
		return nil, fmt.Errorf("api server requires an event store")
	}

	rps := cfg.Derivs.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Derivs.Burst
	if burst <= 0 {
		burst = 10
	}

	return &Server{
		cfg:        cfg,
		store:      st,
		aggregator: agg,
		macro:      macroSvc,
		limiter:    rate.NewLimiter(rate.Limit(rps), burst),
		client:     &http.Client{Timeout: 15 * time.Second},
		log:        logger.GetLogger(),
		address:    normalizeAddress(cfg.Server.Address),
	}, nil
}

// Run starts the HTTP server and blocks until the context is cancelled or the
// listener fails.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}

	s.httpServer = &http.Server{
		Addr:    s.address,
		Handler: s.buildRouter(),
	}

	s.log.WithComponent("api_server").WithFields(logger.Fields{
		"address": s.address,
	}).Info("starting api server")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		<-errCh
		s.log.WithComponent("api_server").Info("api server stopped")
		return nil
	case err := <-errCh:
		if err == nil {
			return nil
		}
		return err
	}
}

// Address reports the network address the server listens on.
func (s *Server) Address() string {
	if s == nil {
		return ""
	}
	return s.address
}

func (s *Server) buildRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"name":    s.cfg.Liqflow.Name,
			"version": s.cfg.Liqflow.Version,
		})
	})

	router.GET("/liq/heatmap", s.handleHeatmap)
	router.GET("/liq/status", s.handleStatus)

	if s.aggregator != nil {
		router.GET("/oi/:symbol", s.handleOpenInterest)
	}

	if s.macro != nil {
		group := router.Group("/macro")
		group.GET("/snapshot", s.handleMacroSnapshot)
		group.POST("/snapshot", s.handleMacroSnapshot)
		group.GET("/series", s.handleMacroSeries)
	}

	if s.cfg.Derivs.Enabled {
		derivs := router.Group("/derivs")
		derivs.GET("/klines", s.passthrough("/fapi/v1/klines"))
		derivs.GET("/oi-hist", s.passthrough("/futures/data/openInterestHist"))
		derivs.GET("/funding", s.passthrough("/fapi/v1/fundingRate"))
	}

	return router
}

func (s *Server) handleHeatmap(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	minutes := s.intQuery(c, "minutes", s.cfg.Heatmap.DefaultMinutes, 1, 24*60)
	maxBins := s.cfg.Heatmap.MaxBins
	if maxBins <= 0 {
		maxBins = 500
	}
	bins := s.intQuery(c, "bins", s.cfg.Heatmap.DefaultBins, 1, maxBins)

	windowEnd := time.Now().UTC()
	windowStart := windowEnd.Add(-time.Duration(minutes) * time.Minute)

	events := s.store.Query(symbol, windowStart.UnixMilli(), windowEnd.UnixMilli())
	grid := heatmap.Compute(events, windowStart, windowEnd, bins)

	c.JSON(http.StatusOK, grid)
}

func (s *Server) handleStatus(c *gin.Context) {
	minutes := s.intQuery(c, "minutes", s.cfg.Heatmap.DefaultMinutes, 1, 24*60)
	window := time.Duration(minutes) * time.Minute

	if symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol"))); symbol != "" {
		status := s.store.Status(symbol, window)
		c.JSON(http.StatusOK, gin.H{
			"symbol":            status.Symbol,
			"count":             status.WindowCount,
			"last_timestamp_ms": lastTimestamp(status.NewestMs),
		})
		return
	}

	var count int
	var last int64
	statuses := make([]store.SymbolStatus, 0)
	for _, symbol := range s.store.Symbols() {
		status := s.store.Status(symbol, window)
		count += status.WindowCount
		if status.NewestMs > last {
			last = status.NewestMs
		}
		statuses = append(statuses, status)
	}

	c.JSON(http.StatusOK, gin.H{
		"count":             count,
		"last_timestamp_ms": lastTimestamp(last),
		"symbols":           statuses,
	})
}

// lastTimestamp maps "no events seen" to a JSON null rather than a zero.
func lastTimestamp(ms int64) *int64 {
	if ms <= 0 {
		return nil
	}
	return &ms
}

func (s *Server) handleOpenInterest(c *gin.Context) {
	symbol := strings.ToUpper(strings.TrimSpace(c.Param("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	c.JSON(http.StatusOK, s.aggregator.Aggregate(ctx, symbol))
}

// handleMacroSnapshot stores one macro snapshot on demand, exactly what the
// periodic loop does on its interval.
func (s *Server) handleMacroSnapshot(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	snap, err := s.macro.TakeSnapshot(ctx)
	if err != nil {
		s.log.WithComponent("api_server").WithError(err).Warn("macro snapshot failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "macro snapshot failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "ts": snap.Timestamp.Unix()})
}

func (s *Server) handleMacroSeries(c *gin.Context) {
	bucket := c.DefaultQuery("bucket", "daily")
	if bucket != "hourly" {
		bucket = "daily"
	}
	days := s.intQuery(c, "days", 180, 1, 3650)

	series := s.macro.Series(bucket, days)
	if len(series) == 0 {
		c.JSON(http.StatusOK, gin.H{"series": []macro.SeriesPoint{}})
		return
	}
	c.JSON(http.StatusOK, gin.H{"bucket": bucket, "series": series})
}

// passthrough proxies the query string to the Binance futures REST API under
// a shared rate limiter, returning the upstream body and status verbatim.
func (s *Server) passthrough(upstreamPath string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}

		base := strings.TrimRight(strings.TrimSpace(s.cfg.Derivs.BaseURL), "/")
		if base == "" {
			base = defaultDerivsBaseURL
		}

		upstream := base + upstreamPath
		if raw := c.Request.URL.RawQuery; raw != "" {
			upstream += "?" + raw
		}

		req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodGet, upstream, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to build upstream request"})
			return
		}

		resp, err := s.client.Do(req)
		if err != nil {
			s.log.WithComponent("api_server").WithError(err).WithFields(logger.Fields{
				"upstream": upstreamPath,
			}).Warn("derivatives pass-through failed")
			c.JSON(http.StatusBadGateway, gin.H{"error": "upstream request failed"})
			return
		}
		defer resp.Body.Close()

		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "application/json"
		}
		c.DataFromReader(resp.StatusCode, resp.ContentLength, contentType, resp.Body, nil)
	}
}

func (s *Server) intQuery(c *gin.Context, name string, fallback, min, max int) int {
	value := fallback
	if raw := c.Query(name); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err == nil {
			value = parsed
		}
	}
	if value < min {
		value = min
	}
	if value > max {
		value = max
	}
	return value
}

func normalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ":8080"
	}
	if !strings.Contains(addr, ":") {
		return ":" + addr
	}
	return addr
}
