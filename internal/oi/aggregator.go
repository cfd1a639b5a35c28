package oi

import (
	"context"
	"net/http"
	"strings"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	appconfig "liqflow/config"
	"liqflow/internal/models"
	"liqflow/logger"
)

const (
	defaultBinanceURL = "https://fapi.binance.com"
	defaultBybitURL   = "https://api.bybit.com"
	defaultOkxURL     = "https://www.okx.com"
)

// Aggregator sums open interest for a symbol across the configured venues.
type Aggregator struct {
	providers []Provider
	log       *logger.Log
}

// NewAggregator builds an aggregator from the open-interest configuration.
// Disabled venues get no provider.
func NewAggregator(cfg *appconfig.Config) *Aggregator {
	client := &http.Client{Timeout: 10 * time.Second}

	var providers []Provider
	if cfg.OpenInterest.Binance.Enabled {
		providers = append(providers, &binanceProvider{
			baseURL: urlOrDefault(cfg.OpenInterest.Binance.URL, defaultBinanceURL),
			client:  client,
		})
	}
	if cfg.OpenInterest.Bybit.Enabled {
		bybitClient := bybit.NewBybitHttpClient("", "",
			bybit.WithBaseURL(urlOrDefault(cfg.OpenInterest.Bybit.URL, defaultBybitURL)))
		bybitClient.HTTPClient = client
		providers = append(providers, &bybitProvider{client: bybitClient})
	}
	if cfg.OpenInterest.Okx.Enabled {
		providers = append(providers, &okxProvider{
			baseURL: urlOrDefault(cfg.OpenInterest.Okx.URL, defaultOkxURL),
			client:  client,
		})
	}

	return &Aggregator{
		providers: providers,
		log:       logger.GetLogger(),
	}
}

func urlOrDefault(raw, fallback string) string {
	if v := strings.TrimSpace(raw); v != "" {
		return v
	}
	return fallback
}

// Aggregate queries every provider for the symbol and sums what succeeds.
// Provider failures are logged and skipped; an all-failed aggregate simply
// has no exchange entries.
func (a *Aggregator) Aggregate(ctx context.Context, symbol string) models.AggregatedOI {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	out := models.AggregatedOI{
		Symbol:    symbol,
		Exchanges: make([]models.ExchangeOI, 0, len(a.providers)),
		AsOf:      time.Now().UTC(),
	}

	for _, provider := range a.providers {
		value, ts, err := provider.Fetch(ctx, symbol)
		if err != nil {
			a.log.WithComponent("oi_aggregator").WithError(err).WithFields(logger.Fields{
				"exchange": provider.Name(),
				"symbol":   symbol,
			}).Warn("open-interest provider failed, skipping")
			continue
		}
		out.Exchanges = append(out.Exchanges, models.ExchangeOI{
			Name:       provider.Name(),
			OIValueUSD: value,
			Timestamp:  ts,
		})
		out.TotalOIUSD += value
	}

	return out
}
