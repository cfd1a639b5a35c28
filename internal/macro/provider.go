// Package macro snapshots global market capitalisation from the CoinGecko
// public API and keeps a bounded in-memory series for the query surface.
package macro

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"liqflow/internal/models"
)

const defaultBaseURL = "https://api.coingecko.com/api/v3"

// Provider fetches current market-cap figures from the free CoinGecko
// endpoints. No API key is required.
type Provider struct {
	baseURL string
	client  *http.Client
}

// NewProvider builds a provider. An empty baseURL selects the public API; a
// nil client gets a default with a 15 second timeout.
func NewProvider(baseURL string, client *http.Client) *Provider {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Provider{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client:  client,
	}
}

// Snapshot combines the global totals with the BTC and ETH caps. The altcoin
// cap is whatever remains after subtracting both, floored at zero.
func (p *Provider) Snapshot(ctx context.Context) (models.MacroSnapshot, error) {
	var global struct {
		Data struct {
			TotalMarketCap map[string]float64 `json:"total_market_cap"`
			TotalVolume    map[string]float64 `json:"total_volume"`
		} `json:"data"`
	}
	if err := p.getJSON(ctx, "/global", nil, &global); err != nil {
		return models.MacroSnapshot{}, err
	}

	q := url.Values{}
	q.Set("vs_currency", "usd")
	q.Set("ids", "bitcoin,ethereum")
	q.Set("order", "market_cap_desc")
	q.Set("per_page", "2")
	q.Set("page", "1")
	q.Set("sparkline", "false")

	var coins []struct {
		ID        string  `json:"id"`
		MarketCap float64 `json:"market_cap"`
	}
	if err := p.getJSON(ctx, "/coins/markets", q, &coins); err != nil {
		return models.MacroSnapshot{}, err
	}

	snap := models.MacroSnapshot{
		Timestamp: time.Now().UTC(),
		TotalUSD:  global.Data.TotalMarketCap["usd"],
		VolumeUSD: global.Data.TotalVolume["usd"],
	}
	for _, coin := range coins {
		switch coin.ID {
		case "bitcoin":
			snap.BTCUSD = coin.MarketCap
		case "ethereum":
			snap.ETHUSD = coin.MarketCap
		}
	}
	snap.AltUSD = snap.TotalUSD - snap.BTCUSD - snap.ETHUSD
	if snap.AltUSD < 0 {
		snap.AltUSD = 0
	}
	if snap.TotalUSD > 0 {
		dominance := snap.BTCUSD / snap.TotalUSD * 100
		snap.BTCDominance = &dominance
	}
	return snap, nil
}

func (p *Provider) getJSON(ctx context.Context, path string, q url.Values, out interface{}) error {
	endpoint := p.baseURL + path
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, endpoint, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", endpoint, err)
	}
	return nil
}
