// Package oi sums perpetual open interest across venues. Each provider wraps
// one exchange's public REST endpoint; the aggregator tolerates any subset of
// them failing.
package oi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	bybit "github.com/bybit-exchange/bybit.go.api"

	"liqflow/internal/symbols"
)

// Provider fetches the current open interest for one symbol on one venue.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (float64, time.Time, error)
}

func fetchJSON(ctx context.Context, client *http.Client, rawURL string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d from %s: %s", resp.StatusCode, rawURL, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", rawURL, err)
	}
	return nil
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return v
}

// binanceProvider reads the last point of the futures open-interest history,
// which reports notional value in USD directly.
type binanceProvider struct {
	baseURL string
	client  *http.Client
}

func (p *binanceProvider) Name() string { return "binance" }

func (p *binanceProvider) Fetch(ctx context.Context, symbol string) (float64, time.Time, error) {
	q := url.Values{}
	q.Set("symbol", strings.ToUpper(symbol))
	q.Set("period", "5m")
	q.Set("limit", "1")

	var points []struct {
		SumOpenInterestValue string `json:"sumOpenInterestValue"`
		Timestamp            int64  `json:"timestamp"`
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/futures/data/openInterestHist?" + q.Encode()
	if err := fetchJSON(ctx, p.client, endpoint, &points); err != nil {
		return 0, time.Time{}, err
	}
	if len(points) == 0 {
		return 0, time.Time{}, fmt.Errorf("empty open-interest history for %s", symbol)
	}

	last := points[len(points)-1]
	return parseFloat(last.SumOpenInterestValue), time.UnixMilli(last.Timestamp).UTC(), nil
}

// bybitProvider reads the latest point of the v5 open-interest series through
// the bybit connector's HTTP client.
type bybitProvider struct {
	client *bybit.Client
}

func (p *bybitProvider) Name() string { return "bybit" }

func (p *bybitProvider) Fetch(ctx context.Context, symbol string) (float64, time.Time, error) {
	params := map[string]interface{}{
		"category":     "linear",
		"symbol":       symbols.ToBybitLinear(symbol),
		"intervalTime": "5min",
		"limit":        1,
	}

	resp, err := p.client.NewUtaBybitServiceWithParams(params).GetOpenInterests(ctx)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("bybit open interest: %w", err)
	}
	if resp.RetCode != 0 {
		return 0, time.Time{}, fmt.Errorf("bybit error %d: %s", resp.RetCode, resp.RetMsg)
	}

	payload, err := json.Marshal(resp.Result)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("marshal bybit result: %w", err)
	}
	var result struct {
		List []struct {
			OpenInterest string `json:"openInterest"`
			Timestamp    string `json:"timestamp"`
		} `json:"list"`
	}
	if err := json.Unmarshal(payload, &result); err != nil {
		return 0, time.Time{}, fmt.Errorf("decode bybit result: %w", err)
	}
	if len(result.List) == 0 {
		return 0, time.Time{}, fmt.Errorf("empty open-interest list for %s", symbol)
	}

	entry := result.List[0]
	tsMs, _ := strconv.ParseInt(entry.Timestamp, 10, 64)
	return parseFloat(entry.OpenInterest), time.UnixMilli(tsMs).UTC(), nil
}

type okxProvider struct {
	baseURL string
	client  *http.Client
}

func (p *okxProvider) Name() string { return "okx" }

func (p *okxProvider) Fetch(ctx context.Context, symbol string) (float64, time.Time, error) {
	q := url.Values{}
	q.Set("instType", "SWAP")
	q.Set("instId", symbols.ToOkxInstID(symbol))

	var payload struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
		Data []struct {
			OiUsd string `json:"oiUsd"`
			OiCcy string `json:"oiCcy"`
			Oi    string `json:"oi"`
			Ts    string `json:"ts"`
		} `json:"data"`
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/api/v5/public/open-interest?" + q.Encode()
	if err := fetchJSON(ctx, p.client, endpoint, &payload); err != nil {
		return 0, time.Time{}, err
	}
	if payload.Code != "" && payload.Code != "0" {
		return 0, time.Time{}, fmt.Errorf("okx error %s: %s", payload.Code, payload.Msg)
	}
	if len(payload.Data) == 0 {
		return 0, time.Time{}, fmt.Errorf("empty open-interest data for %s", symbol)
	}

	entry := payload.Data[0]
	value := parseFloat(entry.OiUsd)
	if value == 0 {
		value = parseFloat(entry.OiCcy)
	}
	if value == 0 {
		value = parseFloat(entry.Oi)
	}
	tsMs, _ := strconv.ParseInt(entry.Ts, 10, 64)
	return value, time.UnixMilli(tsMs).UTC(), nil
}
