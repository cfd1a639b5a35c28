package models

import "time"

// OISnapshot is one open-interest observation for a symbol on an exchange,
// expressed in USD where the venue reports it that way.
type OISnapshot struct {
	Timestamp time.Time
	Symbol    string
	Exchange  string
	ValueUSD  float64
}

// ExchangeOI is the per-venue slice of an aggregated open-interest response.
type ExchangeOI struct {
	Name       string    `json:"name"`
	OIValueUSD float64   `json:"oi_value_usd"`
	Timestamp  time.Time `json:"timestamp"`
}

// AggregatedOI sums open interest for one symbol across all configured venues.
type AggregatedOI struct {
	Symbol     string       `json:"symbol"`
	Exchanges  []ExchangeOI `json:"exchanges"`
	TotalOIUSD float64      `json:"total_oi_usd"`
	AsOf       time.Time    `json:"as_of"`
}
