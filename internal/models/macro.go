package models

import "time"

// MacroSnapshot is one observation of crypto-wide market capitalisation,
// split into BTC, ETH and everything else, plus total 24h volume.
type MacroSnapshot struct {
	Timestamp    time.Time
	TotalUSD     float64
	VolumeUSD    float64
	BTCUSD       float64
	ETHUSD       float64
	AltUSD       float64
	BTCDominance *float64 // nil when the total cap is unknown
}
