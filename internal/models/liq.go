package models

import "time"

// Side of the order the exchange had to force-close against the book.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = "UNKNOWN"
)

// RawLiquidationMessage is one frame captured from the liquidation stream
// before decoding. It keeps the raw payload together with metadata that the
// decoder needs to fall back to when the frame itself omits a timestamp.
type RawLiquidationMessage struct {
	Exchange  string
	Market    string
	Data      []byte
	Timestamp time.Time
}

// LiquidationEvent is one decoded, validated liquidation print. Events with
// non-positive price or quantity are never constructed; the decoder filters
// such frames out before they reach the store.
type LiquidationEvent struct {
	EventTime    int64
	ReceivedTime int64
	Symbol       string
	Side         Side
	Price        float64
	Quantity     float64
}

// Notional is the USD-equivalent size of the event.
func (e LiquidationEvent) Notional() float64 {
	return e.Price * e.Quantity
}

// BatchLiquidationMessage groups accepted events per symbol for the durable
// writer. The batch identifier allows uploads to be traced in logs.
type BatchLiquidationMessage struct {
	BatchID     string
	Exchange    string
	Market      string
	Symbol      string
	Entries     []LiquidationEvent
	Timestamp   time.Time
	ProcessedAt time.Time
	RecordCount int
}
