// Package feed decodes Binance futures force-order frames into liquidation
// events. The decoder is pure: it never touches the network and carries no
// state between frames.
package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"liqflow/internal/models"
	"liqflow/internal/symbols"
)

type liqOrder struct {
	Symbol    string          `json:"s"`
	Side      string          `json:"S"`
	Qty       json.RawMessage `json:"q"`
	Price     json.RawMessage `json:"p"`
	AvgPrice  json.RawMessage `json:"ap"`
	Filled    json.RawMessage `json:"z"`
	LastQty   json.RawMessage `json:"l"`
	TradeTime int64           `json:"T"`
}

type liqEvent struct {
	EventType string    `json:"e"`
	EventTime int64     `json:"E"`
	Order     *liqOrder `json:"o"`
}

// Decode parses one websocket frame into zero or more liquidation events.
// Accepted shapes: a combined-stream envelope {"stream":...,"data":{...}}, a
// bare force-order object, or an array of either. Events with non-positive
// price or quantity are dropped, never surfaced as errors. An error is
// returned only when the frame is not valid JSON.
func Decode(data []byte, receivedAt time.Time) ([]models.LiquidationEvent, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("empty frame")
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode frame array: %w", err)
		}
		events := make([]models.LiquidationEvent, 0, len(items))
		for _, item := range items {
			if evt, ok := decodeObject(item, receivedAt); ok {
				events = append(events, evt)
			}
		}
		return events, nil
	}

	// combined-stream frames wrap the event in a data envelope
	var envelope struct {
		Stream string          `json:"stream"`
		Data   json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	payload := trimmed
	if len(envelope.Data) > 0 {
		payload = envelope.Data
	}

	if evt, ok := decodeObject(payload, receivedAt); ok {
		return []models.LiquidationEvent{evt}, nil
	}
	return nil, nil
}

func decodeObject(data []byte, receivedAt time.Time) (models.LiquidationEvent, bool) {
	var evt liqEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		return models.LiquidationEvent{}, false
	}
	if evt.Order == nil {
		return models.LiquidationEvent{}, false
	}
	if evt.EventType != "" && evt.EventType != "forceOrder" {
		return models.LiquidationEvent{}, false
	}

	o := evt.Order

	// prefer the average fill price, fall back to the order price
	price := parseNumber(o.AvgPrice)
	if price <= 0 {
		price = parseNumber(o.Price)
	}

	// original quantity, then cumulative filled, then last fill
	qty := parseNumber(o.Qty)
	if qty <= 0 {
		qty = parseNumber(o.Filled)
	}
	if qty <= 0 {
		qty = parseNumber(o.LastQty)
	}

	if price <= 0 || qty <= 0 {
		return models.LiquidationEvent{}, false
	}

	// thousand-multiplier contracts collapse to their base symbol
	symbol := symbols.ToBinance("binance", strings.TrimSpace(o.Symbol))
	if symbol == "" {
		return models.LiquidationEvent{}, false
	}

	eventTime := o.TradeTime
	if eventTime <= 0 {
		eventTime = evt.EventTime
	}
	if eventTime <= 0 {
		eventTime = receivedAt.UnixMilli()
	}

	side := models.SideUnknown
	switch strings.ToUpper(o.Side) {
	case "BUY":
		side = models.SideBuy
	case "SELL":
		side = models.SideSell
	}

	return models.LiquidationEvent{
		EventTime:    eventTime,
		ReceivedTime: receivedAt.UnixMilli(),
		Symbol:       symbol,
		Side:         side,
		Price:        price,
		Quantity:     qty,
	}, true
}

// parseNumber accepts both quoted and bare JSON numbers. Binance sends prices
// and quantities as strings, but other venues do not.
func parseNumber(raw json.RawMessage) float64 {
	s := strings.TrimSpace(string(raw))
	s = strings.Trim(s, `"`)
	if s == "" || s == "null" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
