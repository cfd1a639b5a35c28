// Package store keeps recent liquidation events in memory for the query and
// heatmap surfaces. Retention is bounded per symbol by both a maximum event
// count and a maximum age; whichever bound bites first wins.
package store

import (
	"sort"
	"sync"
	"time"

	"liqflow/internal/models"
	"liqflow/logger"
)

const (
	// DefaultMaxEvents bounds the per-symbol buffer when no limit is configured.
	DefaultMaxEvents = 200000
	// DefaultMaxAge bounds event age when no limit is configured.
	DefaultMaxAge = 2 * time.Hour
)

// SymbolStatus summarises the buffer for one symbol.
type SymbolStatus struct {
	Symbol      string `json:"symbol"`
	Count       int    `json:"count"`
	WindowCount int    `json:"window_count"`
	OldestMs    int64  `json:"oldest_ms"`
	NewestMs    int64  `json:"newest_ms"`
}

// Store is the in-memory liquidation event buffer. A single ingestor goroutine
// appends; any number of readers may query concurrently.
type Store struct {
	mu        sync.RWMutex
	events    map[string][]models.LiquidationEvent
	maxEvents int
	maxAge    time.Duration
	appended  int64
	log       *logger.Log

	// test seam for age pruning
	now func() time.Time
}

// NewStore builds a store with the given bounds. Non-positive values fall back
// to the defaults.
func NewStore(maxEvents int, maxAge time.Duration) *Store {
	if maxEvents <= 0 {
		maxEvents = DefaultMaxEvents
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &Store{
		events:    make(map[string][]models.LiquidationEvent),
		maxEvents: maxEvents,
		maxAge:    maxAge,
		log:       logger.GetLogger(),
		now:       time.Now,
	}
}

// Append adds one event to its symbol buffer, evicting the oldest entries when
// either retention bound is exceeded.
func (s *Store) Append(evt models.LiquidationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := append(s.events[evt.Symbol], evt)

	cutoff := s.now().Add(-s.maxAge).UnixMilli()
	start := 0
	for start < len(buf) && buf[start].EventTime < cutoff {
		start++
	}
	if over := len(buf) - start - s.maxEvents; over > 0 {
		start += over
	}
	if start > 0 {
		buf = buf[start:]
	}

	// reallocate once the backing array is mostly dead space
	if cap(buf) > 2*s.maxEvents && len(buf)*2 < cap(buf) {
		compact := make([]models.LiquidationEvent, len(buf))
		copy(compact, buf)
		buf = compact
	}

	s.events[evt.Symbol] = buf
	s.appended++
	logger.IncrementStoreAppend()
}

// Query returns a sorted snapshot of events for symbol whose event time falls
// in [fromMs, toMs]. A toMs of zero means no upper bound. The returned slice
// is a copy and safe to retain.
func (s *Store) Query(symbol string, fromMs, toMs int64) []models.LiquidationEvent {
	s.mu.RLock()
	buf := s.events[symbol]
	out := make([]models.LiquidationEvent, 0, len(buf))
	for _, evt := range buf {
		if evt.EventTime < fromMs {
			continue
		}
		if toMs > 0 && evt.EventTime > toMs {
			continue
		}
		out = append(out, evt)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].EventTime != out[j].EventTime {
			return out[i].EventTime < out[j].EventTime
		}
		return out[i].ReceivedTime < out[j].ReceivedTime
	})
	return out
}

// Symbols lists the symbols currently held, sorted.
func (s *Store) Symbols() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.events))
	for sym := range s.events {
		out = append(out, sym)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Status reports buffer occupancy for one symbol, counting events newer than
// the given window alongside the full buffer.
func (s *Store) Status(symbol string, window time.Duration) SymbolStatus {
	cutoff := s.now().Add(-window).UnixMilli()

	s.mu.RLock()
	defer s.mu.RUnlock()

	buf := s.events[symbol]
	status := SymbolStatus{Symbol: symbol, Count: len(buf)}
	for _, evt := range buf {
		if evt.EventTime >= cutoff {
			status.WindowCount++
		}
		if status.OldestMs == 0 || evt.EventTime < status.OldestMs {
			status.OldestMs = evt.EventTime
		}
		if evt.EventTime > status.NewestMs {
			status.NewestMs = evt.EventTime
		}
	}
	return status
}

// TotalAppended reports how many events have been accepted since start,
// including those since evicted.
func (s *Store) TotalAppended() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appended
}
