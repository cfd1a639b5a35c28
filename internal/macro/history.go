package macro

import (
	"sync"
	"time"

	"liqflow/internal/models"
)

// DefaultMaxSnapshots bounds the series when no limit is configured; at an
// hourly cadence this holds roughly six months.
const DefaultMaxSnapshots = 4320

// SeriesPoint is one bucketed row of the stored snapshot series.
type SeriesPoint struct {
	T            int64    `json:"t"`
	TotalUSD     float64  `json:"total"`
	VolumeUSD    float64  `json:"volume"`
	BTCUSD       float64  `json:"btc"`
	ETHUSD       float64  `json:"eth"`
	AltUSD       float64  `json:"alt"`
	BTCDominance *float64 `json:"btc_dom"`
}

// History is the bounded in-memory macro snapshot series. The snapshot loop
// appends in time order; any number of readers may query concurrently.
type History struct {
	mu    sync.RWMutex
	snaps []models.MacroSnapshot
	max   int
}

// NewHistory builds a history holding at most max snapshots. Non-positive
// values fall back to DefaultMaxSnapshots.
func NewHistory(max int) *History {
	if max <= 0 {
		max = DefaultMaxSnapshots
	}
	return &History{max: max}
}

// Append adds one snapshot, evicting the oldest entries above capacity.
func (h *History) Append(snap models.MacroSnapshot) {
	h.mu.Lock()
	h.snaps = append(h.snaps, snap)
	if over := len(h.snaps) - h.max; over > 0 {
		h.snaps = append([]models.MacroSnapshot(nil), h.snaps[over:]...)
	}
	h.mu.Unlock()
}

// Latest returns the newest stored snapshot.
func (h *History) Latest() (models.MacroSnapshot, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if len(h.snaps) == 0 {
		return models.MacroSnapshot{}, false
	}
	return h.snaps[len(h.snaps)-1], true
}

// Len reports how many snapshots are stored.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.snaps)
}

// Series buckets the stored snapshots by hour or day, keeping the last
// observation per bucket, and returns at most the trailing limit buckets.
// A non-positive limit returns every bucket.
func (h *History) Series(bucket string, limit int) []SeriesPoint {
	interval := 24 * time.Hour
	if bucket == "hourly" {
		interval = time.Hour
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	points := make([]SeriesPoint, 0, len(h.snaps))
	for _, snap := range h.snaps {
		t := snap.Timestamp.UTC().Truncate(interval).UnixMilli()
		point := SeriesPoint{
			T:            t,
			TotalUSD:     snap.TotalUSD,
			VolumeUSD:    snap.VolumeUSD,
			BTCUSD:       snap.BTCUSD,
			ETHUSD:       snap.ETHUSD,
			AltUSD:       snap.AltUSD,
			BTCDominance: snap.BTCDominance,
		}
		if n := len(points); n > 0 && points[n-1].T == t {
			points[n-1] = point
			continue
		}
		points = append(points, point)
	}

	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points
}
