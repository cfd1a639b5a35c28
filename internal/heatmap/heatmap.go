// Package heatmap folds liquidation events into a time-by-price notional
// grid. Compute is pure and deterministic for a given input.
package heatmap

import (
	"strconv"
	"time"

	"liqflow/internal/models"
)

// Grid is the heatmap payload: one row per minute of the window, one column
// per price bucket, cells holding summed notional.
type Grid struct {
	X []string    `json:"x"` // price bucket labels, "low-high"
	Y []int64     `json:"y"` // minute bucket start, unix ms, ascending
	Z [][]float64 `json:"z"` // Z[i][j]: notional in minute i, bucket j
}

// Compute builds the grid for events between windowStart and windowEnd using
// the given number of price buckets. An empty window produces empty axes. The
// time axis is minute-aligned and covers every minute of the window, including
// minutes without events. Events outside the observed price range or the
// window are clamped into the edge cells rather than dropped.
func Compute(events []models.LiquidationEvent, windowStart, windowEnd time.Time, bins int) Grid {
	if len(events) == 0 {
		return Grid{X: []string{}, Y: []int64{}, Z: [][]float64{}}
	}
	if bins < 1 {
		bins = 1
	}

	start := windowStart.Truncate(time.Minute)
	minutes := 0
	for t := start; t.Before(windowEnd); t = t.Add(time.Minute) {
		minutes++
	}
	if minutes < 1 {
		minutes = 1
	}

	lo, hi := priceRange(events)

	width := (hi - lo) / float64(bins)

	grid := Grid{
		X: make([]string, bins),
		Y: make([]int64, minutes),
		Z: make([][]float64, minutes),
	}
	for j := 0; j < bins; j++ {
		edgeLo := lo + float64(j)*width
		edgeHi := edgeLo + width
		grid.X[j] = formatPrice(edgeLo) + "-" + formatPrice(edgeHi)
	}
	startMs := start.UnixMilli()
	for i := 0; i < minutes; i++ {
		grid.Y[i] = startMs + int64(i)*time.Minute.Milliseconds()
		grid.Z[i] = make([]float64, bins)
	}

	for _, evt := range events {
		i := int((evt.EventTime - startMs) / time.Minute.Milliseconds())
		i = clamp(i, minutes)
		j := int((evt.Price - lo) / width)
		// a price sitting exactly on a bucket edge belongs to the lower bucket
		if j > 0 && evt.Price == lo+float64(j)*width {
			j--
		}
		j = clamp(j, bins)
		grid.Z[i][j] += evt.Notional()
	}

	return grid
}

// priceRange finds the observed min and max price, widening a degenerate
// range by one percent on each side so the bucket width never collapses to
// zero. A zero-valued range widens by a fixed unit instead.
func priceRange(events []models.LiquidationEvent) (float64, float64) {
	if len(events) == 0 {
		return -1, 1
	}

	lo, hi := events[0].Price, events[0].Price
	for _, evt := range events[1:] {
		if evt.Price < lo {
			lo = evt.Price
		}
		if evt.Price > hi {
			hi = evt.Price
		}
	}

	if lo == hi {
		if lo == 0 {
			return -1, 1
		}
		pad := lo * 0.01
		if pad < 0 {
			pad = -pad
		}
		return lo - pad, hi + pad
	}
	return lo, hi
}

func clamp(idx, count int) int {
	if idx < 0 {
		return 0
	}
	if idx >= count {
		return count - 1
	}
	return idx
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
