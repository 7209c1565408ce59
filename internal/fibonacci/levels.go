// Package fibonacci maintains rolling price-point streams per timeframe,
// classifies five-point sequences against a catalog of harmonic patterns,
// and derives Fibonacci retracement/extension levels.
package fibonacci

import (
	"math"
	"sort"
)

// StandardRatios are the retracement and extension ratios tracked for
// every computed range.
var StandardRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 0.786, 1.0, 1.618, 2.618, 4.236}

// Levels maps Fibonacci ratios onto prices for one high/low range.
type Levels struct {
	High    float64             `json:"high"`
	Low     float64             `json:"low"`
	Uptrend bool                `json:"uptrend"`
	ByRatio map[float64]float64 `json:"levels"`
}

// CalculateLevels derives the ratio→price mapping from a high/low range.
// In an uptrend retracements fall from the high; in a downtrend they rise
// from the low. Extensions (>1.0) project beyond the range.
func CalculateLevels(high, low float64, uptrend bool) Levels {
	span := high - low
	byRatio := make(map[float64]float64, len(StandardRatios))
	for _, ratio := range StandardRatios {
		if uptrend {
			byRatio[ratio] = high - span*ratio
		} else {
			byRatio[ratio] = low + span*ratio
		}
	}
	return Levels{High: high, Low: low, Uptrend: uptrend, ByRatio: byRatio}
}

// NearestLevel is the Fibonacci level closest to a price.
type NearestLevel struct {
	Ratio       float64 `json:"level"`
	Price       float64 `json:"price"`
	DistancePct float64 `json:"distance_pct"`
}

// Nearest returns the level at minimum absolute distance to price.
// ok is false for an empty mapping or non-positive price.
func (l Levels) Nearest(price float64) (NearestLevel, bool) {
	if price <= 0 || len(l.ByRatio) == 0 {
		return NearestLevel{}, false
	}
	ratios := make([]float64, 0, len(l.ByRatio))
	for r := range l.ByRatio {
		ratios = append(ratios, r)
	}
	sort.Float64s(ratios)

	best := NearestLevel{DistancePct: math.Inf(1)}
	for _, ratio := range ratios {
		levelPrice := l.ByRatio[ratio]
		dist := math.Abs(price-levelPrice) / price * 100
		if dist < best.DistancePct {
			best = NearestLevel{Ratio: ratio, Price: levelPrice, DistancePct: dist}
		}
	}
	return best, true
}
