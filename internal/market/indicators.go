// Package market builds the per-tick context snapshot consumed by the
// trading agents: price, order book, volatility, trend, regime, nearest
// Fibonacci level and recent trap hints, composed from the state store
// and live exchange calls.
package market

import "math"

// Trend labels for the context snapshot.
const (
	TrendUp      = "uptrend"
	TrendDown    = "downtrend"
	TrendNeutral = "neutral"
)

// DefaultVolatility is the fallback when there is not enough candle
// history to measure dispersion.
const DefaultVolatility = 0.02

// SMA returns the simple moving average of the last period values,
// or 0 when there are fewer values than the period.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return sum / float64(period)
}

// Volatility measures dispersion of the last n closes as the standard
// deviation normalized by the mean, so 0.02 reads as a 2% spread.
// Falls back to DefaultVolatility with insufficient history.
func Volatility(closes []float64, n int) float64 {
	if n <= 1 || len(closes) < n {
		return DefaultVolatility
	}
	window := closes[len(closes)-n:]
	mean := 0.0
	for _, c := range window {
		mean += c
	}
	mean /= float64(n)
	if mean <= 0 {
		return DefaultVolatility
	}
	variance := 0.0
	for _, c := range window {
		d := c - mean
		variance += d * d
	}
	variance /= float64(n)
	return math.Sqrt(variance) / mean
}

// Momentum scores the recent directional push in [-1, 1]: half from the
// fraction of rising steps over the last few closes, half from the
// magnitude of the net move (saturating around a 1-2% swing).
func Momentum(closes []float64) float64 {
	if len(closes) < 2 {
		return 0
	}
	window := closes
	if len(window) > 6 {
		window = window[len(window)-6:]
	}
	ups, downs := 0, 0
	for i := 1; i < len(window); i++ {
		switch {
		case window[i] > window[i-1]:
			ups++
		case window[i] < window[i-1]:
			downs++
		}
	}
	steps := float64(len(window) - 1)
	direction := float64(ups-downs) / steps

	first := window[0]
	if first <= 0 {
		return direction
	}
	netChange := (window[len(window)-1] - first) / first
	magnitude := math.Tanh(netChange * 100)

	return 0.5*direction + 0.5*magnitude
}

// VolumeMultiplier compares the latest volume against the average of the
// last period volumes. Returns 1.0 when history is too short.
func VolumeMultiplier(volumes []float64, period int) float64 {
	if len(volumes) == 0 {
		return 1.0
	}
	avg := SMA(volumes[:len(volumes)-1], period)
	if avg <= 0 {
		return 1.0
	}
	return volumes[len(volumes)-1] / avg
}

// TrendFromCloses applies the SMA rule: price above both SMA5 and SMA10
// with positive momentum is an uptrend, the mirror is a downtrend, and
// everything else is neutral.
func TrendFromCloses(price float64, closes []float64) string {
	sma5 := SMA(closes, 5)
	sma10 := SMA(closes, 10)
	if sma5 == 0 || sma10 == 0 {
		return TrendNeutral
	}
	momentum := Momentum(closes)
	if price > sma5 && price > sma10 && momentum > 0 {
		return TrendUp
	}
	if price < sma5 && price < sma10 && momentum < 0 {
		return TrendDown
	}
	return TrendNeutral
}
