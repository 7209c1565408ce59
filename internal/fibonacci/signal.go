package fibonacci

import "time"

// SignalType is the trade direction a pattern projects.
type SignalType string

const (
	SignalBullish SignalType = "BULLISH"
	SignalBearish SignalType = "BEARISH"
)

// Signal is the tradeable projection of a detected pattern.
type Signal struct {
	Pattern    HarmonicPattern `json:"pattern"`
	Type       SignalType      `json:"type"`
	Confidence float64         `json:"confidence"`
	Entry      float64         `json:"entry"`
	Stop       float64         `json:"stop"`
	TakeProfit float64         `json:"take_profit"`
	Levels     Levels          `json:"fibonacci_levels"`
	CreatedAt  time.Time       `json:"created_at"`
}

// BuildSignal turns a pattern into a signal: entry at the last point,
// stop beyond the pattern extreme against the trade, target at the
// opposite extreme, with Fibonacci levels spanning the pattern range.
func BuildSignal(pattern HarmonicPattern) Signal {
	high, low := pattern.Points[0].Price, pattern.Points[0].Price
	for _, p := range pattern.Points {
		if p.Price > high {
			high = p.Price
		}
		if p.Price < low {
			low = p.Price
		}
	}

	entry := pattern.Points[4].Price
	signal := Signal{
		Pattern:    pattern,
		Confidence: pattern.Confidence,
		Entry:      entry,
		CreatedAt:  pattern.DetectedAt,
	}
	if pattern.Trend == "bullish" {
		signal.Type = SignalBullish
		signal.Stop = low
		signal.TakeProfit = high
		signal.Levels = CalculateLevels(high, low, true)
	} else {
		signal.Type = SignalBearish
		signal.Stop = high
		signal.TakeProfit = low
		signal.Levels = CalculateLevels(high, low, false)
	}
	return signal
}
