package fibonacci

import (
	"math"
	"sync"
	"time"
)

// PatternType names a harmonic pattern.
type PatternType string

const (
	Gartley       PatternType = "gartley"
	Butterfly     PatternType = "butterfly"
	Bat           PatternType = "bat"
	Crab          PatternType = "crab"
	Cypher        PatternType = "cypher"
	Shark         PatternType = "shark"
	FiveZero      PatternType = "five_zero"
	ThreeDrives   PatternType = "three_drives"
	AntiGartley   PatternType = "anti_gartley"
	AntiButterfly PatternType = "anti_butterfly"
)

// ratioTable is the expected signed leg-ratio 4-tuple (XA, AB, BC, CD) for
// the trend-aligned orientation. XA is the reference leg (+1.0); positive
// legs advance with the overall trend, negative legs retrace against it.
// Bullish and bearish variants differ only in the trend they form against.
var ratioTable = map[PatternType][4]float64{
	Gartley:       {1.0, -0.618, 0.618, -1.272},
	Butterfly:     {1.0, -0.786, 0.618, -1.618},
	Bat:           {1.0, -0.45, 0.618, -2.0},
	Crab:          {1.0, -0.618, 0.5, -3.14},
	Cypher:        {1.0, -0.5, 1.13, -0.786},
	Shark:         {1.0, -0.5, 1.618, -0.886},
	FiveZero:      {1.0, -1.13, 1.618, -0.5},
	ThreeDrives:   {1.0, -0.618, 1.272, -1.272},
	AntiGartley:   {1.0, -0.786, 1.272, -0.618},
	AntiButterfly: {1.0, -0.618, 1.272, -0.786},
}

// Point labels in sequence order.
var pointLabels = [5]string{"X", "A", "B", "C", "D"}

// PricePoint is one immutable observation in a timeframe stream.
type PricePoint struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
}

// PatternPoint is a price point with its structural label.
type PatternPoint struct {
	PricePoint
	Label string `json:"label,omitempty"`
}

// HarmonicPattern is one detected five-point structure.
type HarmonicPattern struct {
	Type       PatternType        `json:"type"`
	Points     [5]PatternPoint    `json:"points"`
	LegRatios  map[string]float64 `json:"leg_ratios"` // XA, AB, BC, CD (signed)
	Trend      string             `json:"trend"`      // bullish or bearish
	Confidence float64            `json:"confidence"` // 0..1, tightness of the ratio match
	DetectedAt time.Time          `json:"detected_at"`
}

const (
	maxPointsPerTimeframe = 1000
	// minPriceDelta gates stream appends; quote noise below this is dropped.
	minPriceDelta = 0.01
	// significantMovePct is the minimum consecutive percentage change for a
	// point to participate in detection.
	significantMovePct = 0.1
	// appendIntervalFactor: points are spaced at least 5 timeframe units apart.
	appendIntervalFactor = 5

	// DefaultTolerance is the relative deviation allowed per leg ratio.
	DefaultTolerance = 0.15
)

// timeframeStream holds the bounded point FIFO for one timeframe.
type timeframeStream struct {
	points      []PatternPoint
	minInterval time.Duration
}

// Detector matches five-point sequences against the pattern catalog.
type Detector struct {
	mu         sync.Mutex
	timeframes map[string]*timeframeStream
	tolerance  float64
}

// NewDetector creates a detector. Non-positive tolerance falls back to the
// default 15%.
func NewDetector(tolerance float64) *Detector {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Detector{
		timeframes: make(map[string]*timeframeStream),
		tolerance:  tolerance,
	}
}

// timeframeDuration parses labels like "1m", "5m", "15m", "1h".
func timeframeDuration(timeframe string) time.Duration {
	if d, err := time.ParseDuration(timeframe); err == nil {
		return d
	}
	return time.Minute
}

// AddPrice ingests one observation for a timeframe and returns any
// patterns completed by it. A point is appended only when the price moved
// at least minPriceDelta and enough time passed since the last append.
func (d *Detector) AddPrice(timeframe string, price float64, ts time.Time) []HarmonicPattern {
	d.mu.Lock()
	defer d.mu.Unlock()

	stream, ok := d.timeframes[timeframe]
	if !ok {
		stream = &timeframeStream{
			minInterval: appendIntervalFactor * timeframeDuration(timeframe),
		}
		d.timeframes[timeframe] = stream
	}

	if n := len(stream.points); n > 0 {
		last := stream.points[n-1]
		if math.Abs(price-last.Price) < minPriceDelta {
			return nil
		}
		if ts.Sub(last.Timestamp) < stream.minInterval {
			return nil
		}
	}

	stream.points = append(stream.points, PatternPoint{
		PricePoint: PricePoint{Price: price, Timestamp: ts},
	})
	if len(stream.points) > maxPointsPerTimeframe {
		stream.points = stream.points[len(stream.points)-maxPointsPerTimeframe:]
	}

	return d.detect(stream.points)
}

// Points returns a copy of the current stream for a timeframe.
func (d *Detector) Points(timeframe string) []PatternPoint {
	d.mu.Lock()
	defer d.mu.Unlock()
	stream, ok := d.timeframes[timeframe]
	if !ok {
		return nil
	}
	return append([]PatternPoint(nil), stream.points...)
}

// significantPoints walks back from the newest point collecting up to five
// points whose consecutive percentage change is at least significantMovePct.
func significantPoints(points []PatternPoint) []PatternPoint {
	if len(points) == 0 {
		return nil
	}
	selected := []PatternPoint{points[len(points)-1]}
	for i := len(points) - 2; i >= 0 && len(selected) < 5; i-- {
		prev := selected[len(selected)-1]
		changePct := math.Abs(points[i].Price-prev.Price) / prev.Price * 100
		if changePct >= significantMovePct {
			selected = append(selected, points[i])
		}
	}
	if len(selected) < 5 {
		return nil
	}
	// Oldest first: X, A, B, C, D.
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return selected
}

// detect classifies the last five significant points against the catalog.
func (d *Detector) detect(points []PatternPoint) []HarmonicPattern {
	five := significantPoints(points)
	if five == nil {
		return nil
	}
	for i := range five {
		five[i].Label = pointLabels[i]
	}

	trendSign := 1.0
	trend := "bullish"
	if five[4].Price < five[0].Price {
		trendSign = -1
		trend = "bearish"
	}

	// Leg lengths and signed ratios. XA is the reference; each later leg's
	// sign records whether it advances with the overall trend or retraces.
	var legs [4]float64
	var signs [4]float64
	for i := 0; i < 4; i++ {
		move := five[i+1].Price - five[i].Price
		legs[i] = math.Abs(move)
		if move*trendSign >= 0 {
			signs[i] = 1
		} else {
			signs[i] = -1
		}
	}
	if legs[0] == 0 || legs[1] == 0 || legs[2] == 0 {
		return nil
	}

	ratios := [4]float64{
		signs[0] * 1.0,
		signs[1] * legs[1] / legs[0],
		signs[2] * legs[2] / legs[1],
		signs[3] * legs[3] / legs[2],
	}

	// A pattern completing in an up move projects a reversal down, so the
	// emitted trend label is the opposite of the overall move.
	patternTrend := "bearish"
	if trend == "bearish" {
		patternTrend = "bullish"
	}

	var detected []HarmonicPattern
	var fixed [5]PatternPoint
	copy(fixed[:], five)

	for patternType, expected := range ratioTable {
		confidence, ok := d.matchRatios(ratios, expected)
		if !ok {
			continue
		}
		detected = append(detected, HarmonicPattern{
			Type:   patternType,
			Points: fixed,
			LegRatios: map[string]float64{
				"XA": ratios[0],
				"AB": ratios[1],
				"BC": ratios[2],
				"CD": ratios[3],
			},
			Trend:      patternTrend,
			Confidence: confidence,
			DetectedAt: five[4].Timestamp,
		})
	}
	return detected
}

// matchRatios checks every signed leg ratio against its expected value
// within the relative tolerance, and scores how tight the match is.
func (d *Detector) matchRatios(got [4]float64, expected [4]float64) (float64, bool) {
	totalErr := 0.0
	for i := 0; i < 4; i++ {
		if got[i]*expected[i] < 0 {
			return 0, false // sign disagreement
		}
		allowed := d.tolerance * math.Abs(expected[i])
		diff := math.Abs(math.Abs(got[i]) - math.Abs(expected[i]))
		if diff > allowed {
			return 0, false
		}
		totalErr += diff / allowed
	}
	// 1.0 for exact ratios, approaching the floor as legs reach tolerance.
	confidence := 1 - 0.5*(totalErr/4)
	return confidence, true
}
