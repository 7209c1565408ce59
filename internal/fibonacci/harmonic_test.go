package fibonacci

import (
	"math"
	"testing"
	"time"
)

func feedPoints(t *testing.T, d *Detector, prices []float64) []HarmonicPattern {
	t.Helper()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var last []HarmonicPattern
	for i, price := range prices {
		last = d.AddPrice("1m", price, base.Add(time.Duration(i)*6*time.Minute))
	}
	return last
}

// Reference vector: XA=20 up, AB=12.4 down, BC=8.4 up, CD=11.3 down in an
// overall up move yields a trend-signed bearish Gartley.
func TestGartleyDetection(t *testing.T) {
	detector := NewDetector(0.15)
	patterns := feedPoints(t, detector, []float64{100, 120, 107.6, 116, 104.7})

	if len(patterns) != 1 {
		t.Fatalf("detected %d patterns, want exactly 1 (got %+v)", len(patterns), patterns)
	}
	p := patterns[0]
	if p.Type != Gartley {
		t.Errorf("Type = %s, want gartley", p.Type)
	}
	if p.Trend != "bearish" {
		t.Errorf("Trend = %s, want bearish", p.Trend)
	}
	if p.LegRatios["XA"] != 1.0 {
		t.Errorf("XA ratio = %v, want 1.0", p.LegRatios["XA"])
	}
	if math.Abs(p.LegRatios["AB"]-(-0.62)) > 0.01 {
		t.Errorf("AB ratio = %v, want ≈ -0.62", p.LegRatios["AB"])
	}
	if p.LegRatios["BC"] <= 0 || p.LegRatios["CD"] >= 0 {
		t.Errorf("leg signs wrong: BC=%v CD=%v", p.LegRatios["BC"], p.LegRatios["CD"])
	}
	if p.Confidence <= 0 || p.Confidence > 1 {
		t.Errorf("Confidence = %v, want in (0,1]", p.Confidence)
	}
	for i, label := range []string{"X", "A", "B", "C", "D"} {
		if p.Points[i].Label != label {
			t.Errorf("point %d label = %q, want %q", i, p.Points[i].Label, label)
		}
	}
}

// The mirrored sequence forms in a down move and is labeled bullish.
func TestMirroredPatternIsBullish(t *testing.T) {
	detector := NewDetector(0.15)
	patterns := feedPoints(t, detector, []float64{120, 100, 112.4, 104, 115.3})

	if len(patterns) == 0 {
		t.Fatal("expected at least one pattern")
	}
	for _, p := range patterns {
		if p.Trend != "bullish" {
			t.Errorf("Trend = %s, want bullish", p.Trend)
		}
	}
}

// Fewer than five significant points must emit nothing.
func TestTooFewSignificantPoints(t *testing.T) {
	detector := NewDetector(0.15)
	// Moves below 0.1% never qualify as significant.
	patterns := feedPoints(t, detector, []float64{100000, 100020, 100040, 100060, 100080, 100100})
	if len(patterns) != 0 {
		t.Errorf("detected %d patterns from insignificant moves, want 0", len(patterns))
	}
}

func TestAppendGating(t *testing.T) {
	detector := NewDetector(0.15)
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	detector.AddPrice("1m", 100, base)
	// Too small a price change.
	detector.AddPrice("1m", 100.005, base.Add(10*time.Minute))
	// Too soon after the previous append.
	detector.AddPrice("1m", 105, base.Add(time.Minute))
	// Qualifies on both gates.
	detector.AddPrice("1m", 105, base.Add(10*time.Minute))

	if got := len(detector.Points("1m")); got != 2 {
		t.Errorf("stream length = %d, want 2", got)
	}
}

func TestStreamBounded(t *testing.T) {
	detector := NewDetector(0.15)
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	price := 1000.0
	for i := 0; i < maxPointsPerTimeframe+50; i++ {
		price += 5
		detector.AddPrice("1m", price, base.Add(time.Duration(i)*6*time.Minute))
	}
	if got := len(detector.Points("1m")); got != maxPointsPerTimeframe {
		t.Errorf("stream length = %d, want %d", got, maxPointsPerTimeframe)
	}
}

func TestBuildSignalBearish(t *testing.T) {
	detector := NewDetector(0.15)
	patterns := feedPoints(t, detector, []float64{100, 120, 107.6, 116, 104.7})
	if len(patterns) != 1 {
		t.Fatalf("want one pattern, got %d", len(patterns))
	}
	signal := BuildSignal(patterns[0])

	if signal.Type != SignalBearish {
		t.Errorf("Type = %s, want BEARISH", signal.Type)
	}
	if signal.Entry != 104.7 {
		t.Errorf("Entry = %v, want 104.7", signal.Entry)
	}
	if signal.Stop != 120 {
		t.Errorf("Stop = %v, want pattern high 120", signal.Stop)
	}
	if signal.TakeProfit != 100 {
		t.Errorf("TakeProfit = %v, want pattern low 100", signal.TakeProfit)
	}
	if len(signal.Levels.ByRatio) == 0 {
		t.Error("signal should carry fibonacci levels")
	}
}

func TestCalculateLevelsAndNearest(t *testing.T) {
	levels := CalculateLevels(120, 100, true)
	if got := levels.ByRatio[0.5]; got != 110 {
		t.Errorf("0.5 level = %v, want 110", got)
	}
	if got := levels.ByRatio[0]; got != 120 {
		t.Errorf("0 level = %v, want 120 (uptrend retraces from high)", got)
	}

	nearest, ok := levels.Nearest(109.5)
	if !ok {
		t.Fatal("Nearest returned !ok")
	}
	if nearest.Ratio != 0.5 {
		t.Errorf("nearest ratio = %v, want 0.5", nearest.Ratio)
	}
	if nearest.DistancePct > 0.5 {
		t.Errorf("distance = %v%%, want < 0.5%%", nearest.DistancePct)
	}

	if _, ok := (Levels{}).Nearest(100); ok {
		t.Error("Nearest on empty levels should return !ok")
	}
}
