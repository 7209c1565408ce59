package market

import (
	"math/rand"
	"time"

	"bitget-trading-bot/internal/bitget"
)

const syntheticBookDepth = 10

// SyntheticBook generates a plausible order book around a mid price for
// use when the live book is unavailable. A fixed seed makes the output
// reproducible across runs.
type SyntheticBook struct {
	symbol string
	rng    *rand.Rand
}

// NewSyntheticBook creates a generator seeded for deterministic output.
func NewSyntheticBook(symbol string, seed int64) *SyntheticBook {
	return &SyntheticBook{
		symbol: symbol,
		rng:    rand.New(rand.NewSource(seed)),
	}
}

// Generate builds a 10-level book around mid. The spread is roughly one
// basis point of mid and sizes thin out away from the touch, with mild
// random variation on both sides.
func (sb *SyntheticBook) Generate(mid float64, ts time.Time) *bitget.OrderBook {
	if mid <= 0 {
		return nil
	}
	halfSpread := mid * 0.00005 * (1 + sb.rng.Float64())
	step := mid * 0.0001

	bids := make([]bitget.BookLevel, syntheticBookDepth)
	asks := make([]bitget.BookLevel, syntheticBookDepth)
	for i := 0; i < syntheticBookDepth; i++ {
		depthDecay := 1.0 / float64(i+1)
		bids[i] = bitget.BookLevel{
			Price: mid - halfSpread - step*float64(i),
			Size:  (0.5 + sb.rng.Float64()) * 10 * depthDecay,
		}
		asks[i] = bitget.BookLevel{
			Price: mid + halfSpread + step*float64(i),
			Size:  (0.5 + sb.rng.Float64()) * 10 * depthDecay,
		}
	}

	return &bitget.OrderBook{
		Symbol:    sb.symbol,
		Bids:      bids,
		Asks:      asks,
		Spread:    asks[0].Price - bids[0].Price,
		MidPrice:  mid,
		Timestamp: ts,
	}
}

// BookImbalance returns buy pressure minus sell pressure, normalized to
// [-1, 1] by total visible size. Positive values mean bid-heavy.
func BookImbalance(book *bitget.OrderBook) float64 {
	if book == nil {
		return 0
	}
	var bidSize, askSize float64
	for _, level := range book.Bids {
		bidSize += level.Size
	}
	for _, level := range book.Asks {
		askSize += level.Size
	}
	total := bidSize + askSize
	if total == 0 {
		return 0
	}
	return (bidSize - askSize) / total
}
