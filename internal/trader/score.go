package trader

import "bitget-trading-bot/internal/market"

// Entry-score weights. A directional score of 50 or more enables a
// recommendation; the trap and volatility penalties apply to both sides.
const (
	scoreFibNearby       = 25.0
	scoreTrendAligned    = 20.0
	scoreShortTFAligned  = 15.0
	scoreVolumeSurge     = 15.0
	scoreRegimeBonus     = 10.0
	scoreTrapPenalty     = -40.0
	scoreVolPenalty      = -20.0
	scoreEntryThreshold  = 50.0
	highVolatilityCutoff = 0.05
	volumeSurgeCutoff    = 1.5
)

// EntryScore weighs the context into bullish and bearish scores and, if
// one of them clears the threshold, a recommended direction. Agents that
// opt in treat the recommendation as advisory confirmation.
func EntryScore(ctx *market.Context) (bullish, bearish float64, direction string) {
	if ctx == nil {
		return 0, 0, DirectionNeutral
	}

	if ctx.NearFib {
		bullish += scoreFibNearby
		bearish += scoreFibNearby
	}

	switch ctx.Trend {
	case market.TrendUp:
		bullish += scoreTrendAligned
	case market.TrendDown:
		bearish += scoreTrendAligned
	}

	// Short-timeframe alignment: momentum agreeing with the trend.
	if ctx.Momentum > 0.3 && ctx.Trend == market.TrendUp {
		bullish += scoreShortTFAligned
	}
	if ctx.Momentum < -0.3 && ctx.Trend == market.TrendDown {
		bearish += scoreShortTFAligned
	}

	if ctx.VolumeMultiplier > volumeSurgeCutoff {
		bullish += scoreVolumeSurge
		bearish += scoreVolumeSurge
	}

	switch ctx.Regime {
	case "bullish":
		bullish += scoreRegimeBonus
	case "bearish":
		bearish += scoreRegimeBonus
	}

	if ctx.RecentTrap != nil {
		bullish += scoreTrapPenalty
		bearish += scoreTrapPenalty
	}
	if ctx.RecentVolatility > highVolatilityCutoff {
		bullish += scoreVolPenalty
		bearish += scoreVolPenalty
	}

	direction = DirectionNeutral
	if bullish >= scoreEntryThreshold && bullish >= bearish {
		direction = DirectionLong
	} else if bearish >= scoreEntryThreshold && bearish > bullish {
		direction = DirectionShort
	}
	return bullish, bearish, direction
}
