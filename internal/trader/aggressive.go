package trader

import (
	"fmt"

	"bitget-trading-bot/internal/market"
	"bitget-trading-bot/internal/position"
)

// Aggressive ladder: closer rungs, front-loaded exits.
var aggressiveLadder = []struct {
	fraction   float64
	percentage float64
}{
	{0.4, 50},
	{0.8, 30},
	{1.2, 20},
}

// momentumThreshold gates aggressive entries.
const momentumThreshold = 0.7

// AggressiveAgent chases momentum with volume confirmation: bigger risk
// per trade, tighter stops, and leverage that scales with volatility.
type AggressiveAgent struct {
	baseAgent
}

// NewAggressive creates the momentum profile.
func NewAggressive(capital float64, seed int64) *AggressiveAgent {
	agent := &AggressiveAgent{
		baseAgent: newBaseAgent(ProfileAggressive, capital, RiskParams{
			MaxRiskPerTrade:        0.05,
			BaseLeverage:           5,
			MaxLeverage:            10,
			VolatilitySizingFactor: 1.2,
			StopMultiplier:         0.8,
			TPMultiplier:           1.0,
		}, seed),
	}
	agent.risk.MinRiskReward = 1.5 + agent.rng.Float64()*1.5
	return agent
}

// SetMinRiskReward pins the ladder multiplier for reproducible tests.
func (a *AggressiveAgent) SetMinRiskReward(rr float64) {
	if rr > 0 {
		a.risk.MinRiskReward = rr
	}
}

// ShouldEnterTrade requires strong momentum backed by a volume surge,
// aligned with the trend.
func (a *AggressiveAgent) ShouldEnterTrade(ctx *market.Context) Decision {
	a.observe(ctx)
	pass := Decision{Direction: DirectionNeutral}

	if ctx == nil || ctx.Price <= 0 {
		return pass
	}
	if ctx.VolumeMultiplier <= volumeSurgeCutoff {
		pass.Reason = "no volume confirmation"
		return pass
	}

	var direction string
	switch {
	case ctx.Trend == market.TrendUp && ctx.Momentum > momentumThreshold:
		direction = DirectionLong
	case ctx.Trend == market.TrendDown && ctx.Momentum < -momentumThreshold:
		direction = DirectionShort
	default:
		pass.Reason = "momentum below threshold"
		return pass
	}

	if _, _, recommended := EntryScore(ctx); recommended != DirectionNeutral && recommended != direction {
		pass.Reason = "score recommender disagrees"
		return pass
	}

	return Decision{
		Enter:     true,
		Reason:    fmt.Sprintf("momentum %.2f with %.1fx volume", ctx.Momentum, ctx.VolumeMultiplier),
		Direction: direction,
		Leverage:  a.leverage(),
	}
}

// leverage scales up in volatile conditions, still capped at the max.
func (a *AggressiveAgent) leverage() int {
	lev := a.baseAgent.leverage()
	a.mu.Lock()
	vol := a.lastVolatility
	a.mu.Unlock()
	if vol > market.DefaultVolatility {
		lev = int(float64(lev) * a.risk.VolatilitySizingFactor)
	}
	if lev > a.risk.MaxLeverage {
		lev = a.risk.MaxLeverage
	}
	return lev
}

func (a *AggressiveAgent) DeterminePositionSize(direction string, entryPrice float64) float64 {
	stop := a.SetStopLoss(direction, entryPrice)
	return a.riskBasedSize(a.risk.MaxRiskPerTrade, entryPrice, stop, a.leverage())
}

// SetStopLoss keeps stops tight: 1% base times the 0.8 multiplier.
func (a *AggressiveAgent) SetStopLoss(direction string, entryPrice float64) float64 {
	distance := entryPrice * 0.01 * a.risk.StopMultiplier
	if direction == DirectionShort {
		return entryPrice + distance
	}
	return entryPrice - distance
}

// SetTakeProfit lays the 50/30/20 ladder at 0.4, 0.8 and 1.2 times
// R·minRR beyond the entry.
func (a *AggressiveAgent) SetTakeProfit(direction string, entryPrice, stopLoss float64) []position.TakeProfit {
	r := entryPrice - stopLoss
	if r < 0 {
		r = -r
	}
	reward := r * a.risk.MinRiskReward

	tps := make([]position.TakeProfit, 0, len(aggressiveLadder))
	for _, rung := range aggressiveLadder {
		price := entryPrice + rung.fraction*reward
		if direction == DirectionShort {
			price = entryPrice - rung.fraction*reward
		}
		tps = append(tps, position.TakeProfit{Price: price, Percentage: rung.percentage})
	}
	return tps
}
