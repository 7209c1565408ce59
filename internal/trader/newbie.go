package trader

import (
	"fmt"
	"time"

	"bitget-trading-bot/internal/market"
	"bitget-trading-bot/internal/position"
)

// Newbie ladder: moonshot targets, most size reserved for the +100%.
var newbieLadder = []struct {
	movePct    float64
	percentage float64
}{
	{10, 20},
	{25, 30},
	{100, 50},
}

// NewbieAgent simulates an undisciplined retail trader: outsized risk,
// maximum leverage, sentiment-driven entries, revenge trades and stops
// that frequently do not exist.
type NewbieAgent struct {
	baseAgent

	influencerTrust float64

	// Social-media career statistics.
	FomoTrades        int `json:"fomo_trades"`
	PanicSells        int `json:"panic_sells"`
	LiquidationEvents int `json:"liquidation_events"`
	NearLiquidations  int `json:"near_liquidations"`
}

// NewNewbie creates the retail profile.
func NewNewbie(capital float64, seed int64) *NewbieAgent {
	agent := &NewbieAgent{
		baseAgent: newBaseAgent(ProfileNewbie, capital, RiskParams{
			MaxRiskPerTrade: 0.5,
			BaseLeverage:    50,
			MaxLeverage:     100,
			MinRiskReward:   1.0,
			StopMultiplier:  1.0,
			TPMultiplier:    1.0,
		}, seed),
	}
	agent.influencerTrust = 0.5 + agent.rng.Float64()*0.5
	return agent
}

// socialSentiment synthesizes a crowd-mood scalar in [-1, 1] leaning
// the way price has been moving.
func (n *NewbieAgent) socialSentiment(ctx *market.Context) float64 {
	noise := (n.rng.Float64() - 0.5) * 0.8
	return clamp(ctx.Momentum+noise, -1, 1)
}

// ShouldEnterTrade chases FOMO, FUD, influencer tips and revenge.
func (n *NewbieAgent) ShouldEnterTrade(ctx *market.Context) Decision {
	n.observe(ctx)
	pass := Decision{Direction: DirectionNeutral}

	if ctx == nil || ctx.Price <= 0 {
		return pass
	}

	// Revenge trade: after two straight losses, double down to win it back.
	n.mu.Lock()
	losses := n.psych.ConsecutiveLosses
	n.mu.Unlock()
	if losses >= 2 && n.rng.Float64() < 0.7 {
		direction := DirectionLong
		if n.rng.Float64() < 0.5 {
			direction = DirectionShort
		}
		n.setState(StateRevenge)
		return Decision{
			Enter:     true,
			Reason:    "revenge trade, gotta win it back",
			Direction: direction,
			Leverage:  n.leverage(),
		}
	}

	sentiment := n.socialSentiment(ctx)
	switch {
	case ctx.Momentum > 0 && sentiment > 0.3:
		n.mu.Lock()
		n.FomoTrades++
		n.mu.Unlock()
		n.setState(StateFomo)
		return Decision{
			Enter:     true,
			Reason:    fmt.Sprintf("everyone is buying, sentiment %.2f", sentiment),
			Direction: DirectionLong,
			Leverage:  n.leverage(),
		}
	case ctx.Momentum < 0 && sentiment < -0.3:
		n.setState(StateFud)
		return Decision{
			Enter:     true,
			Reason:    fmt.Sprintf("it is all going to zero, sentiment %.2f", sentiment),
			Direction: DirectionShort,
			Leverage:  n.leverage(),
		}
	}

	// Influencer tip: random direction, trust-weighted probability.
	if n.rng.Float64() < 0.3*n.influencerTrust {
		direction := DirectionLong
		if n.rng.Float64() < 0.5 {
			direction = DirectionShort
		}
		n.setState(StateHype)
		return Decision{
			Enter:     true,
			Reason:    "influencer said this is the play",
			Direction: direction,
			Leverage:  n.leverage(),
		}
	}

	return pass
}

func (n *NewbieAgent) setState(state EmotionalState) {
	n.mu.Lock()
	n.psych.EmotionalState = state
	n.mu.Unlock()
}

// leverage: base 50x, up to the full 100x when euphoric.
func (n *NewbieAgent) leverage() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	lev := n.risk.BaseLeverage
	if n.psych.EmotionalState == StateEuphoric {
		lev = n.risk.MaxLeverage
	}
	if n.psych.EmotionalState == StateRevenge {
		lev = int(float64(lev) * 1.5)
	}
	if lev > n.risk.MaxLeverage {
		lev = n.risk.MaxLeverage
	}
	return lev
}

// DeterminePositionSize commits 20-50% of remaining capital per trade.
func (n *NewbieAgent) DeterminePositionSize(direction string, entryPrice float64) float64 {
	if entryPrice <= 0 {
		return 0
	}
	riskFraction := 0.2 + n.rng.Float64()*0.3
	n.mu.Lock()
	if n.psych.ConsecutiveLosses >= 2 {
		riskFraction = n.risk.MaxRiskPerTrade // all-in revenge sizing
	}
	margin := n.capital * riskFraction
	n.mu.Unlock()
	return margin / entryPrice
}

// SetStopLoss: 30% of the time there is effectively no stop (it sits at
// the liquidation distance); otherwise a loose 5-15% stop.
func (n *NewbieAgent) SetStopLoss(direction string, entryPrice float64) float64 {
	var distancePct float64
	if n.rng.Float64() < 0.3 {
		distancePct = 1 / float64(n.leverage()) // full margin loss
	} else {
		distancePct = 0.05 + n.rng.Float64()*0.10
	}
	distance := entryPrice * distancePct
	if direction == DirectionShort {
		return entryPrice + distance
	}
	return entryPrice - distance
}

// SetTakeProfit dreams big: +10%, +25% and +100% moves.
func (n *NewbieAgent) SetTakeProfit(direction string, entryPrice, _ float64) []position.TakeProfit {
	tps := make([]position.TakeProfit, 0, len(newbieLadder))
	for _, rung := range newbieLadder {
		price := entryPrice * (1 + rung.movePct/100)
		if direction == DirectionShort {
			price = entryPrice * (1 - rung.movePct/100)
		}
		tps = append(tps, position.TakeProfit{Price: price, Percentage: rung.percentage})
	}
	return tps
}

// ProcessTradeResult amplifies the shared dynamics: wins trend toward
// euphoria, losses oscillate between panic and revenge.
func (n *NewbieAgent) ProcessTradeResult(pnl float64, duration time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.applyTradeResult(pnl, duration)

	if pnl > 0 {
		if n.psych.ConsecutiveWins >= 2 || n.rng.Float64() < 0.4 {
			n.psych.EmotionalState = StateEuphoric
		}
		return
	}
	if n.rng.Float64() < 0.5 {
		n.psych.EmotionalState = StatePanic
		n.PanicSells++
	} else {
		n.psych.EmotionalState = StateRevenge
	}
}

// RecordLiquidation tracks blown and nearly blown accounts.
func (n *NewbieAgent) RecordLiquidation(near bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if near {
		n.NearLiquidations++
		return
	}
	n.LiquidationEvents++
}

var _ LiquidationTracker = (*NewbieAgent)(nil)
