package trader

import (
	"fmt"

	"bitget-trading-bot/internal/market"
	"bitget-trading-bot/internal/position"
)

// Strategic ladder: fractions of R·minRR exited at each rung, with the
// extension ratio each rung is tagged with for analytics.
var strategicLadder = []struct {
	fraction   float64
	percentage float64
	fibLevel   float64
}{
	{0.6, 40, 0.618},
	{1.0, 40, 1.0},
	{1.5, 20, 1.618},
}

// StrategicAgent trades Fibonacci retracement retests with the trend.
// Disciplined: 2% risk per trade, moderate leverage, wide stops scaled
// by volatility, and a three-rung extension ladder.
type StrategicAgent struct {
	baseAgent

	// touches remembers whether each of the last few observed prices was
	// inside the proximity band of the nearest level, newest last.
	touches []bool
}

// NewStrategic creates the strategic profile. The seed drives the
// min-risk-reward draw and any probabilistic state transitions.
func NewStrategic(capital float64, seed int64) *StrategicAgent {
	agent := &StrategicAgent{
		baseAgent: newBaseAgent(ProfileStrategic, capital, RiskParams{
			MaxRiskPerTrade:        0.02,
			BaseLeverage:           11,
			MaxLeverage:            15,
			VolatilitySizingFactor: 1.0,
			StopMultiplier:         2.0,
			TPMultiplier:           1.0,
		}, seed),
	}
	// min RR drawn once per agent from U(1.5, 3.0).
	agent.risk.MinRiskReward = 1.5 + agent.rng.Float64()*1.5
	return agent
}

// SetMinRiskReward pins the ladder multiplier, overriding the random
// draw. Used for reproducible backtests.
func (s *StrategicAgent) SetMinRiskReward(rr float64) {
	if rr > 0 {
		s.risk.MinRiskReward = rr
	}
}

// ShouldEnterTrade requires price near a Fibonacci level, a retest of
// that level within the recent observations, and trend alignment.
func (s *StrategicAgent) ShouldEnterTrade(ctx *market.Context) Decision {
	s.observe(ctx)
	pass := Decision{Direction: DirectionNeutral}

	if ctx == nil || ctx.Price <= 0 || ctx.NearestFib == nil {
		return pass
	}

	s.recordTouch(ctx.NearFib)
	if !ctx.NearFib {
		return pass
	}
	if !s.retestConfirmed() {
		pass.Reason = "no retest confirmation yet"
		return pass
	}

	level := ctx.NearestFib.Price
	isSupport := ctx.Price >= level
	var direction string
	switch {
	case ctx.Trend == market.TrendUp && isSupport:
		direction = DirectionLong
	case ctx.Trend == market.TrendDown && !isSupport:
		direction = DirectionShort
	default:
		return pass
	}

	// Score recommender consulted as confirmation: a strong opposing
	// recommendation vetoes the setup.
	if _, _, recommended := EntryScore(ctx); recommended != DirectionNeutral && recommended != direction {
		pass.Reason = "score recommender disagrees"
		return pass
	}

	return Decision{
		Enter:     true,
		Reason:    fmt.Sprintf("retest of %.3f level at %.2f with %s", ctx.NearestFib.Ratio, level, ctx.Trend),
		Direction: direction,
		Leverage:  s.leverage(),
	}
}

// recordTouch tracks the last five observations of band membership.
func (s *StrategicAgent) recordTouch(inBand bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touches = append(s.touches, inBand)
	if len(s.touches) > 5 {
		s.touches = s.touches[len(s.touches)-5:]
	}
}

// retestConfirmed: among the recent observations, price was inside the
// band and then left it at least once before the current approach.
func (s *StrategicAgent) retestConfirmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	touched := false
	for _, inBand := range s.touches[:max(len(s.touches)-1, 0)] {
		if inBand {
			touched = true
		} else if touched {
			return true
		}
	}
	return false
}

func (s *StrategicAgent) DeterminePositionSize(direction string, entryPrice float64) float64 {
	stop := s.SetStopLoss(direction, entryPrice)
	return s.riskBasedSize(s.risk.MaxRiskPerTrade, entryPrice, stop, s.leverage())
}

// SetStopLoss places the stop 2% away, widened by current volatility
// and the profile's stop multiplier.
func (s *StrategicAgent) SetStopLoss(direction string, entryPrice float64) float64 {
	s.mu.Lock()
	vol := s.lastVolatility
	s.mu.Unlock()
	distance := entryPrice * 0.02 * (1 + vol) * s.risk.StopMultiplier
	if direction == DirectionShort {
		return entryPrice + distance
	}
	return entryPrice - distance
}

// SetTakeProfit lays the 40/40/20 extension ladder at 0.6, 1.0 and 1.5
// times R·minRR beyond the entry.
func (s *StrategicAgent) SetTakeProfit(direction string, entryPrice, stopLoss float64) []position.TakeProfit {
	r := entryPrice - stopLoss
	if r < 0 {
		r = -r
	}
	reward := r * s.risk.MinRiskReward

	tps := make([]position.TakeProfit, 0, len(strategicLadder))
	for _, rung := range strategicLadder {
		price := entryPrice + rung.fraction*reward
		if direction == DirectionShort {
			price = entryPrice - rung.fraction*reward
		}
		tps = append(tps, position.TakeProfit{
			Price:      price,
			Percentage: rung.percentage,
			FibLevel:   rung.fibLevel,
		})
	}
	return tps
}
