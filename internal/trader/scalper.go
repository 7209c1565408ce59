package trader

import (
	"fmt"
	"time"

	"bitget-trading-bot/internal/market"
	"bitget-trading-bot/internal/position"
)

// ScalperAgent trades order-book imbalance with tiny targets and a hard
// trades-per-hour cap. Stress degrades focus and forces rest breaks.
type ScalperAgent struct {
	baseAgent

	tradesPerHourCap int
	entryTimes       []time.Time
	burnoutRisk      float64
	now              func() time.Time
}

// NewScalper creates the scalper profile.
func NewScalper(capital float64, seed int64) *ScalperAgent {
	agent := &ScalperAgent{
		baseAgent: newBaseAgent(ProfileScalper, capital, RiskParams{
			MaxRiskPerTrade: 0.02,
			BaseLeverage:    15,
			MaxLeverage:     20,
			MinRiskReward:   1.0,
			StopMultiplier:  1.0,
			TPMultiplier:    1.0,
		}, seed),
		now: time.Now,
	}
	// The mechanical scalper only turns fearful after a longer streak.
	agent.fearfulAfter = 5
	agent.tradesPerHourCap = 5 + agent.rng.Intn(16)
	return agent
}

// effectiveFocus shrinks as stress and burnout accumulate.
func (s *ScalperAgent) effectiveFocus() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clamp(1-0.4*s.psych.Stress-0.4*s.burnoutRisk, 0.2, 1)
}

// ShouldEnterTrade reads book pressure: enter with the heavy side once
// the imbalance clears a focus-scaled threshold.
func (s *ScalperAgent) ShouldEnterTrade(ctx *market.Context) Decision {
	s.observe(ctx)
	pass := Decision{Direction: DirectionNeutral}

	if ctx == nil || ctx.Price <= 0 || ctx.OrderBook == nil {
		return pass
	}

	s.mu.Lock()
	burnout := s.burnoutRisk
	s.mu.Unlock()
	if burnout > 0.8 {
		pass.Reason = "resting, burned out"
		return pass
	}
	if !s.underHourlyCap() {
		pass.Reason = "hourly trade cap reached"
		return pass
	}

	imbalance := market.BookImbalance(ctx.OrderBook)
	threshold := 0.2 / s.effectiveFocus()

	var direction string
	switch {
	case imbalance > threshold:
		direction = DirectionLong
	case imbalance < -threshold:
		direction = DirectionShort
	default:
		return pass
	}

	s.recordEntry()
	return Decision{
		Enter:     true,
		Reason:    fmt.Sprintf("book imbalance %.2f", imbalance),
		Direction: direction,
		Leverage:  s.leverage(),
	}
}

// underHourlyCap counts entries in the trailing hour. Entries aging out
// of the window count as rest and pay back burnout.
func (s *ScalperAgent) underHourlyCap() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-time.Hour)
	recent := s.entryTimes[:0]
	for _, t := range s.entryTimes {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	rested := len(s.entryTimes) - len(recent)
	s.entryTimes = recent
	s.burnoutRisk = clamp(s.burnoutRisk-0.2*float64(rested), 0, 1)
	return len(s.entryTimes) < s.tradesPerHourCap
}

func (s *ScalperAgent) recordEntry() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entryTimes = append(s.entryTimes, s.now())
	s.burnoutRisk = clamp(s.burnoutRisk+0.5/float64(s.tradesPerHourCap), 0, 1)
}

// leverage runs 10-20x, scaled down under stress.
func (s *ScalperAgent) leverage() int {
	lev := s.baseAgent.leverage()
	s.mu.Lock()
	stress := s.psych.Stress
	s.mu.Unlock()
	if stress > 0.5 {
		lev = int(float64(lev) * 0.7)
	}
	if lev < 10 {
		lev = 10
	}
	return lev
}

func (s *ScalperAgent) DeterminePositionSize(direction string, entryPrice float64) float64 {
	riskFraction := 0.01 + s.rng.Float64()*0.01
	stop := s.SetStopLoss(direction, entryPrice)
	return s.riskBasedSize(riskFraction, entryPrice, stop, s.leverage())
}

// SetStopLoss keeps stops inside 0.1-0.3% of entry.
func (s *ScalperAgent) SetStopLoss(direction string, entryPrice float64) float64 {
	distance := entryPrice * (0.001 + s.rng.Float64()*0.002)
	if direction == DirectionShort {
		return entryPrice + distance
	}
	return entryPrice - distance
}

// SetTakeProfit exits everything at one 0.2-0.5% target.
func (s *ScalperAgent) SetTakeProfit(direction string, entryPrice, _ float64) []position.TakeProfit {
	distance := entryPrice * (0.002 + s.rng.Float64()*0.003)
	price := entryPrice + distance
	if direction == DirectionShort {
		price = entryPrice - distance
	}
	return []position.TakeProfit{{Price: price, Percentage: 100}}
}

// ProcessTradeResult adds rest-driven burnout recovery on top of the
// shared dynamics.
func (s *ScalperAgent) ProcessTradeResult(pnl float64, duration time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyTradeResult(pnl, duration)
	if pnl > 0 {
		s.burnoutRisk = clamp(s.burnoutRisk-0.05, 0, 1)
	}
}
