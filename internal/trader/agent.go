// Package trader implements the four personality agents. They share one
// interface and the psychological dynamics after closed trades, and
// differ in risk parameters, entry logic, sizing and exit construction.
package trader

import (
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bitget-trading-bot/internal/logging"
	"bitget-trading-bot/internal/market"
	"bitget-trading-bot/internal/position"
)

// Profile names.
const (
	ProfileStrategic  = "strategic"
	ProfileAggressive = "aggressive"
	ProfileNewbie     = "newbie"
	ProfileScalper    = "scalper"
)

// Decision directions.
const (
	DirectionLong    = position.DirectionLong
	DirectionShort   = position.DirectionShort
	DirectionNeutral = "NEUTRAL"
)

// Decision is one agent's answer to "enter now?".
type Decision struct {
	Enter     bool   `json:"enter"`
	Reason    string `json:"reason"`
	Direction string `json:"direction"`
	Leverage  int    `json:"leverage"`
}

// RiskParams are the per-profile risk settings.
type RiskParams struct {
	MaxRiskPerTrade        float64 `json:"max_risk_per_trade"`
	BaseLeverage           int     `json:"base_leverage"`
	MaxLeverage            int     `json:"max_leverage"`
	MinRiskReward          float64 `json:"min_risk_reward_ratio"`
	VolatilitySizingFactor float64 `json:"volatility_sizing_factor"`
	StopMultiplier         float64 `json:"stop_multiplier"`
	TPMultiplier           float64 `json:"tp_multiplier"`
}

// Performance tracks closed-trade outcomes per agent.
type Performance struct {
	TotalTrades   int           `json:"total_trades"`
	Wins          int           `json:"wins"`
	Losses        int           `json:"losses"`
	WinRate       float64       `json:"win_rate"`
	Drawdown      float64       `json:"drawdown"`
	AvgDuration   time.Duration `json:"avg_duration"`
	totalDuration time.Duration
}

// Agent is the shared surface of all personality profiles.
type Agent interface {
	Profile() string
	Capital() float64
	Risk() RiskParams
	Psychology() PsychologicalState
	Metrics() Performance

	// ShouldEnterTrade inspects the market context and decides whether
	// to open, in which direction, and at what leverage.
	ShouldEnterTrade(ctx *market.Context) Decision
	// DeterminePositionSize returns the size in base-asset units.
	DeterminePositionSize(direction string, entryPrice float64) float64
	// SetStopLoss returns the stop price for an entry.
	SetStopLoss(direction string, entryPrice float64) float64
	// SetTakeProfit builds the exit ladder for an entry.
	SetTakeProfit(direction string, entryPrice, stopLoss float64) []position.TakeProfit
	// ProcessTradeResult feeds a closed trade back into capital,
	// performance counters and psychological state.
	ProcessTradeResult(pnl float64, duration time.Duration)
}

// LiquidationTracker is implemented by agents that keep liquidation
// statistics. The position engine notifies it on liquidation events.
type LiquidationTracker interface {
	RecordLiquidation(near bool)
}

// baseAgent carries the state every profile shares.
type baseAgent struct {
	mu             sync.Mutex
	profile        string
	capital        float64
	initialCapital float64
	peakCapital    float64
	psych          PsychologicalState
	risk           RiskParams
	perf           Performance
	rng            *rand.Rand
	logger         zerolog.Logger

	// fearfulAfter is the consecutive-loss count that flips the agent
	// into the fearful state.
	fearfulAfter int
	// lastVolatility and lastPrice cache the most recent context so
	// sizing and stops can account for conditions at decision time.
	lastVolatility float64
	lastPrice      float64
}

func newBaseAgent(profile string, capital float64, risk RiskParams, seed int64) baseAgent {
	return baseAgent{
		profile:        profile,
		capital:        capital,
		initialCapital: capital,
		peakCapital:    capital,
		psych:          newPsychologicalState(),
		risk:           risk,
		rng:            rand.New(rand.NewSource(seed)),
		logger:         logging.Component("trader").With().Str("profile", profile).Logger(),
		fearfulAfter:   3,
		lastVolatility: market.DefaultVolatility,
	}
}

func (b *baseAgent) Profile() string { return b.profile }

func (b *baseAgent) Capital() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capital
}

func (b *baseAgent) Risk() RiskParams { return b.risk }

func (b *baseAgent) Psychology() PsychologicalState {
	b.mu.Lock()
	defer b.mu.Unlock()
	state := b.psych
	state.RecentTrades = append([]TradeResult(nil), b.psych.RecentTrades...)
	return state
}

func (b *baseAgent) Metrics() Performance {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.perf
}

// observe caches decision-time market conditions.
func (b *baseAgent) observe(ctx *market.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ctx.RecentVolatility > 0 {
		b.lastVolatility = ctx.RecentVolatility
	}
	if ctx.Price > 0 {
		b.lastPrice = ctx.Price
	}
}

// leverage applies the emotional multiplier to the base and clamps to
// the profile maximum, never below 1.
func (b *baseAgent) leverage() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	lev := int(float64(b.risk.BaseLeverage) * b.psych.LeverageMultiplier())
	if lev > b.risk.MaxLeverage {
		lev = b.risk.MaxLeverage
	}
	if lev < 1 {
		lev = 1
	}
	return lev
}

// ProcessTradeResult applies the shared psychological dynamics.
func (b *baseAgent) ProcessTradeResult(pnl float64, duration time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.applyTradeResult(pnl, duration)
}

// applyTradeResult must be called with the mutex held.
func (b *baseAgent) applyTradeResult(pnl float64, duration time.Duration) {
	b.capital += pnl
	if b.capital < 0 {
		b.capital = 0
	}
	if b.capital > b.peakCapital {
		b.peakCapital = b.capital
	}

	b.perf.TotalTrades++
	b.perf.totalDuration += duration
	b.perf.AvgDuration = b.perf.totalDuration / time.Duration(b.perf.TotalTrades)
	if b.peakCapital > 0 {
		b.perf.Drawdown = (b.peakCapital - b.capital) / b.peakCapital
	}

	if pnl > 0 {
		b.perf.Wins++
		b.psych.ConsecutiveWins++
		b.psych.ConsecutiveLosses = 0
		b.psych.Confidence = clamp(b.psych.Confidence+0.1, 0, 1.0)
		b.psych.Stress = clamp(b.psych.Stress-0.05, 0, 1.0)
		if b.psych.ConsecutiveWins >= 3 || b.rng.Float64() < 0.15*float64(b.psych.ConsecutiveWins) {
			b.psych.EmotionalState = StateGreedy
		}
	} else {
		b.perf.Losses++
		b.psych.ConsecutiveLosses++
		b.psych.ConsecutiveWins = 0
		b.psych.Confidence = clamp(b.psych.Confidence-0.15, 0.1, 1.0)
		b.psych.Stress = clamp(b.psych.Stress+0.2, 0, 1.0)
		if b.psych.ConsecutiveLosses >= b.fearfulAfter {
			b.psych.EmotionalState = StateFearful
		}
	}
	b.perf.WinRate = float64(b.perf.Wins) / float64(b.perf.TotalTrades)
	b.psych.remember(TradeResult{PnL: pnl, Duration: duration, ClosedAt: time.Now().UTC()})

	b.logger.Debug().
		Float64("pnl", pnl).
		Float64("capital", b.capital).
		Str("state", string(b.psych.EmotionalState)).
		Msg("trade result processed")
}

// riskBasedSize converts the capital at risk into base-asset units so
// that a leveraged stop-out loses exactly the risked amount.
func (b *baseAgent) riskBasedSize(riskFraction, entryPrice, stopPrice float64, leverage int) float64 {
	if entryPrice <= 0 || leverage < 1 {
		return 0
	}
	stopDistance := entryPrice - stopPrice
	if stopDistance < 0 {
		stopDistance = -stopDistance
	}
	if stopDistance == 0 {
		return 0
	}
	b.mu.Lock()
	riskAmount := b.capital * riskFraction
	b.mu.Unlock()
	return riskAmount / (stopDistance * float64(leverage))
}
