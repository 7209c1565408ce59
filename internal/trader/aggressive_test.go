package trader

import (
	"math"
	"testing"
	"time"

	"bitget-trading-bot/internal/market"
)

func aggressiveContext(trend string, momentum, volume float64) *market.Context {
	return &market.Context{
		Symbol:           "BTC/USDT:USDT",
		Price:            50000,
		Timestamp:        time.Now().UTC(),
		Trend:            trend,
		Momentum:         momentum,
		RecentVolatility: 0.02,
		VolumeMultiplier: volume,
		Regime:           "neutral",
	}
}

func TestAggressiveEntry(t *testing.T) {
	agent := NewAggressive(10000, 1)

	d := agent.ShouldEnterTrade(aggressiveContext(market.TrendUp, 0.8, 2.0))
	if !d.Enter || d.Direction != DirectionLong {
		t.Errorf("strong up momentum decision = %+v, want LONG entry", d)
	}

	d = agent.ShouldEnterTrade(aggressiveContext(market.TrendDown, -0.8, 2.0))
	if !d.Enter || d.Direction != DirectionShort {
		t.Errorf("strong down momentum decision = %+v, want SHORT entry", d)
	}
}

func TestAggressiveRejections(t *testing.T) {
	agent := NewAggressive(10000, 1)

	if d := agent.ShouldEnterTrade(aggressiveContext(market.TrendUp, 0.8, 1.2)); d.Enter {
		t.Errorf("entered without volume confirmation: %+v", d)
	}
	if d := agent.ShouldEnterTrade(aggressiveContext(market.TrendUp, 0.5, 2.0)); d.Enter {
		t.Errorf("entered below the momentum threshold: %+v", d)
	}
	// Momentum against the trend is not a setup either.
	if d := agent.ShouldEnterTrade(aggressiveContext(market.TrendDown, 0.8, 2.0)); d.Enter {
		t.Errorf("entered with momentum against the trend: %+v", d)
	}
}

func TestAggressiveStopLoss(t *testing.T) {
	agent := NewAggressive(10000, 1)
	// 1% base distance times the 0.8 multiplier.
	if got := agent.SetStopLoss(DirectionLong, 50000); got != 49600 {
		t.Errorf("long stop = %v, want 49600", got)
	}
	if got := agent.SetStopLoss(DirectionShort, 50000); got != 50400 {
		t.Errorf("short stop = %v, want 50400", got)
	}
}

func TestAggressiveTakeProfitLadder(t *testing.T) {
	agent := NewAggressive(10000, 1)
	agent.SetMinRiskReward(2.0)

	tps := agent.SetTakeProfit(DirectionLong, 50000, 49600)
	if len(tps) != 3 {
		t.Fatalf("ladder has %d rungs, want 3", len(tps))
	}
	// R = 400, reward = 800.
	wantPrices := []float64{50320, 50640, 50960}
	wantPcts := []float64{50, 30, 20}
	total := 0.0
	for i, tp := range tps {
		if math.Abs(tp.Price-wantPrices[i]) > 1e-9 {
			t.Errorf("rung %d price = %v, want %v", i, tp.Price, wantPrices[i])
		}
		if tp.Percentage != wantPcts[i] {
			t.Errorf("rung %d percentage = %v, want %v", i, tp.Percentage, wantPcts[i])
		}
		total += tp.Percentage
	}
	if total != 100 {
		t.Errorf("percentages sum to %v, want 100", total)
	}
}

func TestAggressiveLeverageScalesWithVolatility(t *testing.T) {
	calm := NewAggressive(10000, 1)
	calmCtx := aggressiveContext(market.TrendUp, 0.8, 2.0)
	calmCtx.RecentVolatility = 0.015
	calm.ShouldEnterTrade(calmCtx)
	baseLev := calm.leverage()

	wild := NewAggressive(10000, 1)
	wildCtx := aggressiveContext(market.TrendUp, 0.8, 2.0)
	wildCtx.RecentVolatility = 0.04
	wild.ShouldEnterTrade(wildCtx)
	wildLev := wild.leverage()

	if wildLev <= baseLev {
		t.Errorf("volatile leverage %d not above calm leverage %d", wildLev, baseLev)
	}
	if wildLev > 10 {
		t.Errorf("leverage %d exceeds the 10x cap", wildLev)
	}
}
