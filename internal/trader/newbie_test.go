package trader

import (
	"strings"
	"testing"
	"time"

	"bitget-trading-bot/internal/market"
)

func newbieContext(momentum float64) *market.Context {
	return &market.Context{
		Symbol:           "BTC/USDT:USDT",
		Price:            50000,
		Timestamp:        time.Now().UTC(),
		Trend:            market.TrendNeutral,
		Momentum:         momentum,
		RecentVolatility: 0.02,
		VolumeMultiplier: 1.0,
		Regime:           "neutral",
	}
}

func TestNewbieFomoEntry(t *testing.T) {
	agent := NewNewbie(10000, 3)

	// Strong positive momentum pushes sentiment above the FOMO bar on
	// most draws; scan a few ticks for the inevitable FOMO long.
	var entered bool
	for i := 0; i < 30 && !entered; i++ {
		d := agent.ShouldEnterTrade(newbieContext(0.9))
		if d.Enter && d.Direction == DirectionLong {
			entered = true
		}
	}
	if !entered {
		t.Fatal("newbie never FOMO-ed into a rising market")
	}
	if agent.FomoTrades == 0 {
		t.Error("fomo_trades counter not incremented")
	}
}

func TestNewbieRevengeTradeAfterTwoLosses(t *testing.T) {
	agent := NewNewbie(10000, 1)
	agent.ProcessTradeResult(-500, time.Minute)
	agent.ProcessTradeResult(-500, time.Minute)

	var revenge bool
	for i := 0; i < 30 && !revenge; i++ {
		d := agent.ShouldEnterTrade(newbieContext(0))
		if d.Enter && strings.Contains(d.Reason, "revenge") {
			revenge = true
			if d.Leverage < 50 {
				t.Errorf("revenge leverage = %d, want at least the 50x base", d.Leverage)
			}
		}
	}
	if !revenge {
		t.Fatal("no revenge trade after two straight losses")
	}
	if agent.Psychology().EmotionalState != StateRevenge {
		t.Errorf("state = %s, want revenge", agent.Psychology().EmotionalState)
	}
}

func TestNewbieStopLoss(t *testing.T) {
	agent := NewNewbie(10000, 1)
	for i := 0; i < 50; i++ {
		stop := agent.SetStopLoss(DirectionLong, 50000)
		if stop <= 0 || stop >= 50000 {
			t.Fatalf("long stop = %v, want inside (0, entry)", stop)
		}
		// Loosest allowed stop is 15%; tightest is the liquidation distance.
		if stop < 50000*0.85 {
			t.Errorf("stop %v looser than the 15%% bound", stop)
		}
	}
}

func TestNewbieTakeProfitLadder(t *testing.T) {
	agent := NewNewbie(10000, 1)
	tps := agent.SetTakeProfit(DirectionLong, 1000, 950)
	if len(tps) != 3 {
		t.Fatalf("ladder has %d rungs, want 3", len(tps))
	}
	wantPrices := []float64{1100, 1250, 2000}
	wantPcts := []float64{20, 30, 50}
	total := 0.0
	for i, tp := range tps {
		if tp.Price != wantPrices[i] {
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

func TestNewbiePositionSizeRange(t *testing.T) {
	agent := NewNewbie(10000, 1)
	for i := 0; i < 50; i++ {
		size := agent.DeterminePositionSize(DirectionLong, 50000)
		margin := size * 50000
		if margin < 10000*0.2-1e-6 || margin > 10000*0.5+1e-6 {
			t.Fatalf("committed margin = %v, want 20-50%% of capital", margin)
		}
	}
}

func TestNewbieLiquidationCounters(t *testing.T) {
	agent := NewNewbie(10000, 1)
	agent.RecordLiquidation(false)
	agent.RecordLiquidation(false)
	agent.RecordLiquidation(true)
	if agent.LiquidationEvents != 2 {
		t.Errorf("liquidation_events = %d, want 2", agent.LiquidationEvents)
	}
	if agent.NearLiquidations != 1 {
		t.Errorf("near_liquidations = %d, want 1", agent.NearLiquidations)
	}
}

func TestNewbieLossOscillatesPanicRevenge(t *testing.T) {
	agent := NewNewbie(10000, 5)
	seen := map[EmotionalState]bool{}
	for i := 0; i < 40; i++ {
		agent.ProcessTradeResult(-10, time.Second)
		seen[agent.Psychology().EmotionalState] = true
	}
	if !seen[StatePanic] && !seen[StateRevenge] {
		t.Error("losses never produced panic or revenge states")
	}
}
