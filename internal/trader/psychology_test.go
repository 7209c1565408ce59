package trader

import (
	"math"
	"testing"
	"time"
)

func TestWinningStreakDynamics(t *testing.T) {
	agent := NewStrategic(10000, 1)

	for i := 0; i < 3; i++ {
		agent.ProcessTradeResult(100, time.Minute)
	}

	psych := agent.Psychology()
	if psych.EmotionalState != StateGreedy {
		t.Errorf("state after 3 wins = %s, want greedy", psych.EmotionalState)
	}
	if psych.ConsecutiveWins != 3 {
		t.Errorf("consecutive wins = %d, want 3", psych.ConsecutiveWins)
	}
	if math.Abs(psych.Confidence-0.8) > 1e-9 {
		t.Errorf("confidence = %v, want 0.8 after three +0.1 steps", psych.Confidence)
	}

	// Confidence caps at 1.0.
	for i := 0; i < 10; i++ {
		agent.ProcessTradeResult(100, time.Minute)
	}
	if got := agent.Psychology().Confidence; got != 1.0 {
		t.Errorf("confidence after long streak = %v, want capped 1.0", got)
	}
}

func TestLosingStreakDynamics(t *testing.T) {
	agent := NewStrategic(10000, 1)

	agent.ProcessTradeResult(-100, time.Minute)
	agent.ProcessTradeResult(-100, time.Minute)
	if got := agent.Psychology().EmotionalState; got == StateFearful {
		t.Error("fearful after only 2 losses, want threshold of 3")
	}

	agent.ProcessTradeResult(-100, time.Minute)
	psych := agent.Psychology()
	if psych.EmotionalState != StateFearful {
		t.Errorf("state after 3 losses = %s, want fearful", psych.EmotionalState)
	}
	if psych.ConsecutiveLosses != 3 {
		t.Errorf("consecutive losses = %d, want 3", psych.ConsecutiveLosses)
	}
	// 0.5 - 3*0.15 clamps to the floor.
	if math.Abs(psych.Confidence-0.1) > 1e-9 {
		t.Errorf("confidence = %v, want floor 0.1", psych.Confidence)
	}
	// 0.1 + 3*0.2 stress.
	if math.Abs(psych.Stress-0.7) > 1e-9 {
		t.Errorf("stress = %v, want 0.7", psych.Stress)
	}
}

func TestScalperFearfulThresholdIsFive(t *testing.T) {
	agent := NewScalper(10000, 1)

	for i := 0; i < 4; i++ {
		agent.ProcessTradeResult(-10, time.Second)
	}
	if got := agent.Psychology().EmotionalState; got == StateFearful {
		t.Error("scalper fearful after 4 losses, want threshold of 5")
	}
	agent.ProcessTradeResult(-10, time.Second)
	if got := agent.Psychology().EmotionalState; got != StateFearful {
		t.Errorf("scalper state after 5 losses = %s, want fearful", got)
	}
}

func TestLeverageMultiplierMonotonic(t *testing.T) {
	// Calmer states never multiply leverage less than more stressed ones.
	ordered := []EmotionalState{StateEuphoric, StateGreedy, StateNeutral, StateHype, StateFomo, StateFearful, StateFud, StatePanic, StateRevenge}
	prev := math.Inf(1)
	for _, state := range ordered {
		p := PsychologicalState{EmotionalState: state}
		m := p.LeverageMultiplier()
		if m > prev {
			t.Errorf("state %s multiplier %v exceeds calmer predecessor %v", state, m, prev)
		}
		prev = m
	}
}

func TestPerformanceCounters(t *testing.T) {
	agent := NewStrategic(10000, 1)
	agent.ProcessTradeResult(500, 2*time.Minute)
	agent.ProcessTradeResult(-200, 4*time.Minute)

	perf := agent.Metrics()
	if perf.TotalTrades != 2 || perf.Wins != 1 || perf.Losses != 1 {
		t.Errorf("counters = %+v, want 2 trades, 1 win, 1 loss", perf)
	}
	if perf.WinRate != 0.5 {
		t.Errorf("win rate = %v, want 0.5", perf.WinRate)
	}
	if perf.AvgDuration != 3*time.Minute {
		t.Errorf("avg duration = %v, want 3m", perf.AvgDuration)
	}
	if got := agent.Capital(); got != 10300 {
		t.Errorf("capital = %v, want 10300", got)
	}
	// Peak was 10500 after the win; drawdown from there.
	wantDD := (10500.0 - 10300.0) / 10500.0
	if math.Abs(perf.Drawdown-wantDD) > 1e-9 {
		t.Errorf("drawdown = %v, want %v", perf.Drawdown, wantDD)
	}
}

func TestRecentTradesBounded(t *testing.T) {
	agent := NewStrategic(10000, 1)
	for i := 0; i < 15; i++ {
		agent.ProcessTradeResult(float64(i), time.Second)
	}
	if got := len(agent.Psychology().RecentTrades); got != psychMemory {
		t.Errorf("recent trades = %d, want bounded at %d", got, psychMemory)
	}
}
