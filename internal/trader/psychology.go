package trader

import "time"

// EmotionalState of an agent. States toward the top of the list are
// calmer; leverage multipliers shrink as stress rises.
type EmotionalState string

const (
	StateNeutral  EmotionalState = "neutral"
	StateGreedy   EmotionalState = "greedy"
	StateEuphoric EmotionalState = "euphoric"
	StateHype     EmotionalState = "hype"
	StateFomo     EmotionalState = "fomo"
	StateFearful  EmotionalState = "fearful"
	StateFud      EmotionalState = "fud"
	StatePanic    EmotionalState = "panic"
	StateRevenge  EmotionalState = "revenge"
)

// TradeResult is one closed trade as remembered by an agent.
type TradeResult struct {
	PnL      float64       `json:"pnl"`
	Duration time.Duration `json:"duration"`
	ClosedAt time.Time     `json:"closed_at"`
}

// psychMemory bounds the recent-trade ring.
const psychMemory = 10

// PsychologicalState carries the emotional side of an agent's decisions.
type PsychologicalState struct {
	EmotionalState    EmotionalState `json:"emotional_state"`
	Confidence        float64        `json:"confidence"`
	Stress            float64        `json:"stress"`
	RiskAppetite      float64        `json:"risk_appetite"`
	ConsecutiveWins   int            `json:"consecutive_wins"`
	ConsecutiveLosses int            `json:"consecutive_losses"`
	RecentTrades      []TradeResult  `json:"recent_trades"`
}

func newPsychologicalState() PsychologicalState {
	return PsychologicalState{
		EmotionalState: StateNeutral,
		Confidence:     0.5,
		Stress:         0.1,
		RiskAppetite:   0.5,
	}
}

// LeverageMultiplier scales an agent's base leverage by emotional state.
// Calmer states never get a smaller multiplier than more stressed ones.
func (p *PsychologicalState) LeverageMultiplier() float64 {
	switch p.EmotionalState {
	case StateEuphoric, StateGreedy:
		return 1.2
	case StateNeutral, StateHype, StateFomo:
		return 1.0
	case StateFearful, StateFud:
		return 0.8
	case StatePanic, StateRevenge:
		return 0.6
	}
	return 1.0
}

func (p *PsychologicalState) remember(result TradeResult) {
	p.RecentTrades = append(p.RecentTrades, result)
	if len(p.RecentTrades) > psychMemory {
		p.RecentTrades = p.RecentTrades[len(p.RecentTrades)-psychMemory:]
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
