// Package position owns the lifecycle of open positions: per-tick
// unrealized PnL, stop and take-profit evaluation, partial exits,
// trailing stops and trap-triggered early exits.
package position

import (
	"time"

	"github.com/google/uuid"
)

// Direction of a position.
const (
	DirectionLong  = "LONG"
	DirectionShort = "SHORT"
)

// Status values of a position.
const (
	StatusOpen       = "OPEN"
	StatusClosed     = "CLOSED"
	StatusLiquidated = "LIQUIDATED"
)

// Exit reasons recorded on full exits.
const (
	ReasonStopLoss     = "stop_loss"
	ReasonTakeProfit   = "take_profit"
	ReasonTrapDetected = "trap_detected"
	ReasonLiquidation  = "liquidation"
	ReasonShutdown     = "shutdown"
)

// TakeProfit is one rung of the exit ladder. Percentage is the share of
// the initial size to exit when the rung is hit. FibLevel tags the
// extension ratio that produced the target, for analytics only.
type TakeProfit struct {
	Price      float64 `json:"price"`
	Percentage float64 `json:"percentage"`
	FibLevel   float64 `json:"fib_level,omitempty"`
}

// PartialExit records one executed rung.
type PartialExit struct {
	Price      float64   `json:"price"`
	Percentage float64   `json:"percentage"`
	PnL        float64   `json:"pnl"`
	Time       time.Time `json:"time"`
}

// Position is one tracked futures position.
type Position struct {
	ID            string        `json:"id"`
	Profile       string        `json:"profile"`
	Symbol        string        `json:"symbol"`
	Direction     string        `json:"direction"`
	EntryPrice    float64       `json:"entry_price"`
	InitialSize   float64       `json:"initial_size"`
	Size          float64       `json:"size"`
	Leverage      int           `json:"leverage"`
	EntryTime     time.Time     `json:"entry_time"`
	EntryReason   string        `json:"entry_reason"`
	StopLoss      float64       `json:"stop_loss"`
	TakeProfits   []TakeProfit  `json:"take_profits"`
	Status        string        `json:"status"`
	PartialExits  []PartialExit `json:"partial_exits"`
	Trailing      bool          `json:"trailing_activated"`
	RealizedPnL   float64       `json:"realized_pnl"`
	UnrealizedPnL float64       `json:"unrealized_pnl"`
	ExitTime      *time.Time    `json:"exit_time,omitempty"`
	ExitPrice     float64       `json:"exit_price,omitempty"`
	ExitReason    string        `json:"exit_reason,omitempty"`
}

// New creates an open position. Size is in base-asset units.
func New(profile, symbol, direction string, entry, size float64, leverage int, reason string, stop float64, tps []TakeProfit) *Position {
	return &Position{
		ID:          uuid.NewString(),
		Profile:     profile,
		Symbol:      symbol,
		Direction:   direction,
		EntryPrice:  entry,
		InitialSize: size,
		Size:        size,
		Leverage:    leverage,
		EntryTime:   time.Now().UTC(),
		EntryReason: reason,
		StopLoss:    stop,
		TakeProfits: tps,
		Status:      StatusOpen,
	}
}

// PnLAt returns the leveraged PnL of qty units marked at price.
func (p *Position) PnLAt(mark, qty float64) float64 {
	diff := mark - p.EntryPrice
	if p.Direction == DirectionShort {
		diff = -diff
	}
	return diff * qty * float64(p.Leverage)
}

// MarkPrice recomputes unrealized PnL for the remaining size.
func (p *Position) MarkPrice(mark float64) {
	if p.Status != StatusOpen {
		return
	}
	p.UnrealizedPnL = p.PnLAt(mark, p.Size)
}

// ProfitPct returns the favorable move at mark as a percentage of entry.
// Negative values mean the position is under water.
func (p *Position) ProfitPct(mark float64) float64 {
	if p.EntryPrice == 0 {
		return 0
	}
	pct := (mark - p.EntryPrice) / p.EntryPrice * 100
	if p.Direction == DirectionShort {
		pct = -pct
	}
	return pct
}

// ExitedFraction is the cumulative share of the initial size already
// taken off, in [0, 1].
func (p *Position) ExitedFraction() float64 {
	total := 0.0
	for _, exit := range p.PartialExits {
		total += exit.Percentage
	}
	return total / 100
}

// IsOpen reports whether the position still tracks exposure.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}
