// Package circuit halts an agent's entries after a losing streak or an
// outsized drawdown inside a rolling window, with a cooldown before
// trading resumes. Exits are never blocked; only new entries are.
package circuit

import (
	"fmt"
	"sync"
	"time"
)

// State of the breaker.
type State string

const (
	StateClosed   State = "closed"    // normal operation
	StateOpen     State = "open"      // entries halted
	StateHalfOpen State = "half_open" // cooldown passed, probing with one trade
)

// Config holds the trip thresholds. Loss percentages are relative to the
// capital base passed to RecordResult.
type Config struct {
	Enabled              bool          `json:"enabled"`
	MaxConsecutiveLosses int           `json:"max_consecutive_losses"`
	MaxHourlyLossPct     float64       `json:"max_hourly_loss_pct"`
	MaxDailyLossPct      float64       `json:"max_daily_loss_pct"`
	Cooldown             time.Duration `json:"cooldown"`
}

// DefaultConfig returns the thresholds used per agent.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		MaxConsecutiveLosses: 5,
		MaxHourlyLossPct:     10.0,
		MaxDailyLossPct:      25.0,
		Cooldown:             30 * time.Minute,
	}
}

// Breaker guards one agent's entries.
type Breaker struct {
	mu     sync.Mutex
	config Config
	state  State
	reason string

	consecutiveLosses int
	hourlyLossPct     float64
	dailyLossPct      float64
	hourResetAt       time.Time
	dayResetAt        time.Time
	trippedAt         time.Time

	now func() time.Time
}

// New creates a breaker in the closed state.
func New(config Config) *Breaker {
	b := &Breaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
	now := b.now()
	b.hourResetAt = now.Add(time.Hour)
	b.dayResetAt = now.Add(24 * time.Hour)
	return b
}

// Allow reports whether a new entry may be opened. When blocked, the
// second return value carries the reason.
func (b *Breaker) Allow() (bool, string) {
	if !b.config.Enabled {
		return true, ""
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindows()

	if b.state == StateOpen {
		elapsed := b.now().Sub(b.trippedAt)
		if elapsed < b.config.Cooldown {
			remaining := (b.config.Cooldown - elapsed).Round(time.Second)
			return false, fmt.Sprintf("halted (%s), cooldown %s remaining", b.reason, remaining)
		}
		b.state = StateHalfOpen
	}
	return true, ""
}

// RecordResult feeds a closed trade into the breaker. capitalBase converts
// the pnl into a percentage; non-positive bases are ignored.
func (b *Breaker) RecordResult(pnl, capitalBase float64) {
	if !b.config.Enabled || capitalBase <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rollWindows()

	if pnl >= 0 {
		b.consecutiveLosses = 0
		if b.state == StateHalfOpen {
			// Probe trade won; resume normal operation.
			b.state = StateClosed
			b.reason = ""
		}
		return
	}

	lossPct := -pnl / capitalBase * 100
	b.consecutiveLosses++
	b.hourlyLossPct += lossPct
	b.dailyLossPct += lossPct

	switch {
	case b.state == StateHalfOpen:
		b.trip("probe trade lost")
	case b.consecutiveLosses >= b.config.MaxConsecutiveLosses:
		b.trip(fmt.Sprintf("%d consecutive losses", b.consecutiveLosses))
	case b.hourlyLossPct >= b.config.MaxHourlyLossPct:
		b.trip(fmt.Sprintf("hourly loss %.1f%%", b.hourlyLossPct))
	case b.dailyLossPct >= b.config.MaxDailyLossPct:
		b.trip(fmt.Sprintf("daily loss %.1f%%", b.dailyLossPct))
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Reason returns why the breaker last tripped, empty when closed.
func (b *Breaker) Reason() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reason
}

func (b *Breaker) trip(reason string) {
	b.state = StateOpen
	b.reason = reason
	b.trippedAt = b.now()
}

// rollWindows resets the hourly and daily accumulators when their windows
// lapse. Callers hold the lock.
func (b *Breaker) rollWindows() {
	now := b.now()
	if now.After(b.hourResetAt) {
		b.hourlyLossPct = 0
		b.hourResetAt = now.Add(time.Hour)
	}
	if now.After(b.dayResetAt) {
		b.dailyLossPct = 0
		b.dayResetAt = now.Add(24 * time.Hour)
	}
}
