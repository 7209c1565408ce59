package position

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"bitget-trading-bot/internal/bitget"
	"bitget-trading-bot/internal/logging"
	"bitget-trading-bot/internal/market"
	"bitget-trading-bot/internal/state"
)

const (
	// trailingArmPct is the unrealized profit that arms the trailing stop.
	trailingArmPct = 1.5
	// trailingTightenPct is where the stop switches from entry-anchored
	// to mark-anchored.
	trailingTightenPct = 3.0
	// trapExitProbability triggers a full exit on an opposing trap.
	trapExitProbability = 0.8
	// liquidationLossFraction of committed margin (or agent capital)
	// classifies the position as liquidated.
	liquidationLossFraction = 0.90
	// nearLiquidationFraction flags a close call without closing.
	nearLiquidationFraction = 0.75
	// closedFractionEpsilon: a position this fully exited is closed out.
	closedFractionEpsilon = 0.99
)

// ExitEvent describes one exit the engine performed during a tick.
type ExitEvent struct {
	Position   *Position
	Reason     string
	Price      float64
	PnL        float64
	Partial    bool
	Liquidated bool
}

// Engine owns active positions and evaluates stops, take-profit rungs,
// trailing stops and trap exits on every tick. With a nil client it runs
// in pure simulation; otherwise full closes are enacted on the exchange
// and an enactment failure leaves the position untouched for the next
// tick to retry.
type Engine struct {
	mu     sync.Mutex
	client bitget.FuturesClient
	store  *state.Store
	logger zerolog.Logger

	positions []*Position

	// capitalOf, when set, lets the liquidation check consider the
	// owning agent's remaining capital as well as position margin.
	capitalOf     func(profile string) float64
	onLiquidation func(profile string, near bool)
}

// NewEngine creates an engine. client may be nil for dry-run use.
func NewEngine(client bitget.FuturesClient, store *state.Store) *Engine {
	return &Engine{
		client: client,
		store:  store,
		logger: logging.Component("position"),
	}
}

// SetCapitalLookup wires per-profile capital into the liquidation check.
func (e *Engine) SetCapitalLookup(fn func(profile string) float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.capitalOf = fn
}

// OnLiquidation registers a callback for liquidation and near-liquidation
// events.
func (e *Engine) OnLiquidation(fn func(profile string, near bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onLiquidation = fn
}

// Track adds an open position to the engine.
func (e *Engine) Track(p *Position) {
	if p == nil || !p.IsOpen() {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.positions = append(e.positions, p)
}

// Open returns the currently tracked open positions.
func (e *Engine) Open() []*Position {
	e.mu.Lock()
	defer e.mu.Unlock()
	open := make([]*Position, 0, len(e.positions))
	for _, p := range e.positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	return open
}

// OpenFor returns the open positions belonging to one profile.
func (e *Engine) OpenFor(profile string) []*Position {
	open := e.Open()
	filtered := open[:0]
	for _, p := range open {
		if p.Profile == profile {
			filtered = append(filtered, p)
		}
	}
	return filtered
}

// Tick marks every open position at the given price and applies the exit
// rules. Returned events include partial exits and full closes.
func (e *Engine) Tick(ctx context.Context, mark float64) []ExitEvent {
	if mark <= 0 {
		return nil
	}

	trap := e.currentTrap(ctx)

	e.mu.Lock()
	tracked := append([]*Position(nil), e.positions...)
	e.mu.Unlock()

	var events []ExitEvent
	for _, p := range tracked {
		if !p.IsOpen() {
			continue
		}
		events = append(events, e.tickPosition(ctx, p, mark, trap)...)
	}

	e.prune()
	return events
}

func (e *Engine) tickPosition(ctx context.Context, p *Position, mark float64, trap *market.TrapHint) []ExitEvent {
	p.MarkPrice(mark)

	// Liquidation outranks every other exit.
	if ev := e.checkLiquidation(ctx, p, mark); ev != nil {
		return []ExitEvent{*ev}
	}

	// An opposing high-probability trap closes the position regardless
	// of stop and take-profit state.
	if trap != nil && trap.Probability > trapExitProbability && trap.OpposesDirection(p.Direction) {
		if ev := e.fullExit(ctx, p, mark, ReasonTrapDetected, StatusClosed); ev != nil {
			return []ExitEvent{*ev}
		}
		return nil
	}

	if e.stopHit(p, mark) {
		if ev := e.fullExit(ctx, p, mark, ReasonStopLoss, StatusClosed); ev != nil {
			return []ExitEvent{*ev}
		}
		return nil
	}

	events := e.checkTakeProfits(ctx, p, mark)
	if p.IsOpen() {
		e.updateTrailing(p, mark)
	}
	return events
}

// currentTrap reads the latest trap hint; hints older than the
// aggregator's freshness window are ignored.
func (e *Engine) currentTrap(ctx context.Context) *market.TrapHint {
	if e.store == nil {
		return nil
	}
	var hint market.TrapHint
	ok, err := e.store.GetJSON(ctx, state.KeyLatestTrap, &hint)
	if err != nil || !ok {
		return nil
	}
	if time.Since(hint.Timestamp) > 15*time.Minute {
		return nil
	}
	return &hint
}

func (e *Engine) checkLiquidation(ctx context.Context, p *Position, mark float64) *ExitEvent {
	loss := -p.UnrealizedPnL
	if loss <= 0 {
		return nil
	}
	margin := p.Size * p.EntryPrice
	if margin <= 0 {
		return nil
	}

	limit := margin
	if e.capitalOf != nil {
		if capital := e.capitalOf(p.Profile); capital > 0 && capital < limit {
			limit = capital
		}
	}

	if loss >= liquidationLossFraction*limit {
		ev := e.fullExit(ctx, p, mark, ReasonLiquidation, StatusLiquidated)
		if ev == nil {
			return nil
		}
		ev.Liquidated = true
		if e.onLiquidation != nil {
			e.onLiquidation(p.Profile, false)
		}
		return ev
	}
	if loss >= nearLiquidationFraction*limit && e.onLiquidation != nil {
		e.onLiquidation(p.Profile, true)
	}
	return nil
}

func (e *Engine) stopHit(p *Position, mark float64) bool {
	if p.StopLoss <= 0 {
		return false
	}
	if p.Direction == DirectionLong {
		return mark <= p.StopLoss
	}
	return mark >= p.StopLoss
}

// checkTakeProfits fires every rung the mark has crossed in the
// position's favor, exiting that rung's share of the initial size.
func (e *Engine) checkTakeProfits(ctx context.Context, p *Position, mark float64) []ExitEvent {
	var events []ExitEvent
	remaining := p.TakeProfits[:0]
	for _, tp := range p.TakeProfits {
		hit := mark >= tp.Price
		if p.Direction == DirectionShort {
			hit = mark <= tp.Price
		}
		if !hit || !p.IsOpen() {
			remaining = append(remaining, tp)
			continue
		}

		exitSize := p.InitialSize * tp.Percentage / 100
		if exitSize > p.Size {
			exitSize = p.Size
		}
		if !e.enactPartial(ctx, p, exitSize) {
			remaining = append(remaining, tp)
			continue
		}

		// Record the fraction actually exited, not the rung's nominal
		// share; they differ when the size cap clamps the final rung.
		exitedPct := exitSize / p.InitialSize * 100
		pnl := p.PnLAt(mark, exitSize)
		p.PartialExits = append(p.PartialExits, PartialExit{
			Price:      mark,
			Percentage: exitedPct,
			PnL:        pnl,
			Time:       time.Now().UTC(),
		})
		p.Size -= exitSize
		p.RealizedPnL += pnl
		p.MarkPrice(mark)

		events = append(events, ExitEvent{
			Position: p,
			Reason:   ReasonTakeProfit,
			Price:    mark,
			PnL:      pnl,
			Partial:  true,
		})
		e.logger.Info().
			Str("position", p.ID).
			Str("profile", p.Profile).
			Float64("price", mark).
			Float64("pnl", pnl).
			Float64("percentage", exitedPct).
			Msg("take-profit rung filled")
	}
	p.TakeProfits = remaining

	if p.ExitedFraction() >= closedFractionEpsilon {
		now := time.Now().UTC()
		p.Status = StatusClosed
		p.ExitTime = &now
		p.ExitPrice = mark
		p.ExitReason = ReasonTakeProfit
		p.Size = 0
		p.UnrealizedPnL = 0
	}
	return events
}

// updateTrailing arms at 1.5% profit and then only tightens: the stop is
// anchored to entry plus half the profit until 3%, then to the mark
// minus half the profit. It never retreats.
func (e *Engine) updateTrailing(p *Position, mark float64) {
	profitPct := p.ProfitPct(mark)
	if profitPct < trailingArmPct {
		return
	}
	p.Trailing = true

	profit := mark - p.EntryPrice
	if p.Direction == DirectionShort {
		profit = p.EntryPrice - mark
	}

	var candidate float64
	if p.Direction == DirectionLong {
		if profitPct < trailingTightenPct {
			candidate = p.EntryPrice + 0.5*profit
		} else {
			candidate = mark - 0.5*profit
		}
		if candidate > p.StopLoss {
			p.StopLoss = candidate
		}
	} else {
		if profitPct < trailingTightenPct {
			candidate = p.EntryPrice - 0.5*profit
		} else {
			candidate = mark + 0.5*profit
		}
		if candidate < p.StopLoss || p.StopLoss <= 0 {
			p.StopLoss = candidate
		}
	}
}

// fullExit closes the whole remaining size. Returns nil when the
// exchange rejected the close; the next tick retries.
func (e *Engine) fullExit(ctx context.Context, p *Position, mark float64, reason, status string) *ExitEvent {
	if !e.enactClose(ctx, p) {
		return nil
	}

	pnl := p.PnLAt(mark, p.Size)
	if p.Size > 0 {
		p.PartialExits = append(p.PartialExits, PartialExit{
			Price:      mark,
			Percentage: p.Size / p.InitialSize * 100,
			PnL:        pnl,
			Time:       time.Now().UTC(),
		})
		p.RealizedPnL += pnl
	}

	now := time.Now().UTC()
	p.Status = status
	p.ExitTime = &now
	p.ExitPrice = mark
	p.ExitReason = reason
	p.Size = 0
	p.UnrealizedPnL = 0

	e.logger.Info().
		Str("position", p.ID).
		Str("profile", p.Profile).
		Str("reason", reason).
		Float64("price", mark).
		Float64("realized_pnl", p.RealizedPnL).
		Msg("position closed")

	return &ExitEvent{Position: p, Reason: reason, Price: mark, PnL: pnl}
}

func (e *Engine) enactClose(ctx context.Context, p *Position) bool {
	if e.client == nil {
		return true
	}
	holdSide := "long"
	if p.Direction == DirectionShort {
		holdSide = "short"
	}
	if err := e.client.ClosePosition(ctx, p.Symbol, holdSide); err != nil {
		e.logger.Warn().Err(err).Str("position", p.ID).Msg("close rejected, retrying next tick")
		return false
	}
	return true
}

func (e *Engine) enactPartial(ctx context.Context, p *Position, size float64) bool {
	if e.client == nil {
		return true
	}
	side := bitget.SideCloseLong
	if p.Direction == DirectionShort {
		side = bitget.SideCloseShort
	}
	_, err := e.client.PlaceOrder(ctx, bitget.OrderParams{
		Symbol:     p.Symbol,
		Side:       side,
		OrderType:  bitget.OrderTypeMarket,
		Size:       size,
		ReduceOnly: true,
	})
	if err != nil {
		e.logger.Warn().Err(err).Str("position", p.ID).Msg("partial close rejected, retrying next tick")
		return false
	}
	return true
}

// CloseAll fully exits every open position at the given mark. Used on
// shutdown when close-on-shutdown is configured.
func (e *Engine) CloseAll(ctx context.Context, mark float64, reason string) []ExitEvent {
	e.mu.Lock()
	tracked := append([]*Position(nil), e.positions...)
	e.mu.Unlock()

	var events []ExitEvent
	for _, p := range tracked {
		if !p.IsOpen() {
			continue
		}
		price := mark
		if price <= 0 {
			price = p.EntryPrice
		}
		p.MarkPrice(price)
		if ev := e.fullExit(ctx, p, price, reason, StatusClosed); ev != nil {
			events = append(events, *ev)
		}
	}
	e.prune()
	return events
}

// prune drops closed positions from the tracked set.
func (e *Engine) prune() {
	e.mu.Lock()
	defer e.mu.Unlock()
	open := e.positions[:0]
	for _, p := range e.positions {
		if p.IsOpen() {
			open = append(open, p)
		}
	}
	e.positions = open
}
