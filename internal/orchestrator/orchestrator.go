// Package orchestrator drives the trading loop: each tick it refreshes the
// price, builds a market context, feeds the pattern detector, polls every
// agent for an entry decision, enacts entries through the exchange adapter
// and runs the position engine over everything that is open.
package orchestrator

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"bitget-trading-bot/config"
	"bitget-trading-bot/internal/bitget"
	"bitget-trading-bot/internal/circuit"
	"bitget-trading-bot/internal/database"
	"bitget-trading-bot/internal/events"
	"bitget-trading-bot/internal/fibonacci"
	"bitget-trading-bot/internal/logging"
	"bitget-trading-bot/internal/market"
	"bitget-trading-bot/internal/position"
	"bitget-trading-bot/internal/state"
	"bitget-trading-bot/internal/trader"
)

// detectorTimeframes are the streams the harmonic detector maintains.
var detectorTimeframes = []string{"1m", "5m", "15m", "1h"}

const (
	// movementsWindowMinutes tags the rolling price-point list in the store.
	movementsWindowMinutes = 15
	// maxStoredMovements bounds the price-point list.
	maxStoredMovements = 1000
	// maxStoredPatterns bounds each per-timeframe pattern list.
	maxStoredPatterns = 50
	// maxStoredTrades bounds the per-profile closed-trade list.
	maxStoredTrades = 100
	// fibRangeCloses is how many recent closes define the Fibonacci range.
	fibRangeCloses = 30
)

// Orchestrator owns the tick loop for one symbol.
type Orchestrator struct {
	cfg      *config.Config
	client   bitget.FuturesClient
	store    *state.Store
	bus      *events.Bus
	repo     *database.Repository
	agg      *market.Aggregator
	detector *fibonacci.Detector
	engine   *position.Engine
	logger   zerolog.Logger

	mu       sync.RWMutex
	agents   map[string]trader.Agent
	breakers map[string]*circuit.Breaker
	order    []string // profile iteration order, stable across ticks

	running      atomic.Bool
	shuttingDown atomic.Bool
	ticks        atomic.Int64
	startedAt    time.Time
	lastTrapAt   time.Time
}

// New wires the orchestrator. client may be nil; the loop then runs on
// store-fed prices only and never places real orders.
func New(cfg *config.Config, client bitget.FuturesClient, store *state.Store, bus *events.Bus, repo *database.Repository) (*Orchestrator, error) {
	o := &Orchestrator{
		cfg:      cfg,
		client:   client,
		store:    store,
		bus:      bus,
		repo:     repo,
		agg:      market.NewAggregator(client, store, cfg.TradingConfig.Symbol, cfg.TradingConfig.RandomSeed),
		detector: fibonacci.NewDetector(fibonacci.DefaultTolerance),
		engine:   position.NewEngine(orderClient(client, cfg), store),
		logger:   logging.Component("orchestrator"),
		agents:   make(map[string]trader.Agent),
		breakers: make(map[string]*circuit.Breaker),
	}

	for i, profile := range cfg.TradingConfig.Profiles {
		agent, err := trader.New(profile, cfg.TradingConfig.InitialCapital, cfg.TradingConfig.RandomSeed+int64(i))
		if err != nil {
			return nil, fmt.Errorf("build agent %q: %w", profile, err)
		}
		o.agents[profile] = agent
		o.breakers[profile] = circuit.New(circuit.DefaultConfig())
		o.order = append(o.order, profile)
	}
	if len(o.agents) == 0 {
		return nil, fmt.Errorf("no trader profiles configured")
	}

	o.engine.SetCapitalLookup(func(profile string) float64 {
		o.mu.RLock()
		defer o.mu.RUnlock()
		if agent, ok := o.agents[profile]; ok {
			return agent.Capital()
		}
		return 0
	})
	o.engine.OnLiquidation(func(profile string, near bool) {
		o.mu.RLock()
		agent := o.agents[profile]
		o.mu.RUnlock()
		if tracker, ok := agent.(trader.LiquidationTracker); ok {
			tracker.RecordLiquidation(near)
		}
	})

	return o, nil
}

// orderClient returns the client the engine and entries should act
// through: nil in dry-run mode so every order is simulated.
func orderClient(client bitget.FuturesClient, cfg *config.Config) bitget.FuturesClient {
	if cfg.TradingConfig.DryRun {
		return nil
	}
	return client
}

// Run executes the tick loop until the context is cancelled, then walks
// the shutdown path.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.startedAt = time.Now().UTC()
	o.running.Store(true)
	defer o.running.Store(false)

	o.logger.Info().
		Str("symbol", o.cfg.TradingConfig.Symbol).
		Strs("profiles", o.order).
		Bool("dry_run", o.cfg.TradingConfig.DryRun).
		Dur("interval", o.cfg.OrchestratorConfig.TickInterval).
		Msg("orchestrator started")
	o.bus.Publish(events.Event{Type: events.EventBotStarted, Data: map[string]interface{}{
		"symbol":   o.cfg.TradingConfig.Symbol,
		"profiles": o.order,
	}})

	ticker := time.NewTicker(o.cfg.OrchestratorConfig.TickInterval)
	defer ticker.Stop()
	report := time.NewTicker(o.cfg.OrchestratorConfig.ReportInterval)
	defer report.Stop()

	o.tick(ctx)
	for {
		select {
		case <-ticker.C:
			o.tick(ctx)
		case <-report.C:
			o.report(ctx)
		case <-ctx.Done():
			o.shutdown()
			return nil
		}
	}
}

// tick is one full cycle. A failure in any stage is logged and the rest
// of the cycle continues; the loop never aborts on a single bad tick.
func (o *Orchestrator) tick(ctx context.Context) {
	o.ticks.Add(1)

	snap, err := o.agg.Snapshot(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Msg("no market context this tick")
		o.bus.PublishError("orchestrator", err)
		return
	}

	o.persistPrice(ctx, snap)
	o.feedDetector(ctx, snap)
	o.pollAgents(ctx, snap)
	o.runEngine(ctx, snap)
	o.persistSnapshots(ctx, snap)
}

func (o *Orchestrator) persistPrice(ctx context.Context, snap *market.Context) {
	price := strconv.FormatFloat(snap.Price, 'f', -1, 64)
	if err := o.store.SetString(ctx, state.KeyLastPrice, price); err != nil {
		o.logger.Warn().Err(err).Msg("persist last price")
	}
	point := fibonacci.PricePoint{Price: snap.Price, Timestamp: snap.Timestamp}
	if err := o.store.PushToList(ctx, state.KeyMovements(movementsWindowMinutes), point, maxStoredMovements); err != nil {
		o.logger.Warn().Err(err).Msg("persist price movement")
	}

	o.bus.Publish(events.Event{Type: events.EventPriceUpdate, Data: map[string]interface{}{
		"symbol": o.cfg.TradingConfig.Symbol,
		"price":  snap.Price,
	}})

	if trap := snap.RecentTrap; trap != nil && trap.Timestamp.After(o.lastTrapAt) {
		o.lastTrapAt = trap.Timestamp
		o.bus.Publish(events.Event{Type: events.EventTrapDetected, Data: map[string]interface{}{
			"trap_type":   trap.TrapType,
			"probability": trap.Probability,
		}})
		o.logger.Warn().
			Str("trap_type", trap.TrapType).
			Float64("probability", trap.Probability).
			Msg("market maker trap reported")
	}
}

// feedDetector pushes the tick price into every timeframe stream,
// persists freshly detected patterns and refreshes the Fibonacci levels
// the aggregator serves back to the agents.
func (o *Orchestrator) feedDetector(ctx context.Context, snap *market.Context) {
	for _, tf := range detectorTimeframes {
		patterns := o.detector.AddPrice(tf, snap.Price, snap.Timestamp)
		for _, p := range patterns {
			if err := o.store.PushToList(ctx, state.KeyPatterns(tf), p, maxStoredPatterns); err != nil {
				o.logger.Warn().Err(err).Str("timeframe", tf).Msg("persist pattern")
			}
			sig := fibonacci.BuildSignal(p)
			if err := o.store.PushToList(ctx, state.KeySignals(tf), sig, maxStoredPatterns); err != nil {
				o.logger.Warn().Err(err).Str("timeframe", tf).Msg("persist signal")
			}
			o.bus.PublishPatternDetected(string(p.Type), tf, p.Trend, string(sig.Type),
				p.Confidence, sig.Entry, sig.Stop, sig.TakeProfit)
			o.logger.Info().
				Str("pattern", string(p.Type)).
				Str("timeframe", tf).
				Str("trend", p.Trend).
				Str("signal", string(sig.Type)).
				Float64("confidence", p.Confidence).
				Float64("entry", sig.Entry).
				Float64("stop", sig.Stop).
				Float64("take_profit", sig.TakeProfit).
				Msg("harmonic pattern detected")
		}
	}

	if len(snap.Closes) < 2 {
		return
	}
	closes := snap.Closes
	if len(closes) > fibRangeCloses {
		closes = closes[len(closes)-fibRangeCloses:]
	}
	high, low := closes[0], closes[0]
	for _, c := range closes {
		if c > high {
			high = c
		}
		if c < low {
			low = c
		}
	}
	if high <= low {
		return
	}
	levels := fibonacci.CalculateLevels(high, low, snap.Trend == market.TrendUp)
	byLabel := make(map[string]float64, len(levels.ByRatio))
	for ratio, price := range levels.ByRatio {
		byLabel[strconv.FormatFloat(ratio, 'g', -1, 64)] = price
	}
	if err := o.store.SetJSON(ctx, state.KeyFibonacciLevels, byLabel); err != nil {
		o.logger.Warn().Err(err).Msg("persist fibonacci levels")
	}
}

// pollAgents asks every agent without an open position for a decision and
// enacts the ones that want in.
func (o *Orchestrator) pollAgents(ctx context.Context, snap *market.Context) {
	if o.shuttingDown.Load() {
		return
	}
	for _, profile := range o.order {
		o.mu.RLock()
		agent := o.agents[profile]
		o.mu.RUnlock()

		// One position per agent at a time.
		if len(o.engine.OpenFor(profile)) > 0 {
			continue
		}
		if ok, reason := o.breakers[profile].Allow(); !ok {
			o.logger.Debug().Str("profile", profile).Str("reason", reason).Msg("entries halted")
			continue
		}

		decision := agent.ShouldEnterTrade(snap)
		if !decision.Enter {
			continue
		}
		o.bus.Publish(events.Event{Type: events.EventAgentDecision, Data: map[string]interface{}{
			"profile":   profile,
			"direction": decision.Direction,
			"leverage":  decision.Leverage,
			"reason":    decision.Reason,
		}})
		o.openPosition(ctx, agent, decision, snap)
	}
}

func (o *Orchestrator) openPosition(ctx context.Context, agent trader.Agent, d trader.Decision, snap *market.Context) {
	entry := snap.Price
	size := agent.DeterminePositionSize(d.Direction, entry)
	if size <= 0 {
		o.logger.Debug().Str("profile", agent.Profile()).Msg("zero size, entry skipped")
		return
	}
	stop := agent.SetStopLoss(d.Direction, entry)
	tps := agent.SetTakeProfit(d.Direction, entry, stop)

	if client := orderClient(o.client, o.cfg); client != nil {
		side := bitget.SideOpenLong
		if d.Direction == position.DirectionShort {
			side = bitget.SideOpenShort
		}
		_, err := client.PlaceOrder(ctx, bitget.OrderParams{
			Symbol:     o.cfg.TradingConfig.Symbol,
			Side:       side,
			OrderType:  bitget.OrderTypeMarket,
			Size:       size,
			Leverage:   d.Leverage,
			MarginMode: o.cfg.TradingConfig.MarginMode,
		})
		if err != nil {
			o.logger.Warn().Err(err).Str("profile", agent.Profile()).Msg("entry order rejected")
			o.bus.PublishError("orchestrator", err)
			return
		}
	}

	pos := position.New(agent.Profile(), o.cfg.TradingConfig.Symbol, d.Direction, entry, size, d.Leverage, d.Reason, stop, tps)
	o.engine.Track(pos)
	o.bus.PublishPositionOpened(pos.Profile, pos.Symbol, pos.Direction, entry, size, d.Leverage)
	o.logger.Info().
		Str("profile", pos.Profile).
		Str("direction", pos.Direction).
		Float64("entry", entry).
		Float64("size", size).
		Int("leverage", d.Leverage).
		Str("reason", d.Reason).
		Msg("position opened")
}

// runEngine ticks every open position and feeds closures back into the
// owning agents. A position whose take-profit ladder completes surfaces
// as several partial events in one tick, so settlement is deduped by ID.
func (o *Orchestrator) runEngine(ctx context.Context, snap *market.Context) {
	o.settleExits(ctx, o.engine.Tick(ctx, snap.Price))
}

func (o *Orchestrator) settleExits(ctx context.Context, exits []position.ExitEvent) {
	settled := make(map[string]bool)
	for _, ev := range exits {
		pos := ev.Position
		if ev.Partial {
			o.bus.PublishPartialExit(pos.Profile, pos.Symbol, ev.Price, ev.PnL)
		}
		if !pos.IsOpen() && !settled[pos.ID] {
			settled[pos.ID] = true
			o.settleClosed(ctx, pos)
		}
	}
}

// settleClosed feeds one fully closed position back into its agent and
// persists the trade.
func (o *Orchestrator) settleClosed(ctx context.Context, pos *position.Position) {
	duration := time.Duration(0)
	if pos.ExitTime != nil {
		duration = pos.ExitTime.Sub(pos.EntryTime)
	}
	o.mu.RLock()
	agent := o.agents[pos.Profile]
	o.mu.RUnlock()
	if agent != nil {
		agent.ProcessTradeResult(pos.RealizedPnL, duration)
	}
	if breaker := o.breakers[pos.Profile]; breaker != nil {
		breaker.RecordResult(pos.RealizedPnL, o.cfg.TradingConfig.InitialCapital)
	}

	if pos.Status == position.StatusLiquidated {
		o.bus.PublishLiquidation(pos.Profile, pos.Symbol, pos.RealizedPnL)
	} else {
		o.bus.PublishPositionClosed(pos.Profile, pos.Symbol, pos.ExitReason, pos.ExitPrice, pos.RealizedPnL)
	}

	if err := o.repo.SaveClosedTrade(ctx, pos); err != nil {
		o.logger.Warn().Err(err).Str("position", pos.ID).Msg("persist closed trade")
	}
	if err := o.store.PushToList(ctx, state.KeyTraderTrades(pos.Profile), pos, maxStoredTrades); err != nil {
		o.logger.Warn().Err(err).Msg("persist trade snapshot")
	}
}

// persistSnapshots writes per-agent metrics and the dashboard-facing
// battle state to the store.
func (o *Orchestrator) persistSnapshots(ctx context.Context, snap *market.Context) {
	type agentStatus struct {
		Profile        string  `json:"profile"`
		Capital        float64 `json:"capital"`
		TotalTrades    int     `json:"total_trades"`
		Wins           int     `json:"wins"`
		Losses         int     `json:"losses"`
		WinRate        float64 `json:"win_rate"`
		Drawdown       float64 `json:"drawdown"`
		EmotionalState string  `json:"emotional_state"`
		Confidence     float64 `json:"confidence"`
		Stress         float64 `json:"stress"`
		OpenPositions  int     `json:"open_positions"`
		Breaker        string  `json:"breaker"`
	}

	leader := ""
	best := 0.0
	for _, profile := range o.order {
		o.mu.RLock()
		agent := o.agents[profile]
		o.mu.RUnlock()

		perf := agent.Metrics()
		psych := agent.Psychology()
		open := o.engine.OpenFor(profile)

		status := agentStatus{
			Profile:        profile,
			Capital:        agent.Capital(),
			TotalTrades:    perf.TotalTrades,
			Wins:           perf.Wins,
			Losses:         perf.Losses,
			WinRate:        perf.WinRate,
			Drawdown:       perf.Drawdown,
			EmotionalState: string(psych.EmotionalState),
			Confidence:     psych.Confidence,
			Stress:         psych.Stress,
			OpenPositions:  len(open),
			Breaker:        string(o.breakers[profile].State()),
		}
		if err := o.store.SetJSON(ctx, state.KeyTraderMetrics(profile), status); err != nil {
			o.logger.Warn().Err(err).Str("profile", profile).Msg("persist agent metrics")
		}
		if err := o.store.SetJSON(ctx, state.KeyTraderPositions(profile), open); err != nil {
			o.logger.Warn().Err(err).Str("profile", profile).Msg("persist agent positions")
		}
		if agent.Capital() > best {
			best = agent.Capital()
			leader = profile
		}
	}

	battle := map[string]interface{}{
		"symbol":     o.cfg.TradingConfig.Symbol,
		"price":      snap.Price,
		"leader":     leader,
		"open_count": len(o.engine.Open()),
		"tick":       o.ticks.Load(),
		"updated_at": snap.Timestamp,
	}
	if err := o.store.SetJSON(ctx, state.KeyCurrentPosition, battle); err != nil {
		o.logger.Warn().Err(err).Msg("persist battle state")
	}
}

// report writes periodic agent snapshots to Postgres.
func (o *Orchestrator) report(ctx context.Context) {
	for _, profile := range o.order {
		o.mu.RLock()
		agent := o.agents[profile]
		o.mu.RUnlock()

		perf := agent.Metrics()
		psych := agent.Psychology()
		snap := database.AgentSnapshot{
			Profile:        profile,
			Capital:        agent.Capital(),
			TotalTrades:    perf.TotalTrades,
			Wins:           perf.Wins,
			Losses:         perf.Losses,
			WinRate:        perf.WinRate,
			Drawdown:       perf.Drawdown,
			EmotionalState: string(psych.EmotionalState),
		}
		if err := o.repo.SaveAgentSnapshot(ctx, snap); err != nil {
			o.logger.Warn().Err(err).Str("profile", profile).Msg("persist agent snapshot")
		}
		o.logger.Info().
			Str("profile", profile).
			Float64("capital", agent.Capital()).
			Int("trades", perf.TotalTrades).
			Float64("win_rate", perf.WinRate).
			Str("state", string(psych.EmotionalState)).
			Msg("agent report")
	}
}

// shutdown runs after the loop context is cancelled: reject new entries,
// stop the adapter, optionally flatten everything, then drain.
func (o *Orchestrator) shutdown() {
	o.shuttingDown.Store(true)
	o.logger.Info().Msg("shutting down")

	if o.client != nil {
		o.client.BeginShutdown()
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.OrchestratorConfig.ShutdownTimeout)
	defer cancel()

	if o.cfg.TradingConfig.CloseOnShutdown {
		mark := 0.0
		if price, ok := o.store.GetString(ctx, state.KeyLastPrice); ok {
			mark, _ = strconv.ParseFloat(price, 64)
		}
		o.settleExits(ctx, o.engine.CloseAll(ctx, mark, position.ReasonShutdown))
	}

	o.bus.Publish(events.Event{Type: events.EventBotStopped, Data: map[string]interface{}{
		"ticks": o.ticks.Load(),
	}})
	o.logger.Info().Int64("ticks", o.ticks.Load()).Msg("orchestrator stopped")
}

// Status implements the status feed's source interface.
func (o *Orchestrator) Status() map[string]interface{} {
	status := map[string]interface{}{
		"running":    o.running.Load(),
		"symbol":     o.cfg.TradingConfig.Symbol,
		"dry_run":    o.cfg.TradingConfig.DryRun,
		"profiles":   o.order,
		"ticks":      o.ticks.Load(),
		"open_count": len(o.engine.Open()),
	}
	if !o.startedAt.IsZero() {
		status["uptime_seconds"] = int64(time.Since(o.startedAt).Seconds())
	}
	return status
}

// OpenPositions returns every open position across all agents.
func (o *Orchestrator) OpenPositions() []*position.Position {
	return o.engine.Open()
}

// Agents exposes the agent set for tests and reporting.
func (o *Orchestrator) Agents() []trader.Agent {
	o.mu.RLock()
	defer o.mu.RUnlock()
	agents := make([]trader.Agent, 0, len(o.order))
	for _, profile := range o.order {
		agents = append(agents, o.agents[profile])
	}
	return agents
}
