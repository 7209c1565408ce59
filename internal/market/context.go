package market

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"bitget-trading-bot/internal/bitget"
	"bitget-trading-bot/internal/fibonacci"
	"bitget-trading-bot/internal/logging"
	"bitget-trading-bot/internal/state"
)

// trapHintMaxAge: hints older than this are ignored.
const trapHintMaxAge = 15 * time.Minute

// fibProximityPct: a level counts as "near" within this distance of price.
const fibProximityPct = 2.0

// TrapHint is a market-maker trap signal read from the state store.
type TrapHint struct {
	TrapType    string    `json:"trap_type"`
	Probability float64   `json:"probability"`
	Timestamp   time.Time `json:"timestamp"`
}

// OpposesDirection reports whether this trap argues against holding the
// given direction: bull traps and fake pumps oppose longs, bear traps
// and fake dumps oppose shorts.
func (t TrapHint) OpposesDirection(direction string) bool {
	switch t.TrapType {
	case "bull_trap", "fake_pump":
		return direction == "LONG"
	case "bear_trap", "fake_dump":
		return direction == "SHORT"
	}
	return false
}

// BiasSnapshot is the separately maintained market bias score.
type BiasSnapshot struct {
	Bias         string  `json:"bias"`
	BullishScore float64 `json:"bullish_score"`
	BearishScore float64 `json:"bearish_score"`
}

// Context is one immutable snapshot of market conditions. Price and
// Timestamp are always populated; everything else may carry defaults
// when its source was unavailable.
type Context struct {
	Symbol           string                  `json:"symbol"`
	Price            float64                 `json:"price"`
	Timestamp        time.Time               `json:"timestamp"`
	OrderBook        *bitget.OrderBook       `json:"order_book,omitempty"`
	Closes           []float64               `json:"-"`
	RecentVolatility float64                 `json:"recent_volatility"`
	Trend            string                  `json:"trend"`
	Momentum         float64                 `json:"momentum"`
	VolumeMultiplier float64                 `json:"volume_multiplier"`
	Regime           string                  `json:"regime"`
	NearestFib       *fibonacci.NearestLevel `json:"nearest_fibonacci,omitempty"`
	NearFib          bool                    `json:"near_fibonacci"`
	RecentTrap       *TrapHint               `json:"recent_trap,omitempty"`
}

// Aggregator composes context snapshots from the exchange client and the
// state store. It never writes to the store, and any sub-source failure
// degrades that field to a default instead of failing the snapshot.
type Aggregator struct {
	client      bitget.FuturesClient
	store       *state.Store
	symbol      string
	granularity string
	book        *SyntheticBook
	lastPrice   float64
	logger      zerolog.Logger
}

// NewAggregator wires an aggregator for one symbol. The seed drives the
// synthetic order-book fallback.
func NewAggregator(client bitget.FuturesClient, store *state.Store, symbol string, seed int64) *Aggregator {
	return &Aggregator{
		client:      client,
		store:       store,
		symbol:      symbol,
		granularity: "1m",
		book:        NewSyntheticBook(symbol, seed),
		logger:      logging.Component("market"),
	}
}

// Snapshot builds the current context. It always returns a context with
// price and timestamp set; the error is non-nil only when no price could
// be established from any source.
func (a *Aggregator) Snapshot(ctx context.Context) (*Context, error) {
	now := time.Now().UTC()
	snap := &Context{
		Symbol:           a.symbol,
		Timestamp:        now,
		RecentVolatility: DefaultVolatility,
		Trend:            TrendNeutral,
		Momentum:         0,
		VolumeMultiplier: 1.0,
		Regime:           "neutral",
	}

	price, err := a.resolvePrice(ctx)
	if err != nil {
		return snap, err
	}
	snap.Price = price
	a.lastPrice = price

	a.fillCandleDerived(ctx, snap)
	a.fillOrderBook(ctx, snap)
	a.fillRegime(ctx, snap)
	a.fillNearestFib(ctx, snap)
	a.fillRecentTrap(ctx, snap, now)

	return snap, nil
}

// resolvePrice tries the live ticker, then the state store, then the last
// price this aggregator saw.
func (a *Aggregator) resolvePrice(ctx context.Context) (float64, error) {
	var err error
	if a.client != nil {
		var ticker *bitget.Ticker
		ticker, err = a.client.GetMarketTicker(ctx, a.symbol)
		if err == nil && ticker.Last > 0 {
			return ticker.Last, nil
		}
		if err != nil {
			a.logger.Warn().Err(err).Msg("ticker unavailable, falling back to stored price")
		}
	}

	if raw, ok := a.store.GetString(ctx, state.KeyLastPrice); ok {
		if p, perr := strconv.ParseFloat(raw, 64); perr == nil && p > 0 {
			return p, nil
		}
	}
	if a.lastPrice > 0 {
		return a.lastPrice, nil
	}
	if err == nil {
		err = errors.New("no price source available")
	}
	return 0, err
}

func (a *Aggregator) fillCandleDerived(ctx context.Context, snap *Context) {
	if a.client == nil {
		return
	}
	candles, err := a.client.GetOHLCV(ctx, a.symbol, a.granularity, 30)
	if err != nil || len(candles) == 0 {
		if err != nil {
			a.logger.Warn().Err(err).Msg("candles unavailable, using default volatility and trend")
		}
		return
	}

	closes := make([]float64, len(candles))
	volumes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
		volumes[i] = c.Volume
	}
	snap.Closes = closes
	snap.RecentVolatility = Volatility(closes, 20)
	if len(closes) < 20 {
		snap.RecentVolatility = Volatility(closes, 10)
	}
	snap.Trend = TrendFromCloses(snap.Price, closes)
	snap.Momentum = Momentum(closes)
	snap.VolumeMultiplier = VolumeMultiplier(volumes, 20)
}

func (a *Aggregator) fillOrderBook(ctx context.Context, snap *Context) {
	if a.client == nil {
		snap.OrderBook = a.book.Generate(snap.Price, snap.Timestamp)
		return
	}
	book, err := a.client.GetOrderbook(ctx, a.symbol, syntheticBookDepth)
	if err != nil || book == nil || len(book.Bids) == 0 {
		snap.OrderBook = a.book.Generate(snap.Price, snap.Timestamp)
		return
	}
	snap.OrderBook = book
}

func (a *Aggregator) fillRegime(ctx context.Context, snap *Context) {
	var bias BiasSnapshot
	ok, err := a.store.GetJSON(ctx, state.KeyMarketBias, &bias)
	if err != nil || !ok || bias.Bias == "" {
		return
	}
	snap.Regime = bias.Bias
}

func (a *Aggregator) fillNearestFib(ctx context.Context, snap *Context) {
	var byLevel map[string]float64
	ok, err := a.store.GetJSON(ctx, state.KeyFibonacciLevels, &byLevel)
	if err != nil || !ok || len(byLevel) == 0 {
		return
	}

	byRatio := make(map[float64]float64, len(byLevel))
	for label, price := range byLevel {
		ratio, perr := strconv.ParseFloat(label, 64)
		if perr != nil {
			continue
		}
		byRatio[ratio] = price
	}
	nearest, found := (fibonacci.Levels{ByRatio: byRatio}).Nearest(snap.Price)
	if !found {
		return
	}
	snap.NearestFib = &nearest
	snap.NearFib = nearest.DistancePct <= fibProximityPct
}

func (a *Aggregator) fillRecentTrap(ctx context.Context, snap *Context, now time.Time) {
	var hint TrapHint
	ok, err := a.store.GetJSON(ctx, state.KeyLatestTrap, &hint)
	if err != nil || !ok {
		return
	}
	if now.Sub(hint.Timestamp) > trapHintMaxAge {
		return
	}
	snap.RecentTrap = &hint
}
