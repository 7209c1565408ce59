package market

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitget-trading-bot/internal/bitget"
	"bitget-trading-bot/internal/state"
)

// downClient fails every sub-source the aggregator touches.
type downClient struct {
	bitget.FuturesClient
}

func (downClient) GetMarketTicker(context.Context, string) (*bitget.Ticker, error) {
	return nil, errors.New("exchange unreachable")
}

func (downClient) GetOrderbook(context.Context, string, int) (*bitget.OrderBook, error) {
	return nil, errors.New("exchange unreachable")
}

func (downClient) GetOHLCV(context.Context, string, string, int) ([]bitget.Candle, error) {
	return nil, errors.New("exchange unreachable")
}

func TestSnapshotFailsSoft(t *testing.T) {
	store := state.NewMemory()
	ctx := context.Background()
	if err := store.SetString(ctx, state.KeyLastPrice, "50000"); err != nil {
		t.Fatal(err)
	}

	agg := NewAggregator(downClient{}, store, "BTC/USDT:USDT", 1)
	snap, err := agg.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot with stored price fallback: %v", err)
	}

	if snap.Price != 50000 {
		t.Errorf("Price = %v, want stored fallback 50000", snap.Price)
	}
	if snap.Timestamp.IsZero() {
		t.Error("Timestamp must always be set")
	}
	if snap.RecentVolatility != DefaultVolatility {
		t.Errorf("RecentVolatility = %v, want default %v", snap.RecentVolatility, DefaultVolatility)
	}
	if snap.Trend != TrendNeutral {
		t.Errorf("Trend = %s, want %s", snap.Trend, TrendNeutral)
	}
	if snap.Regime != "neutral" {
		t.Errorf("Regime = %s, want neutral", snap.Regime)
	}
	if snap.OrderBook == nil || len(snap.OrderBook.Bids) != syntheticBookDepth {
		t.Error("expected a synthetic order-book fallback")
	}
}

func TestSnapshotNoPriceAnywhere(t *testing.T) {
	agg := NewAggregator(downClient{}, state.NewMemory(), "BTC/USDT:USDT", 1)
	snap, err := agg.Snapshot(context.Background())
	if err == nil {
		t.Fatal("expected an error when no price source is available")
	}
	// Even the failed snapshot carries a timestamp.
	if snap == nil || snap.Timestamp.IsZero() {
		t.Error("failed snapshot must still carry a timestamp")
	}
}

func TestSnapshotLiveSources(t *testing.T) {
	client := bitget.NewMockFuturesClient(10000, 50000)
	store := state.NewMemory()
	ctx := context.Background()

	if err := store.SetJSON(ctx, state.KeyMarketBias, BiasSnapshot{Bias: "bullish", BullishScore: 70, BearishScore: 30}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetJSON(ctx, state.KeyFibonacciLevels, map[string]float64{
		"0.5":   50200,
		"0.618": 48000,
	}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetJSON(ctx, state.KeyLatestTrap, TrapHint{
		TrapType:    "bull_trap",
		Probability: 0.85,
		Timestamp:   time.Now().UTC(),
	}); err != nil {
		t.Fatal(err)
	}

	agg := NewAggregator(client, store, "BTC/USDT:USDT", 1)
	snap, err := agg.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}

	if snap.Price != 50000 {
		t.Errorf("Price = %v, want 50000", snap.Price)
	}
	if snap.Regime != "bullish" {
		t.Errorf("Regime = %s, want bullish", snap.Regime)
	}
	if snap.NearestFib == nil || snap.NearestFib.Ratio != 0.5 {
		t.Fatalf("NearestFib = %+v, want the 0.5 level", snap.NearestFib)
	}
	if !snap.NearFib {
		t.Error("level 0.4%% away should count as near")
	}
	if snap.RecentTrap == nil || snap.RecentTrap.TrapType != "bull_trap" {
		t.Errorf("RecentTrap = %+v, want the stored bull_trap", snap.RecentTrap)
	}
	if snap.OrderBook == nil {
		t.Error("expected the client order book")
	}
}

func TestStaleTrapIgnored(t *testing.T) {
	client := bitget.NewMockFuturesClient(10000, 50000)
	store := state.NewMemory()
	ctx := context.Background()

	if err := store.SetJSON(ctx, state.KeyLatestTrap, TrapHint{
		TrapType:    "bear_trap",
		Probability: 0.9,
		Timestamp:   time.Now().UTC().Add(-20 * time.Minute),
	}); err != nil {
		t.Fatal(err)
	}

	agg := NewAggregator(client, store, "BTC/USDT:USDT", 1)
	snap, err := agg.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.RecentTrap != nil {
		t.Errorf("RecentTrap = %+v, want nil for a 20-minute-old hint", snap.RecentTrap)
	}
}

func TestTrapOpposesDirection(t *testing.T) {
	tests := []struct {
		trapType  string
		direction string
		want      bool
	}{
		{"bull_trap", "LONG", true},
		{"fake_pump", "LONG", true},
		{"bull_trap", "SHORT", false},
		{"bear_trap", "SHORT", true},
		{"fake_dump", "SHORT", true},
		{"bear_trap", "LONG", false},
		{"unknown", "LONG", false},
	}
	for _, tt := range tests {
		hint := TrapHint{TrapType: tt.trapType}
		if got := hint.OpposesDirection(tt.direction); got != tt.want {
			t.Errorf("%s vs %s = %v, want %v", tt.trapType, tt.direction, got, tt.want)
		}
	}
}
