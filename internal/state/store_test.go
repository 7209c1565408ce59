package state

import (
	"context"
	"testing"
)

type biasSnapshot struct {
	Bias         string  `json:"bias"`
	BullishScore float64 `json:"bullish_score"`
	BearishScore float64 `json:"bearish_score"`
}

func TestSetGetString(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.SetString(ctx, KeyLastPrice, "50000.5"); err != nil {
		t.Fatalf("SetString: %v", err)
	}
	val, ok := store.GetString(ctx, KeyLastPrice)
	if !ok || val != "50000.5" {
		t.Errorf("GetString = %q, %v; want 50000.5, true", val, ok)
	}

	if _, ok := store.GetString(ctx, "missing"); ok {
		t.Error("GetString should report absent keys")
	}
}

func TestSetGetJSON(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	in := biasSnapshot{Bias: "bullish", BullishScore: 0.7, BearishScore: 0.2}
	if err := store.SetJSON(ctx, KeyMarketBias, in); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var out biasSnapshot
	ok, err := store.GetJSON(ctx, KeyMarketBias, &out)
	if err != nil || !ok {
		t.Fatalf("GetJSON: ok=%v err=%v", ok, err)
	}
	if out != in {
		t.Errorf("GetJSON = %+v, want %+v", out, in)
	}
}

func TestPushToListBounded(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()
	key := KeyMovements(5)

	for i := 0; i < 10; i++ {
		if err := store.PushToList(ctx, key, map[string]int{"i": i}, 4); err != nil {
			t.Fatalf("PushToList: %v", err)
		}
	}
	entries, err := store.GetList(ctx, key)
	if err != nil {
		t.Fatalf("GetList: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("list len = %d, want 4 (bounded)", len(entries))
	}
	if entries[0] != `{"i":6}` || entries[3] != `{"i":9}` {
		t.Errorf("oldest entries were not trimmed: %v", entries)
	}
}

func TestKeyHelpers(t *testing.T) {
	if got := KeyMovements(5); got != "btc_movements_5min" {
		t.Errorf("KeyMovements(5) = %q", got)
	}
	if got := KeyPatterns("15m"); got != "harmonic_patterns_15m" {
		t.Errorf("KeyPatterns = %q", got)
	}
	if got := KeyTraderMetrics("scalper"); got != "trader:metrics:scalper" {
		t.Errorf("KeyTraderMetrics = %q", got)
	}
}
