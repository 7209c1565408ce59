package database

import (
	"context"
	"testing"
	"time"

	"bitget-trading-bot/internal/position"
)

// Persistence is optional. Every repository method must be a safe no-op
// when Postgres is not configured.
func TestNilRepositoryIsNoOp(t *testing.T) {
	ctx := context.Background()

	var r *Repository
	if err := r.SaveClosedTrade(ctx, closedPosition()); err != nil {
		t.Fatalf("nil repository SaveClosedTrade: %v", err)
	}
	if err := r.SaveAgentSnapshot(ctx, AgentSnapshot{Profile: "scalper"}); err != nil {
		t.Fatalf("nil repository SaveAgentSnapshot: %v", err)
	}
	trades, err := r.RecentTrades(ctx, "", 10)
	if err != nil {
		t.Fatalf("nil repository RecentTrades: %v", err)
	}
	if trades != nil {
		t.Fatalf("expected no trades, got %d", len(trades))
	}
}

func TestRepositoryOverNilDB(t *testing.T) {
	ctx := context.Background()
	r := NewRepository(nil)

	if err := r.SaveClosedTrade(ctx, closedPosition()); err != nil {
		t.Fatalf("SaveClosedTrade: %v", err)
	}
	if _, err := r.RecentTrades(ctx, "strategic", 5); err != nil {
		t.Fatalf("RecentTrades: %v", err)
	}
}

func TestHealthCheckUnconfigured(t *testing.T) {
	var db *DB
	if err := db.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check error for unconfigured database")
	}
	// Close and RunMigrations must still be safe.
	db.Close()
	if err := db.RunMigrations(context.Background()); err != nil {
		t.Fatalf("RunMigrations on nil DB: %v", err)
	}
}

func closedPosition() *position.Position {
	pos := position.New("strategic", "BTC/USDT", position.DirectionLong,
		50000, 0.1, 11, "fib retest", 48000, nil)
	now := time.Now().UTC()
	pos.Status = position.StatusClosed
	pos.ExitPrice = 51000
	pos.ExitReason = position.ReasonTakeProfit
	pos.ExitTime = &now
	pos.RealizedPnL = 1100
	return pos
}
