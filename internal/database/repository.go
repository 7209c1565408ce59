package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"bitget-trading-bot/internal/position"
)

// ClosedTrade is one row of trade history.
type ClosedTrade struct {
	ID          string    `json:"id"`
	Profile     string    `json:"profile"`
	Symbol      string    `json:"symbol"`
	Direction   string    `json:"direction"`
	EntryPrice  float64   `json:"entry_price"`
	ExitPrice   float64   `json:"exit_price"`
	Size        float64   `json:"size"`
	Leverage    int       `json:"leverage"`
	RealizedPnL float64   `json:"realized_pnl"`
	EntryReason string    `json:"entry_reason"`
	ExitReason  string    `json:"exit_reason"`
	Status      string    `json:"status"`
	EntryTime   time.Time `json:"entry_time"`
	ExitTime    time.Time `json:"exit_time"`
}

// AgentSnapshot is a periodic capital and performance record for one agent.
type AgentSnapshot struct {
	Profile        string    `json:"profile"`
	Capital        float64   `json:"capital"`
	TotalTrades    int       `json:"total_trades"`
	Wins           int       `json:"wins"`
	Losses         int       `json:"losses"`
	WinRate        float64   `json:"win_rate"`
	Drawdown       float64   `json:"drawdown"`
	EmotionalState string    `json:"emotional_state"`
	TakenAt        time.Time `json:"taken_at"`
}

// Repository provides trade-history access. A nil Repository (or one built
// over a nil DB) accepts every call and does nothing, so callers never need
// to branch on whether persistence is configured.
type Repository struct {
	db *DB
}

// NewRepository creates a repository. db may be nil.
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) enabled() bool {
	return r != nil && r.db != nil && r.db.Pool != nil
}

// HealthCheck pings the underlying database.
func (r *Repository) HealthCheck(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("database not configured")
	}
	return r.db.HealthCheck(ctx)
}

// SaveClosedTrade persists a fully closed (or liquidated) position.
func (r *Repository) SaveClosedTrade(ctx context.Context, pos *position.Position) error {
	if !r.enabled() || pos == nil {
		return nil
	}
	if pos.Status == position.StatusOpen {
		return fmt.Errorf("position %s is still open", pos.ID)
	}

	partials, err := json.Marshal(pos.PartialExits)
	if err != nil {
		return fmt.Errorf("marshal partial exits: %w", err)
	}

	exitTime := time.Now().UTC()
	if pos.ExitTime != nil {
		exitTime = *pos.ExitTime
	}

	query := `
		INSERT INTO closed_trades (id, profile, symbol, direction, entry_price, exit_price,
			size, leverage, realized_pnl, entry_reason, exit_reason, status, partial_exits,
			entry_time, exit_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO NOTHING
	`
	_, err = r.db.Pool.Exec(ctx, query,
		pos.ID, pos.Profile, pos.Symbol, pos.Direction, pos.EntryPrice, pos.ExitPrice,
		pos.InitialSize, pos.Leverage, pos.RealizedPnL, pos.EntryReason, pos.ExitReason,
		pos.Status, partials, pos.EntryTime, exitTime,
	)
	if err != nil {
		return fmt.Errorf("insert closed trade: %w", err)
	}
	return nil
}

// RecentTrades returns the most recently closed trades, newest first.
// An empty profile returns trades across all agents.
func (r *Repository) RecentTrades(ctx context.Context, profile string, limit int) ([]ClosedTrade, error) {
	if !r.enabled() {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, profile, symbol, direction, entry_price, exit_price, size, leverage,
			realized_pnl, entry_reason, exit_reason, status, entry_time, exit_time
		FROM closed_trades
		WHERE ($1 = '' OR profile = $1)
		ORDER BY exit_time DESC
		LIMIT $2
	`
	rows, err := r.db.Pool.Query(ctx, query, profile, limit)
	if err != nil {
		return nil, fmt.Errorf("query closed trades: %w", err)
	}
	defer rows.Close()

	var trades []ClosedTrade
	for rows.Next() {
		var t ClosedTrade
		if err := rows.Scan(
			&t.ID, &t.Profile, &t.Symbol, &t.Direction, &t.EntryPrice, &t.ExitPrice,
			&t.Size, &t.Leverage, &t.RealizedPnL, &t.EntryReason, &t.ExitReason,
			&t.Status, &t.EntryTime, &t.ExitTime,
		); err != nil {
			return nil, fmt.Errorf("scan closed trade: %w", err)
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// SaveAgentSnapshot records an agent's capital and performance at a point
// in time.
func (r *Repository) SaveAgentSnapshot(ctx context.Context, snap AgentSnapshot) error {
	if !r.enabled() {
		return nil
	}
	if snap.TakenAt.IsZero() {
		snap.TakenAt = time.Now().UTC()
	}

	query := `
		INSERT INTO agent_snapshots (profile, capital, total_trades, wins, losses,
			win_rate, drawdown, emotional_state, taken_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Pool.Exec(ctx, query,
		snap.Profile, snap.Capital, snap.TotalTrades, snap.Wins, snap.Losses,
		snap.WinRate, snap.Drawdown, snap.EmotionalState, snap.TakenAt,
	)
	if err != nil {
		return fmt.Errorf("insert agent snapshot: %w", err)
	}
	return nil
}
