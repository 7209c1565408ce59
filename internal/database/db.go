// Package database persists closed-trade history and per-agent capital
// snapshots to PostgreSQL. The whole package is optional: when no DSN is
// configured the bot runs purely in memory and every repository method is
// a nil-safe no-op.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"bitget-trading-bot/internal/logging"
)

// DB wraps the PostgreSQL connection pool.
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB connects to PostgreSQL using the given DSN and verifies the
// connection with a ping.
func NewDB(dsn string) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger := logging.Component("database")
	logger.Info().Msg("connected to PostgreSQL")

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection pool.
func (db *DB) Close() {
	if db == nil || db.Pool == nil {
		return
	}
	db.Pool.Close()
	db.logger.Info().Msg("database connection closed")
}

// HealthCheck pings the database.
func (db *DB) HealthCheck(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return fmt.Errorf("database not configured")
	}
	return db.Pool.Ping(ctx)
}

// RunMigrations creates the schema. Statements are idempotent so this is
// safe to run on every startup.
func (db *DB) RunMigrations(ctx context.Context) error {
	if db == nil || db.Pool == nil {
		return nil
	}
	db.logger.Info().Msg("running database migrations")

	migrations := []string{
		`CREATE TABLE IF NOT EXISTS closed_trades (
			id UUID PRIMARY KEY,
			profile VARCHAR(20) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			direction VARCHAR(5) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8) NOT NULL,
			size DECIMAL(20, 8) NOT NULL,
			leverage INTEGER NOT NULL,
			realized_pnl DECIMAL(20, 8) NOT NULL,
			entry_reason TEXT,
			exit_reason VARCHAR(30) NOT NULL,
			status VARCHAR(12) NOT NULL,
			partial_exits JSONB,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_time TIMESTAMPTZ NOT NULL,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_profile ON closed_trades(profile)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_symbol ON closed_trades(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_closed_trades_exit_time ON closed_trades(exit_time)`,

		`CREATE TABLE IF NOT EXISTS agent_snapshots (
			id SERIAL PRIMARY KEY,
			profile VARCHAR(20) NOT NULL,
			capital DECIMAL(20, 8) NOT NULL,
			total_trades INTEGER NOT NULL,
			wins INTEGER NOT NULL,
			losses INTEGER NOT NULL,
			win_rate DECIMAL(10, 4) NOT NULL,
			drawdown DECIMAL(10, 4) NOT NULL,
			emotional_state VARCHAR(20) NOT NULL,
			taken_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_snapshots_profile ON agent_snapshots(profile)`,
		`CREATE INDEX IF NOT EXISTS idx_agent_snapshots_taken_at ON agent_snapshots(taken_at)`,
	}

	for i, stmt := range migrations {
		if _, err := db.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("statements", len(migrations)).Msg("migrations complete")
	return nil
}
