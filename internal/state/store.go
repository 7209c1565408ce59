// Package state provides the shared key-value store written by the
// orchestrator and read by dashboards and reporters. Backed by Redis when
// available; falls back to an in-memory map so trading continues without
// interruption.
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"bitget-trading-bot/internal/logging"
)

// Store keys. Each key has a single logical writer; readers tolerate
// absence and staleness. Values are replaced whole, no transactions.
const (
	KeyLastPrice       = "last_btc_price"
	KeyFibonacciLevels = "realtime_fibonacci_levels"
	KeyMarketBias      = "market_bias"
	// Trap hints are written by an external detector. KeyLatestTrap holds
	// the full hint object and is what the exit engine acts on;
	// KeyTrapProbability is a bare scalar served to the status feed.
	KeyLatestTrap      = "latest_mm_trap"
	KeyTrapProbability = "current_trap_probability"
	KeyCurrentPosition = "current_position"
	keyMovementsPrefix = "btc_movements_"
	keyPatternsPrefix  = "harmonic_patterns_"
	keySignalsPrefix   = "harmonic_signals_"
	keyTraderPrefix    = "trader:"
)

// KeyMovements returns the price-movement list key for an N-minute window.
func KeyMovements(minutes int) string {
	return fmt.Sprintf("%s%dmin", keyMovementsPrefix, minutes)
}

// KeyPatterns returns the detected-pattern list key for a timeframe.
func KeyPatterns(timeframe string) string {
	return keyPatternsPrefix + timeframe
}

// KeySignals returns the pattern-signal list key for a timeframe.
func KeySignals(timeframe string) string {
	return keySignalsPrefix + timeframe
}

// KeyTraderPositions returns the per-profile open-positions key.
func KeyTraderPositions(profile string) string {
	return keyTraderPrefix + "positions:" + profile
}

// KeyTraderTrades returns the per-profile closed-trades key.
func KeyTraderTrades(profile string) string {
	return keyTraderPrefix + "trades:" + profile
}

// KeyTraderMetrics returns the per-profile metrics key.
func KeyTraderMetrics(profile string) string {
	return keyTraderPrefix + "metrics:" + profile
}

// Store is the Redis-backed key-value store with in-memory fallback.
type Store struct {
	client         *redis.Client
	mu             sync.RWMutex
	memory         map[string]string
	memoryLists    map[string][]string
	redisAvailable atomic.Bool
	logger         zerolog.Logger
}

// Options configures the store.
type Options struct {
	Address  string
	Password string
	DB       int
}

// New creates a store. When addr is empty or Redis is unreachable, the
// store runs memory-only.
func New(opts Options) *Store {
	s := &Store{
		memory:      make(map[string]string),
		memoryLists: make(map[string][]string),
		logger:      logging.Component("state"),
	}
	if opts.Address == "" {
		s.logger.Info().Msg("no redis address configured, using in-memory store")
		return s
	}

	s.client = redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("redis unavailable, falling back to in-memory store")
		s.redisAvailable.Store(false)
	} else {
		s.logger.Info().Str("addr", opts.Address).Msg("redis connected")
		s.redisAvailable.Store(true)
	}
	return s
}

// NewMemory creates a memory-only store. Used by tests and dry runs.
func NewMemory() *Store {
	return New(Options{})
}

// Close releases the Redis connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// SetString stores a raw string value.
func (s *Store) SetString(ctx context.Context, key, value string) error {
	if s.useRedis() {
		if err := s.client.Set(ctx, key, value, 0).Err(); err == nil {
			return nil
		} else {
			s.markRedisDown(err)
		}
	}
	s.mu.Lock()
	s.memory[key] = value
	s.mu.Unlock()
	return nil
}

// GetString fetches a raw string value; ok is false when absent.
func (s *Store) GetString(ctx context.Context, key string) (string, bool) {
	if s.useRedis() {
		val, err := s.client.Get(ctx, key).Result()
		if err == nil {
			return val, true
		}
		if err == redis.Nil {
			return "", false
		}
		s.markRedisDown(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	val, ok := s.memory[key]
	return val, ok
}

// SetJSON marshals and stores a value, replacing the whole entry.
func (s *Store) SetJSON(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return s.SetString(ctx, key, string(raw))
}

// GetJSON fetches and unmarshals a value; ok is false when absent.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok := s.GetString(ctx, key)
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		return false, fmt.Errorf("unmarshal %s: %w", key, err)
	}
	return true, nil
}

// PushToList appends a JSON-encoded entry to a bounded list, trimming the
// oldest entries beyond maxLen.
func (s *Store) PushToList(ctx context.Context, key string, value any, maxLen int64) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if s.useRedis() {
		pipe := s.client.Pipeline()
		pipe.RPush(ctx, key, string(raw))
		if maxLen > 0 {
			pipe.LTrim(ctx, key, -maxLen, -1)
		}
		if _, err := pipe.Exec(ctx); err == nil {
			return nil
		} else {
			s.markRedisDown(err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.memoryLists[key], string(raw))
	if maxLen > 0 && int64(len(list)) > maxLen {
		list = list[int64(len(list))-maxLen:]
	}
	s.memoryLists[key] = list
	return nil
}

// GetList returns every raw JSON entry of a list, oldest first.
func (s *Store) GetList(ctx context.Context, key string) ([]string, error) {
	if s.useRedis() {
		vals, err := s.client.LRange(ctx, key, 0, -1).Result()
		if err == nil {
			return vals, nil
		}
		s.markRedisDown(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.memoryLists[key]...), nil
}

// Delete removes a key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if s.useRedis() {
		if err := s.client.Del(ctx, key).Err(); err != nil {
			s.markRedisDown(err)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.memory, key)
	delete(s.memoryLists, key)
	return nil
}

func (s *Store) useRedis() bool {
	return s.client != nil && s.redisAvailable.Load()
}

func (s *Store) markRedisDown(err error) {
	if s.redisAvailable.CompareAndSwap(true, false) {
		s.logger.Warn().Err(err).Msg("redis error, switching to in-memory fallback")
	}
}
