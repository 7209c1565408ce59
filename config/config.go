package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the root configuration for the trading core.
type Config struct {
	BitgetConfig       BitgetConfig       `json:"bitget"`
	TradingConfig      TradingConfig      `json:"trading"`
	RedisConfig        RedisConfig        `json:"redis"`
	DatabaseConfig     DatabaseConfig     `json:"database"`
	VaultConfig        VaultConfig        `json:"vault"`
	ServerConfig       ServerConfig       `json:"server"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	OrchestratorConfig OrchestratorConfig `json:"orchestrator"`
}

// BitgetConfig holds Bitget USDT-perpetual futures credentials and API options.
type BitgetConfig struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
	TestNet    bool   `json:"testnet"`
	APIVersion string `json:"api_version"` // "v1" or "v2"
	SubAccount string `json:"sub_account"`

	// Request pacing and retry behaviour.
	MinRequestInterval time.Duration `json:"min_request_interval"`
	MaxRetries         int           `json:"max_retries"`
	BaseRetryDelay     time.Duration `json:"base_retry_delay"`
	MaxRetryDelay      time.Duration `json:"max_retry_delay"`
	ConnectTimeout     time.Duration `json:"connect_timeout"`
	ReadTimeout        time.Duration `json:"read_timeout"`
}

// HasCredentials reports whether the full credential triple is present.
// Without it the adapter runs in degraded, market-data-only mode.
func (c *BitgetConfig) HasCredentials() bool {
	return c.APIKey != "" && c.SecretKey != "" && c.Passphrase != ""
}

// TradingConfig holds the parameters shared by all trader profiles.
type TradingConfig struct {
	Symbol          string   `json:"symbol"`
	Profiles        []string `json:"profiles"`
	InitialCapital  float64  `json:"initial_capital"`
	DefaultLeverage int      `json:"default_leverage"`
	MarginMode      string   `json:"margin_mode"` // CROSSED or FIXED
	DryRun          bool     `json:"dry_run"`
	CloseOnShutdown bool     `json:"close_on_shutdown"`
	RandomSeed      int64    `json:"random_seed"`
}

type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type DatabaseConfig struct {
	DSN     string `json:"dsn"`
	Enabled bool   `json:"enabled"`
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

// ServerConfig controls the read-only status feed.
type ServerConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type LoggingConfig struct {
	Level      string `json:"level"`
	LogDir     string `json:"log_dir"`
	JSONFormat bool   `json:"json_format"`
}

// OrchestratorConfig controls the tick loop.
type OrchestratorConfig struct {
	TickInterval    time.Duration `json:"tick_interval"`
	ReportInterval  time.Duration `json:"report_interval"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// Load builds the configuration from the environment. A .env file in the
// working directory is honoured when present but is never required.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.BitgetConfig.TestNet = getEnvOrDefault("BITGET_TESTNET", "false") == "true"
	if cfg.BitgetConfig.TestNet {
		cfg.BitgetConfig.APIKey = getEnvOrDefault("BITGET_TESTNET_API_KEY", "")
		cfg.BitgetConfig.SecretKey = getEnvOrDefault("BITGET_TESTNET_SECRET_KEY", "")
		cfg.BitgetConfig.Passphrase = getEnvOrDefault("BITGET_TESTNET_PASSPHRASE", "")
	} else {
		cfg.BitgetConfig.APIKey = getEnvOrDefault("BITGET_API_KEY", "")
		cfg.BitgetConfig.SecretKey = getEnvOrDefault("BITGET_SECRET_KEY", "")
		cfg.BitgetConfig.Passphrase = getEnvOrDefault("BITGET_PASSPHRASE", "")
	}
	cfg.BitgetConfig.APIVersion = getEnvOrDefault("BITGET_API_VERSION", "v2")
	cfg.BitgetConfig.SubAccount = getEnvOrDefault("STRATEGIC_SUB_ACCOUNT_NAME", "")
	cfg.BitgetConfig.MinRequestInterval = getEnvDurationOrDefault("BITGET_MIN_REQUEST_INTERVAL", 500*time.Millisecond)
	cfg.BitgetConfig.MaxRetries = getEnvIntOrDefault("BITGET_MAX_RETRIES", 5)
	cfg.BitgetConfig.BaseRetryDelay = getEnvDurationOrDefault("BITGET_BASE_RETRY_DELAY", time.Second)
	cfg.BitgetConfig.MaxRetryDelay = getEnvDurationOrDefault("BITGET_MAX_RETRY_DELAY", 30*time.Second)
	cfg.BitgetConfig.ConnectTimeout = getEnvDurationOrDefault("BITGET_CONNECT_TIMEOUT", 5*time.Second)
	cfg.BitgetConfig.ReadTimeout = getEnvDurationOrDefault("BITGET_READ_TIMEOUT", 30*time.Second)

	if v := cfg.BitgetConfig.APIVersion; v != "v1" && v != "v2" {
		return nil, fmt.Errorf("invalid BITGET_API_VERSION %q: must be v1 or v2", v)
	}

	cfg.TradingConfig.Symbol = getEnvOrDefault("TRADING_SYMBOL", "BTC/USDT")
	cfg.TradingConfig.Profiles = splitList(getEnvOrDefault("TRADING_PROFILES", "strategic,aggressive,newbie,scalper"))
	cfg.TradingConfig.InitialCapital = getEnvFloatOrDefault("TRADING_INITIAL_CAPITAL", 10000)
	cfg.TradingConfig.DefaultLeverage = getEnvIntOrDefault("TRADING_DEFAULT_LEVERAGE", 11)
	cfg.TradingConfig.MarginMode = getEnvOrDefault("TRADING_MARGIN_MODE", "CROSSED")
	cfg.TradingConfig.DryRun = getEnvOrDefault("TRADING_DRY_RUN", "true") == "true"
	cfg.TradingConfig.CloseOnShutdown = getEnvOrDefault("TRADING_CLOSE_ON_SHUTDOWN", "false") == "true"
	cfg.TradingConfig.RandomSeed = int64(getEnvIntOrDefault("TRADING_RANDOM_SEED", 0))

	cfg.RedisConfig.Address = getEnvOrDefault("REDIS_ADDRESS", "localhost:6379")
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", "")
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", 0)

	cfg.DatabaseConfig.DSN = getEnvOrDefault("DATABASE_DSN", "")
	cfg.DatabaseConfig.Enabled = cfg.DatabaseConfig.DSN != ""

	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", "http://localhost:8200")
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", "")
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", "secret")
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", "trading/bitget")

	cfg.ServerConfig.Enabled = getEnvOrDefault("STATUS_SERVER_ENABLED", "true") == "true"
	cfg.ServerConfig.Host = getEnvOrDefault("STATUS_SERVER_HOST", "0.0.0.0")
	cfg.ServerConfig.Port = getEnvIntOrDefault("STATUS_SERVER_PORT", 8090)

	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.LoggingConfig.LogDir = getEnvOrDefault("LOG_DIR", "")
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "false") == "true"

	cfg.OrchestratorConfig.TickInterval = getEnvDurationOrDefault("TICK_INTERVAL", 10*time.Second)
	cfg.OrchestratorConfig.ReportInterval = getEnvDurationOrDefault("REPORT_INTERVAL", time.Minute)
	cfg.OrchestratorConfig.ShutdownTimeout = getEnvDurationOrDefault("SHUTDOWN_TIMEOUT", 5*time.Second)

	return cfg, nil
}

// UseTestNet switches the adapter to the testnet credential set. Load picks
// the triple from BITGET_TESTNET before flags are parsed, so a later
// override must re-resolve the credentials rather than only flip the flag.
func (c *Config) UseTestNet() {
	c.BitgetConfig.TestNet = true
	c.BitgetConfig.APIKey = getEnvOrDefault("BITGET_TESTNET_API_KEY", "")
	c.BitgetConfig.SecretKey = getEnvOrDefault("BITGET_TESTNET_SECRET_KEY", "")
	c.BitgetConfig.Passphrase = getEnvOrDefault("BITGET_TESTNET_PASSPHRASE", "")
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
