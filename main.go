package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"bitget-trading-bot/config"
	"bitget-trading-bot/internal/api"
	"bitget-trading-bot/internal/bitget"
	"bitget-trading-bot/internal/database"
	"bitget-trading-bot/internal/events"
	"bitget-trading-bot/internal/logging"
	"bitget-trading-bot/internal/orchestrator"
	"bitget-trading-bot/internal/state"
	"bitget-trading-bot/internal/vault"
)

const (
	exitOK        = 0
	exitFatal     = 1
	exitInterrupt = 130
)

func main() {
	os.Exit(run())
}

func run() int {
	profiles := flag.String("profiles", "", "comma-separated trader profiles (overrides TRADING_PROFILES)")
	capital := flag.Float64("capital", 0, "starting capital per agent (overrides TRADING_INITIAL_CAPITAL)")
	logDir := flag.String("log-dir", "", "directory for the log file (overrides LOG_DIR)")
	debug := flag.Bool("debug", false, "force debug-level logging")
	reportInterval := flag.Duration("report-interval", 0, "agent report cadence (overrides REPORT_INTERVAL)")
	testnet := flag.Bool("testnet", false, "use testnet credentials and endpoints")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return exitFatal
	}
	applyFlags(cfg, *profiles, *capital, *logDir, *debug, *reportInterval, *testnet)

	if err := logging.Setup(logging.Config{
		Level:      cfg.LoggingConfig.Level,
		LogDir:     cfg.LoggingConfig.LogDir,
		JSONFormat: cfg.LoggingConfig.JSONFormat,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "failed to set up logging: %v\n", err)
		return exitFatal
	}
	logger := logging.Component("main")

	store := state.New(state.Options{
		Address:  cfg.RedisConfig.Address,
		Password: cfg.RedisConfig.Password,
		DB:       cfg.RedisConfig.DB,
	})
	defer store.Close()

	if err := loadVaultCredentials(cfg); err != nil {
		logger.Warn().Err(err).Msg("vault credentials unavailable, falling back to environment")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, streams, err := buildClient(ctx, cfg, store)
	if err != nil {
		logger.Error().Err(err).Msg("exchange client initialization failed")
		return exitFatal
	}

	var db *database.DB
	if cfg.DatabaseConfig.Enabled {
		db, err = database.NewDB(cfg.DatabaseConfig.DSN)
		if err != nil {
			logger.Warn().Err(err).Msg("database unavailable, trade history disabled")
		} else {
			defer db.Close()
			if err := db.RunMigrations(ctx); err != nil {
				logger.Error().Err(err).Msg("database migrations failed")
				return exitFatal
			}
		}
	}
	repo := database.NewRepository(db)

	bus := events.NewBus()
	orch, err := orchestrator.New(cfg, client, store, bus, repo)
	if err != nil {
		logger.Error().Err(err).Msg("orchestrator initialization failed")
		return exitFatal
	}

	var server *api.Server
	if cfg.ServerConfig.Enabled {
		server = api.NewServer(cfg.ServerConfig, store, repo, orch, cfg.TradingConfig.Profiles)
		server.Start()
	}

	if streams != nil {
		streams.Start(ctx)
	}

	err = orch.Run(ctx)

	if streams != nil {
		streams.Stop()
	}
	if server != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if serr := server.Stop(stopCtx); serr != nil {
			logger.Warn().Err(serr).Msg("status server shutdown")
		}
		cancel()
	}

	if err != nil {
		logger.Error().Err(err).Msg("orchestrator failed")
		return exitFatal
	}
	if ctx.Err() != nil {
		logger.Info().Msg("interrupted")
		return exitInterrupt
	}
	return exitOK
}

func applyFlags(cfg *config.Config, profiles string, capital float64, logDir string, debug bool, reportInterval time.Duration, testnet bool) {
	if profiles != "" {
		var list []string
		for _, p := range strings.Split(profiles, ",") {
			if p = strings.TrimSpace(p); p != "" {
				list = append(list, p)
			}
		}
		cfg.TradingConfig.Profiles = list
	}
	if capital > 0 {
		cfg.TradingConfig.InitialCapital = capital
	}
	if logDir != "" {
		cfg.LoggingConfig.LogDir = logDir
	}
	if debug {
		cfg.LoggingConfig.Level = "debug"
	}
	if reportInterval > 0 {
		cfg.OrchestratorConfig.ReportInterval = reportInterval
	}
	if testnet {
		cfg.UseTestNet()
	}
}

// loadVaultCredentials overwrites the environment-derived credentials with
// the Vault-stored triple when Vault is enabled.
func loadVaultCredentials(cfg *config.Config) error {
	client, err := vault.NewClient(cfg.VaultConfig)
	if err != nil {
		return err
	}
	if !client.Enabled() {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	creds, err := client.FetchCredentials(ctx)
	if err != nil {
		return err
	}
	cfg.BitgetConfig.APIKey = creds.APIKey
	cfg.BitgetConfig.SecretKey = creds.SecretKey
	cfg.BitgetConfig.Passphrase = creds.Passphrase
	return nil
}

// buildClient selects the exchange client. With credentials present a real
// client is initialized (hedge mode, leverage, symbol check) and a ticker
// stream keeps the store's last price fresh. Otherwise a mock client
// provides market data so dry runs still work end to end.
func buildClient(ctx context.Context, cfg *config.Config, store *state.Store) (bitget.FuturesClient, *bitget.StreamManager, error) {
	logger := logging.Component("main")

	if !cfg.BitgetConfig.HasCredentials() {
		logger.Warn().Msg("no exchange credentials, running in degraded mode with simulated market data")
		return bitget.NewMockFuturesClient(cfg.TradingConfig.InitialCapital, 50000), nil, nil
	}

	creds := bitget.Credentials{
		APIKey:     cfg.BitgetConfig.APIKey,
		SecretKey:  cfg.BitgetConfig.SecretKey,
		Passphrase: cfg.BitgetConfig.Passphrase,
		TestNet:    cfg.BitgetConfig.TestNet,
		APIVersion: bitget.APIVersion(cfg.BitgetConfig.APIVersion),
		SubAccount: cfg.BitgetConfig.SubAccount,
	}
	opts := bitget.ClientOptions{
		MinRequestInterval: cfg.BitgetConfig.MinRequestInterval,
		MaxRetries:         cfg.BitgetConfig.MaxRetries,
		BaseRetryDelay:     cfg.BitgetConfig.BaseRetryDelay,
		MaxRetryDelay:      cfg.BitgetConfig.MaxRetryDelay,
		ConnectTimeout:     cfg.BitgetConfig.ConnectTimeout,
		ReadTimeout:        cfg.BitgetConfig.ReadTimeout,
	}
	client := bitget.NewFuturesClient(creds, opts)

	if err := client.Initialize(ctx); err != nil {
		// One retry; persistent auth failures are fatal.
		logger.Warn().Err(err).Msg("initialization failed, retrying once")
		if err = client.Initialize(ctx); err != nil {
			return nil, nil, fmt.Errorf("initialize exchange client: %w", err)
		}
	}
	if err := client.VerifySymbol(ctx, cfg.TradingConfig.Symbol); err != nil {
		return nil, nil, fmt.Errorf("verify symbol %s: %w", cfg.TradingConfig.Symbol, err)
	}
	if err := client.SetupTradingConfig(ctx, cfg.TradingConfig.Symbol,
		cfg.TradingConfig.DefaultLeverage, cfg.TradingConfig.MarginMode); err != nil {
		logger.Warn().Err(err).Msg("trading config setup failed, continuing with exchange defaults")
	}

	streams := bitget.NewStreamManager(creds, cfg.TradingConfig.Symbol)
	streams.Subscribe(bitget.StreamTicker, func(msg bitget.StreamMessage) {
		var ticks []struct {
			LastPr string `json:"lastPr"`
		}
		if err := json.Unmarshal(msg.Data, &ticks); err != nil || len(ticks) == 0 {
			return
		}
		price, err := strconv.ParseFloat(ticks[0].LastPr, 64)
		if err != nil || price <= 0 {
			return
		}
		wctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := store.SetString(wctx, state.KeyLastPrice, ticks[0].LastPr); err != nil {
			logger.Warn().Err(err).Msg("persist streamed price")
		}
	})

	return client, streams, nil
}
