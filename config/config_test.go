package config

import (
	"testing"
	"time"
)

func TestUseTestNetSwapsCredentialTriple(t *testing.T) {
	t.Setenv("BITGET_API_KEY", "main-key")
	t.Setenv("BITGET_SECRET_KEY", "main-secret")
	t.Setenv("BITGET_PASSPHRASE", "main-pass")
	t.Setenv("BITGET_TESTNET_API_KEY", "test-key")
	t.Setenv("BITGET_TESTNET_SECRET_KEY", "test-secret")
	t.Setenv("BITGET_TESTNET_PASSPHRASE", "test-pass")
	t.Setenv("BITGET_TESTNET", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BitgetConfig.APIKey != "main-key" {
		t.Fatalf("mainnet key = %q", cfg.BitgetConfig.APIKey)
	}

	cfg.UseTestNet()

	if !cfg.BitgetConfig.TestNet {
		t.Fatal("TestNet flag not set")
	}
	if cfg.BitgetConfig.APIKey != "test-key" ||
		cfg.BitgetConfig.SecretKey != "test-secret" ||
		cfg.BitgetConfig.Passphrase != "test-pass" {
		t.Fatalf("testnet triple not resolved: %q/%q/%q",
			cfg.BitgetConfig.APIKey, cfg.BitgetConfig.SecretKey, cfg.BitgetConfig.Passphrase)
	}
}

func TestLoadTestnetEnvPicksTestnetCredentials(t *testing.T) {
	t.Setenv("BITGET_TESTNET", "true")
	t.Setenv("BITGET_API_KEY", "main-key")
	t.Setenv("BITGET_TESTNET_API_KEY", "test-key")
	t.Setenv("BITGET_TESTNET_SECRET_KEY", "test-secret")
	t.Setenv("BITGET_TESTNET_PASSPHRASE", "test-pass")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.BitgetConfig.TestNet || cfg.BitgetConfig.APIKey != "test-key" {
		t.Fatalf("testnet=%v key=%q", cfg.BitgetConfig.TestNet, cfg.BitgetConfig.APIKey)
	}
}

func TestLoadRejectsUnknownAPIVersion(t *testing.T) {
	t.Setenv("BITGET_API_VERSION", "v3")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown API version")
	}
}

func TestOrchestratorDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.OrchestratorConfig.TickInterval != 10*time.Second {
		t.Errorf("TickInterval = %v", cfg.OrchestratorConfig.TickInterval)
	}
	if cfg.OrchestratorConfig.ReportInterval != time.Minute {
		t.Errorf("ReportInterval = %v", cfg.OrchestratorConfig.ReportInterval)
	}
}
