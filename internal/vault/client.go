// Package vault fetches Bitget API credentials from HashiCorp Vault so
// they never have to live in environment variables on shared hosts.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"bitget-trading-bot/config"
)

// Credentials is the secret triple required by the Bitget futures API.
type Credentials struct {
	APIKey     string `json:"api_key"`
	SecretKey  string `json:"secret_key"`
	Passphrase string `json:"passphrase"`
}

// Client wraps the HashiCorp Vault client. When Vault is disabled in the
// configuration every lookup reports not-found and the caller falls back
// to environment credentials.
type Client struct {
	client *api.Client
	config config.VaultConfig

	mu     sync.RWMutex
	cached *Credentials
}

// NewClient creates a Vault client from the configuration.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{config: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, config: cfg}, nil
}

// Enabled reports whether Vault lookups are configured.
func (c *Client) Enabled() bool {
	return c != nil && c.config.Enabled
}

// FetchCredentials reads the Bitget credential triple from the configured
// KV v2 secret path. Results are cached for the process lifetime.
func (c *Client) FetchCredentials(ctx context.Context) (*Credentials, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("vault is disabled")
	}

	c.mu.RLock()
	if c.cached != nil {
		defer c.mu.RUnlock()
		return c.cached, nil
	}
	c.mu.RUnlock()

	path := fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)

	secret, err := c.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("credentials not found at %s", path)
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid secret format at %s", path)
	}

	creds := &Credentials{
		APIKey:     getString(data, "api_key"),
		SecretKey:  getString(data, "secret_key"),
		Passphrase: getString(data, "passphrase"),
	}
	if creds.APIKey == "" || creds.SecretKey == "" || creds.Passphrase == "" {
		return nil, fmt.Errorf("incomplete credentials at %s", path)
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()

	return creds, nil
}

func getString(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
