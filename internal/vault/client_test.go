package vault

import (
	"context"
	"testing"

	"bitget-trading-bot/config"
)

func TestDisabledClientFailsFast(t *testing.T) {
	c, err := NewClient(config.VaultConfig{Enabled: false})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	if c.Enabled() {
		t.Fatal("disabled config must report Enabled() == false")
	}
	if _, err := c.FetchCredentials(context.Background()); err == nil {
		t.Fatal("expected error fetching credentials with vault disabled")
	}
}

func TestNilClientIsDisabled(t *testing.T) {
	var c *Client
	if c.Enabled() {
		t.Fatal("nil client must report disabled")
	}
}

func TestGetString(t *testing.T) {
	data := map[string]interface{}{
		"api_key": "abc",
		"count":   3,
	}
	if got := getString(data, "api_key"); got != "abc" {
		t.Fatalf("getString(api_key) = %q", got)
	}
	if got := getString(data, "count"); got != "" {
		t.Fatalf("non-string value should yield empty, got %q", got)
	}
	if got := getString(data, "missing"); got != "" {
		t.Fatalf("missing key should yield empty, got %q", got)
	}
}
