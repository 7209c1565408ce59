package bitget

import "testing"

func TestNormalizeSymbol(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"BTC", "BTC/USDT:USDT"},
		{"BTCUSDT", "BTC/USDT:USDT"},
		{"BTC/USDT", "BTC/USDT:USDT"},
		{"BTC/USDT:USDT", "BTC/USDT:USDT"},
		{"BTCUSDT_UMCBL", "BTC/USDT:USDT"},
		{"eth/usdt", "ETH/USDT:USDT"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NormalizeSymbol(tt.in); got != tt.want {
			t.Errorf("NormalizeSymbol(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatSymbol(t *testing.T) {
	tests := []struct {
		in      string
		version APIVersion
		want    string
	}{
		{"BTC/USDT", V1, "BTCUSDT_UMCBL"},
		{"BTC/USDT", V2, "BTCUSDT"},
		{"BTCUSDT_UMCBL", V2, "BTCUSDT"},
		{"BTCUSDT", V1, "BTCUSDT_UMCBL"},
		{"SOL", V2, "SOLUSDT"},
	}
	for _, tt := range tests {
		if got := FormatSymbol(tt.in, tt.version); got != tt.want {
			t.Errorf("FormatSymbol(%q, %s) = %q, want %q", tt.in, tt.version, got, tt.want)
		}
	}
}

// Formatting must be idempotent for both API versions.
func TestFormatSymbolIdempotent(t *testing.T) {
	for _, version := range []APIVersion{V1, V2} {
		for _, in := range []string{"BTC", "BTCUSDT", "BTC/USDT", "BTC/USDT:USDT"} {
			once := FormatSymbol(in, version)
			twice := FormatSymbol(once, version)
			if once != twice {
				t.Errorf("FormatSymbol not idempotent for %q (%s): %q -> %q", in, version, once, twice)
			}
		}
	}
}

func TestProductType(t *testing.T) {
	if got := V1.ProductType(); got != "umcbl" {
		t.Errorf("V1.ProductType() = %q, want umcbl", got)
	}
	if got := V2.ProductType(); got != "USDT-FUTURES" {
		t.Errorf("V2.ProductType() = %q, want USDT-FUTURES", got)
	}
}
