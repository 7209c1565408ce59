package bitget

import "strings"

// APIVersion selects the Bitget mix-futures API generation.
type APIVersion string

const (
	V1 APIVersion = "v1"
	V2 APIVersion = "v2"
)

// ProductType returns the productType parameter for this API version.
func (v APIVersion) ProductType() string {
	if v == V1 {
		return "umcbl"
	}
	return "USDT-FUTURES"
}

// NormalizeSymbol accepts "BTC", "BTCUSDT", "BTC/USDT" or "BTC/USDT:USDT"
// and yields the canonical streaming form "BTC/USDT:USDT".
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimSuffix(s, "_UMCBL")
	if i := strings.Index(s, ":"); i >= 0 {
		s = s[:i]
	}
	var base string
	switch {
	case strings.Contains(s, "/"):
		base = strings.SplitN(s, "/", 2)[0]
	case strings.HasSuffix(s, "USDT"):
		base = strings.TrimSuffix(s, "USDT")
	default:
		base = s
	}
	if base == "" {
		return ""
	}
	return base + "/USDT:USDT"
}

// FormatSymbol yields the exchange-native REST form for the given version:
// v1 "BTCUSDT_UMCBL", v2 "BTCUSDT". Idempotent for both versions.
func FormatSymbol(symbol string, version APIVersion) string {
	canonical := NormalizeSymbol(symbol)
	if canonical == "" {
		return ""
	}
	base := strings.SplitN(canonical, "/", 2)[0]
	if version == V1 {
		return base + "USDT_UMCBL"
	}
	return base + "USDT"
}
