package bitget

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

func testClient(t *testing.T, server *httptest.Server) *FuturesClientImpl {
	t.Helper()
	creds := Credentials{
		APIKey:     "key",
		SecretKey:  "secret",
		Passphrase: "pass",
		APIVersion: V2,
	}
	return NewFuturesClient(creds, ClientOptions{
		BaseURL:            server.URL,
		MinRequestInterval: time.Millisecond,
		BaseRetryDelay:     50 * time.Millisecond,
		JitterFactor:       -1, // disable jitter for deterministic delays
	})
}

// Two 429 responses then success: observed delays follow base, base·φ and
// the payload comes back unchanged.
func TestGoldenRatioBackoff(t *testing.T) {
	var mu sync.Mutex
	var arrivals []time.Time

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		arrivals = append(arrivals, time.Now())
		n := len(arrivals)
		mu.Unlock()

		if n <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"code":"429","msg":"too many requests"}`))
			return
		}
		w.Write([]byte(`{"code":"00000","msg":"success","data":{"marginCoin":"USDT","available":"123.45"}}`))
	}))
	defer server.Close()

	client := testClient(t, server)
	balance, err := client.GetBalance(context.Background())
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Available != 123.45 {
		t.Errorf("Available = %v, want 123.45", balance.Available)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(arrivals) != 3 {
		t.Fatalf("got %d attempts, want 3", len(arrivals))
	}

	base := 50 * time.Millisecond
	first := arrivals[1].Sub(arrivals[0])
	second := arrivals[2].Sub(arrivals[1])
	wantSecond := time.Duration(float64(base) * math.Phi)

	if first < base || first > base*3 {
		t.Errorf("first delay %v, want >= %v", first, base)
	}
	if second < wantSecond || second > wantSecond*3 {
		t.Errorf("second delay %v, want >= %v (base*phi)", second, wantSecond)
	}
	// The golden-ratio schedule grows between attempts.
	if second <= first {
		t.Errorf("delays did not grow: first %v, second %v", first, second)
	}
}

// The exchange's "request URL not found" 404 envelope is a known transient
// response and gets retried.
func TestTransient404Retried(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		n := attempts
		mu.Unlock()
		if n == 1 {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":"40404","msg":"request URL not found"}`))
			return
		}
		w.Write([]byte(`{"code":"00000","msg":"success","data":{"marginCoin":"USDT","available":"1"}}`))
	}))
	defer server.Close()

	client := testClient(t, server)
	if _, err := client.GetBalance(context.Background()); err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestAuthErrorNotRetried(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"40009","msg":"sign signature error"}`))
	}))
	defer server.Close()

	client := testClient(t, server)
	_, err := client.GetBalance(context.Background())
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("err = %v, want ErrAuth", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 (auth errors must not retry)", attempts)
	}
}

func TestSignedHeadersPresent(t *testing.T) {
	var gotKey, gotSign, gotTs, gotPass string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("ACCESS-KEY")
		gotSign = r.Header.Get("ACCESS-SIGN")
		gotTs = r.Header.Get("ACCESS-TIMESTAMP")
		gotPass = r.Header.Get("ACCESS-PASSPHRASE")
		w.Write([]byte(`{"code":"00000","msg":"success","data":{"marginCoin":"USDT"}}`))
	}))
	defer server.Close()

	client := testClient(t, server)
	if _, err := client.GetBalance(context.Background()); err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if gotKey != "key" || gotPass != "pass" || gotSign == "" || gotTs == "" {
		t.Errorf("missing auth headers: key=%q sign=%q ts=%q pass=%q", gotKey, gotSign, gotTs, gotPass)
	}
}

// Testnet credentials mark each signed request as demo trading.
func TestTestnetCredentialsSetDemoHeader(t *testing.T) {
	var gotDemo string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotDemo = r.Header.Get("paptrading")
		w.Write([]byte(`{"code":"00000","msg":"success","data":{"marginCoin":"USDT"}}`))
	}))
	defer server.Close()

	client := NewFuturesClient(Credentials{
		APIKey:     "key",
		SecretKey:  "secret",
		Passphrase: "pass",
		TestNet:    true,
		APIVersion: V2,
	}, ClientOptions{
		BaseURL:            server.URL,
		MinRequestInterval: time.Millisecond,
	})
	if _, err := client.GetBalance(context.Background()); err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if gotDemo != "1" {
		t.Errorf("paptrading header = %q, want 1", gotDemo)
	}
}

func TestShutdownRejectsRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"00000","msg":"success","data":[]}`))
	}))
	defer server.Close()

	client := testClient(t, server)
	client.BeginShutdown()
	_, err := client.GetPositions(context.Background(), "BTC/USDT")
	if !errors.Is(err, ErrShutdown) {
		t.Errorf("err = %v, want ErrShutdown", err)
	}
}

// Close orders bypass the shutdown gate so flatten-on-exit can still reach
// the exchange, while everything else stays rejected.
func TestCloseOrdersAllowedDuringShutdown(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		paths = append(paths, r.URL.Path)
		mu.Unlock()
		w.Write([]byte(`{"code":"00000","msg":"success","data":{}}`))
	}))
	defer server.Close()

	client := testClient(t, server)
	client.BeginShutdown()

	if _, err := client.PlaceOrder(context.Background(), OrderParams{
		Symbol: "BTC/USDT", Side: SideOpenLong, OrderType: OrderTypeMarket, Size: 1,
	}); !errors.Is(err, ErrShutdown) {
		t.Errorf("PlaceOrder err = %v, want ErrShutdown", err)
	}

	if err := client.ClosePosition(context.Background(), "BTC/USDT", "long"); err != nil {
		t.Fatalf("ClosePosition during shutdown: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(paths) != 1 {
		t.Fatalf("exchange hits = %d, want exactly the close call (%v)", len(paths), paths)
	}
}

func TestDegradedModeBlocksTrading(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"code":"00000","msg":"success","data":[]}`))
	}))
	defer server.Close()

	client := NewFuturesClient(Credentials{APIVersion: V2}, ClientOptions{
		BaseURL:            server.URL,
		MinRequestInterval: time.Millisecond,
	})

	_, err := client.PlaceOrder(context.Background(), OrderParams{Symbol: "BTC/USDT", Side: SideOpenLong, Size: 1})
	if !errors.Is(err, ErrDegraded) {
		t.Errorf("PlaceOrder err = %v, want ErrDegraded", err)
	}

	// Market data still flows without credentials.
	if _, err := client.GetRecentTrades(context.Background(), "BTC/USDT", 5); err != nil {
		t.Errorf("GetRecentTrades in degraded mode failed: %v", err)
	}
}
