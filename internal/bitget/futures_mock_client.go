package bitget

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// MockFuturesClient is an in-memory FuturesClient used in dry-run mode and
// by tests. Prices are driven by SetPrice; orders fill immediately at the
// current price.
type MockFuturesClient struct {
	mu        sync.RWMutex
	version   APIVersion
	price     float64
	balance   float64
	positions map[string]*ExchangePosition // key: symbol|side
	history   []HistoricalPosition
	orders    []OrderParams
	shutdown  bool
}

// NewMockFuturesClient creates a mock client with the given starting
// balance and price.
func NewMockFuturesClient(balance, price float64) *MockFuturesClient {
	return &MockFuturesClient{
		version:   V2,
		price:     price,
		balance:   balance,
		positions: make(map[string]*ExchangePosition),
	}
}

// SetPrice moves the simulated mark price.
func (m *MockFuturesClient) SetPrice(price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.price = price
	for _, p := range m.positions {
		direction := 1.0
		if p.Side == "short" {
			direction = -1
		}
		p.UnrealizedPnL = (price - p.EntryPrice) * p.Contracts * direction
	}
}

// Orders returns every order placed so far.
func (m *MockFuturesClient) Orders() []OrderParams {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]OrderParams(nil), m.orders...)
}

func (m *MockFuturesClient) Initialize(context.Context) error { return nil }

func (m *MockFuturesClient) SetupTradingConfig(context.Context, string, int, string) error {
	return nil
}

func (m *MockFuturesClient) VerifySymbol(_ context.Context, symbol string) error {
	if NormalizeSymbol(symbol) == "" {
		return fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
	}
	return nil
}

func (m *MockFuturesClient) BeginShutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdown = true
}

func (m *MockFuturesClient) GetMarketTicker(_ context.Context, symbol string) (*Ticker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	spread := m.price * 0.0001
	return &Ticker{
		Symbol:    NormalizeSymbol(symbol),
		Last:      m.price,
		BestBid:   m.price - spread/2,
		BestAsk:   m.price + spread/2,
		Timestamp: time.Now().UnixMilli(),
	}, nil
}

func (m *MockFuturesClient) GetOrderbook(_ context.Context, symbol string, depth int) (*OrderBook, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if depth <= 0 {
		depth = 10
	}
	spread := m.price * 0.0001
	book := &OrderBook{
		Symbol:    NormalizeSymbol(symbol),
		Spread:    spread,
		MidPrice:  m.price,
		Timestamp: time.Now().UTC(),
	}
	for i := 0; i < depth; i++ {
		step := float64(i+1) * spread
		book.Bids = append(book.Bids, BookLevel{Price: m.price - step, Size: 1 + float64(i)})
		book.Asks = append(book.Asks, BookLevel{Price: m.price + step, Size: 1 + float64(i)})
	}
	return book, nil
}

func (m *MockFuturesClient) GetRecentTrades(_ context.Context, _ string, limit int) ([]Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	trades := make([]Trade, 0, limit)
	for i := 0; i < limit; i++ {
		trades = append(trades, Trade{
			Price:     m.price,
			Size:      0.01,
			Side:      "buy",
			Timestamp: time.Now().UnixMilli(),
		})
	}
	return trades, nil
}

func (m *MockFuturesClient) GetOHLCV(_ context.Context, _ string, _ string, limit int) ([]Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	candles := make([]Candle, 0, limit)
	base := time.Now().Add(-time.Duration(limit) * time.Minute)
	for i := 0; i < limit; i++ {
		wobble := math.Sin(float64(i)/7) * m.price * 0.001
		close := m.price + wobble
		candles = append(candles, Candle{
			OpenTime: base.Add(time.Duration(i) * time.Minute),
			Open:     close - wobble/2,
			High:     close + math.Abs(wobble),
			Low:      close - math.Abs(wobble),
			Close:    close,
			Volume:   10,
		})
	}
	return candles, nil
}

func (m *MockFuturesClient) GetBalance(context.Context) (*AccountBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &AccountBalance{
		MarginCoin: "USDT",
		Available:  m.balance,
		Equity:     m.balance,
		UsdtEquity: m.balance,
	}, nil
}

func (m *MockFuturesClient) SetLeverage(context.Context, string, int, string) error { return nil }
func (m *MockFuturesClient) SetMarginMode(context.Context, string, string) error    { return nil }
func (m *MockFuturesClient) SetHedgeMode(context.Context) error                     { return nil }

func (m *MockFuturesClient) GetPositions(_ context.Context, symbol string) ([]ExchangePosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.shutdown {
		return nil, ErrShutdown
	}
	want := FormatSymbol(symbol, m.version)
	out := make([]ExchangePosition, 0, len(m.positions))
	for _, p := range m.positions {
		if p.Contracts <= 0 {
			continue
		}
		if symbol != "" && p.Symbol != want {
			continue
		}
		out = append(out, *p)
	}
	return out, nil
}

func (m *MockFuturesClient) GetAllPositions(context.Context) ([]ExchangePosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ExchangePosition, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, *p)
	}
	return out, nil
}

func (m *MockFuturesClient) GetHistoricalPositions(context.Context, string, int) ([]HistoricalPosition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]HistoricalPosition(nil), m.history...), nil
}

func (m *MockFuturesClient) PlaceOrder(_ context.Context, params OrderParams) (*OrderResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shutdown {
		return nil, ErrShutdown
	}
	if params.ClientOid == "" {
		params.ClientOid = NewClientOid()
	}
	m.orders = append(m.orders, params)

	symbol := FormatSymbol(params.Symbol, m.version)
	side := "long"
	if params.Side == SideOpenShort || params.Side == SideCloseShort {
		side = "short"
	}
	key := symbol + "|" + side
	switch params.Side {
	case SideOpenLong, SideOpenShort:
		pos, ok := m.positions[key]
		if !ok {
			pos = &ExchangePosition{
				Symbol:     symbol,
				Side:       side,
				EntryPrice: m.price,
				Leverage:   float64(params.Leverage),
				MarginMode: MarginModeCrossed,
				Timestamp:  time.Now().UnixMilli(),
			}
			m.positions[key] = pos
		}
		pos.Contracts += params.Size
		pos.Available = pos.Contracts
	case SideCloseLong:
		m.reduce(symbol, "long", params.Size)
	case SideCloseShort:
		m.reduce(symbol, "short", params.Size)
	}

	return &OrderResponse{
		OrderID:   fmt.Sprintf("mock-%d", time.Now().UnixNano()),
		ClientOid: params.ClientOid,
	}, nil
}

func (m *MockFuturesClient) reduce(symbol, side string, size float64) {
	key := symbol + "|" + side
	pos, ok := m.positions[key]
	if !ok {
		return
	}
	pos.Contracts -= size
	if pos.Contracts <= 1e-9 {
		delete(m.positions, key)
	}
}

func (m *MockFuturesClient) ClosePosition(_ context.Context, symbol, holdSide string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := FormatSymbol(symbol, m.version)
	for key, p := range m.positions {
		if p.Symbol != want {
			continue
		}
		if holdSide != "" && p.Side != holdSide {
			continue
		}
		delete(m.positions, key)
	}
	return nil
}

var _ FuturesClient = (*MockFuturesClient)(nil)
