package bitget

import "context"

// FuturesClient is the typed surface over Bitget USDT-perpetual futures
// consumed by the orchestrator and the position engine. The mock client
// implements the same interface for dry-run mode and tests.
type FuturesClient interface {
	// Lifecycle
	Initialize(ctx context.Context) error
	SetupTradingConfig(ctx context.Context, symbol string, leverage int, marginMode string) error
	VerifySymbol(ctx context.Context, symbol string) error
	BeginShutdown()

	// Market data
	GetMarketTicker(ctx context.Context, symbol string) (*Ticker, error)
	GetOrderbook(ctx context.Context, symbol string, depth int) (*OrderBook, error)
	GetRecentTrades(ctx context.Context, symbol string, limit int) ([]Trade, error)
	GetOHLCV(ctx context.Context, symbol, granularity string, limit int) ([]Candle, error)

	// Account
	GetBalance(ctx context.Context) (*AccountBalance, error)
	SetLeverage(ctx context.Context, symbol string, leverage int, holdSide string) error
	SetMarginMode(ctx context.Context, symbol, mode string) error
	SetHedgeMode(ctx context.Context) error

	// Positions and orders
	GetPositions(ctx context.Context, symbol string) ([]ExchangePosition, error)
	GetAllPositions(ctx context.Context) ([]ExchangePosition, error)
	GetHistoricalPositions(ctx context.Context, symbol string, limit int) ([]HistoricalPosition, error)
	PlaceOrder(ctx context.Context, params OrderParams) (*OrderResponse, error)
	ClosePosition(ctx context.Context, symbol, holdSide string) error
}
