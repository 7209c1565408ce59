package bitget

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// FuturesClientImpl implements FuturesClient against the live exchange.
type FuturesClientImpl struct {
	*Client
}

// NewFuturesClient creates a live futures client.
func NewFuturesClient(creds Credentials, opts ClientOptions) *FuturesClientImpl {
	return &FuturesClientImpl{Client: NewClient(creds, opts)}
}

// pathPrefix returns the REST prefix for this API generation.
func (c *FuturesClientImpl) pathPrefix() string {
	if c.APIVersion() == V1 {
		return "/api/mix/v1"
	}
	return "/api/v2/mix"
}

func (c *FuturesClientImpl) symbolParam(symbol string) string {
	return FormatSymbol(symbol, c.APIVersion())
}

func (c *FuturesClientImpl) baseParams(symbol string) map[string]string {
	params := map[string]string{
		"productType": c.APIVersion().ProductType(),
		"marginCoin":  "USDT",
	}
	if symbol != "" {
		params["symbol"] = c.symbolParam(symbol)
	}
	return params
}

// ==================== LIFECYCLE ====================

// Initialize loads markets and enforces hedge mode. The exchange's
// "already set" error is tolerated.
func (c *FuturesClientImpl) Initialize(ctx context.Context) error {
	if _, err := c.contracts(ctx); err != nil {
		return fmt.Errorf("load markets: %w", err)
	}
	if !c.CanTrade() {
		c.logger.Warn().Msg("no credentials configured, running in market-data-only mode")
		return nil
	}
	if err := c.SetHedgeMode(ctx); err != nil {
		return fmt.Errorf("set hedge mode: %w", err)
	}
	return nil
}

// SetupTradingConfig applies margin mode and per-side leverage for a symbol.
// Leverage is set once per side, as hedge mode requires.
func (c *FuturesClientImpl) SetupTradingConfig(ctx context.Context, symbol string, leverage int, marginMode string) error {
	if err := c.SetMarginMode(ctx, symbol, marginMode); err != nil {
		return err
	}
	for _, side := range []string{"long", "short"} {
		if err := c.SetLeverage(ctx, symbol, leverage, side); err != nil {
			return fmt.Errorf("set %s leverage: %w", side, err)
		}
	}
	return nil
}

// VerifySymbol checks the symbol against the contracts list.
func (c *FuturesClientImpl) VerifySymbol(ctx context.Context, symbol string) error {
	contracts, err := c.contracts(ctx)
	if err != nil {
		return err
	}
	want := c.symbolParam(symbol)
	for _, contract := range contracts {
		if contract.Symbol == want {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrInvalidSymbol, symbol)
}

type contractInfo struct {
	Symbol string `json:"symbol"`
}

func (c *FuturesClientImpl) contracts(ctx context.Context) ([]contractInfo, error) {
	params := map[string]string{"productType": c.APIVersion().ProductType()}
	data, err := c.request(ctx, http.MethodGet, c.pathPrefix()+"/market/contracts", params, nil)
	if err != nil {
		return nil, err
	}
	var contracts []contractInfo
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, fmt.Errorf("parse contracts: %w", err)
	}
	return contracts, nil
}

// ==================== MARKET DATA ====================

// GetMarketTicker fetches the current ticker.
func (c *FuturesClientImpl) GetMarketTicker(ctx context.Context, symbol string) (*Ticker, error) {
	params := c.baseParams(symbol)
	delete(params, "marginCoin")
	data, err := c.request(ctx, http.MethodGet, c.pathPrefix()+"/market/ticker", params, nil)
	if err != nil {
		return nil, err
	}
	// v2 wraps the ticker in a single-element array; v1 returns the object.
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var tickers []Ticker
		if err := json.Unmarshal(data, &tickers); err != nil {
			return nil, fmt.Errorf("parse ticker: %w", err)
		}
		if len(tickers) == 0 {
			return nil, fmt.Errorf("empty ticker response for %s", symbol)
		}
		tickers[0].Symbol = NormalizeSymbol(symbol)
		return &tickers[0], nil
	}
	var ticker Ticker
	if err := json.Unmarshal(data, &ticker); err != nil {
		return nil, fmt.Errorf("parse ticker: %w", err)
	}
	ticker.Symbol = NormalizeSymbol(symbol)
	return &ticker, nil
}

type rawOrderBook struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
	Ts   string     `json:"ts"`
}

// GetOrderbook fetches the order book, normalized to numeric levels with
// spread and mid price derived.
func (c *FuturesClientImpl) GetOrderbook(ctx context.Context, symbol string, depth int) (*OrderBook, error) {
	if depth <= 0 {
		depth = 10
	}
	params := c.baseParams(symbol)
	delete(params, "marginCoin")
	params["limit"] = strconv.Itoa(depth)
	data, err := c.request(ctx, http.MethodGet, c.pathPrefix()+"/market/orderbook", params, nil)
	if err != nil {
		return nil, err
	}
	var raw rawOrderBook
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse orderbook: %w", err)
	}
	book := &OrderBook{
		Symbol:    NormalizeSymbol(symbol),
		Bids:      parseLevels(raw.Bids, depth),
		Asks:      parseLevels(raw.Asks, depth),
		Timestamp: time.Now().UTC(),
	}
	if bid, ask := book.BestBid(), book.BestAsk(); bid > 0 && ask > 0 {
		book.Spread = ask - bid
		book.MidPrice = (ask + bid) / 2
	}
	return book, nil
}

func parseLevels(raw [][]string, limit int) []BookLevel {
	levels := make([]BookLevel, 0, limit)
	for _, entry := range raw {
		if len(entry) < 2 || len(levels) >= limit {
			break
		}
		price, err1 := strconv.ParseFloat(entry[0], 64)
		size, err2 := strconv.ParseFloat(entry[1], 64)
		if err1 != nil || err2 != nil {
			continue
		}
		levels = append(levels, BookLevel{Price: price, Size: size})
	}
	return levels
}

// GetRecentTrades fetches recent public fills.
func (c *FuturesClientImpl) GetRecentTrades(ctx context.Context, symbol string, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 50
	}
	params := c.baseParams(symbol)
	delete(params, "marginCoin")
	params["limit"] = strconv.Itoa(limit)
	data, err := c.request(ctx, http.MethodGet, c.pathPrefix()+"/market/trades", params, nil)
	if err != nil {
		return nil, err
	}
	var trades []Trade
	if err := json.Unmarshal(data, &trades); err != nil {
		return nil, fmt.Errorf("parse trades: %w", err)
	}
	return trades, nil
}

// GetOHLCV fetches OHLCV candles. The exchange encodes each bar as an
// array of strings: [ts, open, high, low, close, baseVol, quoteVol].
func (c *FuturesClientImpl) GetOHLCV(ctx context.Context, symbol, granularity string, limit int) ([]Candle, error) {
	if limit <= 0 {
		limit = 100
	}
	params := c.baseParams(symbol)
	delete(params, "marginCoin")
	params["granularity"] = granularity
	params["limit"] = strconv.Itoa(limit)
	data, err := c.request(ctx, http.MethodGet, c.pathPrefix()+"/market/candles", params, nil)
	if err != nil {
		return nil, err
	}
	var raw [][]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse candles: %w", err)
	}
	candles := make([]Candle, 0, len(raw))
	for _, row := range raw {
		if len(row) < 6 {
			continue
		}
		ts, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			continue
		}
		values := make([]float64, 5)
		ok := true
		for i := 0; i < 5; i++ {
			v, err := strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				ok = false
				break
			}
			values[i] = v
		}
		if !ok {
			continue
		}
		candles = append(candles, Candle{
			OpenTime: time.UnixMilli(ts).UTC(),
			Open:     values[0],
			High:     values[1],
			Low:      values[2],
			Close:    values[3],
			Volume:   values[4],
		})
	}
	return candles, nil
}

// ==================== ACCOUNT ====================

// GetBalance fetches the USDT futures balance.
func (c *FuturesClientImpl) GetBalance(ctx context.Context) (*AccountBalance, error) {
	if !c.CanTrade() {
		return nil, ErrDegraded
	}
	params := map[string]string{
		"productType": c.APIVersion().ProductType(),
		"marginCoin":  "USDT",
	}
	data, err := c.request(ctx, http.MethodGet, c.pathPrefix()+"/account/account", params, nil)
	if err != nil {
		return nil, err
	}
	var balance AccountBalance
	if err := json.Unmarshal(data, &balance); err != nil {
		return nil, fmt.Errorf("parse balance: %w", err)
	}
	return &balance, nil
}

// SetLeverage sets leverage for one hold side of a symbol.
func (c *FuturesClientImpl) SetLeverage(ctx context.Context, symbol string, leverage int, holdSide string) error {
	if !c.CanTrade() {
		return ErrDegraded
	}
	body := map[string]any{
		"symbol":      c.symbolParam(symbol),
		"productType": c.APIVersion().ProductType(),
		"marginCoin":  "USDT",
		"leverage":    strconv.Itoa(leverage),
	}
	if holdSide != "" {
		body["holdSide"] = holdSide
	}
	_, err := c.request(ctx, http.MethodPost, c.pathPrefix()+"/account/set-leverage", nil, body)
	return err
}

// SetMarginMode sets crossed or fixed margin for a symbol.
func (c *FuturesClientImpl) SetMarginMode(ctx context.Context, symbol, mode string) error {
	if !c.CanTrade() {
		return ErrDegraded
	}
	body := map[string]any{
		"symbol":      c.symbolParam(symbol),
		"productType": c.APIVersion().ProductType(),
		"marginCoin":  "USDT",
		"marginMode":  strings.ToLower(mode),
	}
	_, err := c.request(ctx, http.MethodPost, c.pathPrefix()+"/account/set-margin-mode", nil, body)
	var exchErr *ExchangeError
	if errors.As(err, &exchErr) && strings.Contains(strings.ToLower(exchErr.Msg), "already") {
		return nil
	}
	return err
}

// SetHedgeMode requests dual-side (hedge) position mode, tolerating the
// exchange's already-set error.
func (c *FuturesClientImpl) SetHedgeMode(ctx context.Context) error {
	if !c.CanTrade() {
		return ErrDegraded
	}
	body := map[string]any{
		"productType": c.APIVersion().ProductType(),
		"posMode":     "hedge_mode",
	}
	if c.APIVersion() == V1 {
		body = map[string]any{
			"productType": c.APIVersion().ProductType(),
			"holdMode":    "double_hold",
		}
	}
	_, err := c.request(ctx, http.MethodPost, c.pathPrefix()+"/account/set-position-mode", nil, body)
	if err == nil {
		return nil
	}
	var exchErr *ExchangeError
	if errors.As(err, &exchErr) &&
		(exchErr.Code == codeAlreadyHedged || strings.Contains(strings.ToLower(exchErr.Msg), "already")) {
		return nil
	}
	return err
}

// ==================== POSITIONS ====================

func (c *FuturesClientImpl) allPositionsPath() string {
	if c.APIVersion() == V1 {
		return c.pathPrefix() + "/position/allPosition"
	}
	return c.pathPrefix() + "/position/all-position"
}

// GetPositions returns only positions with contracts > 0, optionally
// filtered by symbol. During shutdown the poll is suppressed.
func (c *FuturesClientImpl) GetPositions(ctx context.Context, symbol string) ([]ExchangePosition, error) {
	if c.IsShuttingDown() {
		return nil, ErrShutdown
	}
	all, err := c.GetAllPositions(ctx)
	if err != nil {
		return nil, err
	}
	want := ""
	if symbol != "" {
		want = c.symbolParam(symbol)
	}
	open := make([]ExchangePosition, 0, len(all))
	for _, p := range all {
		if p.Contracts <= 0 {
			continue
		}
		if want != "" && p.Symbol != want {
			continue
		}
		open = append(open, p)
	}
	return open, nil
}

// GetAllPositions returns every position record, both sides, including
// zero-contract placeholders.
func (c *FuturesClientImpl) GetAllPositions(ctx context.Context) ([]ExchangePosition, error) {
	if !c.CanTrade() {
		return nil, ErrDegraded
	}
	params := map[string]string{
		"productType": c.APIVersion().ProductType(),
		"marginCoin":  "USDT",
	}
	data, err := c.request(ctx, http.MethodGet, c.allPositionsPath(), params, nil)
	if err != nil {
		return nil, err
	}
	var positions []ExchangePosition
	if err := json.Unmarshal(data, &positions); err != nil {
		return nil, fmt.Errorf("parse positions: %w", err)
	}
	return positions, nil
}

// GetHistoricalPositions returns closed-position records.
func (c *FuturesClientImpl) GetHistoricalPositions(ctx context.Context, symbol string, limit int) ([]HistoricalPosition, error) {
	if !c.CanTrade() {
		return nil, ErrDegraded
	}
	if limit <= 0 {
		limit = 20
	}
	path := c.pathPrefix() + "/position/history"
	if c.APIVersion() == V2 {
		path = c.pathPrefix() + "/position/history-position"
	}
	params := c.baseParams(symbol)
	params["limit"] = strconv.Itoa(limit)
	data, err := c.request(ctx, http.MethodGet, path, params, nil)
	if err != nil {
		return nil, err
	}
	// v2 nests the records under "list"; v1 returns the bare array.
	var wrapped struct {
		List []HistoricalPosition `json:"list"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.List != nil {
		return wrapped.List, nil
	}
	var records []HistoricalPosition
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse historical positions: %w", err)
	}
	return records, nil
}

// ==================== ORDERS ====================

// NewClientOid builds a unique client order id.
func NewClientOid() string {
	return fmt.Sprintf("omega_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

func (c *FuturesClientImpl) placeOrderPath() string {
	if c.APIVersion() == V1 {
		return c.pathPrefix() + "/order/placeOrder"
	}
	return c.pathPrefix() + "/order/place-order"
}

// PlaceOrder places one futures order.
func (c *FuturesClientImpl) PlaceOrder(ctx context.Context, params OrderParams) (*OrderResponse, error) {
	if !c.CanTrade() {
		return nil, ErrDegraded
	}
	if params.ClientOid == "" {
		params.ClientOid = NewClientOid()
	}
	orderType := params.OrderType
	if orderType == "" {
		orderType = OrderTypeMarket
	}
	marginMode := params.MarginMode
	if marginMode == "" {
		marginMode = MarginModeCrossed
	}
	tif := params.TimeInForce
	if tif == "" {
		tif = TIFNormal
	}

	body := map[string]any{
		"symbol":           c.symbolParam(params.Symbol),
		"productType":      c.APIVersion().ProductType(),
		"marginCoin":       "USDT",
		"marginMode":       strings.ToUpper(marginMode),
		"side":             params.Side,
		"orderType":        strings.ToUpper(orderType),
		"size":             strconv.FormatFloat(params.Size, 'f', -1, 64),
		"clientOid":        params.ClientOid,
		"timeInForceValue": tif,
		"reduceOnly":       strconv.FormatBool(params.ReduceOnly),
		"postOnly":         strconv.FormatBool(params.PostOnly),
	}
	if params.Leverage > 0 {
		body["leverage"] = strconv.Itoa(params.Leverage)
	}
	if strings.EqualFold(orderType, OrderTypeLimit) {
		if params.Price <= 0 {
			return nil, fmt.Errorf("limit order requires price")
		}
		body["price"] = strconv.FormatFloat(params.Price, 'f', -1, 64)
	}

	data, err := c.request(ctx, http.MethodPost, c.placeOrderPath(), nil, body)
	if err != nil {
		return nil, err
	}
	var resp OrderResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("parse order response: %w", err)
	}
	c.logger.Info().Str("symbol", params.Symbol).Str("side", params.Side).
		Float64("size", params.Size).Str("client_oid", params.ClientOid).
		Msg("order placed")
	return &resp, nil
}

// ClosePosition flash-closes one side of a symbol's position.
func (c *FuturesClientImpl) ClosePosition(ctx context.Context, symbol, holdSide string) error {
	if !c.CanTrade() {
		return ErrDegraded
	}
	body := map[string]any{
		"symbol":      c.symbolParam(symbol),
		"productType": c.APIVersion().ProductType(),
	}
	if holdSide != "" {
		body["holdSide"] = holdSide
	}
	_, err := c.closeRequest(ctx, http.MethodPost, c.pathPrefix()+"/order/close-positions", nil, body)
	return err
}

// Ensure FuturesClientImpl implements FuturesClient.
var _ FuturesClient = (*FuturesClientImpl)(nil)
