package bitget

import "time"

// Credentials holds the signing material and account selection for one
// adapter instance.
type Credentials struct {
	APIKey     string
	SecretKey  string
	Passphrase string
	TestNet    bool
	APIVersion APIVersion
	SubAccount string
}

// apiResponse is the exchange envelope: {"code":"00000","msg":"success","data":...}.
type apiResponse struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data jsonRawOptional `json:"data"`
}

// jsonRawOptional tolerates both absent and explicit-null data fields.
type jsonRawOptional []byte

func (r *jsonRawOptional) UnmarshalJSON(data []byte) error {
	*r = append((*r)[:0], data...)
	return nil
}

// Ticker is the normalized market ticker.
type Ticker struct {
	Symbol    string  `json:"symbol"`
	Last      float64 `json:"last,string"`
	BestBid   float64 `json:"bestBid,string"`
	BestAsk   float64 `json:"bestAsk,string"`
	High24h   float64 `json:"high24h,string"`
	Low24h    float64 `json:"low24h,string"`
	Volume24h float64 `json:"baseVolume,string"`
	Timestamp int64   `json:"timestamp,string"`
}

// BookLevel is one price level of the order book.
type BookLevel struct {
	Price float64
	Size  float64
}

// OrderBook carries the top levels of both sides plus derived figures.
type OrderBook struct {
	Symbol    string
	Bids      []BookLevel
	Asks      []BookLevel
	Spread    float64
	MidPrice  float64
	Timestamp time.Time
}

// BestBid returns the highest bid, or 0 when the book is empty.
func (b *OrderBook) BestBid() float64 {
	if len(b.Bids) == 0 {
		return 0
	}
	return b.Bids[0].Price
}

// BestAsk returns the lowest ask, or 0 when the book is empty.
func (b *OrderBook) BestAsk() float64 {
	if len(b.Asks) == 0 {
		return 0
	}
	return b.Asks[0].Price
}

// Trade is one public fill.
type Trade struct {
	Price     float64 `json:"price,string"`
	Size      float64 `json:"size,string"`
	Side      string  `json:"side"`
	Timestamp int64   `json:"timestamp,string"`
}

// Candle is one OHLCV bar.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}

// AccountBalance is the USDT-margined futures balance snapshot.
type AccountBalance struct {
	MarginCoin       string  `json:"marginCoin"`
	Available        float64 `json:"available,string"`
	Equity           float64 `json:"equity,string"`
	Locked           float64 `json:"locked,string"`
	UnrealizedPnL    float64 `json:"unrealizedPL,string"`
	CrossMaxAvail    float64 `json:"crossMaxAvailable,string"`
	FixedMaxAvail    float64 `json:"fixedMaxAvailable,string"`
	UsdtEquity       float64 `json:"usdtEquity,string"`
	BonusUsdtEquity  float64 `json:"bonus,string"`
	AccountedMarginR float64 `json:"crossRiskRate,string"`
}

// ExchangePosition is a position as reported by the exchange.
type ExchangePosition struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"holdSide"` // long / short
	Contracts     float64 `json:"total,string"`
	Available     float64 `json:"available,string"`
	EntryPrice    float64 `json:"averageOpenPrice,string"`
	Leverage      float64 `json:"leverage,string"`
	MarginMode    string  `json:"marginMode"`
	UnrealizedPnL float64 `json:"unrealizedPL,string"`
	LiqPrice      float64 `json:"liquidationPrice,string"`
	ContractSize  float64 `json:"contractSize,string"`
	Timestamp     int64   `json:"cTime,string"`
}

// HistoricalPosition is one closed-position record.
type HistoricalPosition struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"holdSide"`
	OpenAvg    float64 `json:"openAvgPrice,string"`
	CloseAvg   float64 `json:"closeAvgPrice,string"`
	PnL        float64 `json:"pnl,string"`
	NetProfit  float64 `json:"netProfit,string"`
	OpenTotal  float64 `json:"openTotalPos,string"`
	CloseTotal float64 `json:"closeTotalPos,string"`
	CreatedAt  int64   `json:"cTime,string"`
	UpdatedAt  int64   `json:"uTime,string"`
}

// Order sides accepted by the exchange.
const (
	SideOpenLong   = "open_long"
	SideOpenShort  = "open_short"
	SideCloseLong  = "close_long"
	SideCloseShort = "close_short"
)

// Order types.
const (
	OrderTypeMarket = "market"
	OrderTypeLimit  = "limit"
)

// Margin modes.
const (
	MarginModeCrossed = "crossed"
	MarginModeFixed   = "fixed"
)

// Time-in-force values.
const (
	TIFNormal   = "normal"
	TIFPostOnly = "post_only"
	TIFFOK      = "fok"
	TIFIOC      = "ioc"
)

// OrderParams describes one order placement.
type OrderParams struct {
	Symbol      string  // any accepted spelling; formatted per API version
	Side        string  // open_long / open_short / close_long / close_short
	OrderType   string  // market / limit
	Size        float64 // contracts
	Price       float64 // required for limit orders
	Leverage    int
	MarginMode  string
	TimeInForce string
	ReduceOnly  bool
	PostOnly    bool
	ClientOid   string // generated when empty
}

// OrderResponse is the exchange acknowledgement of an order.
type OrderResponse struct {
	OrderID   string `json:"orderId"`
	ClientOid string `json:"clientOid"`
}
