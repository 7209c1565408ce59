package bitget

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"bitget-trading-bot/internal/logging"
)

// Stream names multiplexed over the websocket connections.
type StreamName string

const (
	StreamTicker       StreamName = "ticker"
	StreamTrades       StreamName = "trades"
	StreamOrderbook    StreamName = "orderbook"
	StreamKlines       StreamName = "klines"
	StreamLiquidations StreamName = "liquidations"
	StreamFunding      StreamName = "funding"
	StreamMarketState  StreamName = "market_state"
	StreamSystemStatus StreamName = "system_status"
	StreamOrders       StreamName = "orders"
	StreamPositions    StreamName = "positions"
	StreamBalance      StreamName = "balance"
)

const (
	// PublicWSURL is the public mix-futures websocket endpoint.
	PublicWSURL = "wss://ws.bitget.com/v2/ws/public"
	// PrivateWSURL is the private (authenticated) websocket endpoint.
	// Orders, positions and balance ride this socket after a login op.
	PrivateWSURL = "wss://ws.bitget.com/v2/ws/private"

	// streamHeartbeat is the expected message cadence; a stream counts as
	// active while its last message is younger than twice this.
	streamHeartbeat = 30 * time.Second

	wsReconnectDelay = 5 * time.Second
	wsPingInterval   = 25 * time.Second
	wsLoginTimeout   = 10 * time.Second
)

// StreamMessage is a decoded message republished to subscribers.
type StreamMessage struct {
	Stream    StreamName
	Symbol    string
	Data      json.RawMessage
	Timestamp time.Time
}

// StreamCallback consumes messages from one stream. Callbacks for a given
// stream run sequentially; no cross-stream ordering is promised.
type StreamCallback func(StreamMessage)

// StreamStatus reports liveness for one stream.
type StreamStatus struct {
	Stream      StreamName
	Active      bool
	LastMessage time.Time
	Subscribers int
}

// StreamManager owns the public and private websocket connections and the
// per-stream subscription map. Public channels are dialed unauthenticated;
// the account channels (orders, positions, balance) go through the private
// endpoint behind a signed login and are silently unavailable without a
// full credential triple.
type StreamManager struct {
	mu         sync.RWMutex
	creds      Credentials
	publicURL  string
	privateURL string
	symbol     string

	subscribers map[StreamName][]StreamCallback
	lastMessage map[StreamName]time.Time

	publicConn  *websocket.Conn
	privateConn *websocket.Conn
	running     bool
	stopChan    chan struct{}
	logger      zerolog.Logger
}

// NewStreamManager creates a stream manager for one symbol.
func NewStreamManager(creds Credentials, symbol string) *StreamManager {
	return &StreamManager{
		creds:       creds,
		publicURL:   PublicWSURL,
		privateURL:  PrivateWSURL,
		symbol:      NormalizeSymbol(symbol),
		subscribers: make(map[StreamName][]StreamCallback),
		lastMessage: make(map[StreamName]time.Time),
		logger:      logging.Component("bitget-stream"),
	}
}

// isPrivateStream reports whether a stream rides the authenticated socket.
func isPrivateStream(stream StreamName) bool {
	switch stream {
	case StreamOrders, StreamPositions, StreamBalance:
		return true
	}
	return false
}

func (sm *StreamManager) hasLoginCredentials() bool {
	return sm.creds.APIKey != "" && sm.creds.SecretKey != "" && sm.creds.Passphrase != ""
}

// Subscribe registers a callback for a stream. Subscriptions may be added
// before or after Start.
func (sm *StreamManager) Subscribe(stream StreamName, cb StreamCallback) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.subscribers[stream] = append(sm.subscribers[stream], cb)
	if isPrivateStream(stream) && !sm.hasLoginCredentials() {
		sm.logger.Warn().Str("stream", string(stream)).
			Msg("private stream subscribed without credentials, it will never deliver")
	}
}

// Status returns liveness for one stream.
func (sm *StreamManager) Status(stream StreamName) StreamStatus {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	last := sm.lastMessage[stream]
	return StreamStatus{
		Stream:      stream,
		Active:      !last.IsZero() && time.Since(last) < 2*streamHeartbeat,
		LastMessage: last,
		Subscribers: len(sm.subscribers[stream]),
	}
}

// AllStatuses returns liveness for every stream with at least one subscriber.
func (sm *StreamManager) AllStatuses() []StreamStatus {
	sm.mu.RLock()
	streams := make([]StreamName, 0, len(sm.subscribers))
	for name := range sm.subscribers {
		streams = append(streams, name)
	}
	sm.mu.RUnlock()

	statuses := make([]StreamStatus, 0, len(streams))
	for _, name := range streams {
		statuses = append(statuses, sm.Status(name))
	}
	return statuses
}

// Start connects and runs the read loops until the context is cancelled.
// Reconnects with a fixed delay on failure. The private link is only run
// when login credentials are present.
func (sm *StreamManager) Start(ctx context.Context) {
	sm.mu.Lock()
	if sm.running {
		sm.mu.Unlock()
		return
	}
	sm.running = true
	sm.stopChan = make(chan struct{})
	sm.mu.Unlock()

	go sm.run(ctx, false)
	if sm.hasLoginCredentials() {
		go sm.run(ctx, true)
	}
}

// Stop closes both connections and halts the read loops.
func (sm *StreamManager) Stop() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if !sm.running {
		return
	}
	sm.running = false
	close(sm.stopChan)
	if sm.publicConn != nil {
		sm.publicConn.Close()
		sm.publicConn = nil
	}
	if sm.privateConn != nil {
		sm.privateConn.Close()
		sm.privateConn = nil
	}
}

func (sm *StreamManager) run(ctx context.Context, private bool) {
	for {
		select {
		case <-ctx.Done():
			sm.Stop()
			return
		case <-sm.stopChan:
			return
		default:
		}

		err := sm.connectAndRead(ctx, private)
		if err == errNoStreams {
			// Nothing subscribed on this link yet; poll again later.
			err = nil
		}
		if err != nil {
			sm.logger.Warn().Err(err).Bool("private", private).
				Dur("reconnect_in", wsReconnectDelay).Msg("stream disconnected")
		}
		select {
		case <-ctx.Done():
			return
		case <-sm.stopChan:
			return
		case <-time.After(wsReconnectDelay):
		}
	}
}

var errNoStreams = fmt.Errorf("no streams subscribed on this link")

// wsSubscribeArg is one subscription entry in the exchange's subscribe op.
type wsSubscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstID   string `json:"instId"`
}

// channelFor maps a stream name to the exchange channel identifier.
func channelFor(stream StreamName) string {
	switch stream {
	case StreamTicker:
		return "ticker"
	case StreamTrades:
		return "trade"
	case StreamOrderbook:
		return "books15"
	case StreamKlines:
		return "candle1m"
	case StreamLiquidations:
		return "liquidation"
	case StreamFunding:
		return "funding-time"
	case StreamMarketState:
		return "market-state"
	case StreamSystemStatus:
		return "system-status"
	case StreamOrders:
		return "orders"
	case StreamPositions:
		return "positions"
	case StreamBalance:
		return "account"
	default:
		return string(stream)
	}
}

func streamForChannel(channel string) StreamName {
	switch channel {
	case "ticker":
		return StreamTicker
	case "trade":
		return StreamTrades
	case "books15":
		return StreamOrderbook
	case "candle1m":
		return StreamKlines
	case "liquidation":
		return StreamLiquidations
	case "funding-time":
		return StreamFunding
	case "market-state":
		return StreamMarketState
	case "system-status":
		return StreamSystemStatus
	case "orders":
		return StreamOrders
	case "positions":
		return StreamPositions
	case "account":
		return StreamBalance
	default:
		return StreamName(channel)
	}
}

func (sm *StreamManager) connectAndRead(ctx context.Context, private bool) error {
	sm.mu.RLock()
	subscribed := make([]StreamName, 0, len(sm.subscribers))
	for name := range sm.subscribers {
		if isPrivateStream(name) == private {
			subscribed = append(subscribed, name)
		}
	}
	sm.mu.RUnlock()
	if len(subscribed) == 0 {
		return errNoStreams
	}

	url := sm.publicURL
	if private {
		url = sm.privateURL
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}

	if private {
		if err := sm.login(conn); err != nil {
			conn.Close()
			return fmt.Errorf("websocket login: %w", err)
		}
	}

	sm.mu.Lock()
	if private {
		sm.privateConn = conn
	} else {
		sm.publicConn = conn
	}
	sm.mu.Unlock()

	args := make([]wsSubscribeArg, 0, len(subscribed))
	for _, name := range subscribed {
		// Account channels subscribe across the whole account, not per
		// instrument.
		instID := FormatSymbol(sm.symbol, V2)
		if isPrivateStream(name) {
			instID = "default"
		}
		args = append(args, wsSubscribeArg{
			InstType: "USDT-FUTURES",
			Channel:  channelFor(name),
			InstID:   instID,
		})
	}
	sub := map[string]any{"op": "subscribe", "args": args}
	if err := conn.WriteJSON(sub); err != nil {
		conn.Close()
		return err
	}

	// Exchange expects a "ping" text frame; silence longer than the ping
	// interval gets the connection recycled.
	pingTicker := time.NewTicker(wsPingInterval)
	defer pingTicker.Stop()
	go func() {
		for {
			select {
			case <-pingTicker.C:
				sm.mu.RLock()
				c := sm.publicConn
				if private {
					c = sm.privateConn
				}
				sm.mu.RUnlock()
				if c == nil {
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
					return
				}
			case <-sm.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			conn.Close()
			return err
		}
		if string(raw) == "pong" {
			continue
		}
		sm.dispatch(raw)
	}
}

// wsEventFrame is the op-acknowledgement frame (login, subscribe, error).
type wsEventFrame struct {
	Event string          `json:"event"`
	Code  json.RawMessage `json:"code"`
	Msg   string          `json:"msg"`
}

func (f wsEventFrame) ok() bool {
	code := string(f.Code)
	return code == "" || code == "0" || code == `"0"`
}

// login performs the private-endpoint handshake: the signature is the
// REST signing scheme over `timestamp + "GET" + "/user/verify"` with a
// unix-seconds timestamp.
func (sm *StreamManager) login(conn *websocket.Conn) error {
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	signature := sign(sm.creds.SecretKey, timestamp+"GET"+"/user/verify")
	op := map[string]any{
		"op": "login",
		"args": []map[string]string{{
			"apiKey":     sm.creds.APIKey,
			"passphrase": sm.creds.Passphrase,
			"timestamp":  timestamp,
			"sign":       signature,
		}},
	}
	if err := conn.WriteJSON(op); err != nil {
		return err
	}

	deadline := time.Now().Add(wsLoginTimeout)
	if err := conn.SetReadDeadline(deadline); err != nil {
		return err
	}
	defer conn.SetReadDeadline(time.Time{})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		if string(raw) == "pong" {
			continue
		}
		var frame wsEventFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			continue
		}
		switch frame.Event {
		case "login":
			if !frame.ok() {
				return fmt.Errorf("rejected: code=%s msg=%s", frame.Code, frame.Msg)
			}
			return nil
		case "error":
			return fmt.Errorf("code=%s msg=%s", frame.Code, frame.Msg)
		}
	}
}

// wsEnvelope is the push-message frame.
type wsEnvelope struct {
	Action string `json:"action"`
	Arg    struct {
		Channel string `json:"channel"`
		InstID  string `json:"instId"`
	} `json:"arg"`
	Data json.RawMessage `json:"data"`
	Ts   int64           `json:"ts"`
}

func (sm *StreamManager) dispatch(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Arg.Channel == "" {
		return
	}
	stream := streamForChannel(env.Arg.Channel)
	ts := time.Now().UTC()
	if env.Ts > 0 {
		ts = time.UnixMilli(env.Ts).UTC()
	}

	sm.mu.Lock()
	sm.lastMessage[stream] = ts
	callbacks := append([]StreamCallback(nil), sm.subscribers[stream]...)
	sm.mu.Unlock()

	msg := StreamMessage{
		Stream:    stream,
		Symbol:    NormalizeSymbol(env.Arg.InstID),
		Data:      env.Data,
		Timestamp: ts,
	}
	// Sequential delivery per stream.
	for _, cb := range callbacks {
		cb(msg)
	}
}

// RecordMessage marks a stream as having received a message now. Used by
// tests and by the private-stream relay.
func (sm *StreamManager) RecordMessage(stream StreamName, ts time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.lastMessage[stream] = ts
}

// ParseTimestamp parses the exchange's millisecond timestamp strings.
func ParseTimestamp(s string) time.Time {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
