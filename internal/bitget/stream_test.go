package bitget

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestIsPrivateStream(t *testing.T) {
	private := []StreamName{StreamOrders, StreamPositions, StreamBalance}
	public := []StreamName{StreamTicker, StreamTrades, StreamOrderbook, StreamKlines,
		StreamLiquidations, StreamFunding, StreamMarketState, StreamSystemStatus}
	for _, s := range private {
		if !isPrivateStream(s) {
			t.Errorf("%s should be private", s)
		}
	}
	for _, s := range public {
		if isPrivateStream(s) {
			t.Errorf("%s should be public", s)
		}
	}
}

// The account channels ride the private endpoint: the manager must log in
// with the REST signing scheme, subscribe account-wide, and deliver pushes.
func TestPrivateStreamLoginAndDelivery(t *testing.T) {
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var login struct {
			Op   string              `json:"op"`
			Args []map[string]string `json:"args"`
		}
		if err := conn.ReadJSON(&login); err != nil {
			t.Errorf("read login: %v", err)
			return
		}
		if login.Op != "login" || len(login.Args) != 1 {
			t.Errorf("first op = %+v, want login", login)
			return
		}
		arg := login.Args[0]
		want := sign("secret", arg["timestamp"]+"GET"+"/user/verify")
		if arg["apiKey"] != "key" || arg["passphrase"] != "pass" || arg["sign"] != want {
			t.Errorf("bad login args: %v", arg)
		}
		conn.WriteJSON(map[string]any{"event": "login", "code": 0})

		var sub struct {
			Op   string           `json:"op"`
			Args []wsSubscribeArg `json:"args"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		channels := map[string]string{}
		for _, a := range sub.Args {
			channels[a.Channel] = a.InstID
		}
		for _, ch := range []string{"orders", "positions", "account"} {
			if channels[ch] != "default" {
				t.Errorf("channel %s instId = %q, want default", ch, channels[ch])
			}
		}

		conn.WriteJSON(map[string]any{
			"action": "snapshot",
			"arg":    map[string]string{"channel": "positions", "instId": "default"},
			"data":   []map[string]string{{"symbol": "BTCUSDT"}},
			"ts":     time.Now().UnixMilli(),
		})
		conn.ReadMessage() // hold the link open until the test winds down
	}))
	defer srv.Close()

	sm := NewStreamManager(Credentials{APIKey: "key", SecretKey: "secret", Passphrase: "pass"}, "BTC/USDT")
	sm.privateURL = wsURL(srv)

	got := make(chan StreamMessage, 4)
	for _, stream := range []StreamName{StreamOrders, StreamPositions, StreamBalance} {
		sm.Subscribe(stream, func(msg StreamMessage) {
			select {
			case got <- msg:
			default:
			}
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sm.Start(ctx)
	defer sm.Stop()

	select {
	case msg := <-got:
		if msg.Stream != StreamPositions {
			t.Errorf("stream = %s, want positions", msg.Stream)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no private push delivered")
	}
}

// Public subscriptions never leak onto the private link and carry the
// instrument, not the account-wide instId.
func TestPublicSubscribeStaysPerInstrument(t *testing.T) {
	var upgrader websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var sub struct {
			Op   string           `json:"op"`
			Args []wsSubscribeArg `json:"args"`
		}
		if err := conn.ReadJSON(&sub); err != nil {
			t.Errorf("read subscribe: %v", err)
			return
		}
		if sub.Op != "subscribe" {
			t.Errorf("first op = %q, want subscribe (no login on public link)", sub.Op)
		}
		for _, a := range sub.Args {
			if a.Channel == "orders" || a.Channel == "positions" || a.Channel == "account" {
				t.Errorf("private channel %q subscribed on the public link", a.Channel)
			}
			if a.InstID != FormatSymbol("BTC/USDT", V2) {
				t.Errorf("instId = %q, want %q", a.InstID, FormatSymbol("BTC/USDT", V2))
			}
		}

		conn.WriteJSON(map[string]any{
			"action": "snapshot",
			"arg":    map[string]string{"channel": "ticker", "instId": FormatSymbol("BTC/USDT", V2)},
			"data":   []map[string]string{{"lastPr": "50000"}},
			"ts":     time.Now().UnixMilli(),
		})
		conn.ReadMessage()
	}))
	defer srv.Close()

	sm := NewStreamManager(Credentials{APIKey: "key", SecretKey: "secret", Passphrase: "pass"}, "BTC/USDT")
	sm.publicURL = wsURL(srv)
	// Point the private link nowhere reachable; it must not matter for
	// public delivery.
	sm.privateURL = "ws://127.0.0.1:1/ws"

	got := make(chan StreamMessage, 4)
	sm.Subscribe(StreamTicker, func(msg StreamMessage) {
		select {
		case got <- msg:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sm.Start(ctx)
	defer sm.Stop()

	select {
	case msg := <-got:
		if msg.Stream != StreamTicker {
			t.Errorf("stream = %s, want ticker", msg.Stream)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no public push delivered")
	}
}
