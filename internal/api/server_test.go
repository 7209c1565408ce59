package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bitget-trading-bot/config"
	"bitget-trading-bot/internal/position"
	"bitget-trading-bot/internal/state"
)

type stubSource struct {
	positions []*position.Position
}

func (s *stubSource) Status() map[string]interface{} {
	return map[string]interface{}{"running": true, "symbol": "BTC/USDT"}
}

func (s *stubSource) OpenPositions() []*position.Position {
	return s.positions
}

func newTestServer(t *testing.T, source StatusSource) (*Server, *state.Store) {
	t.Helper()
	store := state.NewMemory()
	cfg := config.ServerConfig{Host: "127.0.0.1", Port: 0}
	return NewServer(cfg, store, nil, source, []string{"strategic", "newbie"}), store
}

func doGET(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := doGET(t, s, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestMarketEndpointReadsStore(t *testing.T) {
	s, store := newTestServer(t, nil)
	ctx := context.Background()

	require.NoError(t, store.SetString(ctx, state.KeyLastPrice, "50000"))
	require.NoError(t, store.SetJSON(ctx, state.KeyFibonacciLevels, map[string]float64{"0.618": 48500}))
	require.NoError(t, store.SetString(ctx, state.KeyTrapProbability, "0.35"))

	w := doGET(t, s, "/api/market")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(50000), body["last_price"])
	assert.Equal(t, 0.35, body["trap_probability"])

	fibs, ok := body["fibonacci_levels"].(map[string]interface{})
	require.True(t, ok, "fibonacci_levels missing or wrong shape")
	assert.Equal(t, float64(48500), fibs["0.618"])
}

func TestAgentsEndpointSkipsMissingProfiles(t *testing.T) {
	s, store := newTestServer(t, nil)
	ctx := context.Background()

	require.NoError(t, store.SetJSON(ctx, state.KeyTraderMetrics("strategic"), map[string]interface{}{
		"capital": 10500.0, "wins": 3,
	}))

	w := doGET(t, s, "/api/agents")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "strategic")
	assert.NotContains(t, body, "newbie", "newbie has no stored metrics and must be omitted")
}

func TestStatusAndPositionsWithSource(t *testing.T) {
	pos := position.New("scalper", "BTC/USDT", position.DirectionLong, 50000, 0.01, 15, "book pressure", 49900, nil)
	s, _ := newTestServer(t, &stubSource{positions: []*position.Position{pos}})

	w := doGET(t, s, "/api/status")
	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, true, status["running"])

	w = doGET(t, s, "/api/positions")
	var positions []map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "scalper", positions[0]["profile"])
}

func TestStatusWithoutSourceReportsNotRunning(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := doGET(t, s, "/api/status")

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, false, status["running"])
}

func TestTradesWithoutDatabaseReturnsEmpty(t *testing.T) {
	s, _ := newTestServer(t, nil)
	w := doGET(t, s, "/api/trades?profile=newbie&limit=10")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]", w.Body.String())
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("client"), "request %d should be allowed", i+1)
	}
	assert.False(t, rl.Allow("client"), "fourth request within window should be rejected")
	assert.True(t, rl.Allow("other"), "separate keys have separate budgets")
}
