package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"bitget-trading-bot/internal/state"
)

func (s *Server) handleHealth(c *gin.Context) {
	health := gin.H{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if s.repo != nil {
		if err := s.repo.HealthCheck(c.Request.Context()); err != nil {
			health["database"] = "unavailable"
		} else {
			health["database"] = "ok"
		}
	}
	c.JSON(http.StatusOK, health)
}

func (s *Server) handleStatus(c *gin.Context) {
	if s.source == nil {
		c.JSON(http.StatusOK, gin.H{"running": false})
		return
	}
	c.JSON(http.StatusOK, s.source.Status())
}

func (s *Server) handleMarket(c *gin.Context) {
	ctx := c.Request.Context()
	out := gin.H{}

	if price, ok := s.store.GetString(ctx, state.KeyLastPrice); ok {
		if v, err := strconv.ParseFloat(price, 64); err == nil {
			out["last_price"] = v
		}
	}

	var bias json.RawMessage
	if found, err := s.store.GetJSON(ctx, state.KeyMarketBias, &bias); err == nil && found {
		out["market_bias"] = bias
	}

	var fibs map[string]float64
	if found, err := s.store.GetJSON(ctx, state.KeyFibonacciLevels, &fibs); err == nil && found {
		out["fibonacci_levels"] = fibs
	}

	var trap json.RawMessage
	if found, err := s.store.GetJSON(ctx, state.KeyLatestTrap, &trap); err == nil && found {
		out["latest_trap"] = trap
	}
	if prob, ok := s.store.GetString(ctx, state.KeyTrapProbability); ok {
		if v, err := strconv.ParseFloat(prob, 64); err == nil {
			out["trap_probability"] = v
		}
	}

	c.JSON(http.StatusOK, out)
}

func (s *Server) handleAgents(c *gin.Context) {
	ctx := c.Request.Context()
	agents := gin.H{}

	for _, profile := range s.profiles {
		var metrics json.RawMessage
		found, err := s.store.GetJSON(ctx, state.KeyTraderMetrics(profile), &metrics)
		if err != nil || !found {
			continue
		}
		agents[profile] = metrics
	}

	c.JSON(http.StatusOK, agents)
}

func (s *Server) handlePositions(c *gin.Context) {
	if s.source == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	positions := s.source.OpenPositions()
	if positions == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, positions)
}

func (s *Server) handleTrades(c *gin.Context) {
	profile := c.Query("profile")
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	trades, err := s.repo.RecentTrades(c.Request.Context(), profile, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "trade history unavailable"})
		return
	}
	if trades == nil {
		c.JSON(http.StatusOK, []any{})
		return
	}
	c.JSON(http.StatusOK, trades)
}

func (s *Server) handlePatterns(c *gin.Context) {
	timeframe := c.Param("timeframe")

	raw, err := s.store.GetList(c.Request.Context(), state.KeyPatterns(timeframe))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "pattern store unavailable"})
		return
	}

	patterns := make([]json.RawMessage, 0, len(raw))
	for _, item := range raw {
		patterns = append(patterns, json.RawMessage(item))
	}
	c.JSON(http.StatusOK, patterns)
}

func (s *Server) handleSignals(c *gin.Context) {
	timeframe := c.Param("timeframe")

	raw, err := s.store.GetList(c.Request.Context(), state.KeySignals(timeframe))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "signal store unavailable"})
		return
	}

	signals := make([]json.RawMessage, 0, len(raw))
	for _, item := range raw {
		signals = append(signals, json.RawMessage(item))
	}
	c.JSON(http.StatusOK, signals)
}
