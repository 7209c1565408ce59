// Package api exposes a small read-only HTTP status feed: market context,
// per-agent metrics, open positions and trade history. There is no mutating
// endpoint; the bot is controlled through configuration and signals only.
package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"bitget-trading-bot/config"
	"bitget-trading-bot/internal/database"
	"bitget-trading-bot/internal/logging"
	"bitget-trading-bot/internal/position"
	"bitget-trading-bot/internal/state"
)

// StatusSource is what the orchestrator exposes to the feed.
type StatusSource interface {
	Status() map[string]interface{}
	OpenPositions() []*position.Position
}

// RateLimiter provides simple in-memory rate limiting per client key.
type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

// NewRateLimiter creates a rate limiter allowing limit requests per window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

// Allow checks whether a request is allowed for the given key.
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	windowStart := now.Add(-r.window)

	var recent []time.Time
	for _, t := range r.requests[key] {
		if t.After(windowStart) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= r.limit {
		r.requests[key] = recent
		return false
	}

	r.requests[key] = append(recent, now)
	return true
}

// Server is the read-only status HTTP server.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	store       *state.Store
	repo        *database.Repository
	source      StatusSource
	profiles    []string
	rateLimiter *RateLimiter
	logger      zerolog.Logger
}

// NewServer builds the status server. repo and source may be nil; the
// corresponding endpoints then return empty payloads.
func NewServer(cfg config.ServerConfig, store *state.Store, repo *database.Repository, source StatusSource, profiles []string) *Server {
	gin.SetMode(gin.ReleaseMode)

	s := &Server{
		router:      gin.New(),
		store:       store,
		repo:        repo,
		source:      source,
		profiles:    profiles,
		rateLimiter: NewRateLimiter(120, time.Minute),
		logger:      logging.Component("api"),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	s.router.Use(s.rateLimit())

	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	return s
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.rateLimiter.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/market", s.handleMarket)
		api.GET("/agents", s.handleAgents)
		api.GET("/positions", s.handlePositions)
		api.GET("/trades", s.handleTrades)
		api.GET("/patterns/:timeframe", s.handlePatterns)
		api.GET("/signals/:timeframe", s.handleSignals)
	}
}

// Start runs the server in a background goroutine.
func (s *Server) Start() {
	go func() {
		s.logger.Info().Str("addr", s.httpServer.Addr).Msg("status server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("status server stopped")
		}
	}()
}

// Stop shuts the server down, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the gin engine for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
