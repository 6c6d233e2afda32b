package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"nl2sql-tool/internal/utils"
	"nl2sql-tool/pkg/response"
)

// RateLimiterConfig configuration for rate limiting
type RateLimiterConfig struct {
	// Requests per minute
	RPM int `json:"rpm"`
	// Burst size
	Burst int `json:"burst"`
	// Cleanup interval for inactive clients
	CleanupInterval time.Duration `json:"cleanupInterval"`
}

func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RPM:             60,
		Burst:           10,
		CleanupInterval: 5 * time.Minute,
	}
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	config  RateLimiterConfig
	clients map[string]*clientLimiter
	mutex   sync.Mutex
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	defaults := DefaultRateLimiterConfig()
	if config.RPM <= 0 {
		config.RPM = defaults.RPM
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}

	return &RateLimiter{
		config:  config,
		clients: make(map[string]*clientLimiter),
	}
}

// RateLimit creates a rate limiting middleware
func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		client := rl.client(rl.getClientID(c))

		if !client.limiter.Allow() {
			rl.rateLimitExceeded(c)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.config.RPM))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(int(client.limiter.Tokens())))

		c.Next()
	}
}

func (rl *RateLimiter) client(id string) *clientLimiter {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	client, exists := rl.clients[id]
	if !exists {
		client = &clientLimiter{
			limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.config.RPM)), rl.config.Burst),
		}
		rl.clients[id] = client
	}
	client.lastSeen = time.Now()
	return client
}

func (rl *RateLimiter) getClientID(c *gin.Context) string {
	clientIP := c.ClientIP()
	if clientIP == "" {
		clientIP = "unknown"
	}
	return "ip:" + clientIP
}

func (rl *RateLimiter) rateLimitExceeded(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusTooManyRequests, response.ErrorResponse(
		utils.ErrCodeRateLimitExceeded,
		"Rate limit exceeded. Please try again later.",
		fmt.Sprintf("Maximum %d requests per minute allowed", rl.config.RPM),
		c.GetString(CorrelationIDKey),
	))
}

// Run evicts idle clients until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			rl.evictIdle(now)
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	for clientID, client := range rl.clients {
		if now.Sub(client.lastSeen) > rl.config.CleanupInterval {
			delete(rl.clients, clientID)
		}
	}
}

// ActiveClients returns the number of tracked clients.
func (rl *RateLimiter) ActiveClients() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.clients)
}
