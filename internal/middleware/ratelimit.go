package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/ticket-sale-gate/internal/config"
	"github.com/iliyamo/ticket-sale-gate/internal/logger"
)

// CodeRateLimited is the envelope code of a 429 answer.
const CodeRateLimited = "RATE_LIMITED"

// tokenBucketScript refills in whole intervals and takes one token.
// KEYS: bucket. ARGV: now_ms, capacity, refill_tokens, interval_ms, ttl_s.
// Returns {allowed, remaining, retry_after_ms}.
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill = tonumber(ARGV[3])
local interval_ms = tonumber(ARGV[4])
local ttl = tonumber(ARGV[5])

local state = redis.call('HMGET', key, 'tokens', 'last_refill_ms')
local tokens = tonumber(state[1])
local last = tonumber(state[2])
if tokens == nil or last == nil then
  tokens = capacity
  last = now_ms
end

local intervals = math.floor(math.max(0, now_ms - last) / interval_ms)
if intervals > 0 then
  tokens = math.min(capacity, tokens + intervals * refill)
  last = last + intervals * interval_ms
end

local allowed = 0
local retry = 0
if tokens > 0 then
  allowed = 1
  tokens = tokens - 1
else
  retry = math.max(0, interval_ms - (now_ms - last))
end

redis.call('HSET', key, 'tokens', tokens, 'last_refill_ms', last)
redis.call('EXPIRE', key, ttl)
return {allowed, tokens, retry}
`)

// RateLimiter throttles callers with a Redis token bucket.  A Redis failure
// lets the request through.
type RateLimiter struct {
	cfg config.RateLimitConfig
	rdb redis.UniversalClient
	log *logger.Logger
	now func() time.Time
}

// NewRateLimiter builds a limiter; nothing is checked until Middleware is mounted.
func NewRateLimiter(cfg config.RateLimitConfig, rdb redis.UniversalClient, log *logger.Logger) *RateLimiter {
	return &RateLimiter{cfg: cfg, rdb: rdb, log: log, now: time.Now}
}

// Middleware returns the echo middleware.  When disabled it is a pass-through.
func (l *RateLimiter) Middleware() echo.MiddlewareFunc {
	if !l.cfg.Enabled || l.rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := l.key(c)
			res, err := tokenBucketScript.Run(c.Request().Context(), l.rdb, []string{key},
				l.now().UnixMilli(),
				l.cfg.Capacity,
				l.cfg.RefillTokens,
				l.cfg.RefillInterval.Milliseconds(),
				int64(l.cfg.TTL/time.Second),
			).Int64Slice()
			// fail open on Redis errors
			if err != nil || len(res) != 3 {
				l.log.Warn("rate limiter unavailable, allowing request", "key", key, "error", err)
				return next(c)
			}
			allowed, remaining, retryMs := res[0] == 1, res[1], res[2]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Capacity))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			if l.cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if allowed {
				return next(c)
			}

			// Retry-After is whole seconds, rounded up
			secs := int(math.Ceil(float64(retryMs) / 1000))
			h.Set("Retry-After", strconv.Itoa(secs))
			if l.cfg.Debug {
				l.log.Debug("rate limited", "key", key, "retry_ms", retryMs)
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"success":    false,
				"code":       CodeRateLimited,
				"message":    "rate limit exceeded",
				"retryAfter": secs,
			})
		}
	}
}

// key builds the bucket name for the configured strategy.
func (l *RateLimiter) key(c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	parts := []string{l.cfg.Prefix}
	switch strings.ToLower(l.cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "visitor":
		parts = append(parts, "visitor", visitorFromRequest(c))
	case "ip_visitor_route":
		parts = append(parts, "ip", ip, "visitor", visitorFromRequest(c), "route", c.Request().Method+" "+c.Path())
	default:
		parts = append(parts, "ip", ip, "visitor", visitorFromRequest(c))
	}
	return strings.Join(parts, ":")
}
