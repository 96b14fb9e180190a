package middleware

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// fixedWindowScript counts hits in a window and reports whether the caller is
// still under the limit.
//
// KEYS[1] = counter key, ARGV[1] = limit, ARGV[2] = window_ms.
var fixedWindowScript = redis.NewScript(`
local current = redis.call('INCR', KEYS[1])
if current == 1 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
elseif redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

// RedisRateLimiter enforces a shared fixed-window limit across replicas.
// The window lets burst requests through every burst/rps seconds, which
// matches the long-run rate of the in-process token bucket.
//
// Redis errors fail open: the request is served and a warning logged.
type RedisRateLimiter struct {
	rdb    redis.Scripter
	limit  int
	window time.Duration
	keyFn  keyFunc
	prefix string
}

// NewRedisRateLimiter builds a limiter with the same knobs as NewRateLimiter.
func NewRedisRateLimiter(rdb redis.Scripter, rps float64, burst int, keyFn keyFunc) *RedisRateLimiter {
	if burst <= 0 {
		burst = 1
	}
	window := time.Second
	if rps > 0 {
		window = time.Duration(math.Ceil(float64(burst) / rps * float64(time.Second)))
	}
	if window < time.Second {
		window = time.Second
	}
	return &RedisRateLimiter{rdb: rdb, limit: burst, window: window, keyFn: keyFn, prefix: "callqa:rl:"}
}

// Allow reports whether key may proceed in the current window.
func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	res, err := fixedWindowScript.Run(ctx, rl.rdb, []string{rl.prefix + key}, rl.limit, rl.window.Milliseconds()).Int()
	if err != nil {
		return true, err
	}
	return res == 1, nil
}

// Handler returns a Gin middleware with the same contract as
// RateLimiter.Handler.
func (rl *RedisRateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}

		allowed, err := rl.Allow(c.Request.Context(), rl.keyFn(c))
		if err != nil {
			log.Warn().Err(err).Msg("redis rate limiter unavailable; allowing request")
		}
		if allowed {
			c.Next()
			return
		}

		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(rl.window.Seconds()))))
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get("X-Request-ID"),
			"code":       "rate_limited",
			"message":    msgRateLimited,
		})
	}
}
