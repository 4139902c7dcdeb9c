package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/logger"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/redis"
	"github.com/AGIOS-UPDATED/midday-test/internal/pkg/response"
)

// RateLimiterConfig 限流配置
type RateLimiterConfig struct {
	// 时间窗口内允许的最大请求数
	MaxRequests int
	// 时间窗口（秒）
	WindowSeconds int
	// 限流策略：endpoint, ip（默认）
	Strategy string
}

// 滑动窗口：成员用毫秒时间戳 + 随机后缀，同一毫秒内的请求也分别计数
var slidingWindow = goredis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])
local member = ARGV[4]

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local current = redis.call('ZCARD', key)

if current < limit then
	redis.call('ZADD', key, now, member)
	redis.call('PEXPIRE', key, window)
	return {1, limit - current - 1, now + window}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')[2]
return {0, 0, tonumber(oldest) + window}
`)

// RateLimiter 基于 Redis 的滑动窗口限流中间件；Redis 出错时放行
func RateLimiter(client *redis.Client, cfg RateLimiterConfig, log *logger.Logger) gin.HandlerFunc {
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = 100
	}
	if cfg.WindowSeconds <= 0 {
		cfg.WindowSeconds = 60
	}
	if cfg.Strategy == "" {
		cfg.Strategy = "ip"
	}

	return func(c *gin.Context) {
		key := client.Key("rate_limit", rateLimitKey(c, cfg.Strategy))

		allowed, remaining, resetAt, err := checkRateLimit(c.Request.Context(), client, key, cfg, time.Now())
		if err != nil {
			log.Error("rate limiter error", zap.Error(err), zap.String("key", key))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.MaxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retry := int(time.Until(resetAt).Seconds()) + 1
			c.Header("Retry-After", strconv.Itoa(retry))
			response.Error(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		c.Next()
	}
}

func rateLimitKey(c *gin.Context, strategy string) string {
	ip := clientIP(c)
	switch strategy {
	case "endpoint":
		return fmt.Sprintf("endpoint:%s:%s", c.FullPath(), ip)
	default:
		return "ip:" + ip
	}
}

// clientIP 去掉 IPv6 zone（fe80::1%eth0 -> fe80::1），无法解析时归到 unknown
func clientIP(c *gin.Context) string {
	ip := c.ClientIP()
	if idx := strings.IndexByte(ip, '%'); idx != -1 {
		ip = ip[:idx]
	}
	if net.ParseIP(ip) == nil {
		return "unknown"
	}
	return ip
}

func checkRateLimit(ctx context.Context, client *redis.Client, key string, cfg RateLimiterConfig, now time.Time) (allowed bool, remaining int, resetAt time.Time, err error) {
	window := int64(cfg.WindowSeconds) * 1000
	vals, err := slidingWindow.Run(ctx, client, []string{key},
		now.UnixMilli(), window, cfg.MaxRequests, uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, err
	}
	if len(vals) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("invalid rate limit result: %v", vals)
	}
	return vals[0] == 1, int(vals[1]), time.UnixMilli(vals[2]), nil
}
