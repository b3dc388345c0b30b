package bootstrap

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/leasing-leads-api/internal/admission"
	appconfig "github.com/wolfman30/leasing-leads-api/internal/config"
	"github.com/wolfman30/leasing-leads-api/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildLimiter picks the admission store. A redis store falls back to the
// in-process one when Redis cannot be reached at startup, so a single
// instance keeps limiting. The returned MemoryLimiter is non-nil only when
// the in-process store is used; callers run its janitor.
func BuildLimiter(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) (admission.Limiter, *admission.MemoryLimiter, error) {
	if cfg == nil {
		return nil, nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	switch cfg.RateLimitStore {
	case "redis":
		if client := BuildRedisClient(ctx, cfg, logger, true); client != nil {
			limiter, err := admission.NewRedisLimiter(client, cfg.RateLimitMax, cfg.RateLimitWindow, "")
			if err != nil {
				return nil, nil, fmt.Errorf("bootstrap: redis limiter: %w", err)
			}
			logger.Info("rate limit store configured", "store", "redis", "window", cfg.RateLimitWindow, "max", cfg.RateLimitMax)
			return limiter, nil, nil
		}
		logger.Warn("redis rate limit store unavailable; using in-process store")
	case "memory", "":
	default:
		logger.Warn("unknown rate limit store; using in-process store", "store", cfg.RateLimitStore)
	}

	mem, err := admission.NewMemoryLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: memory limiter: %w", err)
	}
	logger.Info("rate limit store configured", "store", "memory", "window", cfg.RateLimitWindow, "max", cfg.RateLimitMax)
	return mem, mem, nil
}
