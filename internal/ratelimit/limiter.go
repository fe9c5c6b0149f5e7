package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/freightdesk/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyAPWrites = "ap:writes:org:%s"

// WriteLimiter throttles AP record mutations per organization. A nil or
// disabled limiter allows everything.
type WriteLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
	log    *zap.Logger
}

func New(bucket *TokenBucket, rate float64, burst int, log *zap.Logger) *WriteLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &WriteLimiter{bucket: bucket, rate: rate, burst: burst, log: log}
}

// NewWriteLimiter returns nil unless rate limiting is enabled and redis is
// configured.
func NewWriteLimiter(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (*WriteLimiter, error) {
	log = log.Named("ratelimit")
	if !cfg.RateLimitEnabled {
		return nil, nil
	}
	if cfg.RedisAddr == "" {
		log.Warn("rate limiting enabled without REDIS_ADDR, writes are not limited")
		return nil, nil
	}
	if cfg.RateLimitWriteRate <= 0 || cfg.RateLimitWriteBurst <= 0 {
		return nil, ErrInvalidRate
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	log.Info("rate limiting AP writes",
		zap.Float64("rate", cfg.RateLimitWriteRate),
		zap.Int("burst", cfg.RateLimitWriteBurst),
	)
	return New(NewTokenBucket(client), cfg.RateLimitWriteRate, cfg.RateLimitWriteBurst, log), nil
}

func (l *WriteLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// AllowOrg takes one write token of the organization. Backend failures fail
// open.
func (l *WriteLimiter) AllowOrg(ctx context.Context, orgID string) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}
	res, err := l.bucket.Allow(ctx, fmt.Sprintf(keyAPWrites, strings.TrimSpace(orgID)), l.rate, l.burst)
	if err != nil {
		l.log.Warn("rate limiter unavailable", zap.Error(err))
		return true, 0
	}
	return res.Allowed, res.RetryAfter
}
