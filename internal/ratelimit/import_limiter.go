package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"go.uber.org/fx"
)

const keyImportClient = "pipelineintel:ratelimit:import:%s"

// ImportLimiter throttles analyze, finalize and restore calls per client.
// A nil limiter allows everything.
type ImportLimiter struct {
	bucket *TokenBucket
	rate   float64
	burst  int
}

func NewImportLimiter(lc fx.Lifecycle, cfg config.Config) (*ImportLimiter, error) {
	if cfg.ImportRateLimit <= 0 {
		return nil, nil
	}
	addr := strings.TrimSpace(cfg.RedisAddr)
	if addr == "" {
		return nil, errors.New("import rate limit requires REDIS_ADDR")
	}
	if cfg.ImportRateBurst <= 0 {
		return nil, errors.New("import rate limit burst must be positive")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				return client.Close()
			},
		})
	}

	return newImportLimiter(NewTokenBucket(client), cfg.ImportRateLimit, cfg.ImportRateBurst), nil
}

func newImportLimiter(bucket *TokenBucket, rate float64, burst int) *ImportLimiter {
	return &ImportLimiter{bucket: bucket, rate: rate, burst: burst}
}

func (l *ImportLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

func (l *ImportLimiter) Allow(ctx context.Context, clientKey string) (*Result, error) {
	if !l.Enabled() {
		return &Result{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyImportClient, strings.TrimSpace(clientKey)), l.rate, l.burst)
}
