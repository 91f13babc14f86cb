package importer

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pipelineintel/internal/clock"
	"github.com/smallbiznis/pipelineintel/internal/config"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
	"github.com/smallbiznis/pipelineintel/internal/importer/service"
	"github.com/smallbiznis/pipelineintel/internal/importer/state"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("importer.service",
	fx.Provide(NewStateStore),
	fx.Provide(service.New),
)

type StoreParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Log       *zap.Logger
	Clock     clock.Clock `optional:"true"`
}

// NewStateStore keeps resolution states in redis when REDIS_ADDR is set and
// in process memory otherwise.
func NewStateStore(p StoreParams) (domain.StateStore, error) {
	if p.Config.RedisAddr == "" {
		p.Log.Info("import states kept in memory")
		return state.NewMemoryStore(p.Clock), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     p.Config.RedisAddr,
		Password: p.Config.RedisPassword,
		DB:       p.Config.RedisDB,
	})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(context.Context) error {
			return client.Close()
		},
	})
	p.Log.Info("import states kept in redis", zap.String("addr", p.Config.RedisAddr))
	return state.NewRedisStore(client), nil
}
