package state

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/pipelineintel/internal/importer/domain"
)

const (
	keyState = "pipelineintel:import:state:"
	keyLock  = "pipelineintel:import:lock:"
)

const lockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// RedisStore keeps compressed states in redis with a TTL so every API
// replica sees the same plan.
type RedisStore struct {
	client  *redis.Client
	release *redis.Script
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client:  client,
		release: redis.NewScript(lockReleaseScript),
	}
}

func (s *RedisStore) Save(ctx context.Context, state *domain.State, ttl time.Duration) error {
	data, err := encode(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyState+state.ID, data, ttl).Err()
}

func (s *RedisStore) Load(ctx context.Context, id string) (*domain.State, error) {
	data, err := s.client.Get(ctx, keyState+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrStateNotFound
	}
	if err != nil {
		return nil, err
	}
	return decode(data)
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, keyState+id).Err()
}

func (s *RedisStore) Lock(ctx context.Context, id string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		return nil, errors.New("lock ttl must be positive")
	}
	token := uuid.NewString()
	ok, err := s.client.SetNX(ctx, keyLock+id, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrStateLocked
	}
	return func() {
		// the run context may already be gone
		_ = s.release.Run(context.Background(), s.client, []string{keyLock + id}, token).Err()
	}, nil
}
