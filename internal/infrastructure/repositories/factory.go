package repositories

import (
	"context"

	"confsync/internal/core/ports"
	"confsync/internal/infrastructure/repositories/memory"
	redisrepo "confsync/internal/infrastructure/repositories/redis"
	"confsync/pkg/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories backed by redis when configured and
// reachable, falling back to in-memory implementations otherwise.
type RepositoryFactory struct {
	useRedis    bool
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func NewRepositoryFactory(cfg *config.Config, logger *zap.SugaredLogger) (*RepositoryFactory, error) {
	factory := &RepositoryFactory{
		useRedis: cfg.Redis.Enabled,
		logger:   logger,
	}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			logger,
		)
		if err != nil {
			logger.Warnw("failed to connect to redis, falling back to memory repositories",
				"error", err,
			)
			factory.useRedis = false
		} else {
			factory.redisClient = client
			logger.Info("using redis repositories")
		}
	}

	if !factory.useRedis {
		logger.Info("using memory repositories")
	}

	return factory, nil
}

// RedisClient exposes the shared client for the event bus and distributed
// locks; nil when running on memory repositories.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	if f.useRedis {
		return f.redisClient
	}
	return nil
}

func (f *RepositoryFactory) CreateSubscriptionRepository() ports.SubscriptionRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisSubscriptionRepository(f.redisClient)
	}
	return memory.NewMemorySubscriptionRepository()
}

func (f *RepositoryFactory) CreateObjectStore() ports.SynchronizedObjectStore {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisObjectStore(f.redisClient)
	}
	return memory.NewMemoryObjectStore()
}

func (f *RepositoryFactory) CreateRoomRepository() ports.RoomRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisRoomRepository(f.redisClient)
	}
	return memory.NewMemoryRoomRepository()
}

func (f *RepositoryFactory) CreateSceneRepository() ports.SceneRepository {
	if f.useRedis && f.redisClient != nil {
		return redisrepo.NewRedisSceneRepository(f.redisClient)
	}
	return memory.NewMemorySceneRepository()
}

func (f *RepositoryFactory) Close() error {
	if f.redisClient != nil {
		return redisrepo.CloseRedisClient(f.redisClient)
	}
	return nil
}

func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.useRedis && f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
