package distributed

import (
	"context"
	"time"

	"confsync/internal/core/ports"
	"confsync/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const lockTTL = 10 * time.Second

// RedisLocker serializes per-conference critical sections across instances
// using redis SET NX locks.
type RedisLocker struct {
	manager *distributed.LockManager
	logger  *zap.SugaredLogger
}

func NewRedisLocker(client *redis.Client, logger *zap.SugaredLogger) *RedisLocker {
	return &RedisLocker{
		manager: distributed.NewLockManager(client, "confsync:lock:"),
		logger:  logger,
	}
}

func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	lock := l.manager.AcquireLock(key, lockTTL)
	if err := lock.Lock(ctx); err != nil {
		return nil, err
	}

	return func() {
		if err := lock.Unlock(context.Background()); err != nil {
			l.logger.Warnw("failed to release lock",
				"key", key,
				"error", err,
			)
		}
	}, nil
}

var _ ports.ConferenceLocker = (*RedisLocker)(nil)
