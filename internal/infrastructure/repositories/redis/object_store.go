package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisObjectStore struct {
	client *redis.Client
	prefix string
}

func NewRedisObjectStore(client *redis.Client) ports.SynchronizedObjectStore {
	return &RedisObjectStore{
		client: client,
		prefix: "confsync:sync:",
	}
}

func (s *RedisObjectStore) valueKey(conferenceID domain.ConferenceID, key string) string {
	return s.prefix + string(conferenceID) + ":" + key
}

func (s *RedisObjectStore) keysKey(conferenceID domain.ConferenceID) string {
	return s.prefix + string(conferenceID) + ":keys"
}

// CreateOrReplace relies on SET ... GET for the atomic swap, so the previous
// value is always a complete prior snapshot even across instances.
func (s *RedisObjectStore) CreateOrReplace(ctx context.Context, conferenceID domain.ConferenceID, key string, value any) (any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal value of %s: %w", key, err)
	}

	previous, err := s.client.SetArgs(ctx, s.valueKey(conferenceID, key), data, redis.SetArgs{Get: true}).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("failed to replace value of %s: %w", key, err)
	}

	if addErr := s.client.SAdd(ctx, s.keysKey(conferenceID), key).Err(); addErr != nil {
		return nil, fmt.Errorf("failed to index key %s: %w", key, addErr)
	}

	if err == redis.Nil {
		return nil, nil
	}

	var previousValue any
	if err := json.Unmarshal([]byte(previous), &previousValue); err != nil {
		return nil, fmt.Errorf("failed to unmarshal previous value of %s: %w", key, err)
	}
	return previousValue, nil
}

func (s *RedisObjectStore) Get(ctx context.Context, conferenceID domain.ConferenceID, key string) (any, error) {
	data, err := s.client.Get(ctx, s.valueKey(conferenceID, key)).Result()
	if err == redis.Nil {
		return nil, domain.ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get value of %s: %w", key, err)
	}

	var value any
	if err := json.Unmarshal([]byte(data), &value); err != nil {
		return nil, fmt.Errorf("failed to unmarshal value of %s: %w", key, err)
	}
	return value, nil
}

func (s *RedisObjectStore) RemoveConference(ctx context.Context, conferenceID domain.ConferenceID) error {
	objectKeys, err := s.client.SMembers(ctx, s.keysKey(conferenceID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list stored keys: %w", err)
	}

	keys := make([]string, 0, len(objectKeys)+1)
	for _, key := range objectKeys {
		keys = append(keys, s.valueKey(conferenceID, key))
	}
	keys = append(keys, s.keysKey(conferenceID))

	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to remove stored values: %w", err)
	}
	return nil
}
