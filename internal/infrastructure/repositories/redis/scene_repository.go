package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisSceneRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisSceneRepository(client *redis.Client) ports.SceneRepository {
	return &RedisSceneRepository{
		client: client,
		prefix: "confsync:scenes:",
	}
}

func (r *RedisSceneRepository) sceneKey(conferenceID domain.ConferenceID) string {
	return r.prefix + string(conferenceID)
}

func (r *RedisSceneRepository) Get(ctx context.Context, conferenceID domain.ConferenceID) (domain.SceneMapping, error) {
	data, err := r.client.Get(ctx, r.sceneKey(conferenceID)).Result()
	if err == redis.Nil {
		return nil, domain.ErrConferenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scene mapping: %w", err)
	}

	var mapping domain.SceneMapping
	if err := json.Unmarshal([]byte(data), &mapping); err != nil {
		return nil, fmt.Errorf("failed to unmarshal scene mapping: %w", err)
	}
	return mapping, nil
}

func (r *RedisSceneRepository) Set(ctx context.Context, conferenceID domain.ConferenceID, mapping domain.SceneMapping) error {
	data, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal scene mapping: %w", err)
	}
	if err := r.client.Set(ctx, r.sceneKey(conferenceID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set scene mapping: %w", err)
	}
	return nil
}

func (r *RedisSceneRepository) Remove(ctx context.Context, conferenceID domain.ConferenceID) error {
	if err := r.client.Del(ctx, r.sceneKey(conferenceID)).Err(); err != nil {
		return fmt.Errorf("failed to remove scene mapping: %w", err)
	}
	return nil
}
