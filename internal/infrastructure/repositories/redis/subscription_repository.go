package redis

import (
	"context"
	"fmt"

	"confsync/internal/core/domain"
	"confsync/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisSubscriptionRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisSubscriptionRepository(client *redis.Client) ports.SubscriptionRepository {
	return &RedisSubscriptionRepository{
		client: client,
		prefix: "confsync:subs:",
	}
}

func (r *RedisSubscriptionRepository) participantsKey(conferenceID domain.ConferenceID) string {
	return r.prefix + string(conferenceID) + ":participants"
}

func (r *RedisSubscriptionRepository) participantKey(conferenceID domain.ConferenceID, participantID domain.ParticipantID) string {
	return r.prefix + string(conferenceID) + ":" + string(participantID)
}

func (r *RedisSubscriptionRepository) GetOfConference(ctx context.Context, conferenceID domain.ConferenceID) (ports.ConferenceSubscriptions, error) {
	participantIDs, err := r.client.SMembers(ctx, r.participantsKey(conferenceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get subscribed participants: %w", err)
	}

	out := make(ports.ConferenceSubscriptions, len(participantIDs))
	for _, participantID := range participantIDs {
		keys, err := r.client.SMembers(ctx, r.participantKey(conferenceID, domain.ParticipantID(participantID))).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to get subscriptions of %s: %w", participantID, err)
		}
		if len(keys) == 0 {
			// Participant set drained concurrently; skip the empty entry.
			continue
		}
		ids := make([]domain.SynchronizedObjectID, len(keys))
		for i, key := range keys {
			ids[i] = domain.ParseSynchronizedObjectID(key)
		}
		out[domain.ParticipantID(participantID)] = ids
	}
	return out, nil
}

func (r *RedisSubscriptionRepository) Subscribe(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID, id domain.SynchronizedObjectID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, r.participantsKey(conferenceID), string(participantID))
		pipe.SAdd(ctx, r.participantKey(conferenceID, participantID), id.String())
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to add subscription: %w", err)
	}
	return nil
}

func (r *RedisSubscriptionRepository) Unsubscribe(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID, id domain.SynchronizedObjectID) error {
	if err := r.client.SRem(ctx, r.participantKey(conferenceID, participantID), id.String()).Err(); err != nil {
		return fmt.Errorf("failed to remove subscription: %w", err)
	}
	return nil
}

// RemoveParticipant deletes the participant's whole subscription set in one
// transaction so no concurrent update observes a partial removal.
func (r *RedisSubscriptionRepository) RemoveParticipant(ctx context.Context, conferenceID domain.ConferenceID, participantID domain.ParticipantID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.participantKey(conferenceID, participantID))
		pipe.SRem(ctx, r.participantsKey(conferenceID), string(participantID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to remove participant subscriptions: %w", err)
	}
	return nil
}

func (r *RedisSubscriptionRepository) RemoveConference(ctx context.Context, conferenceID domain.ConferenceID) error {
	participantIDs, err := r.client.SMembers(ctx, r.participantsKey(conferenceID)).Result()
	if err != nil {
		return fmt.Errorf("failed to list subscribed participants: %w", err)
	}

	keys := make([]string, 0, len(participantIDs)+1)
	for _, participantID := range participantIDs {
		keys = append(keys, r.participantKey(conferenceID, domain.ParticipantID(participantID)))
	}
	keys = append(keys, r.participantsKey(conferenceID))

	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to remove conference subscriptions: %w", err)
	}
	return nil
}
