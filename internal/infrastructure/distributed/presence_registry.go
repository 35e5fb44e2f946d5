package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"confsync/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	presenceTTL      = 5 * time.Minute
	presenceIndexTTL = 10 * time.Minute
)

type presenceRecord struct {
	InstanceID  string `json:"instance_id"`
	ConnectedAt int64  `json:"connected_at"`
}

// PresenceRegistry records which instance a connected participant is attached
// to, shared across instances through redis.
type PresenceRegistry struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	prefix     string
}

// NewPresenceRegistry creates a new presence registry
func NewPresenceRegistry(
	client *redis.Client,
	instanceID string,
	logger *zap.SugaredLogger,
) *PresenceRegistry {
	return &PresenceRegistry{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		prefix:     "confsync:presence:",
	}
}

// RegisterParticipant records a participant connection on this instance
func (r *PresenceRegistry) RegisterParticipant(ctx context.Context, participant domain.Participant) error {
	record := presenceRecord{
		InstanceID:  r.instanceID,
		ConnectedAt: time.Now().Unix(),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal presence record: %w", err)
	}

	key := r.participantKey(participant)
	if err := r.client.Set(ctx, key, data, presenceTTL).Err(); err != nil {
		return fmt.Errorf("failed to register participant: %w", err)
	}

	confKey := r.conferenceKey(participant.ConferenceID)
	if err := r.client.SAdd(ctx, confKey, string(participant.ParticipantID)).Err(); err != nil {
		return fmt.Errorf("failed to add participant to conference set: %w", err)
	}
	r.client.Expire(ctx, confKey, presenceIndexTTL)

	instanceKey := r.instanceKey(r.instanceID)
	if err := r.client.SAdd(ctx, instanceKey, presenceMember(participant)).Err(); err != nil {
		return fmt.Errorf("failed to add participant to instance set: %w", err)
	}
	r.client.Expire(ctx, instanceKey, presenceIndexTTL)

	return nil
}

// UnregisterParticipant removes a participant connection record
func (r *PresenceRegistry) UnregisterParticipant(ctx context.Context, participant domain.Participant) error {
	key := r.participantKey(participant)

	data, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // Already unregistered
	}
	if err != nil {
		return fmt.Errorf("failed to get presence record: %w", err)
	}

	var record presenceRecord
	if jsonErr := json.Unmarshal([]byte(data), &record); jsonErr == nil {
		r.client.SRem(ctx, r.instanceKey(record.InstanceID), presenceMember(participant))
	}

	r.client.SRem(ctx, r.conferenceKey(participant.ConferenceID), string(participant.ParticipantID))

	return r.client.Del(ctx, key).Err()
}

// ConnectedParticipants lists participants currently connected to a
// conference across all instances.
func (r *PresenceRegistry) ConnectedParticipants(ctx context.Context, conferenceID domain.ConferenceID) ([]domain.ParticipantID, error) {
	members, err := r.client.SMembers(ctx, r.conferenceKey(conferenceID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get conference participants: %w", err)
	}

	result := make([]domain.ParticipantID, len(members))
	for i, id := range members {
		result[i] = domain.ParticipantID(id)
	}

	return result, nil
}

// ParticipantInstance reports which instance a participant is connected to
func (r *PresenceRegistry) ParticipantInstance(ctx context.Context, participant domain.Participant) (string, error) {
	data, err := r.client.Get(ctx, r.participantKey(participant)).Result()
	if err == redis.Nil {
		return "", domain.ErrParticipantNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get presence record: %w", err)
	}

	var record presenceRecord
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return "", fmt.Errorf("failed to unmarshal presence record: %w", err)
	}

	return record.InstanceID, nil
}

// RefreshParticipant refreshes the TTL of a presence record
func (r *PresenceRegistry) RefreshParticipant(ctx context.Context, participant domain.Participant) error {
	return r.client.Expire(ctx, r.participantKey(participant), presenceTTL).Err()
}

// CleanupInstance removes all presence records for an instance, used on
// shutdown so crashed or restarted instances do not leave ghosts behind.
func (r *PresenceRegistry) CleanupInstance(ctx context.Context, instanceID string) error {
	instanceKey := r.instanceKey(instanceID)
	members, err := r.client.SMembers(ctx, instanceKey).Result()
	if err != nil {
		return fmt.Errorf("failed to get instance participants: %w", err)
	}

	for _, member := range members {
		participant, ok := parsePresenceMember(member)
		if !ok {
			continue
		}
		if err := r.UnregisterParticipant(ctx, participant); err != nil {
			r.logger.Warnw("failed to unregister participant during cleanup",
				"participant", member,
				"error", err,
			)
		}
	}

	return r.client.Del(ctx, instanceKey).Err()
}

func (r *PresenceRegistry) participantKey(p domain.Participant) string {
	return fmt.Sprintf("%s%s:%s", r.prefix, p.ConferenceID, p.ParticipantID)
}

func (r *PresenceRegistry) conferenceKey(conferenceID domain.ConferenceID) string {
	return fmt.Sprintf("confsync:conference:%s:participants", conferenceID)
}

func (r *PresenceRegistry) instanceKey(instanceID string) string {
	return fmt.Sprintf("confsync:instance:%s:participants", instanceID)
}

func presenceMember(p domain.Participant) string {
	return fmt.Sprintf("%s/%s", p.ConferenceID, p.ParticipantID)
}

func parsePresenceMember(member string) (domain.Participant, bool) {
	conf, pid, ok := strings.Cut(member, "/")
	if !ok {
		return domain.Participant{}, false
	}
	return domain.Participant{
		ConferenceID:  domain.ConferenceID(conf),
		ParticipantID: domain.ParticipantID(pid),
	}, true
}
