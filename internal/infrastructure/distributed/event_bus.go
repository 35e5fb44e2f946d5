package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"confsync/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event
type EventType string

const (
	EventRoomsCreated EventType = "rooms.created"
	EventRoomsRemoved EventType = "rooms.removed"
	EventSyncUpdate   EventType = "sync.update"
)

// Event represents a distributed event
type Event struct {
	Type         EventType           `json:"type"`
	InstanceID   string              `json:"instance_id"`
	Timestamp    time.Time           `json:"timestamp"`
	ConferenceID domain.ConferenceID `json:"conference_id,omitempty"`
	ObjectID     string              `json:"object_id,omitempty"`
	Payload      json.RawMessage     `json:"payload,omitempty"`
}

// EventBus provides event publishing and subscription for cross-instance
// coordination
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
	channels   []string
}

// NewEventBus creates a new event bus
func NewEventBus(
	client *redis.Client,
	instanceID string,
	logger *zap.SugaredLogger,
) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		channels:   []string{"confsync:events"},
	}
}

// Publish publishes an event to the event bus
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	channel := eb.channels[0]
	if err := eb.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"conference_id", event.ConferenceID,
		"object_id", event.ObjectID,
	)

	return nil
}

// Subscribe subscribes to events and calls handler for each event. Events
// published by this instance are skipped.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channels...)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event",
					"error", err,
					"payload", msg.Payload,
				)
				continue
			}

			// Skip events from this instance
			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event",
					"type", event.Type,
					"error", err,
				)
			}
		}
	}
}

// PublishRoomsCreated publishes a rooms created event
func (eb *EventBus) PublishRoomsCreated(ctx context.Context, conferenceID domain.ConferenceID, rooms []domain.Room) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"rooms": rooms,
	})

	return eb.Publish(ctx, &Event{
		Type:         EventRoomsCreated,
		ConferenceID: conferenceID,
		Payload:      payload,
	})
}

// PublishRoomsRemoved publishes a rooms removed event
func (eb *EventBus) PublishRoomsRemoved(ctx context.Context, conferenceID domain.ConferenceID, roomIDs []domain.RoomID) error {
	payload, _ := json.Marshal(map[string]interface{}{
		"room_ids": roomIDs,
	})

	return eb.Publish(ctx, &Event{
		Type:         EventRoomsRemoved,
		ConferenceID: conferenceID,
		Payload:      payload,
	})
}

// PublishSyncUpdate publishes a synchronized object update so gateways on
// other instances can deliver it to their local connections.
func (eb *EventBus) PublishSyncUpdate(ctx context.Context, conferenceID domain.ConferenceID, objectID domain.SynchronizedObjectID, payload json.RawMessage) error {
	return eb.Publish(ctx, &Event{
		Type:         EventSyncUpdate,
		ConferenceID: conferenceID,
		ObjectID:     objectID.String(),
		Payload:      payload,
	})
}

// Close closes the event bus
func (eb *EventBus) Close() error {
	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
